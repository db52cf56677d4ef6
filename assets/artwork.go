package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG decoder registration
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/xeptore/playtag/cache"
	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/httputil"
	"github.com/xeptore/playtag/retrier"
	"github.com/xeptore/playtag/result"
	"github.com/xeptore/playtag/unit"
)

var ErrUnsupportedImage = errors.New("unsupported image")

const (
	mimeJPEG = "image/jpeg"
	mimePNG  = "image/png"
)

// ArtworkDownloader fetches cover images, validates them and scales down the
// ones larger than the configured dimension.
type ArtworkDownloader struct {
	client       *http.Client
	policy       retrier.Policy
	maxBytes     int64
	maxDimension int
	cache        *cache.ArtworkCache
}

func NewArtworkDownloader(client *http.Client, conf config.Artwork, c *cache.ArtworkCache) *ArtworkDownloader {
	return &ArtworkDownloader{
		client:       client,
		policy:       retrier.FromConfig(conf.Retry),
		maxBytes:     conf.MaxBytes,
		maxDimension: conf.MaxDimension,
		cache:        c,
	}
}

func (d *ArtworkDownloader) Artwork(ctx context.Context, logger zerolog.Logger, url string) result.Of[cache.Artwork] {
	logger = logger.With().Str("artwork_url", url).Logger()

	art, err := d.cache.Fetch(url, cache.DefaultArtworkTTL, func() (cache.Artwork, error) {
		return d.download(ctx, logger, url)
	})
	if nil != err {
		if errors.Is(err, httputil.ErrNotFound) {
			return result.NotFound[cache.Artwork]()
		}

		return result.Err[cache.Artwork](err)
	}

	return result.Found(&art)
}

func (d *ArtworkDownloader) download(ctx context.Context, logger zerolog.Logger, url string) (cache.Artwork, error) {
	var body []byte
	err := retrier.Do(ctx, d.policy, func(ctx context.Context, attempt int) error {
		b, err := d.get(ctx, url)
		if nil != err {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("Artwork download attempt failed")
			return err
		}
		body = b

		return nil
	})
	if nil != err {
		return cache.Artwork{}, err
	}

	art, err := d.normalize(body)
	if nil != err {
		return cache.Artwork{}, err
	}
	logger.Debug().Str("mime", art.MIME).Str("size", unit.Human(int64(len(art.Data)))).Msg("Artwork downloaded")

	return art, nil
}

func (d *ArtworkDownloader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if nil != err {
		return nil, fmt.Errorf("failed to create artwork request: %v", err)
	}

	resp, err := d.client.Do(req)
	if nil != err {
		return nil, httputil.SendError(ctx, fmt.Errorf("failed to send artwork request: %w", err))
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := httputil.CheckStatus(resp); nil != err {
		return nil, err
	}

	body, err := httputil.ReadResponseBody(resp, d.maxBytes)
	if nil != err {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, fmt.Errorf("artwork exceeds %s: %w", unit.Human(d.maxBytes), err)
		}

		return nil, retrier.Transient(err)
	}

	return body, nil
}

// normalize rejects anything that is not a decodable JPEG or PNG of bounded
// pixel count and re-encodes images larger than maxDimension as JPEG.
func (d *ArtworkDownloader) normalize(data []byte) (cache.Artwork, error) {
	mime := mimetype.Detect(data)
	var mimeType string
	switch {
	case mime.Is(mimeJPEG):
		mimeType = mimeJPEG
	case mime.Is(mimePNG):
		mimeType = mimePNG
	default:
		return cache.Artwork{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mime.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if nil != err {
		return cache.Artwork{}, fmt.Errorf("%w: failed to read %s header: %v", ErrUnsupportedImage, mimeType, err)
	}

	if limit := maxDecodePixels(d.maxDimension); int64(cfg.Width)*int64(cfg.Height) > limit {
		return cache.Artwork{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, limit)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if nil != err {
		return cache.Artwork{}, fmt.Errorf("%w: failed to decode %s: %v", ErrUnsupportedImage, mimeType, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= d.maxDimension && bounds.Dy() <= d.maxDimension {
		return cache.Artwork{Data: data, MIME: mimeType}, nil
	}

	scaled, err := downscale(img, d.maxDimension)
	if nil != err {
		return cache.Artwork{}, err
	}

	return cache.Artwork{Data: scaled, MIME: mimeJPEG}, nil
}

// maxDecodePixels is the largest pixel count decoded for maxDimension.
func maxDecodePixels(maxDimension int) int64 {
	side := int64(4 * maxDimension)
	return side * side
}

func downscale(img image.Image, maxDimension int) ([]byte, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width >= height {
		height = max(1, height*maxDimension/width)
		width = maxDimension
	} else {
		width = max(1, width*maxDimension/height)
		height = maxDimension
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); nil != err {
		return nil, fmt.Errorf("failed to encode scaled artwork: %v", err)
	}

	return buf.Bytes(), nil
}
