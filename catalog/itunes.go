package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/httputil"
	"github.com/xeptore/playtag/ratelimit"
	"github.com/xeptore/playtag/retrier"
	"github.com/xeptore/playtag/track"
)

const maxSearchResponseBytes = 4 << 20

// ITunes searches the iTunes Search API for songs.
type ITunes struct {
	client      *http.Client
	baseURL     string
	country     string
	limit       int
	artworkSize int
	policy      retrier.Policy
	limiter     *rate.Limiter
}

func NewITunes(client *http.Client, conf config.Catalog) *ITunes {
	return &ITunes{
		client:      client,
		baseURL:     conf.BaseURL,
		country:     conf.Country,
		limit:       conf.Limit,
		artworkSize: conf.ArtworkSize,
		policy:      retrier.FromConfig(conf.Retry),
		limiter:     ratelimit.NewLimiter(conf.RequestsPerMinute),
	}
}

type searchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []searchResult `json:"results"`
}

type searchResult struct {
	TrackName        string `json:"trackName"`
	ArtistName       string `json:"artistName"`
	CollectionName   string `json:"collectionName"`
	PrimaryGenreName string `json:"primaryGenreName"`
	ReleaseDate      string `json:"releaseDate"`
	ArtworkURL100    string `json:"artworkUrl100"`
}

func (s *ITunes) Search(ctx context.Context, logger zerolog.Logger, query string) ([]track.Metadata, error) {
	logger = logger.With().Str("query", query).Logger()

	var out []track.Metadata
	err := retrier.Do(ctx, s.policy, func(ctx context.Context, attempt int) error {
		if err := s.limiter.Wait(ctx); nil != err {
			return err
		}

		records, err := s.search(ctx, query)
		if nil != err {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("Catalog search attempt failed")
			return err
		}
		out = records

		return nil
	})
	if nil != err {
		return nil, err
	}

	return out, nil
}

func (s *ITunes) search(ctx context.Context, query string) ([]track.Metadata, error) {
	reqURL, err := url.Parse(s.baseURL)
	if nil != err {
		return nil, fmt.Errorf("failed to parse catalog base URL: %v", err)
	}

	params := make(url.Values, 5)
	params.Add("term", query)
	params.Add("media", "music")
	params.Add("entity", "song")
	params.Add("limit", strconv.Itoa(s.limit))
	if len(s.country) > 0 {
		params.Add("country", s.country)
	}
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if nil != err {
		return nil, fmt.Errorf("failed to create catalog search request: %v", err)
	}
	req.Header.Add("Accept", "application/json")

	resp, err := s.client.Do(req)
	if nil != err {
		return nil, httputil.SendError(ctx, fmt.Errorf("failed to send catalog search request: %w", err))
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := httputil.CheckStatus(resp); nil != err {
		return nil, err
	}

	body, err := httputil.ReadResponseBody(resp, maxSearchResponseBytes)
	if nil != err {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return nil, err
		}

		return nil, retrier.Transient(err)
	}

	var respBody searchResponse
	if err := json.Unmarshal(body, &respBody); nil != err {
		return nil, fmt.Errorf("failed to decode catalog search response: %v", err)
	}

	out := make([]track.Metadata, 0, len(respBody.Results))
	for _, r := range respBody.Results {
		out = append(out, s.toMetadata(r))
	}

	return out, nil
}

func (s *ITunes) toMetadata(r searchResult) track.Metadata {
	var year string
	if len(r.ReleaseDate) >= 4 {
		year = r.ReleaseDate[:4]
	}

	return track.Metadata{
		Artist:     strings.TrimSpace(r.ArtistName),
		Title:      strings.TrimSpace(r.TrackName),
		Album:      strings.TrimSpace(r.CollectionName),
		Genre:      strings.TrimSpace(r.PrimaryGenreName),
		Year:       year,
		ArtworkURL: ArtworkURL(r.ArtworkURL100, s.artworkSize),
	}
}

// ArtworkURL rewrites the 100x100 thumbnail URL returned by the catalog to
// the given square size.
func ArtworkURL(thumb string, size int) string {
	if len(thumb) == 0 || size <= 0 {
		return thumb
	}

	n := strconv.Itoa(size)

	return strings.Replace(thumb, "100x100", n+"x"+n, 1)
}
