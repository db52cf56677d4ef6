package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/track"
)

var (
	ErrInvalidPlaylistURL = errors.New("not a playlist URL")
	ErrUnavailable        = errors.New("track is unavailable")
)

const audioStem = "audio"

// YtDlp lists playlists and downloads audio streams using yt-dlp.
type YtDlp struct {
	bin             string
	listTimeout     time.Duration
	downloadTimeout time.Duration
	retries         uint64
	initialBackoff  time.Duration
}

func NewYtDlp(conf config.Tools) *YtDlp {
	return &YtDlp{
		bin:             conf.YtDlp,
		listTimeout:     conf.ListTimeout.Duration,
		downloadTimeout: conf.DownloadTimeout.Duration,
		retries:         uint64(max(conf.DownloadRetries, 0)), //nolint:gosec
		initialBackoff:  2 * time.Second,
	}
}

// WithInitialBackoff sets the delay before the first download retry.
func (y *YtDlp) WithInitialBackoff(d time.Duration) *YtDlp {
	y.initialBackoff = d
	return y
}

// ValidatePlaylistURL accepts http(s) URLs that point at a playlist.
func ValidatePlaylistURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if nil != err {
		return fmt.Errorf("%w: %v", ErrInvalidPlaylistURL, err)
	}

	if (u.Scheme != "http" && u.Scheme != "https") || len(u.Host) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPlaylistURL, raw)
	}

	if !u.Query().Has("list") && !strings.Contains(strings.ToLower(u.Path), "playlist") {
		return fmt.Errorf("%w: %s", ErrInvalidPlaylistURL, raw)
	}

	return nil
}

func (y *YtDlp) Playlist(ctx context.Context, logger zerolog.Logger, playlistURL string) (*track.Playlist, error) {
	if err := ValidatePlaylistURL(playlistURL); nil != err {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, y.listTimeout)
	defer cancel()

	out, err := run(ctx, logger, y.bin, "--flat-playlist", "-J", "--no-warnings", playlistURL)
	if nil != err {
		return nil, fmt.Errorf("failed to list playlist: %w", err)
	}

	return ParsePlaylist(out, playlistURL)
}

var unavailableTitles = []string{"[Private video]", "[Deleted video]", "[Unavailable video]"}

var unavailableStates = []string{"private", "needs_auth", "premium_only", "subscriber_only"}

// ParsePlaylist reads the JSON printed by yt-dlp --flat-playlist -J.
func ParsePlaylist(data []byte, playlistURL string) (*track.Playlist, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid playlist JSON")
	}

	doc := gjson.ParseBytes(data)
	if doc.Get("_type").String() != "playlist" && !doc.Get("entries").Exists() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlaylistURL, playlistURL)
	}

	pl := &track.Playlist{
		ID:     doc.Get("id").String(),
		Title:  strings.TrimSpace(doc.Get("title").String()),
		URL:    playlistURL,
		Tracks: nil,
	}

	index := 0
	doc.Get("entries").ForEach(func(_, e gjson.Result) bool {
		index++

		if e.Type == gjson.Null {
			pl.Tracks = append(pl.Tracks, track.RawTrack{Index: index, Unavailable: true})
			return true
		}

		raw := track.RawTrack{
			ID:          e.Get("id").String(),
			SourceURL:   e.Get("url").String(),
			RawTitle:    e.Get("title").String(),
			Index:       index,
			Unavailable: false,
		}
		if len(raw.SourceURL) == 0 && len(raw.ID) > 0 {
			raw.SourceURL = "https://www.youtube.com/watch?v=" + raw.ID
		}

		raw.Unavailable = len(raw.SourceURL) == 0 ||
			slices.Contains(unavailableTitles, raw.RawTitle) ||
			slices.Contains(unavailableStates, e.Get("availability").String())

		pl.Tracks = append(pl.Tracks, raw)

		return true
	})

	return pl, nil
}

// Download fetches the best audio stream of raw into dir and returns the
// downloaded file path. Network failures are retried, anything else is not.
func (y *YtDlp) Download(ctx context.Context, logger zerolog.Logger, raw track.RawTrack, dir string) (string, error) {
	if raw.Unavailable {
		return "", ErrUnavailable
	}

	var path string
	op := func() error {
		p, err := y.download(ctx, logger, raw, dir)
		if nil != err {
			if ctxErr := ctx.Err(); nil != ctxErr {
				return backoff.Permanent(ctxErr)
			}

			if !errors.Is(err, context.DeadlineExceeded) && !IsTransientDownloadError(err) {
				return backoff.Permanent(err)
			}

			logger.Warn().Err(err).Msg("Download attempt failed, retrying")

			return err
		}
		path = p

		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(y.initialBackoff),
				backoff.WithMaxInterval(time.Minute),
			),
			y.retries,
		),
		ctx,
	)
	if err := backoff.Retry(op, b); nil != err {
		return "", err
	}

	return path, nil
}

func (y *YtDlp) download(ctx context.Context, logger zerolog.Logger, raw track.RawTrack, dir string) (string, error) {
	ctx, cancel := withTimeout(ctx, y.downloadTimeout)
	defer cancel()

	out, err := run(
		ctx,
		logger,
		y.bin,
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-warnings",
		"--no-progress",
		"--no-part",
		"-o", filepath.Join(dir, audioStem+".%(ext)s"),
		"--print", "after_move:filepath",
		raw.SourceURL,
	)
	if nil != err {
		return "", fmt.Errorf("failed to download audio: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	path := strings.TrimSpace(lines[len(lines)-1])
	if len(path) == 0 {
		return "", errors.New("yt-dlp did not report the downloaded file")
	}

	if _, err := os.Stat(path); nil != err {
		return "", fmt.Errorf("failed to stat downloaded file: %v", err)
	}

	return path, nil
}

var (
	transientPatterns = []string{
		"http error 429",
		"http error 500",
		"http error 502",
		"http error 503",
		"http error 504",
		"timed out",
		"connection reset",
		"connection refused",
		"temporary failure in name resolution",
		"incompleteread",
		"unable to download webpage",
		"got error:",
	}
	permanentPatterns = []string{
		"video unavailable",
		"private video",
		"sign in to confirm your age",
		"this video is not available",
		"has been removed",
	}
)

// IsTransientDownloadError reports whether a failed yt-dlp run looks like a
// network hiccup worth another attempt.
func IsTransientDownloadError(err error) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}

	msg := strings.ToLower(exitErr.Stderr)
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}

	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}
