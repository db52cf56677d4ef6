// Package assets fetches cover art and lyrics for a resolved track. Both are
// best effort: failures come back as warnings, never as errors.
package assets

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/playtag/cache"
	"github.com/xeptore/playtag/result"
	"github.com/xeptore/playtag/track"
)

const (
	WarnNoArtwork          = "no artwork available"
	WarnArtworkFetchFailed = "artwork fetch failed: "
	WarnNoLyrics           = "no lyrics found"
	WarnLyricsFetchFailed  = "lyrics fetch failed: "
)

type ArtworkSource interface {
	Artwork(ctx context.Context, logger zerolog.Logger, url string) result.Of[cache.Artwork]
}

type LyricsSource interface {
	Lyrics(ctx context.Context, logger zerolog.Logger, id track.LyricsIdentity) (*string, error)
}

type Fetcher struct {
	artwork ArtworkSource
	lyrics  LyricsSource
	cache   *cache.LyricsCache
}

// NewFetcher returns a fetcher. A nil lyrics source disables lyrics lookups
// entirely.
func NewFetcher(artwork ArtworkSource, lyrics LyricsSource, c *cache.LyricsCache) *Fetcher {
	return &Fetcher{artwork: artwork, lyrics: lyrics, cache: c}
}

// Fetch retrieves artwork for meta and lyrics for id concurrently. meta is
// nil when the catalog had no match, in which case no artwork is looked up.
// Warnings are ordered artwork first, lyrics second.
func (f *Fetcher) Fetch(
	ctx context.Context,
	logger zerolog.Logger,
	meta *track.Metadata,
	id track.LyricsIdentity,
) (track.AssetBundle, []string) {
	var (
		bundle      track.AssetBundle
		artworkWarn string
		lyricsWarn  string
		wg          errgroup.Group
	)

	if nil != meta {
		wg.Go(func() error {
			if len(meta.ArtworkURL) == 0 {
				artworkWarn = WarnNoArtwork
				return nil
			}

			res := f.artwork.Artwork(ctx, logger, meta.ArtworkURL)
			switch res.State() {
			case result.StateFound:
				art := res.Unwrap()
				bundle.Artwork, bundle.ArtworkMIME = art.Data, art.MIME
			case result.StateNotFound:
				artworkWarn = WarnNoArtwork
			case result.StateError:
				logger.Warn().Err(res.Err()).Msg("Artwork fetch failed")
				artworkWarn = WarnArtworkFetchFailed + res.Err().Error()
			}

			return nil
		})
	}

	if nil != f.lyrics && id.Valid() {
		wg.Go(func() error {
			res := f.fetchLyrics(ctx, logger, id)
			switch res.State() {
			case result.StateFound:
				bundle.Lyrics = res.Unwrap()
			case result.StateNotFound:
				lyricsWarn = WarnNoLyrics
			case result.StateError:
				logger.Warn().Err(res.Err()).Msg("Lyrics fetch failed")
				lyricsWarn = WarnLyricsFetchFailed + res.Err().Error()
			}

			return nil
		})
	}

	_ = wg.Wait()

	var warnings []string
	for _, w := range []string{artworkWarn, lyricsWarn} {
		if len(w) > 0 {
			warnings = append(warnings, w)
		}
	}

	return bundle, warnings
}

func (f *Fetcher) fetchLyrics(ctx context.Context, logger zerolog.Logger, id track.LyricsIdentity) result.Of[string] {
	fetch := func() (*string, error) {
		return f.lyrics.Lyrics(ctx, logger, id)
	}

	var (
		lyrics *string
		err    error
	)
	if nil != f.cache {
		lyrics, err = f.cache.Fetch(id, cache.DefaultLyricsTTL, fetch)
	} else {
		lyrics, err = fetch()
	}

	switch {
	case nil != err:
		return result.Err[string](err)
	case nil == lyrics || len(*lyrics) == 0:
		return result.NotFound[string]()
	default:
		return result.Found(lyrics)
	}
}
