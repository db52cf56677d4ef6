package cache

import (
	"fmt"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/xeptore/playtag/track"
)

var (
	DefaultArtworkTTL = 1 * time.Hour
	DefaultLyricsTTL  = 1 * time.Hour
)

// Cache holds per-run enrichment results shared between workers, so that
// tracks from the same album download the cover once.
type Cache struct {
	Artwork ArtworkCache
	Lyrics  LyricsCache
}

type Artwork struct {
	Data []byte
	MIME string
}

func New() *Cache {
	artworkCache := ccache.New(
		ccache.Configure[Artwork]().
			MaxSize(200).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	lyricsCache := ccache.New(
		ccache.Configure[*string]().
			MaxSize(5_000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	return &Cache{
		Artwork: ArtworkCache{
			c:     artworkCache,
			group: singleflight.Group{},
		},
		Lyrics: LyricsCache{
			c:     lyricsCache,
			group: singleflight.Group{},
		},
	}
}

func (c *Cache) Stop() {
	c.Artwork.c.Stop()
	c.Lyrics.c.Stop()
}

type ArtworkCache struct {
	c     *ccache.Cache[Artwork]
	group singleflight.Group
}

// Fetch returns the artwork cached under url, calling fetch on a miss.
// Concurrent misses for the same url share one fetch. Failed fetches are
// not cached.
func (c *ArtworkCache) Fetch(url string, ttl time.Duration, fetch func() (Artwork, error)) (Artwork, error) {
	v, err, _ := c.group.Do(url, func() (any, error) {
		item, err := c.c.Fetch(url, ttl, fetch)
		if nil != err {
			return nil, err
		}

		return item.Value(), nil
	})
	if nil != err {
		return Artwork{}, fmt.Errorf("fetch artwork: %w", err)
	}

	return v.(Artwork), nil //nolint:forcetypeassert
}

type LyricsCache struct {
	c     *ccache.Cache[*string]
	group singleflight.Group
}

func LyricsKey(id track.LyricsIdentity) string {
	return id.Artist + "\x00" + id.Title
}

// Fetch returns the lyrics cached under id. A nil value means the lyrics
// service has none, which is cached as well.
func (c *LyricsCache) Fetch(id track.LyricsIdentity, ttl time.Duration, fetch func() (*string, error)) (*string, error) {
	key := LyricsKey(id)
	v, err, _ := c.group.Do(key, func() (any, error) {
		item, err := c.c.Fetch(key, ttl, fetch)
		if nil != err {
			return nil, err
		}

		return item.Value(), nil
	})
	if nil != err {
		return nil, fmt.Errorf("fetch lyrics: %w", err)
	}

	return v.(*string), nil //nolint:forcetypeassert
}
