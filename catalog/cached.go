package catalog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/xeptore/playtag/track"
)

type Store interface {
	Get(query string) ([]track.Metadata, bool, error)
	Put(query string, records []track.Metadata) error
}

// CachedSearcher answers repeated queries from a persistent store. Only non
// empty responses are stored, so a song that appears in the catalog later is
// still found.
type CachedSearcher struct {
	next  Searcher
	store Store
}

func NewCachedSearcher(next Searcher, store Store) *CachedSearcher {
	return &CachedSearcher{next: next, store: store}
}

func (s *CachedSearcher) Search(ctx context.Context, logger zerolog.Logger, query string) ([]track.Metadata, error) {
	records, ok, err := s.store.Get(query)
	if nil != err {
		logger.Warn().Err(err).Str("query", query).Msg("Failed to read catalog cache")
	} else if ok {
		logger.Debug().Str("query", query).Msg("Catalog cache hit")
		return records, nil
	}

	records, err = s.next.Search(ctx, logger, query)
	if nil != err {
		return nil, err
	}

	if len(records) > 0 {
		if err := s.store.Put(query, records); nil != err {
			logger.Warn().Err(err).Str("query", query).Msg("Failed to write catalog cache")
		}
	}

	return records, nil
}
