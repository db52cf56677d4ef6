// Package catalog resolves a guessed artist/title pair to a canonical
// catalog record.
package catalog

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/xeptore/playtag/result"
	"github.com/xeptore/playtag/track"
)

type Searcher interface {
	Search(ctx context.Context, logger zerolog.Logger, query string) ([]track.Metadata, error)
}

type Resolver struct {
	searcher Searcher
}

func NewResolver(searcher Searcher) *Resolver {
	return &Resolver{searcher: searcher}
}

var (
	nonWord    = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NormalizeQuery replaces punctuation with spaces and collapses whitespace.
func NormalizeQuery(s string) string {
	s = nonWord.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Query builds the search term for cand, falling back to raw when the guess
// has nothing searchable left.
func Query(cand track.Candidate, raw string) string {
	q := NormalizeQuery(strings.TrimSpace(cand.ArtistOrEmpty() + " " + cand.Title))
	if len(q) > 0 {
		return q
	}

	if q = NormalizeQuery(raw); len(q) > 0 {
		return q
	}

	return strings.TrimSpace(raw)
}

// Resolve looks cand up in the catalog. Lookup failures are returned as an
// error result and never abort the caller.
func (r *Resolver) Resolve(
	ctx context.Context,
	logger zerolog.Logger,
	cand track.Candidate,
	raw string,
) result.Of[track.Metadata] {
	query := Query(cand, raw)
	if len(query) == 0 {
		return result.NotFound[track.Metadata]()
	}

	records, err := r.searcher.Search(ctx, logger, query)
	if nil != err {
		logger.Debug().Err(err).Str("query", query).Msg("Catalog lookup failed")
		return result.Err[track.Metadata](err)
	}

	if len(records) == 0 {
		return result.NotFound[track.Metadata]()
	}

	best := Select(records, cand)

	return result.Found(&best)
}

// Select picks the best record for cand. Records whose title equals the
// guessed title are preferred, and among those one whose artist also
// matches. Without an exact title match the first record wins. records must
// not be empty.
func Select(records []track.Metadata, cand track.Candidate) track.Metadata {
	fold := cases.Fold()
	same := func(a, b string) bool {
		return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
	}

	var titleMatch *track.Metadata
	for i := range records {
		if !same(records[i].Title, cand.Title) {
			continue
		}

		if nil != cand.Artist && same(records[i].Artist, *cand.Artist) {
			return records[i]
		}

		if nil == titleMatch {
			titleMatch = &records[i]
		}
	}

	if nil != titleMatch {
		return *titleMatch
	}

	return records[0]
}
