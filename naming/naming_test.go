package naming_test

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/playtag/naming"
	"github.com/xeptore/playtag/track"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "AC/DC - Back In Black", want: "ACDC - Back In Black"},
		{in: `What? "Why" <Not> a|b*c\d:e`, want: "What Why Not abcde"},
		{in: "  spaced \t out\n name  ", want: "spaced out name"},
		{in: "...trailing dots...", want: "trailing dots"},
		{in: "tab\x00null\x1fcontrol", want: "tabnullcontrol"},
		{in: "", want: naming.Fallback},
		{in: "???", want: naming.Fallback},
		{in: "Café", want: "Café"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, naming.Sanitize(tt.in))
		})
	}
}

func TestSanitizeTruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	got := naming.Sanitize(strings.Repeat("é", 150))
	assert.LessOrEqual(t, len(got), naming.MaxNameBytes)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 100), got)
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	daft := "Daft Punk"
	tests := []struct {
		name string
		meta *track.Metadata
		cand track.Candidate
		raw  string
		want string
	}{
		{
			name: "catalog wins",
			meta: &track.Metadata{Artist: "Daft Punk", Title: "One More Time"},
			cand: track.Candidate{Artist: lo.ToPtr("daft punk"), Title: "one more time"},
			raw:  "daft punk - one more time (Official Video)",
			want: "Daft Punk - One More Time",
		},
		{
			name: "candidate fallback",
			cand: track.Candidate{Artist: &daft, Title: "One More Time", Confidence: track.ConfidenceHigh},
			raw:  "Daft Punk - One More Time (Official Video)",
			want: "Daft Punk - One More Time",
		},
		{
			name: "title only",
			cand: track.Candidate{Title: "Some Random Mix 2023"},
			raw:  "Some Random Mix 2023",
			want: "Some Random Mix 2023",
		},
		{
			name: "catalog artist with candidate title",
			meta: &track.Metadata{Artist: "Daft Punk"},
			cand: track.Candidate{Title: "Digital Love"},
			raw:  "Digital Love",
			want: "Daft Punk - Digital Love",
		},
		{
			name: "raw title",
			cand: track.Candidate{Title: "???"},
			raw:  "Für Elise?",
			want: "Für Elise",
		},
		{
			name: "nothing usable",
			cand: track.Candidate{Title: ""},
			raw:  "///",
			want: naming.Fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, naming.DisplayName(tt.meta, tt.cand, tt.raw))
		})
	}
}

func TestNamerAssign(t *testing.T) {
	t.Parallel()

	n := naming.NewNamer()
	assert.Equal(t, "Song", n.Assign("Song"))
	assert.Equal(t, "Song (2)", n.Assign("Song"))
	assert.Equal(t, "song (3)", n.Assign("song"))
	assert.Equal(t, "Other", n.Assign("Other"))
	assert.Equal(t, []string{"Song", "Song (2)", "song (3)", "Other"}, n.Assigned())
}

func TestNamerRelease(t *testing.T) {
	t.Parallel()

	n := naming.NewNamer()
	require.Equal(t, "Song", n.Assign("Song"))
	require.Equal(t, "Song (2)", n.Assign("Song"))

	n.Release("Song")
	n.Release("never assigned")
	assert.Equal(t, []string{"Song (2)"}, n.Assigned())
	assert.Equal(t, "Song", n.Assign("Song"))
	assert.Equal(t, "Song (3)", n.Assign("Song"))
}

func TestNamerLongNameSuffixFits(t *testing.T) {
	t.Parallel()

	n := naming.NewNamer()
	base := strings.Repeat("a", naming.MaxNameBytes)
	first := n.Assign(base)
	second := n.Assign(base)

	assert.Equal(t, base, first)
	assert.Len(t, second, naming.MaxNameBytes)
	assert.True(t, strings.HasSuffix(second, " (2)"))
}

func TestNamerConcurrentAssignIsUnique(t *testing.T) {
	t.Parallel()

	n := naming.NewNamer()

	var (
		wg    sync.WaitGroup
		mux   sync.Mutex
		names []string
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := n.Assign("Same Title")
			mux.Lock()
			names = append(names, name)
			mux.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, names, 50)
	assert.Len(t, lo.Uniq(names), 50)
}
