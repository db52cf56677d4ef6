// Package naming derives output file names and keeps them unique within a
// run.
package naming

import (
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/xeptore/playtag/track"
)

const (
	Fallback     = "Untitled"
	MaxNameBytes = 200
)

// DisplayName returns "{artist} - {title}", "{title}" when there is no
// artist, or the raw title when neither is known. Catalog values take
// precedence over the parsed candidate. The result is sanitized.
func DisplayName(meta *track.Metadata, cand track.Candidate, raw string) string {
	var artist, title string
	if nil != meta {
		artist, title = meta.Artist, meta.Title
	}

	if len(strings.TrimSpace(artist)) == 0 {
		artist = cand.ArtistOrEmpty()
	}

	if len(strings.TrimSpace(title)) == 0 {
		title = cand.Title
	}

	artist, title = clean(artist), clean(title)
	switch {
	case len(artist) > 0 && len(title) > 0:
		return Sanitize(artist + " - " + title)
	case len(title) > 0:
		return title
	default:
		return Sanitize(raw)
	}
}

func isForbidden(r rune) bool {
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}

	return unicode.IsControl(r)
}

// Sanitize makes s safe to use as a file name on common file systems. It
// never returns an empty string.
func Sanitize(s string) string {
	if s = clean(s); len(s) == 0 {
		return Fallback
	}

	return s
}

func clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if isForbidden(r) {
			return -1
		}

		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " .")
	s = truncate(s, MaxNameBytes)

	return strings.TrimRight(s, " .")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}

// Namer hands out names that are unique within one run, comparing them
// case-insensitively.
type Namer struct {
	mux      sync.Mutex
	fold     cases.Caser
	assigned map[string]string
	order    []string
}

func NewNamer() *Namer {
	return &Namer{
		mux:      sync.Mutex{},
		fold:     cases.Fold(),
		assigned: make(map[string]string),
		order:    nil,
	}
}

// Assign reserves base, or base with the lowest free " (n)" suffix starting
// at 2.
func (n *Namer) Assign(base string) string {
	n.mux.Lock()
	defer n.mux.Unlock()

	name := base
	for i := 2; ; i++ {
		key := n.fold.String(name)
		if _, taken := n.assigned[key]; !taken {
			n.assigned[key] = name
			n.order = append(n.order, name)

			return name
		}

		suffix := " (" + strconv.Itoa(i) + ")"
		name = truncate(base, MaxNameBytes-len(suffix)) + suffix
	}
}

// Release frees a name returned by Assign. Releasing an unknown name is a
// no-op.
func (n *Namer) Release(name string) {
	n.mux.Lock()
	defer n.mux.Unlock()

	key := n.fold.String(name)
	if _, ok := n.assigned[key]; !ok {
		return
	}
	delete(n.assigned, key)

	for i, v := range n.order {
		if v == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
}

// Assigned returns the names currently held, in assignment order.
func (n *Namer) Assigned() []string {
	n.mux.Lock()
	defer n.mux.Unlock()

	out := make([]string, len(n.order))
	copy(out, n.order)

	return out
}
