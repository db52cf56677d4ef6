// Package title guesses an artist/title pair from a free-form track label.
package title

import (
	"regexp"
	"strings"

	"github.com/xeptore/playtag/track"
)

// Rule splits a label into an artist and a title part when its separator
// occurs in the label.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	// Extract receives the label and the location of the first separator
	// match, and returns the raw left and right segments.
	Extract func(label string, loc []int) (left, right string)
}

func splitAround(label string, loc []int) (string, string) {
	return label[:loc[0]], label[loc[1]:]
}

var defaultRules = []Rule{
	{
		Name:    "dash",
		Pattern: regexp.MustCompile(`\s+[-\x{2013}\x{2014}]\s+`),
		Extract: splitAround,
	},
	{
		Name:    "colon",
		Pattern: regexp.MustCompile(`:\s+`),
		Extract: splitAround,
	},
	{
		Name:    "pipe",
		Pattern: regexp.MustCompile(`\s+\|\s+`),
		Extract: splitAround,
	},
}

// Rules returns a copy of the built-in rules in priority order.
func Rules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)

	return out
}

var (
	bracketedTag = regexp.MustCompile(`\([^()]*\)|\[[^\[\]]*\]|\{[^{}]*\}`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Clean removes bracketed tags such as "(Official Video)" or "[Lyrics]" and
// collapses whitespace.
func Clean(s string) string {
	for {
		next := bracketedTag.ReplaceAllString(s, " ")
		if next == s {
			break
		}
		s = next
	}

	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Parse splits raw into an artist/title candidate using the default rules.
func Parse(raw string) track.Candidate {
	return ParseWith(raw, defaultRules)
}

// ParseWith applies rules in order and the first matching rule decides. When
// nothing matches, or the match leaves one side empty, the cleaned label
// becomes a title-only, low confidence candidate.
func ParseWith(raw string, rules []Rule) track.Candidate {
	label := strings.TrimSpace(raw)

	for _, rule := range rules {
		loc := rule.Pattern.FindStringIndex(label)
		if nil == loc {
			continue
		}

		left, right := rule.Extract(label, loc)
		artist, title := Clean(left), Clean(right)
		if artist == "" || title == "" {
			break
		}

		return track.Candidate{
			Artist:     &artist,
			Title:      title,
			Confidence: track.ConfidenceHigh,
		}
	}

	title := Clean(label)
	if title == "" {
		title = label
	}

	return track.Candidate{
		Artist:     nil,
		Title:      title,
		Confidence: track.ConfidenceLow,
	}
}
