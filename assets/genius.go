package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/httputil"
	"github.com/xeptore/playtag/ratelimit"
	"github.com/xeptore/playtag/retrier"
	"github.com/xeptore/playtag/track"
)

const (
	maxGeniusResponseBytes = 8 << 20
	// Hits further than this fraction of the query length are not the song
	// that was asked for.
	maxHitDistanceRatio = 0.5
)

// Genius looks lyrics up through the Genius search API and scrapes them from
// the song page.
type Genius struct {
	client  *http.Client
	baseURL string
	token   string
	policy  retrier.Policy
	limiter *rate.Limiter
}

func NewGenius(client *http.Client, conf config.Lyrics) *Genius {
	return &Genius{
		client:  client,
		baseURL: conf.BaseURL,
		token:   conf.Token,
		policy:  retrier.FromConfig(conf.Retry),
		limiter: ratelimit.NewLimiter(conf.RequestsPerMinute),
	}
}

type songHit struct {
	Title  string
	Artist string
	URL    string
}

// Lyrics returns nil without an error when Genius has no matching song or
// the song page carries no lyrics.
func (g *Genius) Lyrics(ctx context.Context, logger zerolog.Logger, id track.LyricsIdentity) (*string, error) {
	query := strings.TrimSpace(id.Artist + " " + id.Title)
	logger = logger.With().Str("lyrics_query", query).Logger()

	hits, err := g.search(ctx, logger, query)
	if nil != err {
		return nil, fmt.Errorf("failed to search lyrics: %w", err)
	}

	hit, ok := closestHit(hits, query)
	if !ok {
		logger.Debug().Int("hits", len(hits)).Msg("No close lyrics search hit")
		return nil, nil
	}
	logger = logger.With().Str("song_url", hit.URL).Logger()

	page, err := g.get(ctx, logger, hit.URL, false)
	if nil != err {
		return nil, fmt.Errorf("failed to get song page: %w", err)
	}

	lyrics, err := ExtractLyrics(page)
	if nil != err {
		return nil, fmt.Errorf("failed to extract lyrics: %v", err)
	}

	if len(lyrics) == 0 {
		return nil, nil
	}

	return &lyrics, nil
}

func (g *Genius) search(ctx context.Context, logger zerolog.Logger, query string) ([]songHit, error) {
	searchURL, err := url.JoinPath(g.baseURL, "search")
	if nil != err {
		return nil, fmt.Errorf("failed to join search URL: %v", err)
	}
	searchURL += "?" + url.Values{"q": []string{query}}.Encode()

	body, err := g.get(ctx, logger, searchURL, true)
	if nil != err {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid search response body")
	}

	var hits []songHit
	gjson.GetBytes(body, "response.hits").ForEach(func(_, v gjson.Result) bool {
		if v.Get("type").String() != "song" {
			return true
		}

		hit := songHit{
			Title:  v.Get("result.title").String(),
			Artist: v.Get("result.primary_artist.name").String(),
			URL:    v.Get("result.url").String(),
		}
		if len(hit.URL) > 0 {
			hits = append(hits, hit)
		}

		return true
	})

	return hits, nil
}

func (g *Genius) get(ctx context.Context, logger zerolog.Logger, reqURL string, authorized bool) ([]byte, error) {
	var body []byte
	err := retrier.Do(ctx, g.policy, func(ctx context.Context, attempt int) error {
		if err := g.limiter.Wait(ctx); nil != err {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if nil != err {
			return fmt.Errorf("failed to create request: %v", err)
		}
		if authorized {
			req.Header.Add("Authorization", "Bearer "+g.token)
		}

		resp, err := g.client.Do(req)
		if nil != err {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("Lyrics request attempt failed")
			return httputil.SendError(ctx, fmt.Errorf("failed to send request: %w", err))
		}
		defer resp.Body.Close() //nolint:errcheck

		if err := httputil.CheckStatus(resp); nil != err {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("Lyrics request attempt failed")
			return err
		}

		b, err := httputil.ReadResponseBody(resp, maxGeniusResponseBytes)
		if nil != err {
			if errors.Is(err, httputil.ErrBodyTooLarge) {
				return err
			}

			return retrier.Transient(err)
		}
		body = b

		return nil
	})
	if nil != err {
		return nil, err
	}

	return body, nil
}

func closestHit(hits []songHit, query string) (songHit, bool) {
	want := strings.ToLower(query)

	var (
		best     songHit
		bestDist = -1
	)
	for _, h := range hits {
		got := strings.ToLower(strings.TrimSpace(h.Artist + " " + h.Title))
		d := levenshtein.ComputeDistance(want, got)
		if bestDist < 0 || d < bestDist {
			best, bestDist = h, d
		}
	}

	if bestDist < 0 || float64(bestDist) > maxHitDistanceRatio*float64(len([]rune(want))) {
		return songHit{}, false
	}

	return best, true
}

var (
	sectionHeader = regexp.MustCompile(`(?m)^\[[^\]\n]*\]\n?`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// ExtractLyrics pulls the lyrics text out of a Genius song page. Section
// headers such as "[Chorus]" are dropped.
func ExtractLyrics(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if nil != err {
		return "", fmt.Errorf("failed to parse song page: %v", err)
	}

	var parts []string
	doc.Find(`[data-lyrics-container="true"]`).Each(func(_ int, s *goquery.Selection) {
		s.Find("br").ReplaceWithHtml("\n")
		s.Find(`[data-exclude-from-selection="true"]`).Remove()
		if text := strings.TrimSpace(s.Text()); len(text) > 0 {
			parts = append(parts, text)
		}
	})

	lyrics := strings.Join(parts, "\n\n")
	lyrics = sectionHeader.ReplaceAllString(lyrics, "")
	lyrics = blankRuns.ReplaceAllString(lyrics, "\n\n")

	return strings.TrimSpace(lyrics), nil
}
