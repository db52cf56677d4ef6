package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bogem/id3v2/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/playtag/assets"
	"github.com/xeptore/playtag/cache"
	"github.com/xeptore/playtag/catalog"
	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/fs"
	"github.com/xeptore/playtag/pipeline"
	"github.com/xeptore/playtag/tagger"
	"github.com/xeptore/playtag/track"
)

const playlistURL = "https://www.youtube.com/playlist?list=PL123"

type fakeSource struct {
	playlist *track.Playlist
	err      error
	calls    atomic.Int32
}

func (f *fakeSource) Playlist(context.Context, zerolog.Logger, string) (*track.Playlist, error) {
	f.calls.Add(1)
	return f.playlist, f.err
}

type fakeDownloader struct {
	// onDownload, when set, replaces the default behavior for the track.
	onDownload func(ctx context.Context, raw track.RawTrack) error
}

var errUnavailable = errors.New("track is unavailable")

func (f *fakeDownloader) Download(ctx context.Context, _ zerolog.Logger, raw track.RawTrack, dir string) (string, error) {
	if raw.Unavailable {
		return "", errUnavailable
	}

	if nil != f.onDownload {
		if err := f.onDownload(ctx, raw); nil != err {
			return "", err
		}
	}

	path := filepath.Join(dir, "audio.webm")
	if err := os.WriteFile(path, []byte(fmt.Sprintf("source audio %d", raw.Index)), 0o0644); nil != err {
		return "", err
	}

	return path, nil
}

type copyTranscoder struct {
	failTitles []string
}

func (f *copyTranscoder) Transcode(_ context.Context, _ zerolog.Logger, src, dst string, _ track.Bitrate) error {
	data, err := os.ReadFile(src)
	if nil != err {
		return err
	}

	for _, t := range f.failTitles {
		if strings.Contains(string(data), t) {
			return errors.New("ffmpeg failed: invalid data found when processing input")
		}
	}

	return os.WriteFile(dst, append([]byte("mp3:"), data...), 0o0644)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))

	return buf.Bytes()
}

type services struct {
	catalog     *httptest.Server
	genius      *httptest.Server
	lyricsCalls atomic.Int32
}

func newServices(t *testing.T) *services {
	t.Helper()

	s := &services{}
	cover := pngBytes(t)

	catalogMux := http.NewServeMux()
	s.catalog = httptest.NewServer(catalogMux)
	t.Cleanup(s.catalog.Close)

	catalogMux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("term")
		switch {
		case strings.EqualFold(term, "Daft Punk One More Time"):
			fmt.Fprintf(w, `{"resultCount": 1, "results": [{
				"trackName": "One More Time",
				"artistName": "Daft Punk",
				"collectionName": "Discovery",
				"primaryGenreName": "Electronic",
				"releaseDate": "2000-11-30T08:00:00Z",
				"artworkUrl100": "%s/art/100x100bb.png"
			}]}`, s.catalog.URL)
		case term == "Broken Catalog Song":
			w.WriteHeader(http.StatusBadRequest)
		default:
			_, _ = w.Write([]byte(`{"resultCount": 0, "results": []}`))
		}
	})
	catalogMux.HandleFunc("/art/600x600bb.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(cover)
	})

	geniusMux := http.NewServeMux()
	s.genius = httptest.NewServer(geniusMux)
	t.Cleanup(s.genius.Close)

	geniusMux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		s.lyricsCalls.Add(1)
		if r.URL.Query().Get("q") != "Daft Punk One More Time" {
			_, _ = w.Write([]byte(`{"response": {"hits": []}}`))
			return
		}
		fmt.Fprintf(w, `{"response": {"hits": [{"type": "song", "result": {
			"title": "One More Time", "primary_artist": {"name": "Daft Punk"}, "url": "%s/song"
		}}]}}`, s.genius.URL)
	})
	geniusMux.HandleFunc("/song", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<div data-lyrics-container="true">One more time<br>We're gonna celebrate</div>`))
	})

	return s
}

func noRetry() config.Retry {
	return config.Retry{
		MaxRetries: 0,
		BaseDelay:  config.Duration{Duration: time.Millisecond},
		MaxDelay:   config.Duration{Duration: time.Millisecond},
	}
}

type setup struct {
	source     *fakeSource
	downloader *fakeDownloader
	transcoder *copyTranscoder
	withLyrics bool
}

func (s *services) deps(t *testing.T, st setup) pipeline.Deps {
	t.Helper()

	client := s.catalog.Client()
	c := cache.New()
	t.Cleanup(c.Stop)

	resolver := catalog.NewResolver(catalog.NewITunes(client, config.Catalog{
		BaseURL:     s.catalog.URL + "/search",
		Limit:       5,
		ArtworkSize: 600,
		Retry:       noRetry(),
	}))

	var lyrics assets.LyricsSource
	if st.withLyrics {
		lyrics = assets.NewGenius(client, config.Lyrics{Token: "token", BaseURL: s.genius.URL, Retry: noRetry()})
	}

	artwork := assets.NewArtworkDownloader(client, config.Artwork{MaxBytes: 1 << 20, MaxDimension: 600, Retry: noRetry()}, &c.Artwork)

	return pipeline.Deps{
		Source:     st.source,
		Downloader: lo.Ternary(nil != st.downloader, st.downloader, &fakeDownloader{}),
		Transcoder: lo.Ternary(nil != st.transcoder, st.transcoder, &copyTranscoder{}),
		Resolver:   resolver,
		Assets:     assets.NewFetcher(artwork, lyrics, &c.Lyrics),
		Tagger:     tagger.NewWriter(),
	}
}

func playlistOf(titles ...string) *track.Playlist {
	tracks := make([]track.RawTrack, len(titles))
	for i, title := range titles {
		tracks[i] = track.RawTrack{
			ID:        fmt.Sprintf("id%d", i+1),
			SourceURL: fmt.Sprintf("https://www.youtube.com/watch?v=id%d", i+1),
			RawTitle:  title,
			Index:     i + 1,
		}
	}

	return &track.Playlist{ID: "PL123", Title: "Road Trip", URL: playlistURL, Tracks: tracks}
}

func options(root string, workers int) pipeline.Options {
	return pipeline.Options{OutputRoot: root, Bitrate: 320, Workers: workers}
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	root := t.TempDir()
	source := &fakeSource{playlist: playlistOf("Daft Punk - One More Time (Official Video)", "Some Random Mix 2023")}

	p := pipeline.New(options(root, 2), svc.deps(t, setup{source: source}))
	summary, err := p.Run(t.Context(), zerolog.Nop(), playlistURL)
	require.NoError(t, err)

	require.Empty(t, summary.Failed)
	require.Len(t, summary.Placed, 2)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, filepath.Join(root, "Road Trip"), summary.PlaylistDir)

	daft := summary.Placed[0]
	assert.Equal(t, filepath.Join(root, "Road Trip", "Daft Punk - One More Time.mp3"), daft.FinalPath)
	assert.Equal(t, track.Applied{
		Title:      "One More Time",
		Artist:     "Daft Punk",
		Album:      "Discovery",
		Genre:      "Electronic",
		Year:       "2000",
		HasArtwork: true,
		HasLyrics:  false,
	}, daft.Applied)
	assert.Empty(t, daft.Warnings)

	tag, err := id3v2.Open(daft.FinalPath, id3v2.Options{Parse: true})
	require.NoError(t, err)
	assert.Equal(t, "One More Time", tag.Title())
	assert.Equal(t, "Daft Punk", tag.Artist())
	assert.Equal(t, "Discovery", tag.Album())
	assert.Equal(t, "Electronic", tag.Genre())
	assert.Equal(t, "2000", tag.Year())
	assert.Len(t, tag.GetFrames(tag.CommonID("Attached picture")), 1)
	require.NoError(t, tag.Close())

	mix := summary.Placed[1]
	assert.Equal(t, filepath.Join(root, "Road Trip", "Some Random Mix 2023.mp3"), mix.FinalPath)
	assert.Equal(t, track.Applied{Title: "Some Random Mix 2023"}, mix.Applied)
	assert.Equal(t, []string{pipeline.WarnNoCatalogMatch}, mix.Warnings)

	assert.Zero(t, svc.lyricsCalls.Load())
	assert.NoDirExists(t, filepath.Join(root, ".scratch"))

	stored, err := fs.InfoFile[pipeline.StoredSummary]{Path: filepath.Join(root, "Road Trip", ".playtag.json")}.Read()
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, stored.RunID)
	assert.Len(t, stored.Placed, 2)

	warnings := summary.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, 2, warnings[0].Track.Index)
}

func TestRunWithLyrics(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	source := &fakeSource{playlist: playlistOf("Daft Punk - One More Time (Official Video)", "Some Random Mix 2023")}

	p := pipeline.New(options(t.TempDir(), 1), svc.deps(t, setup{source: source, withLyrics: true}))
	summary, err := p.Run(t.Context(), zerolog.Nop(), playlistURL)
	require.NoError(t, err)
	require.Len(t, summary.Placed, 2)

	assert.True(t, summary.Placed[0].Applied.HasLyrics)
	assert.Empty(t, summary.Placed[0].Warnings)
	assert.Equal(t, []string{pipeline.WarnNoCatalogMatch, assets.WarnNoLyrics}, summary.Placed[1].Warnings)
	assert.EqualValues(t, 2, svc.lyricsCalls.Load())

	tag, err := id3v2.Open(summary.Placed[0].FinalPath, id3v2.Options{Parse: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tag.Close() })
	uslt := tag.GetFrames(tag.CommonID("Unsynchronised lyrics/text transcription"))
	require.Len(t, uslt, 1)
	assert.Equal(t, "One more time\nWe're gonna celebrate", uslt[0].(id3v2.UnsynchronisedLyricsFrame).Lyrics) //nolint:forcetypeassert
}

func TestRunCollisionGetsSuffix(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	root := t.TempDir()
	source := &fakeSource{playlist: playlistOf(
		"Daft Punk - One More Time (Official Video)",
		"Daft Punk - One More Time [Lyrics]",
		"daft punk - one more time",
	)}

	p := pipeline.New(options(root, 3), svc.deps(t, setup{source: source}))
	summary, err := p.Run(t.Context(), zerolog.Nop(), playlistURL)
	require.NoError(t, err)
	require.Len(t, summary.Placed, 3)

	names := lo.Map(summary.Placed, func(r track.OutputRecord, _ int) string { return filepath.Base(r.FinalPath) })
	assert.ElementsMatch(t, []string{
		"Daft Punk - One More Time.mp3",
		"Daft Punk - One More Time (2).mp3",
		"Daft Punk - One More Time (3).mp3",
	}, names)

	for _, n := range names {
		assert.FileExists(t, filepath.Join(root, "Road Trip", n))
	}
}

func TestRunIsolatesTrackFailures(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	pl := playlistOf("Daft Punk - One More Time", "Gone - Private", "Bad - Transcode", "Broken Catalog Song")
	pl.Tracks[1].Unavailable = true

	source := &fakeSource{playlist: pl}
	transcoder := &copyTranscoder{failTitles: []string{"source audio 3"}}

	p := pipeline.New(options(t.TempDir(), 2), svc.deps(t, setup{source: source, transcoder: transcoder}))
	summary, err := p.Run(t.Context(), zerolog.Nop(), playlistURL)
	require.NoError(t, err)

	require.Len(t, summary.Placed, 2)
	require.Len(t, summary.Failed, 2)

	assert.Equal(t, 2, summary.Failed[0].Track.Index)
	assert.Equal(t, track.StageDownloading, summary.Failed[0].Stage)
	require.ErrorIs(t, summary.Failed[0].Cause, errUnavailable)

	assert.Equal(t, 3, summary.Failed[1].Track.Index)
	assert.Equal(t, track.StageTranscoding, summary.Failed[1].Stage)

	broken := summary.Placed[1]
	assert.Equal(t, 4, broken.Track.Index)
	require.Len(t, broken.Warnings, 1)
	assert.True(t, strings.HasPrefix(broken.Warnings[0], pipeline.WarnCatalogLookupError), broken.Warnings[0])
	assert.Equal(t, "Broken Catalog Song", broken.Applied.Title)
}

func TestRunAllTracksFail(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	pl := playlistOf("a - b", "c - d")
	pl.Tracks[0].Unavailable = true
	pl.Tracks[1].Unavailable = true

	p := pipeline.New(options(t.TempDir(), 2), svc.deps(t, setup{source: &fakeSource{playlist: pl}}))
	summary, err := p.Run(t.Context(), zerolog.Nop(), playlistURL)
	require.NoError(t, err)
	assert.Empty(t, summary.Placed)
	assert.Len(t, summary.Failed, 2)
}

func TestRunCancellation(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	root := t.TempDir()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	downloader := &fakeDownloader{
		onDownload: func(ctx context.Context, raw track.RawTrack) error {
			if raw.Index == 1 {
				cancel()
				<-ctx.Done()

				return ctx.Err()
			}

			return nil
		},
	}
	source := &fakeSource{playlist: playlistOf("Daft Punk - One More Time", "Song Two", "Song Three")}

	p := pipeline.New(options(root, 1), svc.deps(t, setup{source: source, downloader: downloader}))
	summary, err := p.Run(ctx, zerolog.Nop(), playlistURL)
	require.NoError(t, err)

	assert.Empty(t, summary.Placed)
	require.Len(t, summary.Failed, 3)

	assert.Equal(t, track.StageDownloading, summary.Failed[0].Stage)
	require.ErrorIs(t, summary.Failed[0].Cause, context.Canceled)
	for _, f := range summary.Failed[1:] {
		assert.Equal(t, track.StageQueued, f.Stage)
		require.ErrorIs(t, f.Cause, context.Canceled)
	}

	assert.NoDirExists(t, filepath.Join(root, ".scratch"))
	entries, err := os.ReadDir(filepath.Join(root, "Road Trip"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, ".mp3", filepath.Ext(e.Name()))
	}
}

func TestRunFatalErrors(t *testing.T) {
	t.Parallel()

	svc := newServices(t)

	tests := []struct {
		name   string
		opts   func(root string) pipeline.Options
		source *fakeSource
		calls  int32
	}{
		{
			name:   "invalid bitrate",
			opts:   func(root string) pipeline.Options { return pipeline.Options{OutputRoot: root, Bitrate: 64, Workers: 1} },
			source: &fakeSource{playlist: playlistOf("a - b")},
			calls:  0,
		},
		{
			name:   "no workers",
			opts:   func(root string) pipeline.Options { return pipeline.Options{OutputRoot: root, Bitrate: 320, Workers: 0} },
			source: &fakeSource{playlist: playlistOf("a - b")},
			calls:  0,
		},
		{
			name:   "unreadable playlist",
			opts:   func(root string) pipeline.Options { return options(root, 1) },
			source: &fakeSource{err: errors.New("yt-dlp failed: exit status 1")},
			calls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			downloads := atomic.Int32{}
			downloader := &fakeDownloader{onDownload: func(context.Context, track.RawTrack) error {
				downloads.Add(1)
				return nil
			}}

			root := t.TempDir()
			p := pipeline.New(tt.opts(root), svc.deps(t, setup{source: tt.source, downloader: downloader}))
			summary, err := p.Run(t.Context(), zerolog.Nop(), playlistURL)
			assert.Nil(t, summary)

			var fatalErr *pipeline.FatalRunError
			require.ErrorAs(t, err, &fatalErr)
			assert.Equal(t, tt.calls, tt.source.calls.Load())
			assert.Zero(t, downloads.Load())
		})
	}
}

func TestRunRefusesLockedOutput(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	root := t.TempDir()

	lock, err := fs.RootFrom(root).Lock()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock.Unlock() })

	source := &fakeSource{playlist: playlistOf("a - b")}
	_, err = pipeline.New(options(root, 1), svc.deps(t, setup{source: source})).Run(t.Context(), zerolog.Nop(), playlistURL)
	require.ErrorIs(t, err, fs.ErrLocked)
	assert.Zero(t, source.calls.Load())
}

func TestRunPlaylistNameOverride(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	root := t.TempDir()
	opts := options(root, 1)
	opts.PlaylistName = "My: Mix?"

	summary, err := pipeline.New(opts, svc.deps(t, setup{source: &fakeSource{playlist: playlistOf("Song")}})).
		Run(t.Context(), zerolog.Nop(), playlistURL)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "My Mix"), summary.PlaylistDir)
	assert.FileExists(t, filepath.Join(root, "My Mix", "Song.mp3"))
}

type cancelingAssets struct {
	cancel context.CancelFunc
	calls  atomic.Int32
}

func (a *cancelingAssets) Fetch(context.Context, zerolog.Logger, *track.Metadata, track.LyricsIdentity) (track.AssetBundle, []string) {
	a.calls.Add(1)
	a.cancel()

	return track.AssetBundle{}, nil
}

func TestRunCancellationDuringAssetFetching(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	root := t.TempDir()
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	source := &fakeSource{playlist: playlistOf("Daft Punk - One More Time", "Song Two")}
	deps := svc.deps(t, setup{source: source})
	assetsFetcher := &cancelingAssets{cancel: cancel}
	deps.Assets = assetsFetcher

	summary, err := pipeline.New(options(root, 1), deps).Run(ctx, zerolog.Nop(), playlistURL)
	require.NoError(t, err)

	assert.EqualValues(t, 1, assetsFetcher.calls.Load())
	assert.Empty(t, summary.Placed)
	require.Len(t, summary.Failed, 2)

	assert.Equal(t, track.StageAssetFetching, summary.Failed[0].Stage)
	require.ErrorIs(t, summary.Failed[0].Cause, context.Canceled)
	assert.Equal(t, track.StageQueued, summary.Failed[1].Stage)

	assert.NoDirExists(t, filepath.Join(root, ".scratch"))
	entries, err := os.ReadDir(filepath.Join(root, "Road Trip"))
	require.NoError(t, err)
	names := lo.Map(entries, func(e os.DirEntry, _ int) string { return e.Name() })
	assert.Equal(t, []string{".playtag.json"}, names)
}

func TestRunWarnsAboutPreviousRun(t *testing.T) {
	t.Parallel()

	svc := newServices(t)
	root := t.TempDir()
	pl := playlistOf("Daft Punk - One More Time", "Gone - Private")
	pl.Tracks[1].Unavailable = true

	first, err := pipeline.New(options(root, 1), svc.deps(t, setup{source: &fakeSource{playlist: pl}})).
		Run(t.Context(), zerolog.Nop(), playlistURL)
	require.NoError(t, err)
	require.Len(t, first.Failed, 1)

	var logs bytes.Buffer
	second, err := pipeline.New(options(root, 1), svc.deps(t, setup{source: &fakeSource{playlist: pl}})).
		Run(t.Context(), zerolog.New(&logs), playlistURL)
	require.NoError(t, err)
	require.Len(t, second.Placed, 1)

	out := logs.String()
	assert.Contains(t, out, `"previous_run_id":"`+first.RunID+`"`)
	assert.Contains(t, out, `"previous_placed":1`)
	assert.NotContains(t, out, "Failed to read previous run info file")
}
