package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/playtag/fs"
	"github.com/xeptore/playtag/naming"
	"github.com/xeptore/playtag/result"
	"github.com/xeptore/playtag/tagger"
	"github.com/xeptore/playtag/track"
)

type stubDownloader struct{}

func (stubDownloader) Download(_ context.Context, _ zerolog.Logger, _ track.RawTrack, dir string) (string, error) {
	path := filepath.Join(dir, "audio.webm")
	return path, os.WriteFile(path, []byte("source audio"), 0o0644)
}

type stubTranscoder struct{}

func (stubTranscoder) Transcode(_ context.Context, _ zerolog.Logger, src, dst string, _ track.Bitrate) error {
	data, err := os.ReadFile(src)
	if nil != err {
		return err
	}

	return os.WriteFile(dst, data, 0o0644)
}

type stubResolver struct{}

func (stubResolver) Resolve(context.Context, zerolog.Logger, track.Candidate, string) result.Of[track.Metadata] {
	return result.NotFound[track.Metadata]()
}

type stubAssets struct {
	cancel context.CancelFunc
}

func (a stubAssets) Fetch(context.Context, zerolog.Logger, *track.Metadata, track.LyricsIdentity) (track.AssetBundle, []string) {
	if nil != a.cancel {
		a.cancel()
	}

	return track.AssetBundle{}, nil
}

func TestProcessNameAssignment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cancel   bool
		assigned []string
	}{
		{
			name:     "placed track keeps its name",
			cancel:   false,
			assigned: []string{"Daft Punk - One More Time"},
		},
		{
			name:     "canceled during asset fetching",
			cancel:   true,
			assigned: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			assets := stubAssets{cancel: nil}
			if tt.cancel {
				assets.cancel = cancel
			}

			root := fs.RootFrom(t.TempDir())
			p := New(
				Options{OutputRoot: t.TempDir(), Bitrate: 320, Workers: 1}, //nolint:exhaustruct
				Deps{ //nolint:exhaustruct
					Downloader: stubDownloader{},
					Transcoder: stubTranscoder{},
					Resolver:   stubResolver{},
					Assets:     assets,
					Tagger:     tagger.NewWriter(),
				},
			)
			run := &Run{ //nolint:exhaustruct
				ID:          "run",
				Logger:      zerolog.Nop(),
				Namer:       naming.NewNamer(),
				PlaylistDir: root.Playlist("Mix"),
				Scratch:     root.Scratch("run"),
			}
			require.NoError(t, run.PlaylistDir.Create())
			require.NoError(t, run.Scratch.Create())

			p.process(ctx, run, track.RawTrack{ID: "a", RawTitle: "Daft Punk - One More Time", Index: 1}) //nolint:exhaustruct

			assert.ElementsMatch(t, tt.assigned, run.Namer.Assigned())

			summary := run.Summary()
			if tt.cancel {
				assert.Empty(t, summary.Placed)
				require.Len(t, summary.Failed, 1)
				assert.Equal(t, track.StageAssetFetching, summary.Failed[0].Stage)
				require.ErrorIs(t, summary.Failed[0].Cause, context.Canceled)
				assert.NoFileExists(t, run.PlaylistDir.TrackPath("Daft Punk - One More Time"))
			} else {
				assert.Empty(t, summary.Failed)
				require.Len(t, summary.Placed, 1)
				assert.FileExists(t, run.PlaylistDir.TrackPath("Daft Punk - One More Time"))
			}

			entries, err := os.ReadDir(run.Scratch.DirPath)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
