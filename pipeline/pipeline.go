// Package pipeline archives a playlist: every track is downloaded,
// transcoded, enriched, tagged and placed under a collision free name.
//
// A track moves strictly forward through the stages
//
//	queued -> downloading -> transcoding -> metadata_resolving ->
//	asset_fetching -> tagging -> placed
//
// and ends either placed or failed at the stage it was in. Enrichment
// problems never fail a track, they only add warnings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/playtag/fs"
	"github.com/xeptore/playtag/must"
	"github.com/xeptore/playtag/naming"
	"github.com/xeptore/playtag/ratelimit"
	"github.com/xeptore/playtag/result"
	"github.com/xeptore/playtag/tagger"
	"github.com/xeptore/playtag/title"
	"github.com/xeptore/playtag/track"
)

const (
	WarnNoCatalogMatch     = "no catalog match"
	WarnCatalogLookupError = "catalog lookup failed: "
)

type PlaylistSource interface {
	Playlist(ctx context.Context, logger zerolog.Logger, url string) (*track.Playlist, error)
}

type Downloader interface {
	Download(ctx context.Context, logger zerolog.Logger, raw track.RawTrack, dir string) (string, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, logger zerolog.Logger, src, dst string, bitrate track.Bitrate) error
}

type Resolver interface {
	Resolve(ctx context.Context, logger zerolog.Logger, cand track.Candidate, raw string) result.Of[track.Metadata]
}

type AssetFetcher interface {
	Fetch(ctx context.Context, logger zerolog.Logger, meta *track.Metadata, id track.LyricsIdentity) (track.AssetBundle, []string)
}

type TagWriter interface {
	Write(src, dst string, fields tagger.Fields, bundle track.AssetBundle) (track.Applied, error)
}

type Deps struct {
	Source     PlaylistSource
	Downloader Downloader
	Transcoder Transcoder
	Resolver   Resolver
	Assets     AssetFetcher
	Tagger     TagWriter
}

type Options struct {
	OutputRoot string
	// PlaylistName overrides the folder name derived from the playlist title.
	PlaylistName  string
	Bitrate       track.Bitrate
	Workers       int
	TrackCooldown time.Duration
}

func (o Options) validate() error {
	if len(o.OutputRoot) == 0 {
		return errors.New("output root is required")
	}

	if err := o.Bitrate.Validate(); nil != err {
		return err
	}

	if o.Workers < 1 {
		return fmt.Errorf("workers must be greater than 0, got: %d", o.Workers)
	}

	return nil
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(opts Options, deps Deps) *Pipeline {
	return &Pipeline{deps: deps, opts: opts}
}

// Run archives the playlist at url. Invalid options and unreadable playlists
// are returned as *FatalRunError before any track is touched. Track failures
// are not errors; they are reported in the summary.
func (p *Pipeline) Run(ctx context.Context, logger zerolog.Logger, url string) (*Summary, error) {
	if err := p.opts.validate(); nil != err {
		return nil, fatal("invalid configuration", err)
	}

	root := fs.RootFrom(p.opts.OutputRoot)
	lock, err := root.Lock()
	if nil != err {
		return nil, fatal("output directory unavailable", err)
	}
	defer func() {
		if err := lock.Unlock(); nil != err {
			logger.Error().Err(err).Msg("Failed to release output lock")
		}
	}()

	playlist, err := p.deps.Source.Playlist(ctx, logger, url)
	if nil != err {
		return nil, fatal("failed to read playlist", err)
	}

	runID := uuid.NewString()
	playlistDir := root.Playlist(p.playlistName(playlist))
	run := &Run{ //nolint:exhaustruct
		ID:          runID,
		Logger:      logger.With().Str("run_id", runID).Logger(),
		Namer:       naming.NewNamer(),
		PlaylistDir: playlistDir,
		Scratch:     root.Scratch(runID),
		summary: Summary{ //nolint:exhaustruct
			RunID:       runID,
			Playlist:    playlist.Title,
			PlaylistDir: playlistDir.DirPath,
			Total:       len(playlist.Tracks),
			StartedAt:   time.Now(),
		},
	}

	run.Logger.Info().
		Str("playlist", playlist.Title).
		Str("playlist_dir", run.PlaylistDir.DirPath).
		Int("tracks", len(playlist.Tracks)).
		Msg("Archiving playlist")

	if err := run.PlaylistDir.Create(); nil != err {
		return nil, fatal("failed to prepare output directory", err)
	}

	info := fs.InfoFile[StoredSummary]{Path: run.PlaylistDir.InfoPath}
	if prev, err := info.Read(); nil == err {
		run.Logger.Warn().
			Str("previous_run_id", prev.RunID).
			Time("previous_finished_at", prev.FinishedAt).
			Int("previous_placed", len(prev.Placed)).
			Msg("Playlist folder was archived before, tracks with the same names will be replaced")
	} else if !errors.Is(err, os.ErrNotExist) {
		run.Logger.Warn().Err(err).Msg("Failed to read previous run info file")
	}

	if err := run.Scratch.Create(); nil != err {
		return nil, fatal("failed to prepare scratch directory", err)
	}
	defer func() {
		if err := run.Scratch.Remove(); nil != err {
			run.Logger.Error().Err(err).Msg("Failed to remove scratch directory")
		}
	}()

	var wg errgroup.Group
	wg.SetLimit(p.opts.Workers)
	for _, raw := range playlist.Tracks {
		wg.Go(func() error {
			p.process(ctx, run, raw)

			if d := ratelimit.TrackCooldown(p.opts.TrackCooldown); d > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(d):
				}
			}

			return nil
		})
	}
	_ = wg.Wait()

	summary := run.Summary()
	summary.FinishedAt = time.Now()
	summary.sort()

	if err := info.Write(summary.stored()); nil != err {
		run.Logger.Error().Err(err).Msg("Failed to write run info file")
	}

	run.Logger.Info().Dict("summary", summary.ToDict()).Msg("Playlist archive finished")

	return &summary, nil
}

func (p *Pipeline) playlistName(pl *track.Playlist) string {
	if len(p.opts.PlaylistName) > 0 {
		return naming.Sanitize(p.opts.PlaylistName)
	}

	if len(pl.Title) > 0 {
		return naming.Sanitize(pl.Title)
	}

	return naming.Sanitize("playlist " + pl.ID)
}

// process runs one track to completion. Every path out of it records exactly
// one placed record or one failure.
func (p *Pipeline) process(ctx context.Context, run *Run, raw track.RawTrack) {
	logger := run.Logger.With().Int("track_index", raw.Index).Str("track_id", raw.ID).Logger()
	st := &state{stage: track.StageQueued}

	fail := func(err error) {
		if ctxErr := ctx.Err(); nil != ctxErr && !errors.Is(err, ctxErr) {
			err = ctxErr
		}
		run.fail(track.Failure{Track: raw, Stage: st.stage, Cause: err})
		ev := logger.Warn()
		if errors.Is(err, context.Canceled) {
			ev = logger.Info()
		}
		ev.Err(err).Stringer("stage", st.stage).Str("raw_title", raw.RawTitle).Msg("Track failed")
	}

	if err := st.enter(ctx, track.StageDownloading); nil != err {
		fail(err)
		return
	}

	scratch := run.Scratch.Track(raw)
	defer func() {
		if err := scratch.Remove(); nil != err {
			logger.Error().Err(err).Msg("Failed to remove track scratch directory")
		}
	}()

	if err := scratch.Create(); nil != err {
		fail(err)
		return
	}

	downloaded, err := p.deps.Downloader.Download(ctx, logger, raw, scratch.DirPath)
	if nil != err {
		fail(err)
		return
	}

	if err := st.enter(ctx, track.StageTranscoding); nil != err {
		fail(err)
		return
	}

	if err := p.deps.Transcoder.Transcode(ctx, logger, downloaded, scratch.Transcoded, p.opts.Bitrate); nil != err {
		fail(err)
		return
	}

	if err := st.enter(ctx, track.StageMetadataResolving); nil != err {
		fail(err)
		return
	}

	var warnings []string
	cand := title.Parse(raw.RawTitle)
	logger.Debug().Dict("candidate", cand.ToDict()).Msg("Parsed track title")

	res := p.deps.Resolver.Resolve(ctx, logger, cand, raw.RawTitle)
	meta := res.Value()
	switch res.State() {
	case result.StateFound:
		logger.Debug().Dict("metadata", meta.ToDict()).Msg("Catalog match found")
	case result.StateNotFound:
		warnings = append(warnings, WarnNoCatalogMatch)
	case result.StateError:
		warnings = append(warnings, WarnCatalogLookupError+res.Err().Error())
	}

	if err := st.enter(ctx, track.StageAssetFetching); nil != err {
		fail(err)
		return
	}

	fields := tagger.FieldsFrom(meta, cand)
	bundle, assetWarnings := p.deps.Assets.Fetch(ctx, logger, meta, fields.LyricsIdentity())
	warnings = append(warnings, assetWarnings...)

	if err := st.enter(ctx, track.StageTagging); nil != err {
		fail(err)
		return
	}

	applied, err := p.deps.Tagger.Write(scratch.Transcoded, scratch.Tagged, fields, bundle)
	if nil != err {
		fail(err)
		return
	}

	if err := ctx.Err(); nil != err {
		fail(err)
		return
	}

	name := run.Namer.Assign(naming.DisplayName(meta, cand, raw.RawTitle))
	finalPath, err := run.PlaylistDir.Place(scratch.Tagged, name)
	if nil != err {
		run.Namer.Release(name)
		fail(err)

		return
	}

	must.NilErr(st.enter(context.WithoutCancel(ctx), track.StagePlaced))
	run.place(track.OutputRecord{
		Track:     raw,
		FinalPath: finalPath,
		Applied:   applied,
		Warnings:  warnings,
	})

	ev := logger.Info()
	if len(warnings) > 0 {
		ev = ev.Strs("warnings", warnings)
	}
	ev.Str("path", finalPath).Msg("Track placed")
}

type state struct {
	stage track.Stage
}

// enter moves to next, which must directly follow the current stage. It
// refuses when ctx is done, leaving the stage unchanged.
func (s *state) enter(ctx context.Context, next track.Stage) error {
	want, ok := s.stage.Next()
	must.Be(ok && want == next, "stage %s cannot follow %s", next, s.stage)

	if err := ctx.Err(); nil != err {
		return err
	}
	s.stage = next

	return nil
}
