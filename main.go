package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/xeptore/playtag/assets"
	"github.com/xeptore/playtag/cache"
	"github.com/xeptore/playtag/catalog"
	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/constants"
	"github.com/xeptore/playtag/fs"
	"github.com/xeptore/playtag/httputil"
	"github.com/xeptore/playtag/log"
	"github.com/xeptore/playtag/media"
	"github.com/xeptore/playtag/pipeline"
	"github.com/xeptore/playtag/report"
	"github.com/xeptore/playtag/store"
	"github.com/xeptore/playtag/tagger"
	"github.com/xeptore/playtag/track"
)

func main() {
	logger := log.NewDefault()

	//nolint:exhaustruct
	app := &cli.Command{
		Name:    constants.AppName,
		Version: constants.Version,
		Metadata: map[string]any{
			"compiled_at": constants.CompileTime,
		},
		Suggest:                    true,
		Usage:                      "Archive a video playlist as tagged MP3 files",
		EnableShellCompletion:      true,
		ShellCompletionCommandName: "shell-completion",
		AllowExtFlags:              false,
		Flags: []cli.Flag{
			//nolint:exhaustruct
			&cli.StringFlag{
				Name:     "config",
				Usage:    "Config file path",
				Required: false,
			},
		},
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:      "archive",
				Usage:     "Download, tag and store every track of a playlist",
				ArgsUsage: "<playlist-url>",
				Description: strings.Join(
					[]string{
						"Every track is downloaded with yt-dlp, transcoded to MP3 with ffmpeg,",
						"enriched from the iTunes catalog and optionally Genius lyrics, tagged,",
						"and placed under {output}/{playlist name}/.",
					},
					"\n",
				),
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  "name",
						Usage: "Playlist folder name, defaults to the playlist title",
					},
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output root directory",
					},
					//nolint:exhaustruct
					&cli.IntFlag{
						Name:  "quality",
						Usage: "MP3 bitrate in kbps, one of 128, 192, 256, 320",
					},
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  "genius-token",
						Usage: "Genius API token, enables lyrics lookup",
					},
					//nolint:exhaustruct
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of tracks processed concurrently",
					},
				},
				Action: archive,
			},
			//nolint:exhaustruct
			{
				Name:  "cache",
				Usage: "Catalog cache commands",
				Commands: []*cli.Command{
					//nolint:exhaustruct
					{
						Name:   "purge",
						Usage:  "Remove every cached catalog response",
						Action: cachePurge,
					},
				},
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			os.Exit(1)
		}

		var exitCode exitCodeError
		if errors.As(err, &exitCode) {
			os.Exit(int(exitCode))
		}

		logger.Error().Err(err).Msg("Application exited with error")
		os.Exit(10)
	}
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return "error with exit code: " + strconv.Itoa(int(e))
}

const (
	exitFatal  exitCodeError = 2
	exitLocked exitCodeError = 3
)

// loadConfig loads .env and the config file, and builds the configured
// logger. The returned closer flushes the log file, if any.
func loadConfig(cmd *cli.Command) (*config.Config, zerolog.Logger, io.Closer, error) {
	logger := log.NewDefault()

	if err := godotenv.Load(); nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, logger, nil, fmt.Errorf("load .env file: %v", err)
		}
		logger.Debug().Msg(".env file was not found")
	} else {
		logger.Debug().Msg(".env file was loaded")
	}

	conf, err := config.Load(cmd.String("config"))
	if nil != err {
		return nil, logger, nil, fmt.Errorf("load config: %v", err)
	}

	logger, closer, err := log.FromConfig(conf.Log)
	if nil != err {
		return nil, logger, nil, fmt.Errorf("create logger: %v", err)
	}

	return conf, logger, closer, nil
}

func applyFlags(cmd *cli.Command, conf *config.Config) {
	if cmd.IsSet("output") {
		conf.Archive.OutputDir = cmd.String("output")
	}

	if cmd.IsSet("quality") {
		conf.Archive.Quality = track.Bitrate(cmd.Int("quality"))
	}

	if cmd.IsSet("workers") {
		conf.Archive.Workers = cmd.Int("workers")
		conf.Archive.TranscodeConcurrency = min(conf.Archive.TranscodeConcurrency, conf.Archive.Workers)
	}

	if cmd.IsSet("genius-token") {
		conf.Lyrics.Token = cmd.String("genius-token")
	}
}

func archive(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conf, logger, closer, err := loadConfig(cmd)
	if nil != err {
		return err
	}
	defer func() {
		if err := closer.Close(); nil != err {
			logger.Error().Err(err).Msg("Failed to close log file")
		}
	}()

	applyFlags(cmd, conf)
	if err := conf.Validate(); nil != err {
		logger.Error().Err(err).Msg("Invalid configuration")
		return exitFatal
	}
	logger.Debug().Dict("config", conf.ToDict()).Msg("Config loaded")

	playlistURL := cmd.Args().First()
	if len(playlistURL) == 0 {
		logger.Error().Msg("Playlist URL argument is required")
		return exitFatal
	}

	deps, cleanup, err := newDeps(logger, conf)
	if nil != err {
		return fmt.Errorf("prepare pipeline: %v", err)
	}
	defer cleanup()

	p := pipeline.New(
		pipeline.Options{
			OutputRoot:    conf.Archive.OutputDir,
			PlaylistName:  cmd.String("name"),
			Bitrate:       conf.Archive.Quality,
			Workers:       conf.Archive.Workers,
			TrackCooldown: conf.Archive.TrackCooldown.Duration,
		},
		deps,
	)

	summary, err := p.Run(ctx, logger, playlistURL)
	if nil != err {
		if errors.Is(err, context.Canceled) {
			return err
		}

		if errors.Is(err, fs.ErrLocked) {
			logger.Error().Str("output_dir", conf.Archive.OutputDir).Msg("Another run is archiving into the same output directory")
			return exitLocked
		}

		var fatalErr *pipeline.FatalRunError
		if errors.As(err, &fatalErr) {
			logger.Error().Err(fatalErr.Err).Str("reason", fatalErr.Reason).Msg("Run aborted")
			return exitFatal
		}

		return fmt.Errorf("archive playlist: %w", err)
	}

	if err := report.Render(os.Stdout, summary, report.OptionsFor(os.Stdout)); nil != err {
		logger.Error().Err(err).Msg("Failed to print run report")
	}

	if err := ctx.Err(); nil != err {
		logger.Warn().Msg("Run was interrupted")
		return err
	}

	return nil
}

// newDeps wires the production collaborators. cleanup releases the caches
// and the catalog store.
func newDeps(logger zerolog.Logger, conf *config.Config) (deps pipeline.Deps, cleanup func(), err error) {
	catalogClient, err := httputil.NewClient(conf.Catalog.Timeout.Duration, conf.Proxy)
	if nil != err {
		return deps, nil, fmt.Errorf("create catalog http client: %v", err)
	}

	artworkClient, err := httputil.NewClient(conf.Artwork.Timeout.Duration, conf.Proxy)
	if nil != err {
		return deps, nil, fmt.Errorf("create artwork http client: %v", err)
	}

	var closers []func()

	var searcher catalog.Searcher = catalog.NewITunes(catalogClient, conf.Catalog)
	if conf.Cache.Disabled {
		logger.Debug().Msg("Catalog cache is disabled")
	} else {
		st, err := store.Open(conf.Cache.Path, conf.Catalog.CacheTTL.Duration)
		if nil != err {
			logger.Warn().Err(err).Str("path", conf.Cache.Path).Msg("Catalog cache unavailable, continuing without it")
		} else {
			searcher = catalog.NewCachedSearcher(searcher, st)
			closers = append(closers, func() {
				if err := st.Close(); nil != err {
					logger.Error().Err(err).Msg("Failed to close catalog cache")
				}
			})
		}
	}

	c := cache.New()
	closers = append(closers, c.Stop)

	var lyrics assets.LyricsSource
	if conf.Lyrics.Enabled() {
		lyricsClient, err := httputil.NewClient(conf.Lyrics.Timeout.Duration, conf.Proxy)
		if nil != err {
			return deps, nil, fmt.Errorf("create lyrics http client: %v", err)
		}
		lyrics = assets.NewGenius(lyricsClient, conf.Lyrics)
	} else {
		logger.Info().Msg("No Genius token configured, lyrics lookup is disabled")
	}

	cleanup = func() {
		for _, fn := range closers {
			fn()
		}
	}

	ytdlp := media.NewYtDlp(conf.Tools)
	deps = pipeline.Deps{
		Source:     ytdlp,
		Downloader: ytdlp,
		Transcoder: media.NewFFmpeg(conf.Tools.FFmpeg, conf.Archive.TranscodeConcurrency),
		Resolver:   catalog.NewResolver(searcher),
		Assets: assets.NewFetcher(
			assets.NewArtworkDownloader(artworkClient, conf.Artwork, &c.Artwork),
			lyrics,
			&c.Lyrics,
		),
		Tagger: tagger.NewWriter(),
	}

	return deps, cleanup, nil
}

func cachePurge(_ context.Context, cmd *cli.Command) error {
	conf, logger, closer, err := loadConfig(cmd)
	if nil != err {
		return err
	}
	defer func() {
		if err := closer.Close(); nil != err {
			logger.Error().Err(err).Msg("Failed to close log file")
		}
	}()

	st, err := store.Open(conf.Cache.Path, conf.Catalog.CacheTTL.Duration)
	if nil != err {
		return fmt.Errorf("open catalog cache: %v", err)
	}
	defer func() {
		if err := st.Close(); nil != err {
			logger.Error().Err(err).Msg("Failed to close catalog cache")
		}
	}()

	n, err := st.Purge()
	if nil != err {
		return fmt.Errorf("purge catalog cache: %v", err)
	}
	logger.Info().Int("entries", n).Str("path", conf.Cache.Path).Msg("Catalog cache purged")

	return nil
}
