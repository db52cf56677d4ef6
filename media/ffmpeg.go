package media

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/xeptore/playtag/track"
)

// FFmpeg transcodes audio to MP3, running at most a fixed number of
// conversions at once.
type FFmpeg struct {
	bin   string
	slots *semaphore.Weighted
}

func NewFFmpeg(bin string, concurrency int) *FFmpeg {
	return &FFmpeg{
		bin:   bin,
		slots: semaphore.NewWeighted(int64(max(concurrency, 1))),
	}
}

// Transcode writes src as a constant bitrate MP3 to dst. The output carries
// no tags and no source metadata.
func (f *FFmpeg) Transcode(ctx context.Context, logger zerolog.Logger, src, dst string, bitrate track.Bitrate) error {
	if err := bitrate.Validate(); nil != err {
		return err
	}

	if err := f.slots.Acquire(ctx, 1); nil != err {
		return err
	}
	defer f.slots.Release(1)

	_, err := run(
		ctx,
		logger,
		f.bin,
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-vn",
		"-map_metadata", "-1",
		"-codec:a", "libmp3lame",
		"-b:a", bitrate.FFmpegArg(),
		"-id3v2_version", "0",
		"-write_id3v1", "0",
		"-f", "mp3",
		dst,
	)
	if nil != err {
		if removeErr := os.Remove(dst); nil != removeErr && !os.IsNotExist(removeErr) {
			logger.Error().Err(removeErr).Msg("Failed to remove incomplete transcode output")
		}

		return fmt.Errorf("failed to transcode audio: %w", err)
	}

	return nil
}
