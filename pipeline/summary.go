package pipeline

import (
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/xeptore/playtag/track"
)

// Summary is the outcome of a run. It is produced even when every track
// failed.
type Summary struct {
	RunID       string
	Playlist    string
	PlaylistDir string
	Total       int
	Placed      []track.OutputRecord
	Failed      []track.Failure
	StartedAt   time.Time
	FinishedAt  time.Time
}

type TrackWarning struct {
	Track   track.RawTrack
	Warning string
}

// Warnings lists every warning of every placed track in track order.
func (s *Summary) Warnings() []TrackWarning {
	var out []TrackWarning
	for _, rec := range s.Placed {
		for _, w := range rec.Warnings {
			out = append(out, TrackWarning{Track: rec.Track, Warning: w})
		}
	}

	return out
}

func (s *Summary) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("run_id", s.RunID).
		Str("playlist", s.Playlist).
		Str("playlist_dir", s.PlaylistDir).
		Int("total", s.Total).
		Int("placed", len(s.Placed)).
		Int("failed", len(s.Failed)).
		Int("warnings", len(s.Warnings())).
		Dur("elapsed", s.FinishedAt.Sub(s.StartedAt))
}

func (s *Summary) sort() {
	slices.SortFunc(s.Placed, func(a, b track.OutputRecord) int { return a.Track.Index - b.Track.Index })
	slices.SortFunc(s.Failed, func(a, b track.Failure) int { return a.Track.Index - b.Track.Index })
}

type storedFailure struct {
	Track track.RawTrack `json:"track"`
	Stage track.Stage    `json:"stage"`
	Cause string         `json:"cause"`
}

// StoredSummary is the info file written next to the placed tracks.
type StoredSummary struct {
	RunID      string               `json:"run_id"`
	Playlist   string               `json:"playlist"`
	Total      int                  `json:"total"`
	Placed     []track.OutputRecord `json:"placed"`
	Failed     []storedFailure      `json:"failed"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

func (s *Summary) stored() StoredSummary {
	failed := make([]storedFailure, 0, len(s.Failed))
	for _, f := range s.Failed {
		failed = append(failed, storedFailure{Track: f.Track, Stage: f.Stage, Cause: f.Cause.Error()})
	}

	return StoredSummary{
		RunID:      s.RunID,
		Playlist:   s.Playlist,
		Total:      s.Total,
		Placed:     s.Placed,
		Failed:     failed,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}
