package pipeline

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/xeptore/playtag/fs"
	"github.com/xeptore/playtag/naming"
	"github.com/xeptore/playtag/track"
)

// Run is the state shared by all tracks of one playlist run.
type Run struct {
	ID          string
	Logger      zerolog.Logger
	Namer       *naming.Namer
	PlaylistDir fs.PlaylistDir
	Scratch     fs.Scratch

	mux     sync.Mutex
	summary Summary
}

func (r *Run) place(rec track.OutputRecord) {
	r.mux.Lock()
	defer r.mux.Unlock()

	r.summary.Placed = append(r.summary.Placed, rec)
}

func (r *Run) fail(f track.Failure) {
	r.mux.Lock()
	defer r.mux.Unlock()

	r.summary.Failed = append(r.summary.Failed, f)
}

// Summary returns a snapshot of the run outcome so far.
func (r *Run) Summary() Summary {
	r.mux.Lock()
	defer r.mux.Unlock()

	s := r.summary
	s.Placed = append([]track.OutputRecord(nil), r.summary.Placed...)
	s.Failed = append([]track.Failure(nil), r.summary.Failed...)

	return s
}
