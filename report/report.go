// Package report renders a run summary for the console.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/xeptore/playtag/pipeline"
)

// DefaultMaxFailures is how many failures are listed before the rest are
// elided. The info file always holds all of them.
const DefaultMaxFailures = 5

type Options struct {
	Color       bool
	MaxFailures int
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if nil == f {
		return false
	}
	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// OptionsFor picks the rendering style for f.
func OptionsFor(f *os.File) Options {
	return Options{Color: IsTerminal(f), MaxFailures: DefaultMaxFailures}
}

func Render(w io.Writer, s *pipeline.Summary, opts Options) error {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}

	var b strings.Builder
	b.WriteString(totals(s, opts).Render())
	b.WriteString("\n")

	if len(s.Failed) > 0 {
		b.WriteString(failures(s, opts).Render())
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Saved to %s\n", s.PlaylistDir)

	if _, err := io.WriteString(w, b.String()); nil != err {
		return fmt.Errorf("failed to write report: %v", err)
	}

	return nil
}

func newWriter(opts Options) table.Writer {
	tw := table.NewWriter()
	if opts.Color {
		tw.SetStyle(table.StyleRounded)
	} else {
		tw.SetStyle(table.StyleDefault)
	}

	return tw
}

func totals(s *pipeline.Summary, opts Options) table.Writer {
	tw := newWriter(opts)
	tw.AppendHeader(table.Row{"Playlist", "Tracks", "Placed", "Warnings", "Failed", "Elapsed"})

	placed := strconv.Itoa(len(s.Placed))
	failed := strconv.Itoa(len(s.Failed))
	if opts.Color {
		placed = text.FgGreen.Sprint(placed)
		if len(s.Failed) > 0 {
			failed = text.FgRed.Sprint(failed)
		}
	}

	tw.AppendRow(table.Row{
		s.Playlist,
		s.Total,
		placed,
		len(s.Warnings()),
		failed,
		s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String(),
	})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw
}

func failures(s *pipeline.Summary, opts Options) table.Writer {
	tw := newWriter(opts)
	tw.AppendHeader(table.Row{"#", "Title", "Stage", "Cause"})

	shown := min(len(s.Failed), opts.MaxFailures)
	for _, f := range s.Failed[:shown] {
		tw.AppendRow(table.Row{f.Track.Index, f.Track.RawTitle, f.Stage.String(), f.Cause.Error()})
	}

	if rest := len(s.Failed) - shown; rest > 0 {
		tw.AppendRow(table.Row{"", "and " + strconv.Itoa(rest) + " more", "", ""})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, WidthMax: 48},
		{Number: 4, WidthMax: 72},
	})

	return tw
}
