package log

import (
	"runtime"

	"github.com/rs/zerolog"
)

// stackHook attaches the caller stack to error and higher level events.
type stackHook struct{}

func (h *stackHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level < zerolog.ErrorLevel || level == zerolog.NoLevel {
		return
	}

	arr := zerolog.Arr()
	for _, f := range callers(5) {
		arr.Dict(zerolog.Dict().
			Str("function", f.Function).
			Str("file", f.File).
			Int("line", f.Line),
		)
	}
	e.Array("stack", arr)
}

func callers(skip int) []runtime.Frame {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	out := make([]runtime.Frame, 0, n)
	for {
		frame, more := frames.Next()
		out = append(out, frame)
		if !more {
			break
		}
	}

	return out
}
