package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/constants"
)

// FromConfig builds the process logger. When conf.File is set, every event
// is also appended to that file as JSON. The returned closer releases the
// file and is never nil.
func FromConfig(conf config.Log) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(conf.Level)
	if nil != err {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid logging level %q: %v", conf.Level, err)
	}

	var console io.Writer
	switch strings.ToLower(conf.Format) {
	case "json":
		console = os.Stderr
	case "pretty":
		console = consoleWriter()
	default:
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid logging format: %s", conf.Format)
	}

	if len(conf.File) == 0 {
		return build(console, level), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(conf.File), 0o0755); nil != err {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to create log file directory: %v", err)
	}

	f, err := os.OpenFile(conf.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o0644)
	if nil != err {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file: %v", err)
	}

	return build(zerolog.MultiLevelWriter(console, f), level), f, nil
}

func NewDefault() zerolog.Logger {
	return build(consoleWriter(), zerolog.InfoLevel)
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{ //nolint:exhaustruct
		Out:          os.Stderr,
		TimeFormat:   time.RFC3339,
		TimeLocation: time.UTC,
	}
}

func build(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.
		New(w).
		Hook(&stackHook{}).
		With().
		Timestamp().
		Str("version", constants.Version).
		Str("compile_time", constants.CompileTime).
		Logger().
		Level(level)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
