// Package media wraps the external yt-dlp and ffmpeg executables.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const killGrace = 5 * time.Second

// run executes name with args and returns its stdout. On cancellation the
// whole process group receives SIGTERM, followed by SIGKILL after a grace
// period, and ctx's error is returned.
func run(ctx context.Context, logger zerolog.Logger, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	logger.Debug().Strs("args", cmd.Args).Msg("Starting command")

	// Setpgid lets Cancel signal the child processes too. Unix only.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true} //nolint:exhaustruct
	cmd.Cancel = func() error {
		p := cmd.Process
		if nil == p {
			return nil
		}

		_ = syscall.Kill(-p.Pid, syscall.SIGTERM)
		time.AfterFunc(killGrace, func() { _ = syscall.Kill(-p.Pid, syscall.SIGKILL) })

		return nil
	}
	cmd.WaitDelay = killGrace + time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); nil != err {
		if ctxErr := ctx.Err(); nil != ctxErr {
			return nil, ctxErr
		}

		logger.Debug().Err(err).Bytes("stderr", tail(stderr.Bytes(), 2048)).Msg("Command failed")

		return nil, &ExitError{Cmd: name, Err: err, Stderr: string(tail(stderr.Bytes(), 512))}
	}

	return stdout.Bytes(), nil
}

type ExitError struct {
	Cmd    string
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if len(e.Stderr) == 0 {
		return fmt.Sprintf("%s failed: %v", e.Cmd, e.Err)
	}

	return fmt.Sprintf("%s failed: %v: %s", e.Cmd, e.Err, bytes.TrimSpace([]byte(e.Stderr)))
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}

	return b[len(b)-n:]
}
