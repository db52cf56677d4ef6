package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

var ErrLocked = errors.New("another run is using the output directory")

type Lock struct {
	l *flock.Flock
}

// Lock takes the output root lock without waiting. It returns ErrLocked
// when another process holds it.
func (r Root) Lock() (*Lock, error) {
	if err := os.MkdirAll(r.path(), 0o0755); nil != err {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}

	l := flock.New(filepath.Join(r.path(), lockFileName))
	ok, err := l.TryLock()
	if nil != err {
		return nil, fmt.Errorf("failed to acquire output lock: %v", err)
	}

	if !ok {
		return nil, ErrLocked
	}

	return &Lock{l: l}, nil
}

func (l *Lock) Unlock() error {
	if err := l.l.Unlock(); nil != err {
		return fmt.Errorf("failed to release output lock: %v", err)
	}

	return nil
}
