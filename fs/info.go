package fs

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

type InfoFile[T any] struct {
	Path string
}

func (p InfoFile[T]) Read() (t *T, err error) {
	f, err := os.OpenFile(p.Path, os.O_RDONLY, 0o0600)
	if nil != err {
		return nil, fmt.Errorf("failed to open info file for read: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close info file: %v", closeErr))
		}
	}()

	var out T
	if err := json.NewDecoder(f).Decode(&out); nil != err {
		return nil, fmt.Errorf("failed to decode info file contents: %v", err)
	}

	return &out, nil
}

// Write replaces the info file atomically.
func (p InfoFile[T]) Write(v T) (err error) {
	tmp := p.Path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o0644)
	if nil != err {
		return fmt.Errorf("failed to open info file for write: %v", err)
	}
	defer func() {
		if nil != err {
			if removeErr := os.Remove(tmp); nil != removeErr && !errors.Is(removeErr, os.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("failed to remove incomplete info file: %v", removeErr))
			}
		}
	}()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); nil != err {
		_ = f.Close()
		return fmt.Errorf("failed to write info content: %v", err)
	}

	if err := f.Close(); nil != err {
		return fmt.Errorf("failed to close info file: %v", err)
	}

	if err := os.Rename(tmp, p.Path); nil != err {
		return fmt.Errorf("failed to move info file into place: %v", err)
	}

	return nil
}
