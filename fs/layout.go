// Package fs describes the on-disk layout of an archive.
//
//	{root}/{playlist}/{name}.mp3          placed tracks
//	{root}/{playlist}/.playtag.json       last run summary
//	{root}/.scratch/{run id}/{track}/     per track working files
//	{root}/.playtag.lock                  single run lock
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/gosimple/slug"

	"github.com/xeptore/playtag/track"
)

const (
	scratchDirName = ".scratch"
	infoFileName   = ".playtag.json"
	lockFileName   = ".playtag.lock"
	trackExt       = ".mp3"
	maxSlugLen     = 48
)

type Root string

func RootFrom(d string) Root {
	return Root(filepath.Clean(d))
}

func (r Root) path() string {
	return string(r)
}

func (r Root) Playlist(name string) PlaylistDir {
	dirPath := filepath.Join(r.path(), name)

	return PlaylistDir{
		DirPath:  dirPath,
		InfoPath: filepath.Join(dirPath, infoFileName),
	}
}

type PlaylistDir struct {
	DirPath  string
	InfoPath string
}

func (p PlaylistDir) Create() error {
	if err := os.MkdirAll(p.DirPath, 0o0755); nil != err {
		return fmt.Errorf("failed to create playlist directory: %v", err)
	}

	return nil
}

func (p PlaylistDir) TrackPath(name string) string {
	return filepath.Join(p.DirPath, name+trackExt)
}

// Place moves the finished file at src to its final name, replacing a file
// left there by an earlier run.
func (p PlaylistDir) Place(src, name string) (string, error) {
	dst := p.TrackPath(name)
	if err := os.Rename(src, dst); nil != err {
		return "", fmt.Errorf("failed to move track into place: %v", err)
	}

	return dst, nil
}

func (r Root) Scratch(runID string) Scratch {
	return Scratch{DirPath: filepath.Join(r.path(), scratchDirName, runID)}
}

// Scratch is the working directory of one run.
type Scratch struct {
	DirPath string
}

func (s Scratch) Create() error {
	if err := os.MkdirAll(s.DirPath, 0o0700); nil != err {
		return fmt.Errorf("failed to create scratch directory: %v", err)
	}

	return nil
}

// Remove deletes the run directory, and the shared scratch parent when no
// other run is using it.
func (s Scratch) Remove() error {
	if err := os.RemoveAll(s.DirPath); nil != err {
		return fmt.Errorf("failed to remove scratch directory: %v", err)
	}

	if err := os.Remove(filepath.Dir(s.DirPath)); nil != err && !errors.Is(err, os.ErrNotExist) && !isNotEmpty(err) {
		return fmt.Errorf("failed to remove scratch parent directory: %v", err)
	}

	return nil
}

func (s Scratch) Track(raw track.RawTrack) TrackScratch {
	stem := slug.Make(raw.RawTitle)
	if len(stem) > maxSlugLen {
		stem = stem[:maxSlugLen]
	}
	if len(stem) == 0 {
		stem = "track"
	}

	dirPath := filepath.Join(s.DirPath, fmt.Sprintf("%04d-%s", raw.Index, stem))

	return TrackScratch{
		DirPath:    dirPath,
		Transcoded: filepath.Join(dirPath, "transcoded"+trackExt),
		Tagged:     filepath.Join(dirPath, "tagged"+trackExt),
	}
}

// TrackScratch holds the intermediate files of a single track.
type TrackScratch struct {
	DirPath    string
	Transcoded string
	Tagged     string
}

func (t TrackScratch) Create() error {
	if err := os.MkdirAll(t.DirPath, 0o0700); nil != err {
		return fmt.Errorf("failed to create track scratch directory: %v", err)
	}

	return nil
}

func (t TrackScratch) Remove() error {
	if err := os.RemoveAll(t.DirPath); nil != err {
		return fmt.Errorf("failed to remove track scratch directory: %v", err)
	}

	return nil
}

func isNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST)
}
