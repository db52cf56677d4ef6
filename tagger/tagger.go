// Package tagger embeds ID3v2.4 tags into MP3 files.
package tagger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bogem/id3v2/v2"

	"github.com/xeptore/playtag/track"
)

const partialSuffix = ".partial"

// Fields are the text tags that will be written. Empty values are not
// written.
type Fields struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Year   string
}

// FieldsFrom picks each tag value from meta when present, falling back to the
// parsed candidate for artist and title. meta may be nil.
func FieldsFrom(meta *track.Metadata, cand track.Candidate) Fields {
	var m track.Metadata
	if nil != meta {
		m = *meta
	}

	return Fields{
		Title:  firstNonEmpty(m.Title, cand.Title),
		Artist: firstNonEmpty(m.Artist, cand.ArtistOrEmpty()),
		Album:  strings.TrimSpace(m.Album),
		Genre:  strings.TrimSpace(m.Genre),
		Year:   strings.TrimSpace(m.Year),
	}
}

// LyricsIdentity is the best known artist/title pair for a lyrics lookup.
func (f Fields) LyricsIdentity() track.LyricsIdentity {
	return track.LyricsIdentity{Artist: f.Artist, Title: f.Title}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); len(v) > 0 {
			return v
		}
	}

	return ""
}

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Write copies src to dst with the given tags applied. The tagged file is
// assembled next to dst and renamed into place, so dst either does not
// change or holds the complete result.
func (w *Writer) Write(src, dst string, fields Fields, bundle track.AssetBundle) (applied track.Applied, err error) {
	partial := dst + partialSuffix
	defer func() {
		if nil != err {
			if removeErr := os.Remove(partial); nil != removeErr && !errors.Is(removeErr, os.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("failed to remove partial file: %v", removeErr))
			}
		}
	}()

	if err := copyFile(src, partial); nil != err {
		return track.Applied{}, fmt.Errorf("failed to copy audio file: %v", err)
	}

	applied, err = writeTags(partial, fields, bundle)
	if nil != err {
		return track.Applied{}, err
	}

	if err := os.Rename(partial, dst); nil != err {
		return track.Applied{}, fmt.Errorf("failed to rename tagged file: %v", err)
	}

	return applied, nil
}

func writeTags(path string, fields Fields, bundle track.AssetBundle) (applied track.Applied, err error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: false, ParseFrames: nil})
	if nil != err {
		return track.Applied{}, fmt.Errorf("failed to open file for tagging: %v", err)
	}
	defer func() {
		if closeErr := tag.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close tagged file: %v", closeErr))
		}
	}()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	if len(fields.Title) > 0 {
		tag.SetTitle(fields.Title)
		applied.Title = fields.Title
	}

	if len(fields.Artist) > 0 {
		tag.SetArtist(fields.Artist)
		applied.Artist = fields.Artist
	}

	if len(fields.Album) > 0 {
		tag.SetAlbum(fields.Album)
		applied.Album = fields.Album
	}

	if len(fields.Genre) > 0 {
		tag.SetGenre(fields.Genre)
		applied.Genre = fields.Genre
	}

	if len(fields.Year) > 0 {
		tag.SetYear(fields.Year)
		applied.Year = fields.Year
	}

	if bundle.HasArtwork() {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    bundle.ArtworkMIME,
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     bundle.Artwork,
		})
		applied.HasArtwork = true
	}

	if bundle.HasLyrics() {
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          "eng",
			ContentDescriptor: "",
			Lyrics:            *bundle.Lyrics,
		})
		applied.HasLyrics = true
	}

	if tag.Count() == 0 {
		return applied, nil
	}

	if err := tag.Save(); nil != err {
		return track.Applied{}, fmt.Errorf("failed to save tags: %v", err)
	}

	return applied, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if nil != err {
		return fmt.Errorf("failed to open source file: %v", err)
	}
	defer func() {
		if closeErr := in.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close source file: %v", closeErr))
		}
	}()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o0644)
	if nil != err {
		return fmt.Errorf("failed to create destination file: %v", err)
	}
	defer func() {
		if closeErr := out.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close destination file: %v", closeErr))
		}
	}()

	if _, err := io.Copy(out, in); nil != err {
		return fmt.Errorf("failed to copy file contents: %v", err)
	}

	return nil
}
