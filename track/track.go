package track

import (
	"github.com/rs/zerolog"
)

// Playlist is what a playlist source yields for one URL.
type Playlist struct {
	ID     string
	Title  string
	URL    string
	Tracks []RawTrack
}

// RawTrack is a single playlist entry as listed by the source.
type RawTrack struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url"`
	RawTitle  string `json:"raw_title"`
	Index     int    `json:"index"`
	// Unavailable entries were listed but cannot be fetched (private, deleted).
	Unavailable bool `json:"unavailable,omitempty"`
}

func (t RawTrack) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("id", t.ID).
		Int("index", t.Index).
		Str("source_url", t.SourceURL).
		Str("raw_title", t.RawTitle).
		Bool("unavailable", t.Unavailable)
}

type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceHigh:
		return "high"
	}

	return "unknown"
}

// Candidate is the best-guess artist/title pair inferred from a raw title.
type Candidate struct {
	Artist     *string
	Title      string
	Confidence Confidence
}

func (c Candidate) ArtistOrEmpty() string {
	if nil == c.Artist {
		return ""
	}

	return *c.Artist
}

func (c Candidate) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("artist", c.ArtistOrEmpty()).
		Str("title", c.Title).
		Stringer("confidence", c.Confidence)
}

// Metadata is a catalog record. Empty strings are absent fields.
type Metadata struct {
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album"`
	Genre      string `json:"genre"`
	Year       string `json:"year"`
	ArtworkURL string `json:"artwork_url"`
}

func (m Metadata) IsZero() bool {
	return m == Metadata{} //nolint:exhaustruct
}

func (m Metadata) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("artist", m.Artist).
		Str("title", m.Title).
		Str("album", m.Album).
		Str("genre", m.Genre).
		Str("year", m.Year).
		Str("artwork_url", m.ArtworkURL)
}

type AssetBundle struct {
	Artwork     []byte
	ArtworkMIME string
	Lyrics      *string
}

func (b AssetBundle) HasArtwork() bool {
	return len(b.Artwork) > 0
}

func (b AssetBundle) HasLyrics() bool {
	return nil != b.Lyrics && len(*b.Lyrics) > 0
}

// Applied lists the tag values that were actually committed to a file.
type Applied struct {
	Title      string `json:"title,omitempty"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	Genre      string `json:"genre,omitempty"`
	Year       string `json:"year,omitempty"`
	HasArtwork bool   `json:"has_artwork"`
	HasLyrics  bool   `json:"has_lyrics"`
}

type OutputRecord struct {
	Track     RawTrack `json:"track"`
	FinalPath string   `json:"final_path"`
	Applied   Applied  `json:"applied"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Failure is the terminal report of a track that did not reach Placed.
type Failure struct {
	Track RawTrack
	Stage Stage
	Cause error
}

func (f Failure) Error() string {
	return "track failed at " + f.Stage.String() + ": " + f.Cause.Error()
}

func (f Failure) Unwrap() error {
	return f.Cause
}

// LyricsIdentity is the artist/title pair lyrics are looked up by. Artist
// may be empty, Title may not.
type LyricsIdentity struct {
	Artist string
	Title  string
}

func (id LyricsIdentity) Valid() bool {
	return len(id.Title) > 0
}
