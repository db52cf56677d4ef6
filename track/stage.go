package track

import (
	"fmt"
	"slices"
	"strconv"
)

type Stage int

const (
	StageQueued Stage = iota
	StageDownloading
	StageTranscoding
	StageMetadataResolving
	StageAssetFetching
	StageTagging
	StagePlaced
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageDownloading:
		return "downloading"
	case StageTranscoding:
		return "transcoding"
	case StageMetadataResolving:
		return "metadata_resolving"
	case StageAssetFetching:
		return "asset_fetching"
	case StageTagging:
		return "tagging"
	case StagePlaced:
		return "placed"
	}

	return "stage(" + strconv.Itoa(int(s)) + ")"
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for st := StageQueued; st <= StagePlaced; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}

	return fmt.Errorf("unknown stage: %q", text)
}

// Next returns the stage that follows s. Placed has no successor.
func (s Stage) Next() (Stage, bool) {
	if s >= StagePlaced {
		return s, false
	}

	return s + 1, true
}

type Bitrate int

var Bitrates = []Bitrate{128, 192, 256, 320}

func ParseBitrate(s string) (Bitrate, error) {
	n, err := strconv.Atoi(s)
	if nil != err {
		return 0, fmt.Errorf("bitrate must be an integer, got: %q", s)
	}

	b := Bitrate(n)
	if err := b.Validate(); nil != err {
		return 0, err
	}

	return b, nil
}

func (b Bitrate) Validate() error {
	if !slices.Contains(Bitrates, b) {
		return fmt.Errorf("bitrate must be one of 128, 192, 256, 320, got: %d", b)
	}

	return nil
}

// FFmpegArg returns the value accepted by ffmpeg's -b:a option.
func (b Bitrate) FFmpegArg() string {
	return strconv.Itoa(int(b)) + "k"
}
