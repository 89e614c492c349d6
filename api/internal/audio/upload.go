// Package audio turns uploads and streamed microphone PCM into fully
// materialised clips ready for base64 transport.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/util"
)

const DefaultMaxBytes = 5 << 20

var (
	ErrTooLarge      = errors.New("audio: file too large")
	ErrUnknownFormat = errors.New("audio: unsupported format, expected mp3 or wav")
	ErrEmpty         = errors.New("audio: empty clip")
	ErrMalformed     = errors.New("audio: malformed wav")
)

// Clip is a complete audio payload with its resolved format.
type Clip struct {
	Data   []byte
	Format types.AudioFormat
	MIME   string
}

func (c Clip) Base64() string { return util.EncodeBase64(c.Data) }

// ReadUpload reads at most maxBytes from r. declared may be empty, a format
// name, a MIME type or a file name; the bytes decide when it is blank.
func ReadUpload(r io.Reader, declared string, maxBytes int64) (Clip, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Clip{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return Clip{}, ErrTooLarge
	}
	return FromBytes(data, declared)
}

// FromBytes resolves the clip format from a hint and the content itself. A
// readable header always wins over the hint. WAV clips must carry a PCM
// header with a non-zero duration.
func FromBytes(data []byte, declared string) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, ErrEmpty
	}
	f, ok := sniffFormat(data)
	if !ok {
		f, ok = formatFromHint(declared)
	}
	if !ok {
		return Clip{}, ErrUnknownFormat
	}
	if f == types.FormatWAV {
		if _, err := InspectWAV(data); err != nil {
			return Clip{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return Clip{Data: data, Format: f, MIME: f.MIME()}, nil
}

func sniffFormat(data []byte) (types.AudioFormat, bool) {
	switch util.SniffAudioMIME(data) {
	case "audio/wav":
		return types.FormatWAV, true
	case "audio/mpeg":
		return types.FormatMP3, true
	}
	return "", false
}

func formatFromHint(h string) (types.AudioFormat, bool) {
	h = strings.ToLower(strings.TrimSpace(h))
	switch {
	case h == "":
		return "", false
	case strings.HasSuffix(h, ".wav"), strings.Contains(h, "wav"):
		return types.FormatWAV, true
	case strings.HasSuffix(h, ".mp3"), strings.Contains(h, "mpeg"), strings.Contains(h, "mp3"):
		return types.FormatMP3, true
	}
	return "", false
}

// WAVInfo is the header summary of a WAV clip.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// InspectWAV parses the RIFF header.
func InspectWAV(data []byte) (WAVInfo, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return WAVInfo{}, fmt.Errorf("invalid wav: %w", err)
		}
		return WAVInfo{}, errors.New("invalid wav")
	}
	dur, err := d.Duration()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("wav duration: %w", err)
	}
	return WAVInfo{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Duration:   dur,
	}, nil
}
