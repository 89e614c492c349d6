package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"voiceshield/api/internal/detect/types"
)

// State represents recorder state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopping
)

var ErrNotRecording = errors.New("recorder not running")

// Recorder accumulates little-endian 16-bit PCM frames into an in-memory WAV.
// The clip only exists once Finish returns.
type Recorder struct {
	mu       sync.Mutex
	state    State
	maxBytes int

	sampleRate int
	channels   int
	out        *seekBuffer
	enc        *wav.Encoder
	format     *goaudio.Format
	pcmBytes   int
	carry      []byte // partial frame left over from the previous Write
}

func NewRecorder(maxBytes int) *Recorder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Recorder{maxBytes: maxBytes, state: StateIdle}
}

// Start begins a new capture.
func (r *Recorder) Start(sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid capture format: rate=%d channels=%d", sampleRate, channels)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return fmt.Errorf("recorder not idle")
	}
	r.sampleRate, r.channels = sampleRate, channels
	r.out = &seekBuffer{}
	r.enc = wav.NewEncoder(r.out, sampleRate, 16, channels, 1)
	r.format = &goaudio.Format{NumChannels: channels, SampleRate: sampleRate}
	r.pcmBytes = 0
	r.carry = nil
	r.state = StateRecording
	return nil
}

// Write appends raw interleaved PCM16LE bytes. A chunk may end mid-frame;
// the remainder is held until the next call.
func (r *Recorder) Write(pcm []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return ErrNotRecording
	}
	if r.pcmBytes+len(pcm) > r.maxBytes {
		return ErrTooLarge
	}
	if len(r.carry) > 0 {
		pcm = append(r.carry, pcm...)
		r.carry = nil
	}
	frame := 2 * r.channels
	if rem := len(pcm) % frame; rem != 0 {
		r.carry = append([]byte(nil), pcm[len(pcm)-rem:]...)
		pcm = pcm[:len(pcm)-rem]
	}
	if len(pcm) == 0 {
		return nil
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	buf := &goaudio.IntBuffer{Format: r.format, Data: samples, SourceBitDepth: 16}
	if err := r.enc.Write(buf); err != nil {
		return fmt.Errorf("wav write failed: %w", err)
	}
	r.pcmBytes += len(pcm)
	return nil
}

// Finish closes the WAV container and returns the clip, tagged wav.
func (r *Recorder) Finish() (Clip, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return Clip{}, ErrNotRecording
	}
	r.state = StateStopping
	enc, out, n := r.enc, r.out, r.pcmBytes
	r.mu.Unlock()

	defer r.reset()
	if n == 0 {
		return Clip{}, ErrEmpty
	}
	if err := enc.Close(); err != nil {
		return Clip{}, fmt.Errorf("wav close failed: %w", err)
	}
	data := append([]byte(nil), out.Bytes()...)
	return Clip{Data: data, Format: types.FormatWAV, MIME: types.FormatWAV.MIME()}, nil
}

// Cancel drops whatever was captured.
func (r *Recorder) Cancel() {
	r.reset()
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
	r.out, r.enc, r.format, r.carry = nil, nil, nil, nil
	r.pcmBytes = 0
}
