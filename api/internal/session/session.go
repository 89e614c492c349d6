// Package session owns the per-user feedback loop: the last displayed
// verdict, the correction log replayed into every detection, and the guard
// that keeps one model call in flight per session.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/observe"
)

var (
	// ErrBusy is returned when a call for the same session is still pending.
	ErrBusy = errors.New("session: a request is already in flight")
	// ErrNothingToReview is returned for feedback before any successful
	// prediction, or once the current verdict was confirmed or corrected.
	ErrNothingToReview = errors.New("session: no unreviewed prediction to review")
	// ErrStaleVerdict is returned when feedback names a detection that a
	// newer one has replaced.
	ErrStaleVerdict = errors.New("session: verdict was replaced by a newer detection")
)

// Detector is the model-facing side the session drives.
type Detector interface {
	Detect(ctx context.Context, llmName string, req types.DetectionRequest) (types.DetectionResponse, error)
	Calibrate(ctx context.Context, llmName string, req types.CalibrationRequest) (string, error)
}

// detectionIDs numbers successful detections process-wide, so an id never
// repeats across sessions that reuse a key.
var detectionIDs atomic.Int64

// State of the feedback loop.
type State string

const (
	StateIdle      State = "idle"
	StateLearning  State = "learning"
	StateConfirmed State = "confirmed"
)

const correctionMarker = "[CORRECTION APPLIED] "

// Input is one clip as handed over by a capture surface.
type Input struct {
	Language    string
	AudioFormat types.AudioFormat
	AudioBase64 string
}

// FeedbackResult is what a feedback call leaves behind.
type FeedbackResult struct {
	State      State                   `json:"status"`
	Response   types.DetectionResponse `json:"response"`
	Correction *types.Correction       `json:"correction,omitempty"`
}

type Session struct {
	ID string

	det     Detector
	log     *CorrectionLog
	guard   *semaphore.Weighted
	metrics *observe.Metrics

	mu      sync.Mutex
	llm     string
	state   State
	input    *Input // clip behind current, nil until a detection succeeds
	current  types.DetectionResponse
	seq      int  // id of the detection behind current
	reviewed bool // current was confirmed or corrected
	touched time.Time
}

func newSession(id, llm string, det Detector, maxCorrections int, m *observe.Metrics) *Session {
	return &Session{
		ID:      id,
		llm:     llm,
		det:     det,
		log:     NewCorrectionLog(maxCorrections),
		guard:   semaphore.NewWeighted(1),
		metrics: m,
		state:   StateIdle,
		touched: time.Now(),
	}
}

// Detect classifies a clip with every stored correction attached. A failed
// detection still returns the placeholder response along with the error.
func (s *Session) Detect(ctx context.Context, in Input) (types.DetectionResponse, error) {
	resp, _, err := s.DetectTracked(ctx, in)
	return resp, err
}

// DetectTracked is Detect that also returns the detection's sequence number,
// which FeedbackFor takes to refuse feedback on a replaced verdict. The
// number is 0 when the detection failed.
func (s *Session) DetectTracked(ctx context.Context, in Input) (types.DetectionResponse, int, error) {
	if !s.guard.TryAcquire(1) {
		return types.DetectionResponse{}, 0, ErrBusy
	}
	defer s.guard.Release(1)
	s.touch()

	req := types.DetectionRequest{
		Language:        in.Language,
		AudioFormat:     in.AudioFormat,
		AudioBase64:     in.AudioBase64,
		PastCorrections: s.log.Snapshot(),
	}
	resp, err := s.det.Detect(ctx, s.LLM(), req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = resp
	s.state = StateIdle
	s.reviewed = false
	if err != nil || !resp.OK() {
		s.input = nil
		s.seq = 0
		return resp, 0, err
	}
	clip := in
	s.input = &clip
	s.seq = int(detectionIDs.Add(1))
	return resp, s.seq, nil
}

// Feedback applies the operator's verdict on the current prediction. A
// matching label confirms without a model call. A differing label asks the
// model for a lesson; on success the lesson is logged and the displayed
// response is overwritten, on failure nothing changes. Each verdict takes one
// successful review: a confirmed or corrected verdict answers
// ErrNothingToReview until the next detection.
func (s *Session) Feedback(ctx context.Context, actual types.Label) (FeedbackResult, error) {
	return s.FeedbackFor(ctx, 0, actual)
}

// FeedbackFor is Feedback bound to detection seq from DetectTracked. Zero
// means whatever verdict is current.
func (s *Session) FeedbackFor(ctx context.Context, seq int, actual types.Label) (FeedbackResult, error) {
	if !actual.Valid() {
		return FeedbackResult{}, &types.FieldError{Fields: []string{"actual_label"}, Reason: "must be AI_GENERATED or HUMAN"}
	}
	if !s.guard.TryAcquire(1) {
		return FeedbackResult{}, ErrBusy
	}
	defer s.guard.Release(1)
	s.touch()

	s.mu.Lock()
	if seq != 0 && seq != s.seq {
		s.mu.Unlock()
		return FeedbackResult{}, ErrStaleVerdict
	}
	if s.input == nil || s.reviewed {
		s.mu.Unlock()
		return FeedbackResult{}, ErrNothingToReview
	}
	in := *s.input
	shown := s.current
	llm := s.llm
	if shown.Prediction == actual {
		s.state = StateConfirmed
		s.reviewed = true
		s.mu.Unlock()
		s.metrics.RecordCorrection(ctx, "confirmed")
		return FeedbackResult{State: StateConfirmed, Response: shown}, nil
	}
	s.state = StateLearning
	s.mu.Unlock()

	var reasoning string
	if shown.Details != nil {
		reasoning = shown.Details.Reasoning
	}
	lesson, err := s.det.Calibrate(ctx, llm, types.CalibrationRequest{
		AudioBase64:        in.AudioBase64,
		AudioFormat:        in.AudioFormat,
		OriginalPrediction: shown.Prediction,
		OriginalReasoning:  reasoning,
		ActualLabel:        actual,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	if err != nil {
		s.metrics.RecordCorrection(ctx, "failed")
		log.Printf("feedback session=%s calibration failed: %v", s.ID, err)
		return FeedbackResult{State: StateIdle, Response: s.current}, err
	}

	c := types.Correction{
		OriginalPrediction: shown.Prediction,
		ActualLabel:        actual,
		ReasoningOfFailure: lesson,
	}
	s.log.Append(c)
	s.reviewed = true

	lang := in.Language
	if shown.Details != nil && shown.Details.DetectedLanguage != "" {
		lang = shown.Details.DetectedLanguage
	}
	s.current = types.DetectionResponse{
		Status:     types.StatusSuccess,
		Prediction: actual,
		Confidence: 1.0,
		Message:    shown.Message,
		Details: &types.Details{
			Reasoning:        correctionMarker + lesson,
			DetectedLanguage: lang,
		},
	}
	s.metrics.RecordCorrection(ctx, "applied")
	log.Printf("feedback session=%s correction applied from=%s to=%s total=%d", s.ID, c.OriginalPrediction, c.ActualLabel, s.log.Total())
	return FeedbackResult{State: StateIdle, Response: s.current, Correction: &c}, nil
}

// Current is the response a UI should display.
func (s *Session) Current() types.DetectionResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Corrections() *CorrectionLog { return s.log }

// LLM is the engine name detections on this session go to.
func (s *Session) LLM() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llm
}

// SetLLM switches engines for later calls; the correction log is kept.
func (s *Session) SetLLM(name string) {
	s.mu.Lock()
	s.llm = name
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.touched = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}
