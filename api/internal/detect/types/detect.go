package types

import (
	"fmt"
	"strings"
)

// AudioFormat is the declared encoding of an audio payload.
type AudioFormat string

const (
	FormatMP3 AudioFormat = "mp3"
	FormatWAV AudioFormat = "wav"
)

// ParseAudioFormat accepts "mp3" or "wav" in any case.
func ParseAudioFormat(s string) (AudioFormat, error) {
	switch AudioFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatMP3:
		return FormatMP3, nil
	case FormatWAV:
		return FormatWAV, nil
	}
	return "", fmt.Errorf("unsupported audio_format %q (use mp3 or wav)", s)
}

func (f AudioFormat) Valid() bool { return f == FormatMP3 || f == FormatWAV }

// MIME is the transport content type used when the payload carries no data: prefix.
func (f AudioFormat) MIME() string {
	if f == FormatWAV {
		return "audio/wav"
	}
	return "audio/mpeg"
}

// Label is the classification outcome.
type Label string

const (
	LabelAIGenerated Label = "AI_GENERATED"
	LabelHuman       Label = "HUMAN"
)

func (l Label) Valid() bool { return l == LabelAIGenerated || l == LabelHuman }

// ParseLabel is strict on the value but tolerant of case and surrounding space.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("invalid label %q (use AI_GENERATED or HUMAN)", s)
	}
	return l, nil
}

// Status of a DetectionResponse.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Correction is one disputed prediction together with the lesson the model drew from it.
type Correction struct {
	OriginalPrediction Label  `json:"original_prediction"`
	ActualLabel        Label  `json:"actual_label"`
	ReasoningOfFailure string `json:"reasoning_of_failure"`
}

// DetectionRequest is built fresh for every attempt. PastCorrections keeps
// insertion order, most recent last.
type DetectionRequest struct {
	Language        string       `json:"language"`
	AudioFormat     AudioFormat  `json:"audio_format"`
	AudioBase64     string       `json:"audio_base64"`
	PastCorrections []Correction `json:"past_corrections,omitempty"`
}

// Validate reports every missing or malformed field at once.
func (r DetectionRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Language) == "" {
		missing = append(missing, "language")
	}
	if strings.TrimSpace(string(r.AudioFormat)) == "" {
		missing = append(missing, "audio_format")
	}
	if strings.TrimSpace(r.AudioBase64) == "" {
		missing = append(missing, "audio_base64")
	}
	if len(missing) > 0 {
		return &FieldError{Fields: missing, Reason: "missing required fields"}
	}
	if !r.AudioFormat.Valid() {
		return &FieldError{Fields: []string{"audio_format"}, Reason: "must be mp3 or wav"}
	}
	return nil
}

// Details carries the model's explanation on success.
type Details struct {
	Reasoning        string `json:"reasoning"`
	DetectedLanguage string `json:"detected_language"`
}

// DetectionResponse is produced once per detection call. On error Prediction
// and Confidence are placeholders.
type DetectionResponse struct {
	Status     Status   `json:"status"`
	Prediction Label    `json:"prediction"`
	Confidence float64  `json:"confidence"`
	Message    string   `json:"message,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
	Details    *Details `json:"details,omitempty"`
}

func (r DetectionResponse) OK() bool { return r.Status == StatusSuccess }

// CalibrationRequest asks the model why it got a clip wrong.
type CalibrationRequest struct {
	AudioBase64        string      `json:"audio_base64"`
	AudioFormat        AudioFormat `json:"audio_format"`
	OriginalPrediction Label       `json:"original_prediction"`
	OriginalReasoning  string      `json:"original_reasoning"`
	ActualLabel        Label       `json:"actual_label"`
}

func (r CalibrationRequest) Validate() error {
	var bad []string
	if strings.TrimSpace(r.AudioBase64) == "" {
		bad = append(bad, "audio_base64")
	}
	if !r.AudioFormat.Valid() {
		bad = append(bad, "audio_format")
	}
	if !r.OriginalPrediction.Valid() {
		bad = append(bad, "original_prediction")
	}
	if !r.ActualLabel.Valid() {
		bad = append(bad, "actual_label")
	}
	if len(bad) > 0 {
		return &FieldError{Fields: bad, Reason: "missing or invalid fields"}
	}
	return nil
}

// FieldError is a request validation failure naming the offending fields.
type FieldError struct {
	Fields []string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Reason + ": " + strings.Join(e.Fields, ", ")
}
