package detect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/util"
)

// Pointers tell a missing or null field apart from a zero value. A quoted
// confidence fails to decode into *float64.
type rawVerdict struct {
	Prediction       *string  `json:"prediction"`
	Confidence       *float64 `json:"confidence"`
	Reasoning        *string  `json:"reasoning"`
	DetectedLanguage *string  `json:"detected_language"`
}

// ParseVerdict validates raw model text against the detection schema. It never
// returns a partial success: any missing or malformed field is a parse error.
// Confidence is copied as-is, without clamping or rounding.
func ParseVerdict(text string) (types.DetectionResponse, error) {
	body := util.StripCodeFences(text)
	if body == "" {
		return types.DetectionResponse{}, ParseError(errors.New("empty model output"))
	}

	dec := json.NewDecoder(strings.NewReader(body))
	var rv rawVerdict
	if err := dec.Decode(&rv); err != nil {
		return types.DetectionResponse{}, ParseError(fmt.Errorf("bad JSON: %w", err))
	}
	if dec.More() {
		return types.DetectionResponse{}, ParseError(errors.New("trailing data after JSON object"))
	}

	var missing []string
	if rv.Prediction == nil {
		missing = append(missing, "prediction")
	}
	if rv.Confidence == nil {
		missing = append(missing, "confidence")
	}
	if rv.Reasoning == nil {
		missing = append(missing, "reasoning")
	}
	if rv.DetectedLanguage == nil {
		missing = append(missing, "detected_language")
	}
	if len(missing) > 0 {
		return types.DetectionResponse{}, ParseError(fmt.Errorf("missing fields: %s", strings.Join(missing, ", ")))
	}

	label := types.Label(*rv.Prediction)
	if !label.Valid() {
		return types.DetectionResponse{}, ParseError(fmt.Errorf("prediction %q outside {AI_GENERATED, HUMAN}", *rv.Prediction))
	}
	return types.DetectionResponse{
		Status:     types.StatusSuccess,
		Prediction: label,
		Confidence: *rv.Confidence,
		Details: &types.Details{
			Reasoning:        *rv.Reasoning,
			DetectedLanguage: *rv.DetectedLanguage,
		},
	}, nil
}

// ParseLesson extracts the calibration lesson. A JSON {"lesson": ...} is
// preferred; plain prose is accepted as the lesson itself.
func ParseLesson(text string) (string, error) {
	body := util.StripCodeFences(text)
	if body == "" {
		return "", ParseError(errors.New("empty calibration output"))
	}
	if strings.HasPrefix(body, "{") {
		var out struct {
			Lesson *string `json:"lesson"`
		}
		if err := json.Unmarshal([]byte(body), &out); err != nil {
			return "", ParseError(fmt.Errorf("bad JSON: %w", err))
		}
		if out.Lesson == nil || strings.TrimSpace(*out.Lesson) == "" {
			return "", ParseError(errors.New("missing field: lesson"))
		}
		return strings.TrimSpace(*out.Lesson), nil
	}
	return body, nil
}

// ErrorResponse is the placeholder shape returned for every failure.
func ErrorResponse(e *Error) types.DetectionResponse {
	return types.DetectionResponse{
		Status:     types.StatusError,
		Prediction: types.LabelHuman,
		Confidence: 0,
		Message:    e.Msg,
		ErrorKind:  string(e.Kind),
	}
}
