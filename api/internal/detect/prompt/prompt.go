// Package prompt assembles the outbound model calls: audio part, instruction text and output schema.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/util"
)

// ErrEmptyResponse is wrapped by engines when a call succeeds but carries no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Kind selects the output contract of a Call.
type Kind string

const (
	KindDetect    Kind = "detect"
	KindCalibrate Kind = "calibrate"
)

// Call is everything an engine needs for one model round trip. Engines treat it as read-only.
type Call struct {
	Kind   Kind
	Audio  []byte
	MIME   string
	Format types.AudioFormat
	System string
	User   string
	Schema string
}

const detectSystem = `SYSTEM ROLE: Forensic Audio Analyst.
TASK: Determine whether the provided audio is AI_GENERATED (TTS or voice clone) or HUMAN speech.

Focus on:
- robotic or over-regular cadence and pacing;
- missing emotional micro-fluctuations in pitch and energy;
- spectral discontinuities, phase artefacts and unnaturally clean noise floors;
- breathing, lip and mouth sounds that are absent or pasted in.

REGIONAL ANALYSIS (CRITICAL):
If the language is Telugu (te-IN) or Malayalam (ml-IN), specifically examine:
1. Retroflex consonants (ట, డ, ణ / ട, ഡ, ണ): synthetic voices often miss the distinct tongue-curl acoustics.
2. Vowel sandhi: check for natural fluid transitions between words.
3. Aspirated sounds: AI often renders these too uniformly or drops the breathy quality.

OUTPUT: respond with a single JSON object and nothing else.`

const calibrateSystem = `SYSTEM ROLE: Forensic Audio Analyst reviewing its own mistake.
You previously classified the provided audio and the operator says the verdict was wrong.
Listen again and explain in ONE sentence which forensic marker you missed or misread.
OUTPUT: respond with a single JSON object {"lesson": "..."} and nothing else.`

// Builder renders calls. Dir, when set, is checked for detect.txt / calibrate.txt overrides
// of the built-in system text.
type Builder struct {
	Dir string
}

// Detection builds the classification call. The correction slice is only read.
func (b Builder) Detection(req types.DetectionRequest) (Call, error) {
	if err := req.Validate(); err != nil {
		return Call{}, err
	}
	audio, mime, err := decodeAudio(req.AudioBase64, req.AudioFormat)
	if err != nil {
		return Call{}, err
	}
	sys, err := b.system(KindDetect, detectSystem)
	if err != nil {
		return Call{}, err
	}

	var u strings.Builder
	fmt.Fprintf(&u, "CONTEXT:\n- Language: %s\n", strings.TrimSpace(req.Language))
	if s := RenderCorrections(req.PastCorrections); s != "" {
		u.WriteString("\nPAST CORRECTIONS (learn from these, oldest first):\n")
		u.WriteString(s)
	}
	u.WriteString("\nReturn JSON matching the schema: prediction, confidence (0-1), reasoning, detected_language.")

	return Call{
		Kind:   KindDetect,
		Audio:  audio,
		MIME:   mime,
		Format: req.AudioFormat,
		System: sys,
		User:   u.String(),
		Schema: DetectSchema,
	}, nil
}

// Calibration builds the lesson call for a disputed prediction.
func (b Builder) Calibration(req types.CalibrationRequest) (Call, error) {
	if err := req.Validate(); err != nil {
		return Call{}, err
	}
	audio, mime, err := decodeAudio(req.AudioBase64, req.AudioFormat)
	if err != nil {
		return Call{}, err
	}
	sys, err := b.system(KindCalibrate, calibrateSystem)
	if err != nil {
		return Call{}, err
	}
	user := fmt.Sprintf("Your prediction: %s\nYour reasoning: %s\nActual label: %s\nWhat did you miss?",
		req.OriginalPrediction, strings.TrimSpace(req.OriginalReasoning), req.ActualLabel)

	return Call{
		Kind:   KindCalibrate,
		Audio:  audio,
		MIME:   mime,
		Format: req.AudioFormat,
		System: sys,
		User:   user,
		Schema: CalibrationSchema,
	}, nil
}

// RenderCorrections numbers corrections in order, one per line. Empty input renders "".
func RenderCorrections(cs []types.Correction) string {
	if len(cs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range cs {
		fmt.Fprintf(&sb, "%d. previously predicted %s but it was actually %s; lesson: %s\n",
			i+1, c.OriginalPrediction, c.ActualLabel, strings.TrimSpace(c.ReasoningOfFailure))
	}
	return sb.String()
}

func (b Builder) system(kind Kind, fallback string) (string, error) {
	text, ok, err := util.LoadPromptFile(b.Dir, string(kind))
	if err != nil {
		return "", err
	}
	if ok {
		return text, nil
	}
	return fallback, nil
}

// decodeAudio strips any data: prefix; its MIME beats the one implied by format.
func decodeAudio(b64 string, format types.AudioFormat) ([]byte, string, error) {
	data, hint, err := util.DecodeBase64MaybeDataURL(b64)
	if err != nil {
		return nil, "", &types.FieldError{Fields: []string{"audio_base64"}, Reason: "not valid base64"}
	}
	if len(data) == 0 {
		return nil, "", &types.FieldError{Fields: []string{"audio_base64"}, Reason: "decoded audio is empty"}
	}
	return data, util.PickMIME(hint, format.MIME(), data), nil
}
