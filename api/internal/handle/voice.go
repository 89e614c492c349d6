package handle

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"voiceshield/api/internal/detect/types"
)

// voiceResponse is the flat body returned by the public detection endpoint.
type voiceResponse struct {
	Prediction types.Label `json:"prediction"`
	Confidence float64     `json:"confidence"`
	Message    string      `json:"message"`
}

func writeVoiceError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"status": "error", "message": msg})
}

// DetectVoice serves POST /detect-voice: one stateless classification behind
// the x-api-key header.
func (h *Handle) DetectVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeVoiceError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !h.validKey(r) {
		writeVoiceError(w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	var req types.DetectionRequest
	body := http.MaxBytesReader(w, r.Body, int64(h.opts.MaxUploadBytes)*2)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeVoiceError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return
		}
		writeVoiceError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	req.PastCorrections = nil
	if err := req.Validate(); err != nil {
		var fe *types.FieldError
		if errors.As(err, &fe) {
			writeVoiceError(w, http.StatusBadRequest, fieldMessage(fe))
			return
		}
		writeVoiceError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	resp, err := h.det.Detect(ctx, r.URL.Query().Get("llm_name"), req)
	if err != nil {
		log.Printf("detect-voice failed: %v", err)
		msg := resp.Message
		if msg == "" {
			msg = h.messageFor(err)
		}
		writeVoiceError(w, statusFor(err), msg)
		return
	}
	writeJSON(w, http.StatusOK, voiceResponse{
		Prediction: resp.Prediction,
		Confidence: resp.Confidence,
		Message:    "Audio analyzed successfully",
	})
}

// ValidateKey serves POST /v1/validate-key.
func (h *Handle) ValidateKey(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}
	if !h.validKey(r) {
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "API key validated"})
}
