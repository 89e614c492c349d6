package handle

import (
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"strings"

	"voiceshield/api/internal/audio"
	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/session"
)

type DetectRequest struct {
	LLMName   string `json:"llm_name"`
	SessionID string `json:"session_id"`
	types.DetectionRequest
}

type DetectResponse struct {
	SessionID string                  `json:"session_id"`
	Response  types.DetectionResponse `json:"response"`
}

// Detect serves POST /v1/detect. The body is either a JSON DetectRequest or a
// multipart form with file, language, audio_format, llm_name and session_id.
func (h *Handle) Detect(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}

	req, err := h.readDetectRequest(w, r)
	if err != nil {
		writeError(w, statusFor(err), h.messageFor(err))
		return
	}

	// Corrections only enter a session through /v1/feedback.
	if len(req.PastCorrections) > 0 {
		writeError(w, http.StatusBadRequest, "past_corrections are kept per session; send session_id and use /v1/feedback")
		return
	}
	sess, ok := h.sessions.Resolve(req.SessionID, req.LLMName)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session_id")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	resp, err := sess.Detect(ctx, session.Input{
		Language:    req.Language,
		AudioFormat: req.AudioFormat,
		AudioBase64: req.AudioBase64,
	})
	if errors.Is(err, session.ErrBusy) {
		writeError(w, http.StatusConflict, h.messageFor(err))
		return
	}
	code := http.StatusOK
	if err != nil {
		code = statusFor(err)
		log.Printf("detect session=%s failed: %v", sess.ID, err)
	}
	writeJSON(w, code, DetectResponse{SessionID: sess.ID, Response: resp})
}

func (h *Handle) readDetectRequest(w http.ResponseWriter, r *http.Request) (DetectRequest, error) {
	limit := int64(h.opts.MaxUploadBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return h.readMultipart(w, r, limit)
	}

	var req DetectRequest
	// base64 inflates by a third; leave room for the JSON envelope too.
	body := http.MaxBytesReader(w, r.Body, limit*2)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return req, audio.ErrTooLarge
		}
		return req, &types.FieldError{Fields: []string{"body"}, Reason: "bad json: " + err.Error()}
	}
	return req, nil
}

func (h *Handle) readMultipart(w http.ResponseWriter, r *http.Request, limit int64) (DetectRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
			return DetectRequest{}, audio.ErrTooLarge
		}
		return DetectRequest{}, &types.FieldError{Fields: []string{"file"}, Reason: "bad multipart form: " + err.Error()}
	}
	req := DetectRequest{
		LLMName:   r.FormValue("llm_name"),
		SessionID: r.FormValue("session_id"),
	}
	req.Language = strings.TrimSpace(r.FormValue("language"))

	f, fh, err := r.FormFile("file")
	if err != nil {
		return req, &types.FieldError{Fields: []string{"file"}, Reason: "missing required fields"}
	}
	defer f.Close()

	hint := r.FormValue("audio_format")
	if hint == "" {
		hint = fh.Header.Get("Content-Type")
	}
	if hint == "" || hint == "application/octet-stream" {
		hint = fh.Filename
	}
	clip, err := audio.ReadUpload(f, hint, limit)
	if err != nil {
		return req, err
	}
	req.AudioFormat = clip.Format
	req.AudioBase64 = clip.Base64()
	return req, nil
}
