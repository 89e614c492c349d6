package handle

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/session"
)

type FeedbackRequest struct {
	SessionID   string `json:"session_id"`
	ActualLabel string `json:"actual_label"`
}

type FeedbackResponse struct {
	SessionID string `json:"session_id"`
	session.FeedbackResult
}

// Feedback serves POST /v1/feedback.
func (h *Handle) Feedback(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: session_id")
		return
	}
	label, err := types.ParseLabel(req.ActualLabel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, ok := h.sessions.Get(req.SessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session_id")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	res, err := sess.Feedback(ctx, label)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, FeedbackResponse{SessionID: sess.ID, FeedbackResult: res})
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrNothingToReview):
		writeError(w, statusFor(err), h.messageFor(err))
	default:
		// the displayed response is unchanged; return it next to the error
		writeJSON(w, statusFor(err), map[string]any{
			"session_id": sess.ID,
			"status":     res.State,
			"response":   res.Response,
			"error":      h.messageFor(err),
		})
	}
}

type CorrectionsResponse struct {
	SessionID   string             `json:"session_id"`
	Total       int                `json:"total"`
	Capacity    int                `json:"capacity"`
	Corrections []types.Correction `json:"corrections"`
}

// Corrections serves GET /v1/sessions/{id}/corrections, oldest first.
func (h *Handle) Corrections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	sess, ok := h.sessions.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session_id")
		return
	}
	cl := sess.Corrections()
	writeJSON(w, http.StatusOK, CorrectionsResponse{
		SessionID:   sess.ID,
		Total:       cl.Total(),
		Capacity:    cl.Cap(),
		Corrections: cl.Snapshot(),
	})
}
