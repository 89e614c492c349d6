package handle

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voiceshield/api/internal/audio"
	"voiceshield/api/internal/detect"
	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/session"
	"voiceshield/api/internal/tester"
)

type Options struct {
	// APIKey guards /detect-voice and /v1/validate-key. Empty rejects every key.
	APIKey         string
	DefaultTimeout time.Duration
	MaxUploadBytes int
	TesterEnabled  bool
	// OriginPatterns are extra origins allowed to open /v1/capture.
	OriginPatterns []string
}

type Handle struct {
	det      session.Detector
	sessions *session.Store
	checker  *tester.Checker
	opts     Options
}

func New(det session.Detector, sessions *session.Store, checker *tester.Checker, opts Options) *Handle {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 180 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = audio.DefaultMaxBytes
	}
	return &Handle{det: det, sessions: sessions, checker: checker, opts: opts}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func postOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return false
	}
	return true
}

// requestContext applies the X-Request-Timeout header or timeoutSec query
// deadline, falling back to the configured default.
func (h *Handle) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := h.opts.DefaultTimeout
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

func (h *Handle) validKey(r *http.Request) bool {
	got := strings.TrimSpace(r.Header.Get("x-api-key"))
	if h.opts.APIKey == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.APIKey)) == 1
}

// statusFor maps core errors onto HTTP codes.
func statusFor(err error) int {
	var de *detect.Error
	var fe *types.FieldError
	switch {
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, session.ErrNothingToReview):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, audio.ErrUnknownFormat), errors.Is(err, audio.ErrEmpty), errors.Is(err, audio.ErrMalformed):
		return http.StatusBadRequest
	case errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.As(err, &de):
		return de.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func (h *Handle) tooLargeMessage() string {
	return fmt.Sprintf("File too large. Max %dMB allowed.", h.opts.MaxUploadBytes>>20)
}

// messageFor renders an error the way an operator should read it.
func (h *Handle) messageFor(err error) string {
	var fe *types.FieldError
	switch {
	case errors.Is(err, audio.ErrTooLarge):
		return h.tooLargeMessage()
	case errors.Is(err, session.ErrNothingToReview):
		return "No verdict awaiting review. Run a detection before sending feedback."
	case errors.Is(err, session.ErrBusy):
		return "A request for this session is still running."
	case errors.As(err, &fe):
		return fieldMessage(fe)
	}
	var de *detect.Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return err.Error()
}

func fieldMessage(fe *types.FieldError) string {
	if strings.HasPrefix(fe.Reason, "missing") {
		return "Missing required fields: " + strings.Join(fe.Fields, ", ")
	}
	return fe.Error()
}
