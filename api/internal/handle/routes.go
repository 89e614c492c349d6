package handle

import (
	"net/http"

	"voiceshield/api/internal/observe"
)

// Routes registers every endpoint on mux, each wrapped with request metrics.
// metricsHandler may be nil to leave /metrics unserved.
func (h *Handle) Routes(mux *http.ServeMux, m *observe.Metrics, metricsHandler http.Handler) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, observe.Middleware(m, pattern)(fn))
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	route("/detect-voice", h.DetectVoice)
	route("/v1/detect", h.Detect)
	route("/v1/feedback", h.Feedback)
	route("/v1/sessions/{id}/corrections", h.Corrections)
	route("/v1/tester", h.Tester)
	route("/v1/validate-key", h.ValidateKey)
	route("/v1/capture", h.Capture)
}
