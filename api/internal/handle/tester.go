package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"voiceshield/api/internal/detect/types"
	"voiceshield/api/internal/tester"
)

// Tester serves POST /v1/tester. It is off unless tester.enabled is set.
func (h *Handle) Tester(w http.ResponseWriter, r *http.Request) {
	if !postOnly(w, r) {
		return
	}
	if !h.opts.TesterEnabled || h.checker == nil {
		writeError(w, http.StatusForbidden, "endpoint tester is disabled")
		return
	}
	var req tester.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}

	rep, err := h.checker.Run(r.Context(), req)
	if err != nil {
		var fe *types.FieldError
		var de *tester.DiagnosticError
		switch {
		case errors.As(err, &fe):
			writeError(w, http.StatusBadRequest, fe.Error())
		case errors.As(err, &de):
			writeError(w, http.StatusBadGateway, de.Msg)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
