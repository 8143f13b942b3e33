package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m3rciful/kitwatch/core/logger"
	"github.com/m3rciful/kitwatch/core/notify"
)

type handler struct {
	trigger Triggerer
	secret  string
	version string
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *handler) home(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "Bot is running!")
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.version})
}

func (h *handler) runChecks(w http.ResponseWriter, r *http.Request) {
	if !h.secretMatches(chi.URLParam(r, "secret")) {
		writeText(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	err := h.trigger.Trigger()
	switch {
	case err == nil:
		writeText(w, http.StatusAccepted, "check started")
	case errors.Is(err, notify.ErrScanRunning):
		writeText(w, http.StatusConflict, "check already running")
	default:
		logger.LogEvent(r.Context(), logger.HTTP, slog.LevelError, "http.trigger",
			slog.String("status", "fail"),
			logger.Err(err),
		)
		writeText(w, http.StatusInternalServerError, "check failed to start")
	}
}

func (h *handler) secretMatches(got string) bool {
	if h.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) == 1
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
