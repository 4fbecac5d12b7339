package catalogsync

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-api/internal/common"
	"github.com/noah-isme/storefront-api/internal/security"
)

// Runner executes a refresh inline.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Handler serves the cron-triggered refresh endpoint.
type Handler struct {
	Runner    Runner
	Scheduler *Scheduler
	Supplier  string
	Secret    security.SharedSecret
}

// Refresh serves POST /jobs/merchize-catalog-refresh. With ?async=true the
// refresh is queued instead of run inline.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !h.Secret.Valid(r) {
		common.JSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "unauthorized"})
		return
	}
	logger := zerolog.Ctx(r.Context())

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if h.Scheduler == nil {
			common.JSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "task queue not configured"})
			return
		}
		id, err := h.Scheduler.Enqueue(r.Context(), h.Supplier, "http")
		if err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				common.JSON(w, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
				return
			}
			logger.Error().Err(err).Msg("enqueue catalog refresh")
			common.JSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "unable to enqueue refresh"})
			return
		}
		common.JSON(w, http.StatusAccepted, map[string]any{"ok": true, "queued": true, "taskId": id})
		return
	}

	if h.Runner == nil {
		common.JSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "refresh job not configured"})
		return
	}
	res, err := h.Runner.Run(r.Context())
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			common.JSON(w, http.StatusConflict, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		common.JSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"supplier":   res.Supplier,
		"items":      res.Items,
		"skipped":    res.Skipped,
		"pages":      res.Pages,
		"targets":    res.Targets,
		"reloaded":   res.Reloaded,
		"durationMs": res.DurationMs,
		"finishedAt": res.FinishedAt,
	})
}
