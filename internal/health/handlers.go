package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/storefront-api/internal/common"
)

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingRedis(ctx context.Context, timeout time.Duration) error
	// CheckDatasets loads the catalog and shipping datasets if they are not
	// resident yet.
	CheckDatasets(ctx context.Context, timeout time.Duration) error
}

var draining atomic.Bool

// SetReady toggles readiness. Shutdown flips it off so load balancers drain
// the instance before the listener closes.
func SetReady(ready bool) {
	draining.Store(!ready)
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker        Checker
	RedisTimeout   time.Duration
	DatasetTimeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	if h.Checker == nil {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "dependencies unavailable"})
		return
	}
	ctx := r.Context()
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		redisStatus = err.Error()
	}
	datasetStatus := "ok"
	if err := h.Checker.CheckDatasets(ctx, h.datasetTimeout()); err != nil {
		datasetStatus = err.Error()
	}
	status := map[string]string{
		"redis":    redisStatus,
		"datasets": datasetStatus,
	}
	code := http.StatusOK
	if redisStatus != "ok" || datasetStatus != "ok" {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}

func (h Handler) datasetTimeout() time.Duration {
	if h.DatasetTimeout <= 0 {
		return 2 * time.Second
	}
	return h.DatasetTimeout
}
