package controllers

import (
	"net/http"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/runtime"
)

// GeneralController handles endpoints that are not tied to a queue: health
// and metrics.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
//
// /metrics is only mounted when the runtime carries a metrics collector.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	if m := c.rt.Metrics(); m != nil {
		mux.Handle("/metrics", m.Handler())
	}
}

// handleHealth returns the health status of the worker.
//
// Returns 200 OK with {"status": "ok", "worker_id": ...} if the store answers,
// 503 Service Unavailable otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "worker_id": c.rt.WorkerID()})
}
