package controllers

import (
	"net/http"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	queue   *QueueController
}

// NewControllerRegistry creates a registry serving the queue of p.
func NewControllerRegistry(rt *runtime.Runtime, p *poller.Poller) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		queue:   NewQueueController(rt, p),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.queue.RegisterRoutes(mux)
}
