package controllers

import (
	"errors"
	"net/http"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/runtime"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	"github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

// QueueController handles the queue endpoints of a single poller.
type QueueController struct {
	rt     *runtime.Runtime
	p      *poller.Poller
	logger log.Logger
}

// NewQueueController creates a new queue controller.
func NewQueueController(rt *runtime.Runtime, p *poller.Poller) *QueueController {
	return &QueueController{
		rt:     rt,
		p:      p,
		logger: rt.Logger().WithComponent("admin").With(log.Str(log.QueueKey, p.Key())),
	}
}

// RegisterRoutes registers queue routes with the given mux.
func (c *QueueController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/queue/stats", c.handleStats)
	mux.HandleFunc("/v1/queue/items", c.handleItems)
	mux.HandleFunc("/v1/queue/enqueue", c.handleEnqueue)
	mux.HandleFunc("/v1/queue/remove", c.handleRemove)
	mux.HandleFunc("/v1/queue/recover", c.handleRecover)
}

// handleStats returns queue cardinalities.
// GET /v1/queue/stats
func (c *QueueController) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	st, err := c.p.Stats(r.Context())
	if err != nil {
		c.logger.Error("stats failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to read stats")
		return
	}
	writeJSON(w, st)
}

// handleItems lists queued items in claim order, or in-flight items.
// GET /v1/queue/items?limit=<n>&inflight=<bool>
func (c *QueueController) handleItems(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	var (
		items []store.Item
		err   error
		key   = c.p.Key()
	)
	if parseBool(q.Get("inflight")) {
		key = c.p.SnapshotKey()
		items, err = c.p.InFlight(r.Context())
		if limit := parseLimit(q.Get("limit")); err == nil && limit > 0 && len(items) > limit {
			items = items[:limit]
		}
	} else {
		items, err = c.p.List(r.Context(), parseLimit(q.Get("limit")))
	}
	if err != nil {
		c.logger.Error("list failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to list items")
		return
	}
	if items == nil {
		items = []store.Item{}
	}
	writeJSON(w, itemsResp{Key: key, Items: items})
}

// handleEnqueue adds or rescores items.
// POST /v1/queue/enqueue {"score": 1, "member": "a"} or {"items": [...]}
func (c *QueueController) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req enqueueReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	items := req.items()
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "No items to enqueue")
		return
	}
	if err := c.p.Enqueue(r.Context(), items...); err != nil {
		if errors.Is(err, poller.ErrEmptyMember) || errors.Is(err, store.ErrInvalidScore) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c.logger.Error("enqueue failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to enqueue")
		return
	}
	writeCreated(w)
}

// handleRemove cancels a member from the queue and the snapshot.
// POST /v1/queue/remove {"member": "a"}
func (c *QueueController) handleRemove(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req removeReq
	if err := decodeBody(w, r, &req); err != nil || req.Member == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	found, err := c.p.Remove(r.Context(), req.Member)
	if err != nil {
		c.logger.Error("remove failed", log.Err(err), log.Str("member", req.Member))
		writeError(w, http.StatusInternalServerError, "Failed to remove")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	writeJSON(w, map[string]bool{"removed": true})
}

// handleRecover runs the recovery procedure and returns its report.
// POST /v1/queue/recover
func (c *QueueController) handleRecover(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	rep, err := c.p.Recover(r.Context())
	if err != nil {
		c.logger.Error("recover failed", log.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to recover")
		return
	}
	writeJSON(w, rep)
}
