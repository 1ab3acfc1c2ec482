package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/prakharsharma/redis-sorted-set-based-poller/internal/config"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/metrics"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/runtime"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
	logpkg "github.com/prakharsharma/redis-sorted-set-based-poller/pkg/log"
)

func newTestServer(t *testing.T, mutate func(*cfgpkg.Config)) (*Server, *poller.Poller) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.Store.Backend = cfgpkg.BackendMemory
	cfg.Poller.Key = "jobs"
	if mutate != nil {
		mutate(&cfg)
	}
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text", Outputs: []string{"null"}})
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logger, Metrics: metrics.NewCollector(nil)})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	p, err := rt.NewPoller(nil)
	if err != nil {
		t.Fatalf("poller: %v", err)
	}
	return New(rt, p, logger), p
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["worker_id"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestEnqueueAndList(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := do(t, s, http.MethodPost, "/v1/queue/enqueue", `{"items":[{"score":2,"member":"b"},{"score":1,"member":"a"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue status: %d %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodPost, "/v1/queue/enqueue", `{"score":3,"member":"c"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("enqueue status: %d", w.Code)
	}

	w = do(t, s, http.MethodGet, "/v1/queue/items?limit=2", "")
	if w.Code != 200 {
		t.Fatalf("items status: %d", w.Code)
	}
	var resp struct {
		Key   string       `json:"key"`
		Items []store.Item `json:"items"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Key != "jobs" || len(resp.Items) != 2 || resp.Items[0].Member != "a" || resp.Items[1].Member != "b" {
		t.Fatalf("unexpected items: %+v", resp)
	}
}

func TestEnqueueRejectsBadInput(t *testing.T) {
	s, _ := newTestServer(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"member":`},
		{"empty member", `{"score":1}`},
		{"empty items", `{"items":[],"member":"a","score":1}`},
		{"oversized", `{"score":1,"member":"` + strings.Repeat("a", 1<<20) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, s, http.MethodPost, "/v1/queue/enqueue", tt.body); w.Code != http.StatusBadRequest {
				t.Fatalf("status: %d", w.Code)
			}
		})
	}
	if n, err := s.rt.Store().Card(context.Background(), "jobs"); err != nil || n != 0 {
		t.Fatalf("rejected bodies reached the queue: n=%d err=%v", n, err)
	}
	if w := do(t, s, http.MethodGet, "/v1/queue/enqueue", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET enqueue status: %d", w.Code)
	}
}

func TestStatsAndInFlight(t *testing.T) {
	s, p := newTestServer(t, nil)
	ctx := context.Background()
	if err := p.Enqueue(ctx, store.Item{Score: 1, Member: "a"}, store.Item{Score: 2, Member: "b"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, claimed, err := p.Dequeue(ctx); err != nil || !claimed {
		t.Fatalf("dequeue: claimed=%v err=%v", claimed, err)
	}

	w := do(t, s, http.MethodGet, "/v1/queue/stats", "")
	var st poller.Stats
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Pending != 1 || st.Snapshot != 2 || st.InFlight != 1 || st.SnapshotKey != "jobs-snapshot" {
		t.Fatalf("unexpected stats: %+v", st)
	}

	w = do(t, s, http.MethodGet, "/v1/queue/items?inflight=true", "")
	if !strings.Contains(w.Body.String(), `"member":"a"`) || strings.Contains(w.Body.String(), `"member":"b"`) {
		t.Fatalf("unexpected in-flight body: %s", w.Body.String())
	}
}

func TestRemoveHandler(t *testing.T) {
	s, p := newTestServer(t, nil)
	if err := p.Enqueue(context.Background(), store.Item{Score: 1, Member: "a"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if w := do(t, s, http.MethodPost, "/v1/queue/remove", `{"member":"a"}`); w.Code != 200 {
		t.Fatalf("remove status: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/v1/queue/remove", `{"member":"a"}`); w.Code != http.StatusNotFound {
		t.Fatalf("second remove status: %d", w.Code)
	}
}

func TestRecoverHandler(t *testing.T) {
	s, p := newTestServer(t, nil)
	ctx := context.Background()
	if err := p.Enqueue(ctx, store.Item{Score: 1, Member: "a"}, store.Item{Score: 2, Member: "b"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// A claim without completion looks like a crashed worker.
	if _, _, err := p.Dequeue(ctx); err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	w := do(t, s, http.MethodPost, "/v1/queue/recover", "")
	if w.Code != 200 {
		t.Fatalf("recover status: %d", w.Code)
	}
	var rep poller.RecoveryReport
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.Merged || rep.Restored != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if items, _ := p.List(ctx, 0); len(items) != 2 {
		t.Fatalf("queue not restored: %v", items)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.rt.Metrics().ObserveConflict("jobs")
	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `zpoll_txn_conflicts_total{queue="jobs"} 1`) {
		t.Fatalf("metrics body missing conflicts counter")
	}
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, func(c *cfgpkg.Config) { c.Admin.CORSOrigins = []string{"http://ui.local"} })

	req := httptest.NewRequest(http.MethodOptions, "/v1/queue/stats", nil)
	req.Header.Set("Origin", "http://ui.local")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status: %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://ui.local" {
		t.Fatalf("allow origin: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("Origin", "http://evil.local")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestListenAndServeShutsDown(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
