package transports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/poller"
	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

// HTTPTransport implements QueueTransport against a worker's admin API.
type HTTPTransport struct {
	base   string
	client *http.Client
}

// NewHTTPTransport constructs a transport for baseURL. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{base: strings.TrimRight(baseURL, "/"), client: client}
}

// apiError carries the server's {"error": ...} body.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string { return fmt.Sprintf("api: %d %s", e.Status, e.Message) }

func (t *HTTPTransport) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (t *HTTPTransport) Enqueue(ctx context.Context, items ...store.Item) error {
	return t.do(ctx, http.MethodPost, "/v1/queue/enqueue", map[string]any{"items": items}, nil)
}

func (t *HTTPTransport) List(ctx context.Context, req ListRequest) ([]store.Item, error) {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.InFlight {
		q.Set("inflight", "true")
	}
	path := "/v1/queue/items"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Items []store.Item `json:"items"`
	}
	if err := t.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (t *HTTPTransport) Stats(ctx context.Context) (poller.Stats, error) {
	var st poller.Stats
	err := t.do(ctx, http.MethodGet, "/v1/queue/stats", nil, &st)
	return st, err
}

func (t *HTTPTransport) Recover(ctx context.Context) (poller.RecoveryReport, error) {
	var rep poller.RecoveryReport
	err := t.do(ctx, http.MethodPost, "/v1/queue/recover", nil, &rep)
	return rep, err
}

func (t *HTTPTransport) Remove(ctx context.Context, member string) (bool, error) {
	err := t.do(ctx, http.MethodPost, "/v1/queue/remove", map[string]string{"member": member}, nil)
	if e, ok := err.(*apiError); ok && e.Status == http.StatusNotFound {
		return false, nil
	}
	return err == nil, err
}

func (t *HTTPTransport) Close() error { return nil }
