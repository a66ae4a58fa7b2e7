// Package health serves the health endpoints of a long-running batch:
//
//   - /healthz  liveness; always 200 OK.
//   - /readyz   readiness; 200 only when every registered [Checker] passes.
//   - /progress job counters of the run.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail").
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Progress is a snapshot of a batch run.
type Progress struct {
	Total   int64 `json:"total"`
	Running int64 `json:"running"`
	Done    int64 `json:"done"`
	Failed  int64 `json:"failed"`
}

// Remaining returns the number of jobs not yet finished.
func (p Progress) Remaining() int64 { return p.Total - p.Done - p.Failed }

type result struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Progress *Progress         `json:"progress,omitempty"`
}

// Handler serves the health endpoints. The checker list is fixed at
// construction and the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
	progress func() Progress
}

// New returns a handler. progress may be nil, in which case /progress
// reports zero counters.
func New(progress func() Progress, checkers ...Checker) *Handler {
	if progress == nil {
		progress = func() Progress { return Progress{} }
	}
	return &Handler{checkers: append([]Checker(nil), checkers...), progress: progress}
}

// Healthz always answers 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs all checkers concurrently, each with its own timeout.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// ProgressHandler reports the job counters.
func (h *Handler) ProgressHandler(w http.ResponseWriter, _ *http.Request) {
	p := h.progress()
	writeJSON(w, http.StatusOK, result{Status: "ok", Progress: &p})
}

// Register adds the health routes to mux, each wrapped by wrap when non-nil.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /healthz", wrap(http.HandlerFunc(h.Healthz)))
	mux.Handle("GET /readyz", wrap(http.HandlerFunc(h.Readyz)))
	mux.Handle("GET /progress", wrap(http.HandlerFunc(h.ProgressHandler)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
