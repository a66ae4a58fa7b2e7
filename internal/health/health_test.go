package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New(nil).Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	pass := func(context.Context) error { return nil }
	fail := func(msg string) func(context.Context) error {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{"no checkers", nil, http.StatusOK, nil},
		{"all pass", []Checker{{"detector", pass}, {"manifest", pass}}, http.StatusOK,
			map[string]string{"detector": "ok", "manifest": "ok"}},
		{"one fails", []Checker{{"detector", fail("not built")}, {"manifest", pass}}, http.StatusServiceUnavailable,
			map[string]string{"detector": "fail: not built", "manifest": "ok"}},
		{"all fail", []Checker{{"detector", fail("a")}, {"manifest", fail("b")}}, http.StatusServiceUnavailable,
			map[string]string{"detector": "fail: a", "manifest": "fail: b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(nil, tt.checkers...).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decode(t, rec)
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(nil, Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestProgress(t *testing.T) {
	t.Parallel()
	p := Progress{Total: 10, Running: 2, Done: 5, Failed: 1}
	if got := p.Remaining(); got != 4 {
		t.Errorf("Remaining() = %d, want 4", got)
	}

	rec := httptest.NewRecorder()
	New(func() Progress { return p }).ProgressHandler(rec, httptest.NewRequest("GET", "/progress", nil))
	body := decode(t, rec)
	if body.Progress == nil || *body.Progress != p {
		t.Errorf("progress = %+v, want %+v", body.Progress, p)
	}

	rec = httptest.NewRecorder()
	New(nil).ProgressHandler(rec, httptest.NewRequest("GET", "/progress", nil))
	if body := decode(t, rec); body.Progress == nil || *body.Progress != (Progress{}) {
		t.Errorf("nil progress func should report zeros, got %+v", body.Progress)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	var wrapped atomic.Int32
	wrap := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped.Add(1)
			next.ServeHTTP(w, r)
		})
	}

	mux := http.NewServeMux()
	New(nil, Checker{Name: "test", Check: func(context.Context) error { return nil }}).Register(mux, wrap)

	paths := []string{"/healthz", "/readyz", "/progress"}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
	if got := wrapped.Load(); got != int32(len(paths)) {
		t.Errorf("middleware ran %d times, want %d", got, len(paths))
	}
}
