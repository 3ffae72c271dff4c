package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/linguaworlds/linguaworlds/internal/resilience"
	"github.com/linguaworlds/linguaworlds/internal/store"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) response {
	t.Helper()
	var res response
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return res
}

func TestHandler_Healthz(t *testing.T) {
	h := New(Checker{Name: "always-fails", Check: func(context.Context) error {
		return errors.New("down")
	}})

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	// Liveness ignores checkers entirely.
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if res := decode(t, rr); res.Status != "ok" {
		t.Errorf("status field = %q, want ok", res.Status)
	}
}

func TestHandler_Readyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "a", Check: func(context.Context) error { return nil }},
				{Name: "b", Check: func(context.Context) error { return nil }},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "a", Check: func(context.Context) error { return nil }},
				{Name: "b", Check: func(context.Context) error { return errors.New("boom") }},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.checkers...)
			rr := httptest.NewRecorder()
			h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if res := decode(t, rr); res.Status != tt.wantStatus {
				t.Errorf("status field = %q, want %q", res.Status, tt.wantStatus)
			}
		})
	}
}

func TestStoreCheck(t *testing.T) {
	// A fresh store has no progress record; that is still ready.
	c := StoreCheck(store.NewMemStore())
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("fresh store check = %v, want nil", err)
	}

	st := store.NewMemStore()
	if err := st.Save(store.KeyProgress, []byte(`{}`)); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	if err := StoreCheck(st).Check(context.Background()); err != nil {
		t.Errorf("seeded store check = %v, want nil", err)
	}
}

func TestBackendCheck(t *testing.T) {
	b := resilience.New(resilience.Config{Name: "backend", MaxFailures: 1})
	c := BackendCheck(b)

	if err := c.Check(context.Background()); err != nil {
		t.Errorf("closed breaker check = %v, want nil", err)
	}

	// Trip the breaker; the backend should read as unready.
	_ = b.Do(func() error { return errors.New("boom") })
	if err := c.Check(context.Background()); err == nil {
		t.Error("open breaker should fail the check")
	}
}

func TestHandler_Register(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}
