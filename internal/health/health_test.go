package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nivara-ai/glasswing/internal/archive"
)

func doRequest(t *testing.T, h *Handler, path string) (*http.Response, result) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var res result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return resp, res
}

func TestHealthzAlwaysOK(t *testing.T) {
	h := New(Checker{Name: "broken", Check: func(context.Context) error {
		return errors.New("down")
	}})

	resp, res := doRequest(t, h, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if res.Status != "ok" {
		t.Errorf("body status = %q, want ok", res.Status)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	h := New(
		ArchiveChecker(archive.NewMemoryStore()),
		ProviderChecker("stt", "some-key"),
	)

	resp, res := doRequest(t, h, "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if res.Checks["archive"] != "ok" || res.Checks["stt"] != "ok" {
		t.Errorf("checks = %v, want all ok", res.Checks)
	}
}

func TestReadyzFailingChecker(t *testing.T) {
	h := New(
		ProviderChecker("stt", "some-key"),
		ProviderChecker("llm", ""),
	)

	resp, res := doRequest(t, h, "/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if res.Status != "fail" {
		t.Errorf("body status = %q, want fail", res.Status)
	}
	if res.Checks["stt"] != "ok" {
		t.Errorf("stt check = %q, want ok", res.Checks["stt"])
	}
	if res.Checks["llm"] == "ok" {
		t.Error("llm check passed with empty key")
	}
}
