package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPMiddleware(t *testing.T) {
	reg := NewRegistry()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	wrapped := HTTPMiddleware(reg)(handler)

	req := httptest.NewRequest("GET", "/api/backtests", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if _, found := gatherValue(t, reg, "http_requests_total"); !found {
		t.Error("expected http_requests_total to be recorded")
	}
}

func TestRoutePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/health", "/health"},
		{"/api/strategies", "/api/strategies"},
		{"/api/backtests", "/api/backtests"},
		{"/api/backtests/", "/api/backtests/"},
		{"/api/backtests/bt_17_3", "/api/backtests/{id}"},
		{"/api/backtests/bt_17_3/results", "/api/backtests/{id}/results"},
		{"/api/backtests/bt_17_3/cancel", "/api/backtests/{id}/cancel"},
	}
	for _, c := range cases {
		if got := routePath(c.in); got != c.want {
			t.Errorf("routePath(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHTTPMiddleware_TracksInFlight(t *testing.T) {
	reg := NewRegistry()

	inFlightDuringRequest := float64(-1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlightDuringRequest, _ = gatherValue(t, reg, "http_requests_in_flight")
		w.WriteHeader(http.StatusOK)
	})

	wrapped := HTTPMiddleware(reg)(handler)
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

	if inFlightDuringRequest != 1 {
		t.Errorf("in-flight during request = %v, want 1", inFlightDuringRequest)
	}
	if after, _ := gatherValue(t, reg, "http_requests_in_flight"); after != 0 {
		t.Errorf("in-flight after request = %v, want 0", after)
	}
}

func TestHTTPMiddleware_CapturesStatusCode(t *testing.T) {
	reg := NewRegistry()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	wrapped := HTTPMiddleware(reg)(handler)
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))

	mfs, _ := reg.Gather()
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == "4xx" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected a 4xx status label")
	}
}
