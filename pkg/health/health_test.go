package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/gateflow/internal/testutil"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/metrics"
)

func testLogger() *logging.Logger {
	logger := logging.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	s, err := New(cfg)
	testutil.AssertNoError(t, err)
	return s
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var resp statusResponse
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := testutil.NewMockClock(base)
	s := newTestServer(t, Config{
		Clock: clock,
		Info:  Info{StartTime: base.Add(-90 * time.Second)},
	})

	rec := get(t, s.Handler(), "/health")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	testutil.AssertEqual(t, rec.Header().Get("Content-Type"), "application/json")

	resp := decodeStatus(t, rec)
	testutil.AssertEqual(t, resp.Status, "healthy")
	testutil.AssertEqual(t, resp.Message, "Gateway is alive")
	testutil.AssertEqual(t, resp.Uptime, "1m30s")
}

func TestReadyEndpointTogglesWithProbe(t *testing.T) {
	var ready int32
	s := newTestServer(t, Config{
		Ready: func() bool { return atomic.LoadInt32(&ready) == 1 },
	})

	rec := get(t, s.Handler(), "/ready")
	testutil.AssertEqual(t, rec.Code, http.StatusServiceUnavailable)
	testutil.AssertEqual(t, decodeStatus(t, rec).Status, "not_ready")

	atomic.StoreInt32(&ready, 1)
	rec = get(t, s.Handler(), "/ready")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	resp := decodeStatus(t, rec)
	testutil.AssertEqual(t, resp.Status, "ready")
	testutil.AssertEqual(t, resp.Message, "Gateway is ready to serve requests")
}

func TestReadyDefaultsToTrue(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := get(t, s.Handler(), "/ready")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
}

func TestMetricsEndpointServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := metrics.NewRegistry(reg)
	sink.RecordRequest("read", "dashboard", "success")

	s := newTestServer(t, Config{Gatherer: reg})

	rec := get(t, s.Handler(), "/metrics")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	if body := rec.Body.String(); !strings.Contains(body, "gateflow_gateway_requests_total") {
		t.Fatalf("expected gateway counters in metrics output, got:\n%s", body)
	}
}

func TestInfoEndpoint(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := newTestServer(t, Config{
		Info: Info{
			Name:       "vehicle-gateway",
			Version:    "1.2.0",
			InstanceID: "b5a7b0a4-2f3e-4c57-9a1d-8f6f3a2e9c11",
			StartTime:  start,
		},
	})

	rec := get(t, s.Handler(), "/info")
	testutil.AssertEqual(t, rec.Code, http.StatusOK)

	var resp infoResponse
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	testutil.AssertEqual(t, resp.Service, "vehicle-gateway")
	testutil.AssertEqual(t, resp.Version, "1.2.0")
	testutil.AssertEqual(t, resp.InstanceID, "b5a7b0a4-2f3e-4c57-9a1d-8f6f3a2e9c11")
	testutil.AssertEqual(t, resp.StartTime.Equal(start), true)
	testutil.AssertEqual(t, resp.Endpoints["metrics"], "/metrics")
}

func TestInfoDefaults(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := get(t, s.Handler(), "/info")
	var resp infoResponse
	testutil.AssertNoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	testutil.AssertEqual(t, resp.Service, DefaultServiceName)
	testutil.AssertEqual(t, resp.Version, "dev")
	testutil.AssertEqual(t, resp.StartTime.IsZero(), false)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, Config{})

	for _, path := range []string{"/health", "/ready", "/info"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		testutil.AssertEqual(t, rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestAddrBeforeStart(t *testing.T) {
	s := newTestServer(t, Config{})
	testutil.AssertEqual(t, s.Addr(), DefaultAddr)
}

func TestStartAndShutdown(t *testing.T) {
	s := newTestServer(t, Config{Addr: "127.0.0.1:0"})

	testutil.AssertNoError(t, s.Start())
	testutil.AssertNotEqual(t, s.Addr(), "127.0.0.1:0")

	testutil.AssertError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/health")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, resp.StatusCode, http.StatusOK)
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	testutil.AssertNoError(t, s.Shutdown(ctx))

	if _, err := http.Get("http://" + s.Addr() + "/health"); err == nil {
		t.Fatal("expected requests to fail after shutdown")
	}
}

func TestStartBindFailure(t *testing.T) {
	first := newTestServer(t, Config{Addr: "127.0.0.1:0"})
	testutil.AssertNoError(t, first.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = first.Shutdown(ctx)
	})

	second := newTestServer(t, Config{Addr: first.Addr()})
	testutil.AssertError(t, second.Start())
}
