package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherFamily returns the named metric family from the registry, or nil.
func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func counterValue(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func TestRegistryRecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordRequest("read", "monitoring_agent", "success")
	r.RecordRequest("read", "monitoring_agent", "success")
	r.RecordRequest("write", "control_agent", "denied")

	mf := gatherFamily(t, reg, "gateflow_gateway_requests_total")
	if mf == nil {
		t.Fatal("requests_total family not registered")
	}
	if got := counterValue(mf); got != 3 {
		t.Errorf("requests_total = %v, want 3", got)
	}
	if got := len(mf.GetMetric()); got != 2 {
		t.Errorf("label combinations = %d, want 2", got)
	}
}

func TestRegistrySampleAndSubscriptionFlows(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordSamples("SensorData", "read", 25)
	r.RecordSamples("SensorData", "write", 1)
	r.RecordSamples("SensorData", "read", 0) // no-op

	mf := gatherFamily(t, reg, "gateflow_bus_samples_total")
	if mf == nil {
		t.Fatal("samples_total family not registered")
	}
	if got := counterValue(mf); got != 26 {
		t.Errorf("samples_total = %v, want 26", got)
	}

	r.SubscriptionOpened("SensorData", "monitoring_agent")
	r.SubscriptionOpened("SensorData", "query_agent")
	r.SubscriptionClosed("SensorData")

	active := gatherFamily(t, reg, "gateflow_subscription_active")
	if active == nil {
		t.Fatal("subscription active family not registered")
	}
	if got := active.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("active subscriptions = %v, want 1", got)
	}

	opened := gatherFamily(t, reg, "gateflow_subscription_opened_total")
	if got := counterValue(opened); got != 2 {
		t.Errorf("opened_total = %v, want 2", got)
	}
}

func TestRegistryRateLimitAndErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.RecordRateLimitExceeded("control_agent", "agent")
	r.RecordRateLimitExceeded("control_agent", "global")
	r.RecordPermissionDenied("query_agent", "CommandTopic", "write")
	r.RecordError("read", "bus_error")

	if mf := gatherFamily(t, reg, "gateflow_ratelimit_exceeded_total"); counterValue(mf) != 2 {
		t.Error("exceeded_total should count both scopes")
	}
	if mf := gatherFamily(t, reg, "gateflow_gateway_permission_denied_total"); counterValue(mf) != 1 {
		t.Error("permission_denied_total should count the denial")
	}
	if mf := gatherFamily(t, reg, "gateflow_gateway_errors_total"); counterValue(mf) != 1 {
		t.Error("errors_total should count the bus error")
	}
}

func TestRegistryGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.SetActiveAgents(3)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.SetStartTime(start)

	agents := gatherFamily(t, reg, "gateflow_gateway_active_agents")
	if got := agents.GetMetric()[0].GetGauge().GetValue(); got != 3 {
		t.Errorf("active_agents = %v, want 3", got)
	}

	st := gatherFamily(t, reg, "gateflow_gateway_start_time_seconds")
	if got := st.GetMetric()[0].GetGauge().GetValue(); got != float64(start.Unix()) {
		t.Errorf("start_time_seconds = %v, want %v", got, start.Unix())
	}
}

func TestRegistryObserveDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.ObserveRequestDuration("read", 5*time.Millisecond)
	r.ObserveRequestDuration("read", 15*time.Millisecond)

	mf := gatherFamily(t, reg, "gateflow_gateway_request_duration_seconds")
	if mf == nil {
		t.Fatal("duration family not registered")
	}
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample count = %d, want 2", h.GetSampleCount())
	}
}

func TestNopSinkIsSafe(t *testing.T) {
	var sink Sink = NopSink{}
	sink.RecordRequest("read", "a", "success")
	sink.ObserveRequestDuration("read", time.Millisecond)
	sink.RecordSamples("t", "read", 1)
	sink.RecordRateLimitExceeded("a", "global")
	sink.RecordPermissionDenied("a", "t", "read")
	sink.RecordError("read", "bus_error")
	sink.SubscriptionOpened("t", "a")
	sink.SubscriptionClosed("t")
	sink.SetActiveAgents(1)
}
