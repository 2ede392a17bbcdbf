// Package metrics provides Prometheus instrumentation for gateflow components.
//
// The package has two faces. The Sink interface is what gateway components
// record through; it keeps the core decoupled from Prometheus and lets tests
// substitute trivial fakes. The Registry is the Prometheus-backed Sink used
// in production, registering every family with a configurable registerer.
//
// # Quick Start
//
// Wire the default registry into a gateway and expose it over HTTP:
//
//	gw, err := gateway.New(gateway.Config{
//		// ...
//		Sink: metrics.DefaultRegistry,
//	})
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":9090", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation (tests, several gateways in
// one process):
//
//	reg := prometheus.NewRegistry()
//	sink := metrics.NewRegistry(reg)
//
// # Available Metrics
//
// ## Gateway Operations
//
//   - gateflow_gateway_requests_total{operation,agent,status}
//   - gateflow_gateway_request_duration_seconds{operation}
//   - gateflow_gateway_errors_total{operation,error_type}
//   - gateflow_gateway_permission_denied_total{agent,topic,operation}
//   - gateflow_gateway_active_agents
//   - gateflow_gateway_start_time_seconds
//
// ## Bus Traffic
//
//   - gateflow_bus_samples_total{topic,direction}
//
// ## Subscriptions
//
//   - gateflow_subscription_active{topic}
//   - gateflow_subscription_opened_total{topic,agent}
//
// ## Rate Limiting
//
//   - gateflow_ratelimit_exceeded_total{agent,scope}
//   - gateflow_ratelimit_requests_total{limiter_type,limiter_name}
//   - gateflow_ratelimit_allowed_total{limiter_type,limiter_name}
//   - gateflow_ratelimit_denied_total{limiter_type,limiter_name}
//   - gateflow_ratelimit_tokens_available{limiter_type,limiter_name}
//
// The status label on requests_total takes one of "success", "denied",
// "rate_limited", or "error". The scope label on exceeded_total is "global"
// or "agent". The direction label on samples_total is "read" or "write".
//
// # Performance
//
// Recording is lock-free counter arithmetic; there are no background
// goroutines or timers. Components accept any Sink, so deployments that do
// not scrape can pass NopSink and pay nothing.
package metrics
