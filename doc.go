/*
Package gateflow provides a permission-guarded, rate-limited gateway in
front of a pub/sub sample bus, for fleets of agents that read and write
shared topics.

Gateway (pkg/gateway):
  - Authorizes every operation against per-agent topic grants
  - Admits data-plane traffic through a global plus per-agent limiter
  - Tracks subscriptions with polling callback delivery

Bus (pkg/bus):
  - memory: In-process delivery for tests and single-binary deployments
  - redis: Pub/sub over a Redis server
  - gossip: libp2p GossipSub mesh between processes

Supporting packages:
  - pkg/permission: Static read/write allowlists per agent
  - pkg/ratelimit: Token bucket, sliding window, and tiered limiters
  - pkg/scheduling: Worker pool and cron-capable scheduler
  - pkg/config: TOML configuration for the whole gateway
  - pkg/metrics: Prometheus counters behind a narrow Sink interface
  - pkg/health: HTTP liveness, readiness, and metrics endpoints

Example usage:

	import (
		"github.com/vnykmshr/gateflow/pkg/bus"
		"github.com/vnykmshr/gateflow/pkg/gateway"
		"github.com/vnykmshr/gateflow/pkg/permission"
	)

	guard, _ := permission.New(map[string]permission.TopicGrants{
		"sensor":    {Write: []string{"vehicle/speed"}},
		"dashboard": {Read: []string{"vehicle/speed"}},
	})
	gw, _ := gateway.New(gateway.Config{Bus: bus.NewMemory(), Guard: guard})

	gw.Subscribe("dashboard", "vehicle/speed")
	gw.Write(ctx, "sensor", "vehicle/speed", map[string]float64{"mps": 4.2})
	res := gw.Read(ctx, "dashboard", "vehicle/speed", 10)
*/
package gateflow
