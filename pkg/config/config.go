// Package config loads gateway configuration from TOML files.
//
// A configuration file declares the gateway identity, the bus adapter,
// per-agent topic grants, rate limiting, adaptive control, polling and
// dispatch tuning, the monitoring surface, and the topic type table:
//
//	[gateway]
//	name = "vehicle-gateway"
//
//	[bus]
//	kind = "memory"
//
//	[security.agents.dashboard]
//	read = ["vehicle/speed"]
//
//	[topics."vehicle/speed"]
//	type = "VehicleSpeed"
//
// Load applies defaults to absent keys and validates the result. Every
// failure is a ValidationError and is meant to be fatal at startup.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/common/validation"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/permission"
)

// Bus adapter kinds accepted by the [bus] kind key.
const (
	BusMemory = "memory"
	BusRedis  = "redis"
	BusGossip = "gossip"
)

// Defaults applied by Load to keys absent from the file. A key set to an
// explicit zero keeps that zero and fails validation where zero is invalid.
const (
	DefaultRequestsPerMinute float64 = 1000
	DefaultBurstSize         float64 = 100
	DefaultPerAgentLimit     float64 = 500

	DefaultLoadThreshold   = 0.8
	DefaultDampingFactor   = 0.9
	DefaultRestoreFactor   = 1.1
	DefaultMinRate         = 1.0
	DefaultCheckIntervalMs = 1000

	DefaultMaxSamplesPerRead = 100
	DefaultPollIntervalMs    = 100
	DefaultCallbackWorkers   = 4
	DefaultCallbackQueue     = 64

	DefaultMonitoringAddr = ":9090"
	DefaultLogLevel       = "info"
)

// Config is the complete gateway configuration.
type Config struct {
	Gateway      GatewayConfig             `toml:"gateway"`
	Bus          BusConfig                 `toml:"bus"`
	Security     SecurityConfig            `toml:"security"`
	RateLimiting RateLimitConfig           `toml:"rate_limiting"`
	Adaptive     AdaptiveConfig            `toml:"adaptive"`
	Performance  PerformanceConfig         `toml:"performance"`
	Monitoring   MonitoringConfig          `toml:"monitoring"`
	Topics       map[string]TypeDefinition `toml:"topics"`
}

// GatewayConfig identifies the gateway instance.
type GatewayConfig struct {
	Name     string `toml:"name"`
	DomainID int    `toml:"domain_id"`
}

// BusConfig selects and configures the transport adapter.
type BusConfig struct {
	Kind   string       `toml:"kind"`
	Redis  RedisConfig  `toml:"redis"`
	Gossip GossipConfig `toml:"gossip"`
}

// RedisConfig configures the redis bus adapter.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// GossipConfig configures the libp2p gossip bus adapter.
type GossipConfig struct {
	ListenAddrs    []string `toml:"listen_addrs"`
	BootstrapPeers []string `toml:"bootstrap_peers"`
}

// SecurityConfig holds the per-agent topic grants.
type SecurityConfig struct {
	Agents map[string]AgentGrants `toml:"agents"`
}

// AgentGrants lists the topics one agent may read and write.
type AgentGrants struct {
	Read  []string `toml:"read"`
	Write []string `toml:"write"`
}

// RateLimitConfig configures the tiered limiter.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	BurstSize         float64 `toml:"burst_size"`
	PerAgentLimit     float64 `toml:"per_agent_limit"`
}

// AdaptiveConfig configures the load-reactive rate controller.
type AdaptiveConfig struct {
	Enabled         bool    `toml:"enabled"`
	LoadThreshold   float64 `toml:"load_threshold"`
	DampingFactor   float64 `toml:"damping_factor"`
	RestoreFactor   float64 `toml:"restore_factor"`
	MinRate         float64 `toml:"min_rate"`
	CheckIntervalMs int     `toml:"check_interval_ms"`
}

// CheckInterval returns the load sampling interval as a duration.
func (a AdaptiveConfig) CheckInterval() time.Duration {
	return time.Duration(a.CheckIntervalMs) * time.Millisecond
}

// PerformanceConfig tunes subscription polling and callback dispatch.
type PerformanceConfig struct {
	MaxSamplesPerRead int `toml:"max_samples_per_read"`
	PollIntervalMs    int `toml:"poll_interval_ms"`
	CallbackWorkers   int `toml:"callback_workers"`
	CallbackQueue     int `toml:"callback_queue"`
}

// PollInterval returns the subscription poll interval as a duration.
func (p PerformanceConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}

// MonitoringConfig configures the operational HTTP server and logging.
type MonitoringConfig struct {
	Enabled          bool   `toml:"enabled"`
	Addr             string `toml:"addr"`
	StatsLogSchedule string `toml:"stats_log_schedule"`
	LogLevel         string `toml:"log_level"`
}

// Level returns the parsed log level. The value is valid after a
// successful Load; an unparsed level falls back to info.
func (m MonitoringConfig) Level() logging.Level {
	level, err := logging.ParseLevel(m.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// TypeDefinition describes the payload type carried by a topic. Fields
// maps field names to their declared types and backs topic introspection.
type TypeDefinition struct {
	Type   string            `toml:"type"`
	Fields map[string]string `toml:"fields"`
}

// Load reads, defaults, and validates a gateway configuration file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, gferrors.NewValidationError("config", "path", path, err.Error()).
			WithHint("check that the configuration file exists and is readable")
	}
	return Parse(string(content))
}

// Parse decodes, defaults, and validates TOML configuration content.
// Unknown keys are rejected so that a misspelled key fails loudly
// instead of silently falling back to a default.
func Parse(content string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(content, &cfg)
	if err != nil {
		return nil, gferrors.NewValidationError("config", "file", "toml", err.Error())
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, gferrors.NewValidationError("config", "file", undecoded[0].String(), "unknown key").
			WithHint("remove the key or fix the spelling")
	}

	cfg.applyDefaults(md)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Grants converts the security section into the permission guard's input.
func (c *Config) Grants() map[string]permission.TopicGrants {
	grants := make(map[string]permission.TopicGrants, len(c.Security.Agents))
	for name, g := range c.Security.Agents {
		grants[name] = permission.TopicGrants{Read: g.Read, Write: g.Write}
	}
	return grants
}

// applyDefaults fills keys the file leaves unset. MetaData distinguishes
// an absent key from an explicit zero.
func (c *Config) applyDefaults(md toml.MetaData) {
	if !md.IsDefined("bus", "kind") {
		c.Bus.Kind = BusMemory
	}

	if !md.IsDefined("rate_limiting", "enabled") {
		c.RateLimiting.Enabled = true
	}
	if !md.IsDefined("rate_limiting", "requests_per_minute") {
		c.RateLimiting.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if !md.IsDefined("rate_limiting", "burst_size") {
		c.RateLimiting.BurstSize = DefaultBurstSize
	}
	if !md.IsDefined("rate_limiting", "per_agent_limit") {
		c.RateLimiting.PerAgentLimit = DefaultPerAgentLimit
	}

	if !md.IsDefined("adaptive", "load_threshold") {
		c.Adaptive.LoadThreshold = DefaultLoadThreshold
	}
	if !md.IsDefined("adaptive", "damping_factor") {
		c.Adaptive.DampingFactor = DefaultDampingFactor
	}
	if !md.IsDefined("adaptive", "restore_factor") {
		c.Adaptive.RestoreFactor = DefaultRestoreFactor
	}
	if !md.IsDefined("adaptive", "min_rate") {
		c.Adaptive.MinRate = DefaultMinRate
	}
	if !md.IsDefined("adaptive", "check_interval_ms") {
		c.Adaptive.CheckIntervalMs = DefaultCheckIntervalMs
	}

	if !md.IsDefined("performance", "max_samples_per_read") {
		c.Performance.MaxSamplesPerRead = DefaultMaxSamplesPerRead
	}
	if !md.IsDefined("performance", "poll_interval_ms") {
		c.Performance.PollIntervalMs = DefaultPollIntervalMs
	}
	if !md.IsDefined("performance", "callback_workers") {
		c.Performance.CallbackWorkers = DefaultCallbackWorkers
	}
	if !md.IsDefined("performance", "callback_queue") {
		c.Performance.CallbackQueue = DefaultCallbackQueue
	}

	if !md.IsDefined("monitoring", "enabled") {
		c.Monitoring.Enabled = true
	}
	if !md.IsDefined("monitoring", "addr") {
		c.Monitoring.Addr = DefaultMonitoringAddr
	}
	if !md.IsDefined("monitoring", "log_level") {
		c.Monitoring.LogLevel = DefaultLogLevel
	}
}

// validate enforces the startup rules. The first violation is returned.
func (c *Config) validate() error {
	if err := validation.ValidateNotEmpty("config", "gateway.name", c.Gateway.Name); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "gateway.domain_id", float64(c.Gateway.DomainID)); err != nil {
		return err
	}

	switch c.Bus.Kind {
	case BusMemory, BusGossip:
	case BusRedis:
		if err := validation.ValidateNotEmpty("config", "bus.redis.addr", c.Bus.Redis.Addr); err != nil {
			return err
		}
	default:
		return gferrors.NewValidationError("config", "bus.kind", c.Bus.Kind, "unknown bus kind").
			WithHint("use one of memory, redis, gossip")
	}

	if len(c.Security.Agents) == 0 {
		return gferrors.NewValidationError("config", "security.agents", nil, "no agents configured").
			WithHint("declare at least one [security.agents.<name>] section")
	}

	if c.RateLimiting.Enabled {
		if err := validation.ValidatePositiveFloat("config", "rate_limiting.requests_per_minute", c.RateLimiting.RequestsPerMinute); err != nil {
			return err
		}
		if err := validation.ValidatePositiveFloat("config", "rate_limiting.burst_size", c.RateLimiting.BurstSize); err != nil {
			return err
		}
		if err := validation.ValidatePositiveFloat("config", "rate_limiting.per_agent_limit", c.RateLimiting.PerAgentLimit); err != nil {
			return err
		}
	}

	if c.Adaptive.Enabled {
		if !c.RateLimiting.Enabled {
			return gferrors.NewValidationError("config", "adaptive.enabled", true, "adaptive control requires rate limiting").
				WithHint("set rate_limiting.enabled = true or disable the adaptive section")
		}
		if err := validation.ValidateFraction("config", "adaptive.load_threshold", c.Adaptive.LoadThreshold); err != nil {
			return err
		}
		if c.Adaptive.DampingFactor <= 0 || c.Adaptive.DampingFactor >= 1 {
			return gferrors.NewValidationError("config", "adaptive.damping_factor", c.Adaptive.DampingFactor, "must be in (0, 1)").
				WithHint("use a factor such as 0.9")
		}
		if c.Adaptive.RestoreFactor <= 1 {
			return gferrors.NewValidationError("config", "adaptive.restore_factor", c.Adaptive.RestoreFactor, "must be greater than 1").
				WithHint("use a factor such as 1.1")
		}
		if err := validation.ValidatePositiveFloat("config", "adaptive.min_rate", c.Adaptive.MinRate); err != nil {
			return err
		}
		if err := validation.ValidatePositive("config", "adaptive.check_interval_ms", c.Adaptive.CheckIntervalMs); err != nil {
			return err
		}
	}

	if err := validation.ValidatePositive("config", "performance.max_samples_per_read", c.Performance.MaxSamplesPerRead); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "performance.poll_interval_ms", c.Performance.PollIntervalMs); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "performance.callback_workers", c.Performance.CallbackWorkers); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "performance.callback_queue", c.Performance.CallbackQueue); err != nil {
		return err
	}

	if c.Monitoring.Enabled {
		if err := validation.ValidateNotEmpty("config", "monitoring.addr", c.Monitoring.Addr); err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Monitoring.LogLevel); err != nil {
		return gferrors.NewValidationError("config", "monitoring.log_level", c.Monitoring.LogLevel, "unknown level").
			WithHint("use one of debug, info, warn, error")
	}

	return c.validateTopics()
}

// validateTopics cross-checks the security section against the topic
// table. A grant for a topic with no type definition is a configuration
// mistake, caught at startup rather than at first use.
func (c *Config) validateTopics() error {
	agents := make([]string, 0, len(c.Security.Agents))
	for name := range c.Security.Agents {
		agents = append(agents, name)
	}
	sort.Strings(agents)

	for _, name := range agents {
		if name == "" {
			return gferrors.NewValidationError("config", "security.agents", name, "agent name cannot be empty")
		}
		grants := c.Security.Agents[name]
		for _, topic := range append(append([]string(nil), grants.Read...), grants.Write...) {
			if topic == "" {
				continue
			}
			if _, ok := c.Topics[topic]; !ok {
				return gferrors.NewValidationError("config", "security.agents."+name, topic, "granted topic has no type definition").
					WithHint(fmt.Sprintf("add a [topics.%q] section", topic))
			}
		}
	}

	topics := make([]string, 0, len(c.Topics))
	for topic := range c.Topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	for _, topic := range topics {
		if c.Topics[topic].Type == "" {
			return gferrors.NewValidationError("config", "topics."+topic, "", "missing type name").
				WithHint(`set type = "<TypeName>"`)
		}
	}

	return nil
}
