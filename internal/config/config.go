// Package config defines service configuration and its conversion into the
// explicit configs taken by the domain packages.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/robsheahan/tipping-aggregator-web/internal/domain/consensus"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/polling"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/scoring"
	"github.com/robsheahan/tipping-aggregator-web/internal/domain/weighting"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogJSON switches to the JSON log handler.
	LogJSON bool `koanf:"log_json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// CORSAllowedOrigins is a comma separated origin list; empty disables CORS.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	// QueueSize bounds the in-memory snapshot queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of snapshot workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many snapshot IDs are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	StoreDriver string `koanf:"store_driver"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisAddr enables the Redis consensus cache when set.
	RedisAddr                string `koanf:"redis_addr"`
	RedisPassword            string `koanf:"redis_password"`
	RedisDB                  int    `koanf:"redis_db"`
	ConsensusCacheTTLSeconds int    `koanf:"consensus_cache_ttl_seconds"`

	// KafkaBrokers is a comma separated broker list; empty disables Kafka.
	KafkaBrokers        string `koanf:"kafka_brokers"`
	KafkaSnapshotTopic  string `koanf:"kafka_snapshot_topic"`
	KafkaConsensusTopic string `koanf:"kafka_consensus_topic"`
	KafkaPollTopic      string `koanf:"kafka_poll_topic"`
	KafkaGroupID        string `koanf:"kafka_group_id"`

	SnapshotFreshnessMinutes int `koanf:"snapshot_freshness_minutes"`

	MinSamplesForWeight int     `koanf:"min_samples_for_weight"`
	WeightFloor         float64 `koanf:"weight_floor"`
	WeightCeiling       float64 `koanf:"weight_ceiling"`
	WeightingMethod     string  `koanf:"weighting_method"`
	WeightingMetric     string  `koanf:"weighting_metric"`
	SoftmaxTemperature  float64 `koanf:"softmax_temperature"`

	PerformanceWindowDays int     `koanf:"performance_window_days"`
	TimeDecayHalflifeDays float64 `koanf:"time_decay_halflife_days"`
	PerformanceGraceHours int     `koanf:"performance_grace_hours"`

	// Polling intervals are in seconds, thresholds in minutes.
	PollingDefaultInterval      int `koanf:"polling_default_interval"`
	PollingNearInterval         int `koanf:"polling_near_interval"`
	PollingFinalInterval        int `koanf:"polling_final_interval"`
	PollingNearKickoffThreshold int `koanf:"polling_near_kickoff_threshold"`
	PollingFinalThreshold       int `koanf:"polling_final_threshold"`
	PollingHorizonHours         int `koanf:"polling_horizon_hours"`

	PollTickSeconds             int `koanf:"poll_tick_seconds"`
	PerformanceRecomputeMinutes int `koanf:"performance_recompute_minutes"`
	WeightsRecomputeMinutes     int `koanf:"weights_recompute_minutes"`
	RecomputeParallelism        int `koanf:"recompute_parallelism"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		Addr:        ":9080",
		QueueSize:   10_000,
		WorkerCount: runtime.NumCPU() * 2,
		DedupeSize:  50_000,
		StoreDriver: StoreMemory,

		ConsensusCacheTTLSeconds: 60,

		KafkaSnapshotTopic:  "odds.snapshots",
		KafkaConsensusTopic: "consensus.updates",
		KafkaPollTopic:      "odds.poll-requests",
		KafkaGroupID:        "tipping-aggregator",

		SnapshotFreshnessMinutes: 30,

		MinSamplesForWeight: 10,
		WeightFloor:         0.05,
		WeightCeiling:       0.50,
		WeightingMethod:     string(weighting.MethodSoftmax),
		WeightingMetric:     string(weighting.MetricBrier),
		SoftmaxTemperature:  1.0,

		PerformanceWindowDays: 90,
		TimeDecayHalflifeDays: 30,
		PerformanceGraceHours: 12,

		PollingDefaultInterval:      900,
		PollingNearInterval:         300,
		PollingFinalInterval:        60,
		PollingNearKickoffThreshold: 120,
		PollingFinalThreshold:       30,
		PollingHorizonHours:         48,

		PollTickSeconds:             60,
		PerformanceRecomputeMinutes: 60,
		WeightsRecomputeMinutes:     60,
		RecomputeParallelism:        4,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive", ErrInvalidConfig)
	case c.StoreDriver != StoreMemory && c.StoreDriver != StorePostgres:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == StorePostgres && c.PostgresDSN == "":
		return fmt.Errorf("%w: postgres_dsn is required for the postgres store", ErrInvalidConfig)
	case c.SnapshotFreshnessMinutes <= 0:
		return fmt.Errorf("%w: snapshot_freshness_minutes must be positive", ErrInvalidConfig)
	case c.MinSamplesForWeight < 0:
		return fmt.Errorf("%w: min_samples_for_weight must not be negative", ErrInvalidConfig)
	case c.WeightFloor < 0 || c.WeightCeiling > 1 || c.WeightFloor > c.WeightCeiling:
		return fmt.Errorf("%w: weight band [%v, %v] is invalid", ErrInvalidConfig, c.WeightFloor, c.WeightCeiling)
	case c.SoftmaxTemperature <= 0:
		return fmt.Errorf("%w: softmax_temperature must be positive", ErrInvalidConfig)
	case c.PerformanceWindowDays <= 0 || c.TimeDecayHalflifeDays <= 0:
		return fmt.Errorf("%w: performance window and halflife must be positive", ErrInvalidConfig)
	case c.PollingFinalThreshold > c.PollingNearKickoffThreshold:
		return fmt.Errorf("%w: polling_final_threshold exceeds polling_near_kickoff_threshold", ErrInvalidConfig)
	case c.PollingDefaultInterval <= 0 || c.PollingNearInterval <= 0 || c.PollingFinalInterval <= 0:
		return fmt.Errorf("%w: polling intervals must be positive", ErrInvalidConfig)
	}

	switch weighting.Method(c.WeightingMethod) {
	case weighting.MethodSoftmax, weighting.MethodInverse:
	default:
		return fmt.Errorf("%w: unknown weighting_method %q", ErrInvalidConfig, c.WeightingMethod)
	}
	switch weighting.Metric(c.WeightingMetric) {
	case weighting.MetricBrier, weighting.MetricLogLoss:
	default:
		return fmt.Errorf("%w: unknown weighting_metric %q", ErrInvalidConfig, c.WeightingMetric)
	}
	return nil
}

// Brokers splits KafkaBrokers into addresses.
func (c *Config) Brokers() []string { return splitList(c.KafkaBrokers) }

// CORSOrigins splits CORSAllowedOrigins.
func (c *Config) CORSOrigins() []string { return splitList(c.CORSAllowedOrigins) }

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CacheTTL is the consensus cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.ConsensusCacheTTLSeconds) * time.Second
}

func (c *Config) Consensus() consensus.Config {
	return consensus.Config{FreshnessWindow: time.Duration(c.SnapshotFreshnessMinutes) * time.Minute}
}

func (c *Config) Scoring() scoring.Config {
	return scoring.Config{
		WindowDays:   c.PerformanceWindowDays,
		HalflifeDays: c.TimeDecayHalflifeDays,
		Grace:        time.Duration(c.PerformanceGraceHours) * time.Hour,
	}
}

func (c *Config) Weighting() weighting.Config {
	return weighting.Config{
		Method:      weighting.Method(c.WeightingMethod),
		Metric:      weighting.Metric(c.WeightingMetric),
		Temperature: c.SoftmaxTemperature,
		Constraints: weighting.Constraints{
			MinSamples: c.MinSamplesForWeight,
			Floor:      c.WeightFloor,
			Ceiling:    c.WeightCeiling,
		},
	}
}

func (c *Config) Polling() polling.Policy {
	return polling.Policy{
		DefaultInterval: time.Duration(c.PollingDefaultInterval) * time.Second,
		NearInterval:    time.Duration(c.PollingNearInterval) * time.Second,
		FinalInterval:   time.Duration(c.PollingFinalInterval) * time.Second,
		NearThreshold:   time.Duration(c.PollingNearKickoffThreshold) * time.Minute,
		FinalThreshold:  time.Duration(c.PollingFinalThreshold) * time.Minute,
		Horizon:         time.Duration(c.PollingHorizonHours) * time.Hour,
	}
}
