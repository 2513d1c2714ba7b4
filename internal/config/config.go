// Package config loads the engine configuration: a YAML file first, then
// environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Shiki0138/hotelbooking-sub004/internal/logging"
	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

// ==================== defaults ====================

const (
	DefaultHTTPAddress = ":8080"
	DefaultNamespace   = "notify"

	DefaultGlobalPerMinute = 600
	DefaultMaxPerDay       = 50

	DefaultAdvisorTimeout = 300 * time.Millisecond
	DefaultDedupTTL       = 5 * time.Minute

	DefaultFailureThreshold = 5
	DefaultCoolDown         = 30 * time.Second
	DefaultProbeSchedule    = "@every 30s"

	DefaultMaxRetries        = 3
	DefaultRetryBackoff      = 300 * time.Millisecond
	DefaultPerChannelTimeout = 5 * time.Second

	DefaultQueueCapacity    = 10_000
	DefaultDrainInterval    = 250 * time.Millisecond
	DefaultDrainBatch       = 32
	DefaultWorkers          = 8
	DefaultBatchConcurrency = 8
	DefaultBatchSize        = 20
	DefaultBatchPause       = 100 * time.Millisecond

	DefaultMaxKeepRecords  = 1_000_000
	DefaultInboxMaxPerUser = 1000
	DefaultInboxTTL        = 90 * 24 * time.Hour
)

// ==================== duration ====================

// Duration accepts Go duration strings ("250ms", "30s") in both YAML and
// environment values.
type Duration time.Duration

// Std converts to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value at line %d", node.Line)
	}
	*d = Duration(n)
	return nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ==================== sections ====================

// RedisConfig connects the Redis-backed store, dedup, and inbox.
type RedisConfig struct {
	Addr     string `yaml:"Addr" env:"REDIS_ADDR"`
	Password string `yaml:"Password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"DB" env:"REDIS_DB"`
}

// MySQLConfig connects the history archive. Empty DSN disables it.
type MySQLConfig struct {
	DSN string `yaml:"DSN" env:"MYSQL_DSN"`
}

// NSQConfig enables per-tier topic mirroring. Empty address disables it.
// ConsumerEnabled additionally drains the tier topics into the local queue,
// for deployments where other processes publish notification requests.
type NSQConfig struct {
	NsqdAddress     string `yaml:"NsqdAddress" env:"NSQD_ADDRESS"`
	TopicPrefix     string `yaml:"TopicPrefix" env:"NSQ_TOPIC_PREFIX"`
	Channel         string `yaml:"Channel" env:"NSQ_CHANNEL"`
	ConsumerEnabled bool   `yaml:"ConsumerEnabled" env:"NSQ_CONSUMER_ENABLED"`
}

// LimitsConfig bounds admission control.
type LimitsConfig struct {
	GlobalPerMinute int `yaml:"GlobalPerMinute" env:"GLOBAL_PER_MINUTE"`
	MaxPerDay       int `yaml:"MaxPerDay" env:"MAX_PER_DAY"`
}

// BreakerConfig tunes the per-channel circuit breakers.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"FailureThreshold" env:"BREAKER_THRESHOLD"`
	CoolDown         Duration `yaml:"CoolDown" env:"BREAKER_COOLDOWN"`
	ProbeSchedule    string   `yaml:"ProbeSchedule" env:"PROBE_SCHEDULE"`
}

// RetryConfig bounds per-channel effort inside failover.
type RetryConfig struct {
	MaxRetries        int      `yaml:"MaxRetries" env:"MAX_RETRIES"`
	RetryBackoff      Duration `yaml:"RetryBackoff" env:"RETRY_BACKOFF"`
	PerChannelTimeout Duration `yaml:"PerChannelTimeout" env:"PER_CHANNEL_TIMEOUT"`
}

// QueueConfig tunes the in-memory priority queue and its workers.
type QueueConfig struct {
	CapacityPerTier int      `yaml:"CapacityPerTier" env:"QUEUE_CAPACITY"`
	DrainInterval   Duration `yaml:"DrainInterval" env:"DRAIN_INTERVAL"`
	DrainBatch      int      `yaml:"DrainBatch" env:"DRAIN_BATCH"`
	Workers         int      `yaml:"Workers" env:"QUEUE_WORKERS"`
}

// BatchConfig tunes SendBatch fan-out.
type BatchConfig struct {
	Concurrency int      `yaml:"Concurrency" env:"BATCH_CONCURRENCY"`
	Size        int      `yaml:"Size" env:"BATCH_SIZE"`
	Pause       Duration `yaml:"Pause" env:"BATCH_PAUSE"`
}

// SMSConfig configures the SMS channel's local guards and routing.
type SMSConfig struct {
	DefaultCountryCode string   `yaml:"DefaultCountryCode" env:"SMS_DEFAULT_CC"`
	GlobalPerMinute    int      `yaml:"GlobalPerMinute" env:"SMS_PER_MINUTE"`
	PerDestination     int      `yaml:"PerDestination" env:"SMS_PER_DEST"`
	PremiumCountries   []string `yaml:"PremiumCountries"`
}

// EmailConfig configures the Postmark mailer. Empty tokens select the
// loopback mailer.
type EmailConfig struct {
	From                 string `yaml:"From" env:"EMAIL_FROM"`
	PostmarkServerToken  string `yaml:"PostmarkServerToken" env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `yaml:"PostmarkAccountToken" env:"POSTMARK_ACCOUNT_TOKEN"`
}

// AdvisorConfig bounds the optimization advisor.
type AdvisorConfig struct {
	Enabled bool     `yaml:"Enabled" env:"ADVISOR_ENABLED"`
	Timeout Duration `yaml:"Timeout" env:"ADVISOR_TIMEOUT"`
}

// Config is the full engine configuration.
type Config struct {
	HTTPAddress string         `yaml:"HTTPAddress" env:"HTTP_ADDRESS"`
	Namespace   string         `yaml:"Namespace" env:"NAMESPACE"`
	Logging     logging.Config `yaml:"Logging"`

	Redis RedisConfig `yaml:"Redis"`
	MySQL MySQLConfig `yaml:"MySQL"`
	NSQ   NSQConfig   `yaml:"NSQ"`

	Limits  LimitsConfig  `yaml:"Limits"`
	Breaker BreakerConfig `yaml:"Breaker"`
	Retry   RetryConfig   `yaml:"Retry"`
	Queue   QueueConfig   `yaml:"Queue"`
	Batch   BatchConfig   `yaml:"Batch"`

	SMS     SMSConfig     `yaml:"SMS"`
	Email   EmailConfig   `yaml:"Email"`
	Advisor AdvisorConfig `yaml:"Advisor"`

	DedupTTL Duration `yaml:"DedupTTL" env:"DEDUP_TTL"`

	// PriorityThresholds maps advisor scores to tiers; business policy,
	// deliberately not hardcoded.
	PriorityThresholds notify.ScoreThresholds `yaml:"PriorityThresholds"`

	MaxKeepRecords  int64    `yaml:"MaxKeepRecords" env:"MAX_KEEP_RECORDS"`
	InboxMaxPerUser int64    `yaml:"InboxMaxPerUser" env:"INBOX_MAX_PER_USER"`
	InboxTTL        Duration `yaml:"InboxTTL" env:"INBOX_TTL"`
}

// Load reads the YAML file (optional, path may be empty), applies
// environment overrides, then defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("env overrides: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPAddress == "" {
		c.HTTPAddress = DefaultHTTPAddress
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.Limits.GlobalPerMinute <= 0 {
		c.Limits.GlobalPerMinute = DefaultGlobalPerMinute
	}
	if c.Limits.MaxPerDay <= 0 {
		c.Limits.MaxPerDay = DefaultMaxPerDay
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.Breaker.CoolDown <= 0 {
		c.Breaker.CoolDown = Duration(DefaultCoolDown)
	}
	if c.Breaker.ProbeSchedule == "" {
		c.Breaker.ProbeSchedule = DefaultProbeSchedule
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.RetryBackoff <= 0 {
		c.Retry.RetryBackoff = Duration(DefaultRetryBackoff)
	}
	if c.Retry.PerChannelTimeout <= 0 {
		c.Retry.PerChannelTimeout = Duration(DefaultPerChannelTimeout)
	}
	if c.Queue.CapacityPerTier <= 0 {
		c.Queue.CapacityPerTier = DefaultQueueCapacity
	}
	if c.Queue.DrainInterval <= 0 {
		c.Queue.DrainInterval = Duration(DefaultDrainInterval)
	}
	if c.Queue.DrainBatch <= 0 {
		c.Queue.DrainBatch = DefaultDrainBatch
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = DefaultWorkers
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = DefaultBatchConcurrency
	}
	if c.Batch.Size <= 0 {
		c.Batch.Size = DefaultBatchSize
	}
	if c.Batch.Pause <= 0 {
		c.Batch.Pause = Duration(DefaultBatchPause)
	}
	if c.Advisor.Timeout <= 0 {
		c.Advisor.Timeout = Duration(DefaultAdvisorTimeout)
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = Duration(DefaultDedupTTL)
	}
	if c.PriorityThresholds == (notify.ScoreThresholds{}) {
		c.PriorityThresholds = notify.DefaultScoreThresholds
	}
	if c.MaxKeepRecords <= 0 {
		c.MaxKeepRecords = DefaultMaxKeepRecords
	}
	if c.InboxMaxPerUser <= 0 {
		c.InboxMaxPerUser = DefaultInboxMaxPerUser
	}
	if c.InboxTTL <= 0 {
		c.InboxTTL = Duration(DefaultInboxTTL)
	}
}
