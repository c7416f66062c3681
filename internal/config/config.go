package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Execution ExecutionConfig `yaml:"execution"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID       string        `yaml:"instance_id"`
	SnapshotKey      string        `yaml:"snapshot_key"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"` // 0 -> warm start disabled
	SnapshotTTL      time.Duration `yaml:"snapshot_ttl"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled            bool       `yaml:"enabled"`
	ByJWT              RateBucket `yaml:"by_jwt"`
	ByIP               RateBucket `yaml:"by_ip"`
	TrustedProxiesList []string   `yaml:"trusted_proxies"` // IPs or CIDRs allowed to set X-Forwarded-For
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Ingestion sources, each one is optional
type IngestConfig struct {
	Scheme string      `yaml:"scheme"`  // address|symbol, vertex identity
	IDMode string      `yaml:"id_mode"` // stable|snapshot
	REST   RESTConfig  `yaml:"rest"`
	Feed   FeedConfig  `yaml:"feed"`
	Kafka  KafkaConfig `yaml:"kafka"`
	Shards int         `yaml:"shards"`
	Stale  StaleConfig `yaml:"stale"`
}

type RESTConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	ChainID      uint32        `yaml:"chain_id"`
	Timeout      time.Duration `yaml:"timeout"`
	RequestsPerS float64       `yaml:"requests_per_sec"`
}

type FeedConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ChainID        uint32        `yaml:"chain_id"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	ReconnectMin   time.Duration `yaml:"reconnect_min"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	ReadLimitBytes int64         `yaml:"read_limit_bytes"`
}

type KafkaConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BrokerType     string        `yaml:"broker_type"` // redpanda|kafka
	Brokers        []string      `yaml:"brokers"`
	Topic          string        `yaml:"topic"`
	ChainID        uint32        `yaml:"chain_id"`
	GroupID        string        `yaml:"group_id"`
	Start          string        `yaml:"start"` // oldest|newest
	SessionTimeout time.Duration `yaml:"session_timeout"`
	TLS            TLSConfig     `yaml:"tls"`
}

type StaleConfig struct {
	MaxAge time.Duration `yaml:"max_age"` // 0 -> every quote is fresh
}

type ScannerConfig struct {
	Mode           string        `yaml:"mode"` // full_refresh|merge|on_demand
	Interval       time.Duration `yaml:"interval"`
	Threshold      float64       `yaml:"threshold"`
	MaxRelaxations int           `yaml:"max_relaxations"`
	SweepTimeout   time.Duration `yaml:"sweep_timeout"`
	BaseCurrencies []string      `yaml:"base_currencies"`
}

type ExecutionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SimulateURL    string        `yaml:"simulate_url"`
	ExecuteURL     string        `yaml:"execute_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	StartVolume    float64       `yaml:"start_volume"`
	Currency       string        `yaml:"currency"`
	JournalPath    string        `yaml:"journal_path"`
}

type BloomConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Key      string  `yaml:"key"`
	Capacity int64   `yaml:"capacity"`
	ErrRate  float64 `yaml:"err_rate"`
}

type DedupeConfig struct {
	Backend      string        `yaml:"backend"` // redis|memory
	Prefix       string        `yaml:"prefix"`
	TTL          time.Duration `yaml:"ttl"`
	JanitorEvery time.Duration `yaml:"janitor_every"`
	Bloom        BloomConfig   `yaml:"bloom"`
}

type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	Enabled bool                   `yaml:"enabled"`
	DSN     string                 `yaml:"dsn"`
	Writer  ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	URL             string `yaml:"url"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
	DotBinary    string        `yaml:"dot_binary"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Pyroscope PyroscopeConfig `yaml:"pyroscope"`
}

const (
	ModeFullRefresh = "full_refresh"
	ModeMerge       = "merge"
	ModeOnDemand    = "on_demand"
)

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(b)
}

func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.App.SnapshotKey == "" {
		c.App.SnapshotKey = "dexarb:quotes:snapshot"
	}
	if c.App.SnapshotTTL <= 0 {
		c.App.SnapshotTTL = 24 * time.Hour
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = 10 * time.Second
	}
	if c.Ingest.Scheme == "" {
		c.Ingest.Scheme = "address"
	}
	if c.Ingest.IDMode == "" {
		c.Ingest.IDMode = "stable"
	}
	if c.Scanner.Mode == "" {
		c.Scanner.Mode = ModeFullRefresh
	}
	if c.Scanner.Interval <= 0 {
		c.Scanner.Interval = 10 * time.Second
	}
	// log space, the resolver drops candidates under the same bound
	if c.Scanner.Threshold == 0 {
		c.Scanner.Threshold = 1e-9
	}
	if c.Execution.Timeout <= 0 {
		c.Execution.Timeout = 5 * time.Second
	}
	if c.Execution.StartVolume <= 0 {
		c.Execution.StartVolume = 1
	}
	if c.Dedupe.Backend == "" {
		c.Dedupe.Backend = "memory"
	}
	if c.API.HTTP.Addr == "" {
		c.API.HTTP.Addr = ":8080"
	}
	if c.API.HTTP.DotBinary == "" {
		c.API.HTTP.DotBinary = "dot"
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Scanner.Mode {
	case ModeFullRefresh, ModeMerge, ModeOnDemand:
	default:
		errs = append(errs, fmt.Errorf("scanner.mode %q is unknown", c.Scanner.Mode))
	}

	switch c.Ingest.Scheme {
	case "address", "symbol":
	default:
		errs = append(errs, fmt.Errorf("ingest.scheme %q is unknown", c.Ingest.Scheme))
	}

	switch c.Ingest.IDMode {
	case "stable", "snapshot":
	default:
		errs = append(errs, fmt.Errorf("ingest.id_mode %q is unknown", c.Ingest.IDMode))
	}

	if c.Scanner.Threshold < 0 {
		errs = append(errs, errors.New("scanner.threshold must be >= 0"))
	}
	// snapshot ids turn every update of a pool into a new quote, only a store rebuilt from scratch
	// each iteration keeps a single version per pool
	if c.Ingest.IDMode == "snapshot" &&
		(c.Scanner.Mode != ModeFullRefresh || c.Ingest.Feed.Enabled || c.Ingest.Kafka.Enabled) {
		errs = append(errs, errors.New("ingest.id_mode=snapshot requires scanner.mode=full_refresh and no feed or kafka ingestion"))
	}
	if c.Ingest.REST.Enabled && c.Ingest.REST.URL == "" {
		errs = append(errs, errors.New("ingest.rest.url is required when rest ingestion is enabled"))
	}
	if c.Ingest.Feed.Enabled && c.Ingest.Feed.URL == "" {
		errs = append(errs, errors.New("ingest.feed.url is required when feed ingestion is enabled"))
	}
	if c.Ingest.Kafka.Enabled && (len(c.Ingest.Kafka.Brokers) == 0 || c.Ingest.Kafka.Topic == "") {
		errs = append(errs, errors.New("ingest.kafka.brokers and ingest.kafka.topic are required when kafka ingestion is enabled"))
	}
	if c.Execution.Enabled && (c.Execution.SimulateURL == "" || c.Execution.ExecuteURL == "") {
		errs = append(errs, errors.New("execution.simulate_url and execution.execute_url are required when execution is enabled"))
	}
	if c.RateLimit.Enabled && !c.Stores.Redis.Enabled {
		errs = append(errs, errors.New("rate_limit.enabled requires stores.redis.enabled"))
	}
	if c.Dedupe.Backend == "redis" && !c.Stores.Redis.Enabled {
		errs = append(errs, errors.New("dedupe.backend=redis requires stores.redis.enabled"))
	}

	return errors.Join(errs...)
}
