package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. REGCORE_DB_DSN.
const EnvPrefix = "REGCORE"

// Config is built once at startup and handed to components section by
// section. Nothing reads configuration from globals.
type Config struct {
	Database   Database   `mapstructure:"db"`
	Redis      Redis      `mapstructure:"redis"`
	Kafka      Kafka      `mapstructure:"kafka"`
	Log        Log        `mapstructure:"log"`
	EPP        EPP        `mapstructure:"epp"`
	WHOIS      WHOIS      `mapstructure:"whois"`
	Registry   Registry   `mapstructure:"registry"`
	AccessList AccessList `mapstructure:"accesslist"`
	RateLimit  RateLimit  `mapstructure:"ratelimit"`
	Ops        Ops        `mapstructure:"ops"`
}

// Database selects the SQL driver and pool sizing.
type Database struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres pgx sqlite3"`
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" validate:"required"`
}

// Redis backs the shared zone policy cache tier. Empty URL disables it.
type Redis struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Kafka receives completed ledger transactions. No brokers disables it.
type Kafka struct {
	Brokers           []string `mapstructure:"brokers"`
	Topic             string   `mapstructure:"topic"`
	Partitions        int32    `mapstructure:"partitions"`
	ReplicationFactor int16    `mapstructure:"replication_factor"`
	BufferSize        int      `mapstructure:"buffer_size"`
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	// File enables a size-rotated copy of the log stream.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// EPP configures the provisioning listener.
type EPP struct {
	Addr             string        `mapstructure:"addr" validate:"required"`
	ServerID         string        `mapstructure:"server_id" validate:"required"`
	Prefix           string        `mapstructure:"prefix" validate:"required"`
	MaxFrameSize     int           `mapstructure:"max_frame_size" validate:"min=64"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout" validate:"required"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" validate:"required"`
	Workers          int           `mapstructure:"workers"`
	MaxRequests      int           `mapstructure:"max_requests"`
	Currency         string        `mapstructure:"currency" validate:"required,len=3"`
	TLSCertFile      string        `mapstructure:"tls_cert_file"`
	TLSKeyFile       string        `mapstructure:"tls_key_file"`
	LedgerRetryDelay time.Duration `mapstructure:"ledger_retry_delay"`
}

// WHOIS configures the port 43 listener.
type WHOIS struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	Privacy        bool          `mapstructure:"privacy"`
	MaxQueryLength int           `mapstructure:"max_query_length" validate:"min=16"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"required"`
	MaxNameservers int           `mapstructure:"max_nameservers" validate:"min=1"`
	Workers        int           `mapstructure:"workers"`
	MaxRequests    int           `mapstructure:"max_requests"`
	RegistryName   string        `mapstructure:"registry_name" validate:"required"`
	CounterName    string        `mapstructure:"counter_name" validate:"required"`
}

// Registry holds operator constants shared by both listeners.
type Registry struct {
	ROID             string        `mapstructure:"roid" validate:"required"`
	TestZones        []string      `mapstructure:"test_zones"`
	DNSSECAlgorithms []int         `mapstructure:"dnssec_algorithms" validate:"min=1"`
	ZoneCacheTTL     time.Duration `mapstructure:"zone_cache_ttl" validate:"required"`
	PatternTimeout   time.Duration `mapstructure:"pattern_timeout" validate:"required"`
}

// AccessList controls the permitted-address synchronizer.
type AccessList struct {
	Enforce         bool          `mapstructure:"enforce"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"required"`
}

// RateLimit caps new connections per address per window. A zero limit
// disables limiting on that listener. Windows are shared through Redis when
// it is configured.
type RateLimit struct {
	Window time.Duration `mapstructure:"window" validate:"required"`
	EPP    int           `mapstructure:"epp" validate:"min=0"`
	WHOIS  int           `mapstructure:"whois" validate:"min=0"`
}

// Ops exposes /metrics and /healthz. Empty Addr disables it.
type Ops struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 16)
	v.SetDefault("db.max_idle_conns", 4)
	v.SetDefault("db.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("db.connect_timeout", 5*time.Second)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", 500*time.Millisecond)
	v.SetDefault("redis.write_timeout", 500*time.Millisecond)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "registry.transactions")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("kafka.buffer_size", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("epp.addr", ":700")
	v.SetDefault("epp.server_id", "Registry EPP Server")
	v.SetDefault("epp.prefix", "REG")
	v.SetDefault("epp.max_frame_size", 64*1024)
	v.SetDefault("epp.idle_timeout", 10*time.Minute)
	v.SetDefault("epp.write_timeout", 30*time.Second)
	v.SetDefault("epp.workers", 0)
	v.SetDefault("epp.max_requests", 1000)
	v.SetDefault("epp.currency", "USD")
	v.SetDefault("epp.tls_cert_file", "")
	v.SetDefault("epp.tls_key_file", "")
	v.SetDefault("epp.ledger_retry_delay", 50*time.Millisecond)

	v.SetDefault("whois.addr", ":43")
	v.SetDefault("whois.privacy", true)
	v.SetDefault("whois.max_query_length", 8192)
	v.SetDefault("whois.timeout", 120*time.Second)
	v.SetDefault("whois.max_nameservers", 13)
	v.SetDefault("whois.workers", 0)
	v.SetDefault("whois.max_requests", 1000)
	v.SetDefault("whois.registry_name", "Domain Name Registry")
	v.SetDefault("whois.counter_name", "whois-43-queries")

	v.SetDefault("registry.roid", "")
	v.SetDefault("registry.test_zones", []string{".test"})
	v.SetDefault("registry.dnssec_algorithms", []int{2, 3, 5, 6, 7, 8, 10, 13, 14, 15, 16})
	v.SetDefault("registry.zone_cache_ttl", 5*time.Minute)
	v.SetDefault("registry.pattern_timeout", 100*time.Millisecond)

	v.SetDefault("accesslist.enforce", true)
	v.SetDefault("accesslist.refresh_interval", 60*time.Second)

	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.epp", 0)
	v.SetDefault("ratelimit.whois", 60)

	v.SetDefault("ops.addr", "")
}

// Load reads defaults, then the optional YAML file at path, then REGCORE_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDerived fills values that depend on the host.
func (c *Config) applyDerived() {
	if c.EPP.Workers <= 0 {
		c.EPP.Workers = runtime.NumCPU() * 8
	}
	if c.WHOIS.Workers <= 0 {
		c.WHOIS.Workers = runtime.NumCPU() * 2
	}
}

// Validate checks required attributes section by section.
func (c *Config) Validate() error {
	validate := validator.New()
	sections := []struct {
		name string
		data any
	}{
		{"db", c.Database},
		{"log", c.Log},
		{"epp", c.EPP},
		{"whois", c.WHOIS},
		{"registry", c.Registry},
		{"accesslist", c.AccessList},
		{"ratelimit", c.RateLimit},
	}

	var errs []error
	for _, section := range sections {
		if err := validate.Struct(section.data); err != nil {
			errs = append(errs, fmt.Errorf("config section %q: %w", section.name, err))
		}
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New(`config section "kafka": topic is required when brokers are set`))
	}
	if (c.EPP.TLSCertFile == "") != (c.EPP.TLSKeyFile == "") {
		errs = append(errs, errors.New(`config section "epp": tls_cert_file and tls_key_file must be set together`))
	}
	return errors.Join(errs...)
}
