package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Ledger backends
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Ledger consistency modes
const (
	ConsistencyCAS       = "cas"
	ConsistencyOverwrite = "overwrite"
)

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type CORSConfig struct {
	AllowedOrigins []string
}

type JWTConfig struct {
	SecretKey     string
	IdentityClaim string
}

type LedgerConfig struct {
	Backend     string
	Consistency string
	MaxRetries  int
	CallTimeout time.Duration
}

// SupabaseConfig points the ledger at a PostgREST table
type SupabaseConfig struct {
	URL           string
	ServiceKey    string
	Schema        string
	Table         string
	CreditsColumn string
	KeyColumn     string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	EnsureSchema    bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type EngineConfig struct {
	URL          string
	APIKey       string
	Timeout      time.Duration
	ProbeOnStart bool
}

type ImageConfig struct {
	Compression string
	MaxPixels   int
}

type RefundConfig struct {
	Enabled     bool
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

type LogConfig struct {
	Level  string
	Format string
}

// Config is built once at startup and never mutated afterwards
type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	JWT      JWTConfig
	Ledger   LedgerConfig
	Supabase SupabaseConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Image    ImageConfig
	Refunds  RefundConfig
	NATS     NATSConfig
	Log      LogConfig
}

type binding struct {
	key  string
	envs []string
	def  any
}

var bindings = []binding{
	{"server.port", []string{"PORT"}, "8080"},
	{"server.read_timeout", []string{"SERVER_READ_TIMEOUT"}, 30 * time.Second},
	{"server.write_timeout", []string{"SERVER_WRITE_TIMEOUT"}, 90 * time.Second},
	{"server.idle_timeout", []string{"SERVER_IDLE_TIMEOUT"}, 60 * time.Second},
	{"server.request_timeout", []string{"SERVER_REQUEST_TIMEOUT"}, 60 * time.Second},
	{"server.max_body_bytes", []string{"SERVER_MAX_BODY_BYTES"}, 10 * 1024 * 1024},

	{"cors.allowed_origins", []string{"CORS_ALLOWED_ORIGINS"}, "*"},

	{"jwt.secret_key", []string{"SUPABASE_JWT_SECRET", "JWT_SECRET_KEY"}, ""},
	{"jwt.identity_claim", []string{"JWT_IDENTITY_CLAIM"}, "email"},

	{"ledger.backend", []string{"LEDGER_BACKEND"}, BackendSupabase},
	{"ledger.consistency", []string{"LEDGER_CONSISTENCY"}, ConsistencyCAS},
	{"ledger.max_retries", []string{"LEDGER_MAX_RETRIES"}, 3},
	{"ledger.call_timeout", []string{"LEDGER_CALL_TIMEOUT"}, 5 * time.Second},

	{"supabase.url", []string{"SUPABASE_URL"}, ""},
	{"supabase.service_key", []string{"SUPABASE_SERVICE_KEY"}, ""},
	{"supabase.schema", []string{"SUPABASE_SCHEMA"}, "wondr_users"},
	{"supabase.table", []string{"SUPABASE_TABLE"}, "wondr_users"},
	{"supabase.credits_column", []string{"SUPABASE_CREDITS_COLUMN"}, "rembg_credits"},
	{"supabase.key_column", []string{"SUPABASE_KEY_COLUMN"}, "email"},

	{"database.host", []string{"DATABASE_HOST"}, "localhost"},
	{"database.port", []string{"DATABASE_PORT"}, "5432"},
	{"database.user", []string{"DATABASE_USER"}, "postgres"},
	{"database.password", []string{"DATABASE_PASSWORD"}, "password"},
	{"database.name", []string{"DATABASE_NAME"}, "rembg"},
	{"database.ssl_mode", []string{"DATABASE_SSL_MODE"}, "disable"},
	{"database.max_open_conns", []string{"DATABASE_MAX_OPEN_CONNS"}, 25},
	{"database.max_idle_conns", []string{"DATABASE_MAX_IDLE_CONNS"}, 5},
	{"database.conn_max_lifetime", []string{"DATABASE_CONN_MAX_LIFETIME"}, 5 * time.Minute},
	{"database.ensure_schema", []string{"DATABASE_ENSURE_SCHEMA"}, true},

	{"redis.host", []string{"REDIS_HOST"}, "localhost"},
	{"redis.port", []string{"REDIS_PORT"}, "6379"},
	{"redis.password", []string{"REDIS_PASSWORD"}, ""},
	{"redis.db", []string{"REDIS_DB"}, 0},

	{"engine.url", []string{"ENGINE_URL"}, ""},
	{"engine.api_key", []string{"ENGINE_API_KEY"}, ""},
	{"engine.timeout", []string{"ENGINE_TIMEOUT"}, 60 * time.Second},
	{"engine.probe_on_start", []string{"ENGINE_PROBE_ON_START"}, true},

	{"image.compression", []string{"IMAGE_COMPRESSION"}, "best"},
	{"image.max_pixels", []string{"IMAGE_MAX_PIXELS"}, 40_000_000},

	{"refunds.enabled", []string{"REFUNDS_ENABLED"}, false},
	{"refunds.interval", []string{"REFUNDS_INTERVAL"}, 15 * time.Second},
	{"refunds.max_attempts", []string{"REFUNDS_MAX_ATTEMPTS"}, 10},
	{"refunds.batch_size", []string{"REFUNDS_BATCH_SIZE"}, 50},

	{"nats.url", []string{"NATS_URL"}, ""},
	{"nats.subject_prefix", []string{"NATS_SUBJECT_PREFIX"}, "credits"},

	{"log.level", []string{"LOG_LEVEL"}, "info"},
	{"log.format", []string{"LOG_FORMAT"}, "json"},
}

// Load reads envFile (if present) and the process environment into a Config.
// Environment variables take precedence over the file, the file over defaults.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	fileValues := viper.New()
	if envFile != "" {
		fileValues.SetConfigFile(envFile)
		fileValues.SetConfigType("env")
		if err := fileValues.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading %s: %w", envFile, err)
			}
		}
	}

	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		for i := len(b.envs) - 1; i >= 0; i-- {
			if fileValues.IsSet(b.envs[i]) {
				v.SetDefault(b.key, fileValues.Get(b.envs[i]))
			}
		}
		if err := v.BindEnv(append([]string{b.key}, b.envs...)...); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", b.key, err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper maps an already-populated viper instance onto Config
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			ReadTimeout:    v.GetDuration("server.read_timeout"),
			WriteTimeout:   v.GetDuration("server.write_timeout"),
			IdleTimeout:    v.GetDuration("server.idle_timeout"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			MaxBodyBytes:   v.GetInt64("server.max_body_bytes"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
		},
		JWT: JWTConfig{
			SecretKey:     v.GetString("jwt.secret_key"),
			IdentityClaim: v.GetString("jwt.identity_claim"),
		},
		Ledger: LedgerConfig{
			Backend:     strings.ToLower(v.GetString("ledger.backend")),
			Consistency: strings.ToLower(v.GetString("ledger.consistency")),
			MaxRetries:  v.GetInt("ledger.max_retries"),
			CallTimeout: v.GetDuration("ledger.call_timeout"),
		},
		Supabase: SupabaseConfig{
			URL:           strings.TrimRight(v.GetString("supabase.url"), "/"),
			ServiceKey:    v.GetString("supabase.service_key"),
			Schema:        v.GetString("supabase.schema"),
			Table:         v.GetString("supabase.table"),
			CreditsColumn: v.GetString("supabase.credits_column"),
			KeyColumn:     v.GetString("supabase.key_column"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			EnsureSchema:    v.GetBool("database.ensure_schema"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Engine: EngineConfig{
			URL:          strings.TrimRight(v.GetString("engine.url"), "/"),
			APIKey:       v.GetString("engine.api_key"),
			Timeout:      v.GetDuration("engine.timeout"),
			ProbeOnStart: v.GetBool("engine.probe_on_start"),
		},
		Image: ImageConfig{
			Compression: strings.ToLower(v.GetString("image.compression")),
			MaxPixels:   v.GetInt("image.max_pixels"),
		},
		Refunds: RefundConfig{
			Enabled:     v.GetBool("refunds.enabled"),
			Interval:    v.GetDuration("refunds.interval"),
			MaxAttempts: v.GetInt("refunds.max_attempts"),
			BatchSize:   v.GetInt("refunds.batch_size"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return errors.New("missing required env: SUPABASE_JWT_SECRET")
	}
	if c.JWT.IdentityClaim != "email" {
		return fmt.Errorf("unsupported identity claim %q, only \"email\" is supported", c.JWT.IdentityClaim)
	}

	switch c.Ledger.Backend {
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return errors.New("missing required env for supabase ledger: SUPABASE_URL/SUPABASE_SERVICE_KEY")
		}
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("invalid ledger backend %q, must be one of supabase|postgres|redis|memory", c.Ledger.Backend)
	}

	if c.Ledger.Consistency != ConsistencyCAS && c.Ledger.Consistency != ConsistencyOverwrite {
		return fmt.Errorf("invalid ledger consistency %q, must be 'cas' or 'overwrite'", c.Ledger.Consistency)
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("ledger max retries must be >= 0, got %d", c.Ledger.MaxRetries)
	}

	if c.Engine.URL == "" {
		return errors.New("missing required env: ENGINE_URL")
	}

	switch c.Image.Compression {
	case "best", "default", "speed", "none":
	default:
		return fmt.Errorf("invalid image compression %q", c.Image.Compression)
	}

	if c.Refunds.Enabled {
		if c.Refunds.MaxAttempts <= 0 {
			return errors.New("refunds.max_attempts must be positive when refunds are enabled")
		}
		if c.Refunds.Interval <= 0 {
			return fmt.Errorf("refunds.interval must be positive when refunds are enabled, got %s", c.Refunds.Interval)
		}
		if c.Refunds.BatchSize <= 0 {
			return fmt.Errorf("refunds.batch_size must be positive when refunds are enabled, got %d", c.Refunds.BatchSize)
		}
	}
	return nil
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
