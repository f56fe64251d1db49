package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// DevSigningKey is used when JWT_SIGNING_KEY is unset outside production.
const DevSigningKey = "dev-secret-key-change-in-production"

// Config is the full process configuration, loaded once at startup and
// immutable afterwards.
type Config struct {
	Env string `env:"ENV, default=development"`

	Server   Server
	Auth     Auth
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Audit    AuditConfig
	Log      LogConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"TASKGUARD_ADDR, default=:8080"`
	AdminAPIToken   string        `env:"ADMIN_API_TOKEN"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT, default=15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT, default=15s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT, default=10s"`
}

// Auth configures the identity verifier. The signing key is never rotated
// while the process runs.
type Auth struct {
	JWTSigningKey string        `env:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `env:"JWT_ISSUER, default=taskguard"`
	JWTAudience   string        `env:"JWT_AUDIENCE, default=taskguard-api"`
	TokenTTL      time.Duration `env:"TOKEN_TTL, default=1h"`
	BcryptCost    int           `env:"BCRYPT_COST, default=10"`
}

// DatabaseConfig selects the Postgres stores. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME, default=30m"`
	ApplySchema     bool          `env:"DB_APPLY_SCHEMA, default=false"`
}

// RedisConfig holds the token revocation list connection.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE, default=10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT, default=3s"`
}

// KafkaConfig enables the audit export sink when Brokers is set.
type KafkaConfig struct {
	Brokers     string `env:"KAFKA_BROKERS"`
	TopicPrefix string `env:"AUDIT_TOPIC, default=taskguard.audit"`
	Partitions  int32  `env:"AUDIT_TOPIC_PARTITIONS, default=3"`
	Replication int16  `env:"AUDIT_TOPIC_REPLICATION, default=1"`
	BufferSize  int    `env:"AUDIT_EXPORT_BUFFER, default=1024"`
}

// AuditConfig tunes the recorder's circuit breaker.
type AuditConfig struct {
	BreakerThreshold int           `env:"AUDIT_BREAKER_THRESHOLD, default=5"`
	BreakerCooldown  time.Duration `env:"AUDIT_BREAKER_COOLDOWN, default=30s"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL, default=info"`
	Format string `env:"LOG_FORMAT, default=json"`
}

// FromEnv loads the configuration from the process environment.
func FromEnv(ctx context.Context) (Config, error) {
	return Load(ctx, envconfig.OsLookuper())
}

// Load reads configuration through l. Tests pass envconfig.MapLookuper.
func Load(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if cfg.Auth.JWTSigningKey == "" && !cfg.IsProduction() {
		cfg.Auth.JWTSigningKey = DevSigningKey
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects settings the process cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
	}
	if c.IsProduction() && c.Auth.JWTSigningKey == DevSigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must not be the development key in production"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d out of range", c.Auth.BcryptCost))
	}
	return errors.Join(errs...)
}
