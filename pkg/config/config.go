package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Audit        AuditConfig
	Seed         SeedConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOCKPILOT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKPILOT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKPILOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKPILOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"STOCKPILOT_DB_DSN"`

	Host     string `envconfig:"STOCKPILOT_DB_HOST"`
	Port     int    `envconfig:"STOCKPILOT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOCKPILOT_DB_USER"`
	Password string `envconfig:"STOCKPILOT_DB_PASSWORD"`
	Name     string `envconfig:"STOCKPILOT_DB_NAME"`
	SSLMode  string `envconfig:"STOCKPILOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKPILOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKPILOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKPILOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKPILOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKPILOT_REDIS_URL"`
	Address      string        `envconfig:"STOCKPILOT_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKPILOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKPILOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKPILOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKPILOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKPILOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKPILOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKPILOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// AuditConfig tunes the reconciliation sweep worker.
type AuditConfig struct {
	SweepInterval time.Duration `envconfig:"STOCKPILOT_AUDIT_SWEEP_INTERVAL" default:"1h"`
	ChunkSize     int           `envconfig:"STOCKPILOT_AUDIT_CHUNK_SIZE" default:"200"`
	LockTTL       time.Duration `envconfig:"STOCKPILOT_AUDIT_LOCK_TTL" default:"55m"`
}

// SeedConfig tunes the synthetic data generator.
type SeedConfig struct {
	Variants      int   `envconfig:"STOCKPILOT_SEED_VARIANTS" default:"50"`
	DaysOfHistory int   `envconfig:"STOCKPILOT_SEED_DAYS" default:"90"`
	ChunkSize     int   `envconfig:"STOCKPILOT_SEED_CHUNK_SIZE" default:"10"`
	RandSeed      int64 `envconfig:"STOCKPILOT_SEED_RAND_SEED" default:"0"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOCKPILOT_AUTO_MIGRATE" default:"false"`
}

const (
	EnvPrefix = "STOCKPILOT"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "STOCKPILOT_APP_ENV"
	EnvPort     = "STOCKPILOT_APP_PORT"
	EnvDBDSN    = "STOCKPILOT_DB_DSN"
	EnvDBHost   = "STOCKPILOT_DB_HOST"
	EnvDBUser   = "STOCKPILOT_DB_USER"
	EnvDBName   = "STOCKPILOT_DB_NAME"
	EnvRedisURL = "STOCKPILOT_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
