package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable, e.g. BANANA_SERVER_PORT
const EnvPrefix = "BANANA"

// Storage backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the complete server configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Admin   AdminConfig   `mapstructure:"admin"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Ranking RankingConfig `mapstructure:"ranking"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// SecureCookies marks the session cookie Secure; enable behind HTTPS
	SecureCookies bool `mapstructure:"secure_cookies"`
}

type StorageConfig struct {
	Backend        string `mapstructure:"backend"`
	RedisURL       string `mapstructure:"redis_url"`
	RedisKeyPrefix string `mapstructure:"redis_key_prefix"`
	SQLitePath     string `mapstructure:"sqlite_path"`
}

type AuthConfig struct {
	// Secret signs session tokens; empty generates one per process
	Secret        string        `mapstructure:"secret"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
	BcryptCost    int           `mapstructure:"bcrypt_cost"`
}

// AdminConfig bootstraps an administrator account at startup when both fields are set
type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RankingConfig struct {
	Limit int `mapstructure:"limit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.secure_cookies", false)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.redis_url", "redis://localhost:6379")
	v.SetDefault("storage.redis_key_prefix", "bclick")
	v.SetDefault("storage.sqlite_path", "bananaclick.db")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_duration", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("ranking.limit", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from defaults, an optional file and the environment,
// in increasing order of precedence. An empty path searches for config.yaml in
// the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be fixed up with a default
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("invalid storage backend %q: must be memory, redis or sqlite", c.Storage.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if (c.Admin.Username == "") != (c.Admin.Password == "") {
		return errors.New("admin username and password must be set together")
	}
	if c.Ranking.Limit < 0 {
		return fmt.Errorf("invalid ranking limit %d", c.Ranking.Limit)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured log level
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}
