package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("postman version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	Logging LoggingConfig           `mapstructure:"logging"`
	Cache   CacheConfig             `mapstructure:"cache"`
	Signers map[string]SignerConfig `mapstructure:"signers"`
	Service ServiceConfig           `mapstructure:"service"`
}

// AuthType represents the kind of credentials a signer applies
type AuthType string

const (
	AuthTypeBasic  AuthType = "basic"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeOAuth2 AuthType = "oauth2"
)

// SignerConfig describes one named signer.
//
// For oauth2 signers the token is resolved in this order: a static
// access_token, a refresh_token exchanged at the token endpoint, or the
// client credentials grant at the token endpoint. The endpoint is token_url,
// or the preset of a known provider (github, google).
type SignerConfig struct {
	Type         AuthType          `mapstructure:"type"`
	Provider     string            `mapstructure:"provider"`
	AuthConfig   map[string]string `mapstructure:"auth_config"`
	ClientID     string            `mapstructure:"client_id"`
	ClientSecret string            `mapstructure:"client_secret"`
	TokenURL     string            `mapstructure:"token_url"`
	Scopes       []string          `mapstructure:"scopes"`
}

type CacheBackend string

const (
	CacheBackendMemory CacheBackend = "memory"
	CacheBackendRedis  CacheBackend = "redis"
)

type CacheConfig struct {
	Enabled    bool         `mapstructure:"enabled"`
	Backend    CacheBackend `mapstructure:"backend"`
	MaxEntries int          `mapstructure:"max_entries"`
	Redis      RedisConfig  `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type ServiceConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// InitFlags initializes command line flags (without parsing)
func InitFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to the config file")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", string(CacheBackendMemory))
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.key_prefix", "postman:cache:")
	v.SetDefault("cache.redis.ttl", "24h")
	v.SetDefault("service.queue_size", 16)
}

// Load reads the file named by --config (or POSTMAN_CONFIG), falling back to
// config.yaml in . and /etc/postman. A missing default config file is not an
// error; defaults apply.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("POSTMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/postman")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if level := v.GetString("log-level"); level != "" {
		config.Logging.Level = level
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the cross-field constraints viper cannot express
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis, "":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheBackendRedis && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required, please adjust the config or set POSTMAN_CACHE_REDIS_ADDR")
	}
	for name, s := range c.Signers {
		switch s.Type {
		case AuthTypeBasic, AuthTypeBearer, AuthTypeAPIKey:
		case AuthTypeOAuth2:
			if s.AuthConfig["access_token"] == "" && s.TokenURL == "" && s.Provider == "" {
				return fmt.Errorf("signer %s: oauth2 requires auth_config.access_token, token_url or provider", name)
			}
		default:
			return fmt.Errorf("signer %s: unsupported auth type: %s", name, s.Type)
		}
	}
	if c.Service.QueueSize < 0 {
		return fmt.Errorf("service.queue_size must not be negative")
	}
	return nil
}
