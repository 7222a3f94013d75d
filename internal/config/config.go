package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Controllers ControllersConfig `mapstructure:"controllers"`
	Relays      RelaysConfig      `mapstructure:"relays"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`

	// HistoryInterval is the minimum spacing of stored snapshots per controller.
	HistoryInterval time.Duration `mapstructure:"history_interval"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv           string               `mapstructure:"jwt_secret_env"`
	AccessTokenTTL         time.Duration        `mapstructure:"access_token_ttl"`
	RefreshTokenTTL        time.Duration        `mapstructure:"refresh_token_ttl"`
	MaxFailedLoginAttempts int                  `mapstructure:"max_failed_login_attempts"`
	AccountLockDuration    time.Duration        `mapstructure:"account_lock_duration"`
	Users                  []UserConfig         `mapstructure:"users"`
	MachineTokens          []MachineTokenConfig `mapstructure:"machine_tokens"`
}

// UserConfig is a login account. PasswordHash is an argon2id hash as
// printed by `proconctl hash-password`.
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// MachineTokenConfig is a long-lived API token. TokenHash is the hex sha256
// of the token as printed by `proconctl token generate`.
type MachineTokenConfig struct {
	Name        string   `mapstructure:"name"`
	TokenHash   string   `mapstructure:"token_hash"`
	Permissions []string `mapstructure:"permissions"`
}

type ControllersConfig struct {
	File                string        `mapstructure:"file"`
	SearchPaths         []string      `mapstructure:"search_paths"`
	DefaultTimeout      time.Duration `mapstructure:"default_timeout"`
	DefaultPollInterval time.Duration `mapstructure:"default_poll_interval"`
}

type RelaysConfig struct {
	// ForbidDosageRelayOff rejects manual "off" on dosage relays.
	ForbidDosageRelayOff bool `mapstructure:"forbid_dosage_relay_off"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

// Load reads the YAML config at path. An empty path uses defaults and
// environment variables only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment Variables automatisch binden (OPC_SERVER_HTTP_PORT etc.)
	v.SetEnvPrefix("OPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Defaults setzen
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openpoolcore")
	v.SetDefault("database.user", "openpoolcore")
	v.SetDefault("database.max_connections", 5)
	v.SetDefault("database.history_interval", "5m")

	v.SetDefault("controllers.file", "controllers.yaml")
	v.SetDefault("controllers.search_paths", []string{"./configs", "/etc/openpoolcore"})
	v.SetDefault("controllers.default_timeout", "10s")
	v.SetDefault("controllers.default_poll_interval", "10s")

	v.SetDefault("relays.forbid_dosage_relay_off", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Auth Defaults
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.max_failed_login_attempts", 5)
	v.SetDefault("auth.account_lock_duration", "15m")
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port out of range: %d", c.Server.GRPCPort)
	}
	if c.Database.HistoryInterval < 0 {
		return fmt.Errorf("database.history_interval must not be negative")
	}
	if c.Controllers.DefaultTimeout <= 0 {
		return fmt.Errorf("controllers.default_timeout must be positive")
	}
	if c.Controllers.DefaultPollInterval <= 0 {
		return fmt.Errorf("controllers.default_poll_interval must be positive")
	}

	seen := make(map[string]bool, len(c.Auth.Users))
	for _, u := range c.Auth.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("auth.users: username and password_hash are required")
		}
		if seen[u.Username] {
			return fmt.Errorf("auth.users: duplicate username %s", u.Username)
		}
		seen[u.Username] = true
		switch u.Role {
		case "operator", "technician", "admin":
		default:
			return fmt.Errorf("auth.users: unknown role %q for %s", u.Role, u.Username)
		}
	}
	for _, t := range c.Auth.MachineTokens {
		if t.Name == "" || len(t.TokenHash) != 64 {
			return fmt.Errorf("auth.machine_tokens: name and a sha256 token_hash are required")
		}
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return devJWTSecret
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
