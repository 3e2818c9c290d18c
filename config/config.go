package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MaxConWaitingTime int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort       string        `mapstructure:"HTTPPort"`
		Timeout        time.Duration `mapstructure:"HTTPTimeout"`
		PublicURL      string        `mapstructure:"publicURL"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	Auth AuthConfig `mapstructure:"auth"`
	Mail MailConfig `mapstructure:"mail"`
}

// AuthConfig holds the session, hashing and password-reset settings.
type AuthConfig struct {
	SessionSecret   string        `mapstructure:"sessionSecret"`
	Issuer          string        `mapstructure:"issuer"`
	CookieName      string        `mapstructure:"cookieName"`
	SecureCookie    bool          `mapstructure:"secureCookie"`
	SessionTTL      time.Duration `mapstructure:"sessionTTL"`
	RememberTTL     time.Duration `mapstructure:"rememberTTL"`
	ResetTokenTTL   time.Duration `mapstructure:"resetTokenTTL"`
	BcryptCost      int           `mapstructure:"bcryptCost"`
	HashWorkers     int64         `mapstructure:"hashWorkers"`
	MaxFailedLogins int           `mapstructure:"maxFailedLogins"`
	LockoutWindow   time.Duration `mapstructure:"lockoutWindow"`
	RateLimit       int           `mapstructure:"rateLimit"`
	RateWindow      time.Duration `mapstructure:"rateWindow"`
	DefaultLanding  string        `mapstructure:"defaultLanding"`
}

// MailConfig configures the outbound SMTP notifier. When Enabled is false the
// notifier only logs.
type MailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Workers  int    `mapstructure:"workers"`
	Queue    int    `mapstructure:"queue"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// OHMS_AUTH_SESSIONSECRET overrides auth.sessionSecret, etc.
	v.SetEnvPrefix("ohms")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err = config.Auth.validate(config.Mode); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// DefaultSessionSecret is the placeholder shipped in config.yml. It is only
// accepted in development mode.
const DefaultSessionSecret = "change-me-in-production"

func (a *AuthConfig) validate(mode string) error {
	if a.SessionSecret == "" {
		return fmt.Errorf("auth.sessionSecret must be set")
	}
	if a.SessionSecret == DefaultSessionSecret && mode != "development" {
		return fmt.Errorf("auth.sessionSecret still holds the default placeholder in %q mode", mode)
	}
	if a.ResetTokenTTL <= 0 {
		a.ResetTokenTTL = 30 * time.Minute
	}
	if a.SessionTTL <= 0 {
		a.SessionTTL = 12 * time.Hour
	}
	if a.RememberTTL <= 0 {
		a.RememberTTL = 30 * 24 * time.Hour
	}
	if a.HashWorkers <= 0 {
		a.HashWorkers = 4
	}
	if a.CookieName == "" {
		a.CookieName = "ohms_session"
	}
	if a.DefaultLanding == "" {
		a.DefaultLanding = "/"
	}
	return nil
}
