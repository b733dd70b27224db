package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"3000"`
	GinMode     string `env:"GIN_MODE" envDefault:"release"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`

	MasterSecret string        `env:"MASTER_SECRET"`
	TokenExpiry  time.Duration `env:"TOKEN_EXPIRY" envDefault:"168h"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	QRTTL           time.Duration `env:"QR_TTL" envDefault:"60s"`
	InitTimeout     time.Duration `env:"INIT_TIMEOUT" envDefault:"60s"`
	PendingTTL      time.Duration `env:"PENDING_TTL" envDefault:"1h"`
	ConnectedTTL    time.Duration `env:"CONNECTED_TTL" envDefault:"720h"`
	PendingMaxAge   time.Duration `env:"PENDING_MAX_AGE" envDefault:"1h"`
	ConnectedMaxAge time.Duration `env:"CONNECTED_MAX_AGE" envDefault:"720h"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"5m"`

	// SimulateScanEnabled gates the test-only scan hook. Never enable in
	// production deployments.
	SimulateScanEnabled bool `env:"SIMULATE_SCAN_ENABLED" envDefault:"false"`

	SessionBackend string `env:"SESSION_BACKEND" envDefault:"local"`
	RemoteBaseURL  string `env:"REMOTE_BASE_URL"`

	// MaxSessions is the session count above which /health reports the
	// service as degraded.
	MaxSessions int `env:"MAX_SESSIONS" envDefault:"500"`

	// QRIssueDelay is how long the simulated client waits before issuing
	// a QR code.
	QRIssueDelay time.Duration `env:"QR_ISSUE_DELAY" envDefault:"150ms"`
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MasterSecret == "" {
		return fmt.Errorf("MASTER_SECRET is required")
	}
	if c.QRTTL <= 0 {
		return fmt.Errorf("QR_TTL must be positive")
	}
	if c.InitTimeout <= 0 {
		return fmt.Errorf("INIT_TIMEOUT must be positive")
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be positive")
	}
	switch c.SessionBackend {
	case BackendLocal:
	case BackendRemote:
		if c.RemoteBaseURL == "" {
			return fmt.Errorf("REMOTE_BASE_URL is required when SESSION_BACKEND=remote")
		}
	default:
		return fmt.Errorf("invalid SESSION_BACKEND %q", c.SessionBackend)
	}
	return nil
}
