package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/authcore/internal/db"
)

type Config struct {
	HTTPAddr string
	// TrustedProxies are CIDR ranges whose X-Forwarded-For is believed.
	TrustedProxies []string

	DatabaseURL string
	DBDriver    string

	JWTSecret       []byte
	RefreshSecret   []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	LogLevel string

	KafkaBrokers []string
	KafkaTopic   string

	ESURL        string
	ESUser       string
	ESPassword   string
	ESAuditIndex string
}

func (c *Config) EventsEnabled() bool { return len(c.KafkaBrokers) > 0 }
func (c *Config) AuditEnabled() bool  { return c.ESURL != "" }

// Load reads .env when present and then the process environment. All
// problems are reported together.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("cannot read .env, using process environment", "error", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var errs []error

	accessTTL, err := EnvDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute)
	errs = append(errs, err)
	refreshSeconds, err := EnvIntDefault("REFRESH_TOKEN_TTL", 2592000)
	errs = append(errs, err)
	cost, err := EnvIntDefault("BCRYPT_COST", bcrypt.DefaultCost)
	errs = append(errs, err)

	cfg := &Config{
		HTTPAddr:        EnvDefault("HTTP_ADDR", ":8080"),
		TrustedProxies:  CSV(os.Getenv("TRUSTED_PROXIES")),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBDriver:        EnvDefault("DB_DRIVER", db.DriverPGX),
		JWTSecret:       []byte(os.Getenv("JWT_SECRET")),
		RefreshSecret:   []byte(os.Getenv("REFRESH_SECRET")),
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: time.Duration(refreshSeconds) * time.Second,
		BcryptCost:      cost,
		LogLevel:        EnvDefault("LOG_LEVEL", "info"),
		KafkaBrokers:    CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:      EnvDefault("KAFKA_TOPIC", "user_events"),
		ESURL:           os.Getenv("ES_URL"),
		ESUser:          os.Getenv("ES_USER"),
		ESPassword:      os.Getenv("ES_PASSWORD"),
		ESAuditIndex:    EnvDefault("ES_AUDIT_INDEX", "auth_audit"),
	}

	errs = append(errs, cfg.validate())
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	errs = append(errs,
		NonEmpty(c.DatabaseURL, "DATABASE_URL"),
		NonEmpty(string(c.JWTSecret), "JWT_SECRET"),
		NonEmpty(string(c.RefreshSecret), "REFRESH_SECRET"),
	)
	if len(c.JWTSecret) > 0 && string(c.JWTSecret) == string(c.RefreshSecret) {
		errs = append(errs, errors.New("JWT_SECRET and REFRESH_SECRET must differ"))
	}
	if c.DBDriver != db.DriverPGX && c.DBDriver != db.DriverPQ {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", db.DriverPGX, db.DriverPQ, c.DBDriver))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
		}
	}
	return errors.Join(errs...)
}

func NonEmpty(value, envName string) error {
	if value == "" {
		return fmt.Errorf("missing required env %s", envName)
	}
	return nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func EnvDurationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}
