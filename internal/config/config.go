// Package config loads server settings from flags, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	KeyBind            = "bind"
	KeyPort            = "port"
	KeyAllowedOrigins  = "allowed-origins"
	KeySweepInterval   = "sweep-interval"
	KeyMaxDrawingBytes = "max-drawing-bytes"
	KeyDatabaseURL     = "database-url"
	KeyPublicURL       = "public-url"
	KeyLogLevel        = "log-level"
)

const (
	DefaultBind            = "0.0.0.0"
	DefaultPort            = 3001
	DefaultAllowedOrigins  = "http://localhost:3000"
	DefaultSweepInterval   = 120 * time.Second
	DefaultMaxDrawingBytes = 5 << 20
	DefaultLogLevel        = "info"
)

type Config struct {
	Bind            string
	Port            int
	AllowedOrigins  []string
	SweepInterval   time.Duration
	MaxDrawingBytes int
	DatabaseURL     string // empty disables the journal
	PublicURL       string // base for join links; empty uses the request host
	LogLevel        string
}

// New returns a viper instance reading KEY_NAME environment variables for
// every key-name setting.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyBind, DefaultBind)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyAllowedOrigins, DefaultAllowedOrigins)
	v.SetDefault(KeySweepInterval, DefaultSweepInterval.String())
	v.SetDefault(KeyMaxDrawingBytes, DefaultMaxDrawingBytes)
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyPublicURL, "")
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	return v
}

// BindFlags declares a flag per setting on fs and binds it into v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringP(KeyBind, "b", DefaultBind, "address to bind to (env: BIND)")
	fs.IntP(KeyPort, "p", DefaultPort, "port to listen on (env: PORT)")
	fs.String(KeyAllowedOrigins, DefaultAllowedOrigins, "comma-separated origins allowed to connect (env: ALLOWED_ORIGINS)")
	fs.String(KeySweepInterval, DefaultSweepInterval.String(), "interval between empty-room sweeps (env: SWEEP_INTERVAL)")
	fs.Int(KeyMaxDrawingBytes, DefaultMaxDrawingBytes, "largest accepted decoded drawing in bytes (env: MAX_DRAWING_BYTES)")
	fs.String(KeyDatabaseURL, "", "PostgreSQL DSN for the room journal (env: DATABASE_URL)")
	fs.String(KeyPublicURL, "", "public base URL used in join links (env: PUBLIC_URL)")
	fs.String(KeyLogLevel, DefaultLogLevel, "log level: debug, info, warn, error (env: LOG_LEVEL)")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr := v.BindPFlag(f.Name, f); bindErr != nil && err == nil {
			err = fmt.Errorf("binding flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

// FromViper builds a Config. Unparseable or non-positive numbers fall back to
// their defaults.
func FromViper(v *viper.Viper) Config {
	return Config{
		Bind:            stringOr(v.GetString(KeyBind), DefaultBind),
		Port:            intOr(v.GetString(KeyPort), DefaultPort),
		AllowedOrigins:  splitList(stringOr(v.GetString(KeyAllowedOrigins), DefaultAllowedOrigins)),
		SweepInterval:   durationOr(v.GetString(KeySweepInterval), DefaultSweepInterval),
		MaxDrawingBytes: intOr(v.GetString(KeyMaxDrawingBytes), DefaultMaxDrawingBytes),
		DatabaseURL:     strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		PublicURL:       strings.TrimSuffix(strings.TrimSpace(v.GetString(KeyPublicURL)), "/"),
		LogLevel:        stringOr(strings.ToLower(v.GetString(KeyLogLevel)), DefaultLogLevel),
	}
}

func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("at least one allowed origin is required")
	}
	return nil
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

func stringOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

func intOr(v string, fallback int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && i > 0 {
		return i
	}
	return fallback
}

// durationOr accepts Go durations ("90s") or bare seconds ("90").
func durationOr(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
