package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/famomatic/ytrelay/internal/cookies"
	"github.com/famomatic/ytrelay/internal/retry"
)

// Config is the service configuration, environment-driven with flag overrides
// applied by the binary.
type Config struct {
	ListenAddr  string
	Cookie      string
	CookiesFile string
	FFmpegPath  string

	// RequestBudget bounds the lifetime of one download request end to end.
	RequestBudget time.Duration

	Retry retry.Policy
}

// DefaultConfig returns the shipped defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		FFmpegPath:    "ffmpeg",
		RequestBudget: 60 * time.Second,
		Retry:         retry.DefaultPolicy(),
	}
}

// ConfigFromEnv builds a Config from the environment on top of the defaults.
// Durations accept the extended syntax (e.g. "1m30s", "90s", "2d").
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("YT_COOKIE"); v != "" {
		cfg.Cookie = v
	}
	if v := os.Getenv("YT_COOKIES_FILE"); v != "" {
		cfg.CookiesFile = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		cfg.FFmpegPath = v
	}

	if v := os.Getenv("REQUEST_BUDGET"); v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("REQUEST_BUDGET: %w", err)
		}
		cfg.RequestBudget = d
	}
	if v := os.Getenv("RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("RETRY_MAX_ATTEMPTS: %w", err)
		}
		cfg.Retry.MaxAttempts = n
	}
	if v := os.Getenv("RETRY_INITIAL_DELAY"); v != "" {
		d, err := str2duration.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("RETRY_INITIAL_DELAY: %w", err)
		}
		cfg.Retry.InitialDelay = d
	}
	if v := os.Getenv("RETRY_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("RETRY_MULTIPLIER: %w", err)
		}
		cfg.Retry.Multiplier = f
	}

	return cfg, nil
}

// ResolveCookie returns the upstream session cookie header value. A raw
// YT_COOKIE wins over a cookies.txt file.
func (c Config) ResolveCookie() (string, error) {
	if c.Cookie != "" {
		return c.Cookie, nil
	}
	if c.CookiesFile != "" {
		return cookies.LoadHeaderValue(c.CookiesFile, "youtube.com")
	}
	return "", nil
}
