// Package config holds service configuration sourced from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names.
const (
	EnvMediaRoot        = "FETCHVIDEO_MEDIA_ROOT"
	EnvCacheTTL         = "FETCHVIDEO_CACHE_TTL"
	EnvProgressTTL      = "FETCHVIDEO_PROGRESS_TTL"
	EnvNormalizeTimeout = "FETCHVIDEO_NORMALIZE_TIMEOUT"
	EnvMuxTimeout       = "FETCHVIDEO_MUX_TIMEOUT"
	EnvFFmpegPath       = "FETCHVIDEO_FFMPEG_PATH"
	EnvSweepInterval    = "FETCHVIDEO_SWEEP_INTERVAL"
	EnvHTTPTimeout      = "FETCHVIDEO_HTTP_TIMEOUT"
	EnvProxyURL         = "FETCHVIDEO_PROXY_URL"
	EnvRateLimitBps     = "FETCHVIDEO_RATE_LIMIT_BPS"
)

// Defaults.
const (
	DefaultMediaRoot        = "media"
	DefaultCacheTTL         = 3600 * time.Second
	DefaultProgressTTL      = 3600 * time.Second
	DefaultNormalizeTimeout = 300 * time.Second
	DefaultMuxTimeout       = 600 * time.Second
	DefaultFFmpegPath       = "ffmpeg"
	DefaultSweepInterval    = 10 * time.Minute
	DefaultHTTPTimeout      = 30 * time.Second
)

// Config carries all service knobs.
type Config struct {
	MediaRoot        string
	CacheTTL         time.Duration
	ProgressTTL      time.Duration
	NormalizeTimeout time.Duration
	MuxTimeout       time.Duration
	FFmpegPath       string
	SweepInterval    time.Duration
	HTTPTimeout      time.Duration
	ProxyURL         string
	RateLimitBps     int64
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MediaRoot:        DefaultMediaRoot,
		CacheTTL:         DefaultCacheTTL,
		ProgressTTL:      DefaultProgressTTL,
		NormalizeTimeout: DefaultNormalizeTimeout,
		MuxTimeout:       DefaultMuxTimeout,
		FFmpegPath:       DefaultFFmpegPath,
		SweepInterval:    DefaultSweepInterval,
		HTTPTimeout:      DefaultHTTPTimeout,
	}
}

// FromEnv builds a Config from environment variables, falling back to the
// defaults for unset variables. Durations accept Go duration syntax
// ("300s", "10m") or a bare number of seconds.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv(EnvMediaRoot); v != "" {
		cfg.MediaRoot = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		cfg.FFmpegPath = v
	}
	cfg.ProxyURL = os.Getenv(EnvProxyURL)

	var err error
	if cfg.CacheTTL, err = durationEnv(EnvCacheTTL, cfg.CacheTTL); err != nil {
		return cfg, err
	}
	if cfg.ProgressTTL, err = durationEnv(EnvProgressTTL, cfg.ProgressTTL); err != nil {
		return cfg, err
	}
	if cfg.NormalizeTimeout, err = durationEnv(EnvNormalizeTimeout, cfg.NormalizeTimeout); err != nil {
		return cfg, err
	}
	if cfg.MuxTimeout, err = durationEnv(EnvMuxTimeout, cfg.MuxTimeout); err != nil {
		return cfg, err
	}
	if cfg.SweepInterval, err = durationEnv(EnvSweepInterval, cfg.SweepInterval); err != nil {
		return cfg, err
	}
	if cfg.HTTPTimeout, err = durationEnv(EnvHTTPTimeout, cfg.HTTPTimeout); err != nil {
		return cfg, err
	}
	if v := os.Getenv(EnvRateLimitBps); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("config: invalid %s value %q", EnvRateLimitBps, v)
		}
		cfg.RateLimitBps = n
	}
	return cfg, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		if d <= 0 {
			return def, fmt.Errorf("config: %s must be positive, got %q", name, v)
		}
		return d, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return def, fmt.Errorf("config: %s must be positive, got %q", name, v)
		}
		return time.Duration(secs) * time.Second, nil
	}
	return def, fmt.Errorf("config: invalid %s value %q", name, v)
}
