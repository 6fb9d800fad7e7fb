package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SONGREC_"

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"SERVER_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"RATE_LIMIT", integer(func(c *Config) *int { return &c.Server.RateLimit })},
	{"OUTPUT_DIR", str(func(c *Config) *string { return &c.Paths.OutputDir })},
	{"STAGING_DIR", str(func(c *Config) *string { return &c.Paths.StagingDir })},
	{"DOWNLOAD_CONCURRENCY", integer(func(c *Config) *int { return &c.Download.Concurrency })},
	{"YTDLP_PATH", str(func(c *Config) *string { return &c.Download.YtDlpPath })},
	{"COOKIES_BROWSER", str(func(c *Config) *string { return &c.Download.CookiesBrowser })},
	{"RETRIES", integer(func(c *Config) *int { return &c.Retry.Retries })},
	{"RETRY_INITIAL_DELAY", duration(func(c *Config) *time.Duration { return &c.Retry.InitialDelay })},
	{"CLIP_LENGTH_MS", integer(func(c *Config) *int { return &c.Segment.ClipLengthMS })},
	{"FFMPEG_PATH", str(func(c *Config) *string { return &c.Segment.FFmpegPath })},
	{"FFPROBE_PATH", str(func(c *Config) *string { return &c.Segment.FFprobePath })},
	{"RECOGNIZER_URL", str(func(c *Config) *string { return &c.Recognizer.BaseURL })},
	{"RECOGNIZER_CONCURRENCY", integer(func(c *Config) *int { return &c.Recognizer.Concurrency })},
	{"CONSENSUS", str(func(c *Config) *string { return &c.Recognizer.Consensus })},
	{"REDIS_ADDR", str(func(c *Config) *string { return &c.Cache.RedisAddr })},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.Cache.Password })},
	{"CACHE_TTL", duration(func(c *Config) *time.Duration { return &c.Cache.TTL })},
	{"OTLP_ENDPOINT", str(func(c *Config) *string { return &c.Tracing.Endpoint })},
	{"VERBOSE", boolean(func(c *Config) *bool { return &c.Log.Verbose })},
	{"LOG_JSON", boolean(func(c *Config) *bool { return &c.Log.JSON })},
	{"LOG_DIR", str(func(c *Config) *string { return &c.Log.Dir })},
}

// ApplyEnv overrides fields from SONGREC_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, b.name, v, err)
		}
	}
	return nil
}
