package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Config contains the service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Paths      PathsConfig      `yaml:"paths" toml:"paths"`
	Download   DownloadConfig   `yaml:"download" toml:"download"`
	Retry      RetryConfig      `yaml:"retry" toml:"retry"`
	Segment    SegmentConfig    `yaml:"segment" toml:"segment"`
	Recognizer RecognizerConfig `yaml:"recognizer" toml:"recognizer"`
	Cache      CacheConfig      `yaml:"cache" toml:"cache"`
	Tracing    TracingConfig    `yaml:"tracing" toml:"tracing"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" toml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" toml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	// RateLimit is the number of recognition requests allowed per client IP
	// per minute. Zero disables limiting.
	RateLimit      int   `yaml:"rate_limit" toml:"rate_limit"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
}

type PathsConfig struct {
	OutputDir  string `yaml:"output_dir" toml:"output_dir"`
	StagingDir string `yaml:"staging_dir" toml:"staging_dir"`
}

type DownloadConfig struct {
	Concurrency    int           `yaml:"concurrency" toml:"concurrency"`
	ChunkSize      int           `yaml:"chunk_size" toml:"chunk_size"`
	Timeout        time.Duration `yaml:"timeout" toml:"timeout"`
	MaxBytes       int64         `yaml:"max_bytes" toml:"max_bytes"`
	YtDlpPath      string        `yaml:"ytdlp_path" toml:"ytdlp_path"`
	Fragments      int           `yaml:"fragments" toml:"fragments"`
	CookiesBrowser string        `yaml:"cookies_browser" toml:"cookies_browser"`
}

type RetryConfig struct {
	Retries       int           `yaml:"retries" toml:"retries"`
	InitialDelay  time.Duration `yaml:"initial_delay" toml:"initial_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" toml:"backoff_factor"`
}

type SegmentConfig struct {
	ClipLengthMS int    `yaml:"clip_length_ms" toml:"clip_length_ms"`
	FFmpegPath   string `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	FFprobePath  string `yaml:"ffprobe_path" toml:"ffprobe_path"`
}

type RecognizerConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	// RateLimit is in requests per second, zero means unlimited.
	RateLimit   float64 `yaml:"rate_limit" toml:"rate_limit"`
	Burst       int     `yaml:"burst" toml:"burst"`
	Concurrency int     `yaml:"concurrency" toml:"concurrency"`
	Consensus   string  `yaml:"consensus" toml:"consensus"`
}

// CacheConfig enables the track lookup cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr" toml:"redis_addr"`
	Password  string        `yaml:"password" toml:"password"`
	DB        int           `yaml:"db" toml:"db"`
	TTL       time.Duration `yaml:"ttl" toml:"ttl"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint" toml:"endpoint"`
	Insecure     bool    `yaml:"insecure" toml:"insecure"`
	SamplingRate float64 `yaml:"sampling_rate" toml:"sampling_rate"`
}

type LogConfig struct {
	Verbose bool   `yaml:"verbose" toml:"verbose"`
	JSON    bool   `yaml:"json" toml:"json"`
	Dir     string `yaml:"dir" toml:"dir"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	base := filepath.Join(os.TempDir(), "songrec")
	return Config{
		Server: ServerConfig{
			Addr:              ":8000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			RateLimit:         60,
			MaxUploadBytes:    200 << 20,
		},
		Paths: PathsConfig{
			OutputDir:  filepath.Join(base, "output"),
			StagingDir: filepath.Join(base, "staging"),
		},
		Download: DownloadConfig{
			Concurrency: 30,
			ChunkSize:   32 << 10,
			Timeout:     5 * time.Minute,
			MaxBytes:    500 << 20,
			YtDlpPath:   "yt-dlp",
			Fragments:   10,
		},
		Retry: RetryConfig{
			Retries:       3,
			InitialDelay:  time.Second,
			BackoffFactor: 2,
		},
		Segment: SegmentConfig{
			ClipLengthMS: 10000,
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
		},
		Recognizer: RecognizerConfig{
			BaseURL:     "http://127.0.0.1:8080",
			Timeout:     30 * time.Second,
			Concurrency: 1,
			Consensus:   "mean",
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Tracing: TracingConfig{
			SamplingRate: 1.0,
		},
		Log: LogConfig{
			Dir: GetDefaultLogPath(),
		},
	}
}

// LoadConfigFile loads configuration from a YAML or TOML file, chosen by
// extension, then applies SONGREC_* environment overrides.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
	}

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	cfg.Paths.OutputDir = ExpandHome(cfg.Paths.OutputDir)
	cfg.Paths.StagingDir = ExpandHome(cfg.Paths.StagingDir)
	cfg.Log.Dir = ExpandHome(cfg.Log.Dir)

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./songrec.yaml",
		"./songrec.yml",
		"./songrec.toml",
		filepath.Join(home, ".config", "songrec", "config.yaml"),
		filepath.Join(home, ".config", "songrec", "config.yml"),
		filepath.Join(home, ".config", "songrec", "config.toml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile atomically writes the configuration, as TOML when path
// ends in .toml and YAML otherwise.
func SaveConfigFile(cfg Config, path string) error {
	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := renameio.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "songrec", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "songrec", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// ClipLength returns the configured segment length.
func (c *Config) ClipLength() time.Duration {
	return time.Duration(c.Segment.ClipLengthMS) * time.Millisecond
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit cannot be negative, got %d", c.Server.RateLimit)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}

	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir cannot be empty")
	}
	if c.Paths.StagingDir == "" {
		return fmt.Errorf("paths.staging_dir cannot be empty")
	}

	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download.concurrency must be at least 1, got %d", c.Download.Concurrency)
	}
	if c.Download.ChunkSize < 1 {
		return fmt.Errorf("download.chunk_size must be at least 1, got %d", c.Download.ChunkSize)
	}
	if c.Download.MaxBytes < 0 {
		return fmt.Errorf("download.max_bytes cannot be negative, got %d", c.Download.MaxBytes)
	}

	if c.Retry.Retries < 1 {
		return fmt.Errorf("retry.retries must be at least 1, got %d", c.Retry.Retries)
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry.initial_delay cannot be negative, got %s", c.Retry.InitialDelay)
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be at least 1, got %.2f", c.Retry.BackoffFactor)
	}

	if c.Segment.ClipLengthMS < 1 {
		return fmt.Errorf("segment.clip_length_ms must be positive, got %d", c.Segment.ClipLengthMS)
	}

	u, err := url.Parse(c.Recognizer.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("recognizer.base_url must be an http:// or https:// URL, got %q", c.Recognizer.BaseURL)
	}
	if c.Recognizer.Concurrency < 1 {
		return fmt.Errorf("recognizer.concurrency must be at least 1, got %d", c.Recognizer.Concurrency)
	}
	if c.Recognizer.RateLimit < 0 {
		return fmt.Errorf("recognizer.rate_limit cannot be negative, got %.2f", c.Recognizer.RateLimit)
	}
	switch c.Recognizer.Consensus {
	case "", "mean", "mode-mean":
	default:
		return fmt.Errorf("unknown recognizer.consensus %q, valid: mean, mode-mean", c.Recognizer.Consensus)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative, got %s", c.Cache.TTL)
	}

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing.sampling_rate must be between 0.0 and 1.0, got %.2f", c.Tracing.SamplingRate)
	}

	return nil
}
