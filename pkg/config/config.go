package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment variable the scraper reads
const envPrefix = "PINSCRAPER_"

// Caption modes understood by the pipeline
const (
	CaptionNone     = "none"
	CaptionTxt      = "txt"
	CaptionJSON     = "json"
	CaptionMetadata = "metadata"
)

// Config holds all configuration options for the Pinterest scraper
type Config struct {
	// Remote service settings
	Pinterest PinterestConfig `yaml:"pinterest" json:"pinterest"`

	// Automated browser settings for scroll discovery
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Cookie session settings
	Session SessionConfig `yaml:"session" json:"session"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry policy for per-item downloads and API pages
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PinterestConfig holds service endpoints and request settings
type PinterestConfig struct {
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	APIBaseURL   string        `yaml:"api_base_url" json:"api_base_url"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	PageSize     int           `yaml:"page_size" json:"page_size"`
	RequestDelay time.Duration `yaml:"request_delay" json:"request_delay"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// BrowserConfig holds settings for the browser-driven crawl loop
type BrowserConfig struct {
	ControlURL     string        `yaml:"control_url" json:"control_url"`
	Bin            string        `yaml:"bin" json:"bin"`
	Headless       bool          `yaml:"headless" json:"headless"`
	Incognito      bool          `yaml:"incognito" json:"incognito"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	PassDelay      time.Duration `yaml:"pass_delay" json:"pass_delay"`
	StallThreshold int           `yaml:"stall_threshold" json:"stall_threshold"`
	MaxPasses      int           `yaml:"max_passes" json:"max_passes"`
	EnsureAlt      bool          `yaml:"ensure_alt" json:"ensure_alt"`
}

// SessionConfig describes the cookie artifact handed to discovery backends
type SessionConfig struct {
	UseCookies bool   `yaml:"use_cookies" json:"use_cookies"`
	CookieFile string `yaml:"cookie_file" json:"cookie_file"`
	Profile    string `yaml:"profile" json:"profile"`
}

// RateLimitConfig holds per-host throttling configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// RetryConfig holds retry and backoff configuration
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
	JitterFactor float64       `yaml:"jitter_factor" json:"jitter_factor"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers        int           `yaml:"workers" json:"workers"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	FailFast       bool          `yaml:"fail_fast" json:"fail_fast"`
	IncludeStreams bool          `yaml:"include_streams" json:"include_streams"`
	FFmpegPath     string        `yaml:"ffmpeg_path" json:"ffmpeg_path"`
}

// OutputConfig holds output directory and enrichment configuration
type OutputConfig struct {
	Root      string `yaml:"root" json:"root"`
	Caption   string `yaml:"caption" json:"caption"`
	MinWidth  int    `yaml:"min_width" json:"min_width"`
	MinHeight int    `yaml:"min_height" json:"min_height"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Pinterest: PinterestConfig{
			BaseURL:      "https://www.pinterest.com",
			APIBaseURL:   "https://www.pinterest.com/resource",
			UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			PageSize:     25,
			RequestDelay: 200 * time.Millisecond,
			Timeout:      30 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:       true,
			Incognito:      false,
			Timeout:        60 * time.Second,
			PassDelay:      2 * time.Second,
			StallThreshold: 10,
			MaxPasses:      800,
		},
		Session: SessionConfig{
			UseCookies: false,
			CookieFile: filepath.Join("cookies", "cookies.json"),
			Profile:    "default",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 4,
			Burst:             4,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		Download: DownloadConfig{
			Workers:        4,
			Timeout:        60 * time.Second,
			FailFast:       false,
			IncludeStreams: false,
			FFmpegPath:     "ffmpeg",
		},
		Output: OutputConfig{
			Root:    "downloads",
			Caption: CaptionNone,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from PINSCRAPER_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = b
	}

	setString("BASE_URL", &c.Pinterest.BaseURL)
	setString("API_BASE_URL", &c.Pinterest.APIBaseURL)
	setString("USER_AGENT", &c.Pinterest.UserAgent)
	setString("BROWSER_CONTROL_URL", &c.Browser.ControlURL)
	setString("BROWSER_BIN", &c.Browser.Bin)
	setBool("HEADLESS", &c.Browser.Headless)
	setBool("USE_COOKIES", &c.Session.UseCookies)
	setString("COOKIE_FILE", &c.Session.CookieFile)
	setString("COOKIE_PROFILE", &c.Session.Profile)
	setInt("WORKERS", &c.Download.Workers)
	setBool("FAIL_FAST", &c.Download.FailFast)
	setBool("INCLUDE_STREAMS", &c.Download.IncludeStreams)
	setString("FFMPEG_PATH", &c.Download.FFmpegPath)
	setInt("MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	setString("OUTPUT_DIR", &c.Output.Root)
	setString("CAPTION", &c.Output.Caption)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	if v := os.Getenv(envPrefix + "REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sREQUESTS_PER_SECOND: %w", envPrefix, err))
		} else {
			c.RateLimit.RequestsPerSecond = rps
		}
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".pinscraper.yaml",
		".pinscraper.yml",
		filepath.Join(home, ".config", "pinscraper", "config.yaml"),
		filepath.Join(home, ".config", "pinscraper", "config.yml"),
		filepath.Join(home, ".pinscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Pinterest.BaseURL == "" {
		errs = append(errs, errors.New("pinterest base URL is required"))
	}
	if c.Pinterest.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}

	if c.Browser.StallThreshold <= 0 {
		errs = append(errs, errors.New("stall threshold must be positive"))
	}
	if c.Browser.MaxPasses < c.Browser.StallThreshold {
		errs = append(errs, errors.New("max passes must not be lower than the stall threshold"))
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests per second must be positive"))
	}
	if c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("burst must be positive"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry multiplier must be at least 1"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Download.Workers > 32 {
		errs = append(errs, errors.New("workers should not exceed 32"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Output.Root == "" {
		errs = append(errs, errors.New("output root is required"))
	}
	if !IsCaptionMode(c.Output.Caption) {
		errs = append(errs, fmt.Errorf("invalid caption mode %q", c.Output.Caption))
	}
	if c.Output.MinWidth < 0 || c.Output.MinHeight < 0 {
		errs = append(errs, errors.New("minimum resolution cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// IsCaptionMode reports whether mode names a supported caption mode
func IsCaptionMode(mode string) bool {
	switch mode {
	case CaptionNone, CaptionTxt, CaptionJSON, CaptionMetadata:
		return true
	}
	return false
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.Root = v
	}
	if v, ok := flags["caption"].(string); ok && v != "" {
		c.Output.Caption = v
	}
	if v, ok := flags["min-width"].(int); ok {
		c.Output.MinWidth = v
	}
	if v, ok := flags["min-height"].(int); ok {
		c.Output.MinHeight = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Download.Workers = v
	}
	if v, ok := flags["fail-fast"].(bool); ok {
		c.Download.FailFast = v
	}
	if v, ok := flags["video"].(bool); ok {
		c.Download.IncludeStreams = v
	}
	if v, ok := flags["max-attempts"].(int); ok && v > 0 {
		c.Retry.MaxAttempts = v
	}
	if v, ok := flags["cookies"].(bool); ok {
		c.Session.UseCookies = v
	}
	if v, ok := flags["cookie-file"].(string); ok && v != "" {
		c.Session.CookieFile = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["incognito"].(bool); ok {
		c.Browser.Incognito = v
	}
	if v, ok := flags["ensure-alt"].(bool); ok {
		c.Browser.EnsureAlt = v
	}
	if v, ok := flags["delay"].(time.Duration); ok && v >= 0 {
		c.Pinterest.RequestDelay = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Missing .env files are fine
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".pinscraper.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
