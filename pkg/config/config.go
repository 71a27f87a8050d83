package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the archiver
type Config struct {
	// Share links or profile/collection URLs to archive
	Links []string `yaml:"links" json:"links"`

	// Douyin API settings
	Douyin DouyinConfig `yaml:"douyin" json:"douyin"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Pagination and crawl settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Which posting surfaces to archive for profile links
	Modes []string `yaml:"modes" json:"modes"`

	// Per-mode crawl settings keyed by mode name
	ModeTable map[string]ModeSetting `yaml:"mode_table" json:"mode_table"`

	// Which companion media to save alongside each item
	Media MediaConfig `yaml:"media" json:"media"`

	// Record store settings
	Store StoreConfig `yaml:"store" json:"store"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// DouyinConfig holds API access configuration
type DouyinConfig struct {
	Cookie    string `yaml:"cookie" json:"cookie"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	Referer   string `yaml:"referer" json:"referer"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory  string `yaml:"base_directory" json:"base_directory"`
	ItemSubfolders bool   `yaml:"item_subfolders" json:"item_subfolders"`
	SaveMetadata   bool   `yaml:"save_metadata" json:"save_metadata"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers       int           `yaml:"workers" json:"workers"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay"`
	SweepLimit    int           `yaml:"sweep_limit" json:"sweep_limit"`
}

// FetchConfig holds pagination and crawl configuration
type FetchConfig struct {
	PageSize    int           `yaml:"page_size" json:"page_size"`
	PageTimeout time.Duration `yaml:"page_timeout" json:"page_timeout"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	StartTime   string        `yaml:"start_time" json:"start_time"`
	EndTime     string        `yaml:"end_time" json:"end_time"`
}

// ModeSetting holds per-mode crawl behaviour
type ModeSetting struct {
	// Limit caps how many items the crawl yields (0 means all)
	Limit int `yaml:"limit" json:"limit"`
	// Incremental stops the crawl at the first unpinned already-seen item
	Incremental bool `yaml:"incremental" json:"incremental"`
}

// MediaConfig selects companion media saved alongside each item
type MediaConfig struct {
	Music  bool `yaml:"music" json:"music"`
	Cover  bool `yaml:"cover" json:"cover"`
	Avatar bool `yaml:"avatar" json:"avatar"`
}

// StoreConfig holds record store configuration
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Mode names accepted in Modes and ModeTable. Post, like, and mix are
// profile surfaces; music keys the crawl settings for soundtrack links.
const (
	ModePost  = "post"
	ModeLike  = "like"
	ModeMix   = "mix"
	ModeMusic = "music"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Douyin: DouyinConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			Referer:   "https://www.douyin.com/",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Output: OutputConfig{
			BaseDirectory:  "./downloads",
			ItemSubfolders: true,
			SaveMetadata:   true,
		},
		Download: DownloadConfig{
			Workers:       5,
			Timeout:       60 * time.Second,
			RetryAttempts: 5,
			RetryDelay:    time.Second,
			SweepLimit:    3,
		},
		Fetch: FetchConfig{
			PageSize:    35,
			PageTimeout: 10 * time.Second,
			MaxAttempts: 5,
			StartTime:   "",
			EndTime:     "",
		},
		Modes: []string{ModePost},
		ModeTable: map[string]ModeSetting{
			ModePost:  {Limit: 0, Incremental: false},
			ModeLike:  {Limit: 0, Incremental: false},
			ModeMix:   {Limit: 0, Incremental: false},
			ModeMusic: {Limit: 0, Incremental: false},
		},
		Media: MediaConfig{
			Music:  false,
			Cover:  false,
			Avatar: false,
		},
		Store: StoreConfig{
			Enabled: true,
			Path:    "./douyindl.json",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ModeFor returns the crawl settings for a mode, falling back to zero values
func (c *Config) ModeFor(mode string) ModeSetting {
	if c.ModeTable == nil {
		return ModeSetting{}
	}
	return c.ModeTable[mode]
}

// timeLayout is the accepted format for start_time and end_time
const timeLayout = "2006-01-02"

// TimeBounds parses the configured crawl window. A zero time means the
// bound is open. EndTime accepts the literal "now".
func (c *Config) TimeBounds() (since, until time.Time, err error) {
	if s := strings.TrimSpace(c.Fetch.StartTime); s != "" {
		since, err = time.ParseInLocation(timeLayout, s, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start_time %q: %w", s, err)
		}
	}

	if e := strings.TrimSpace(c.Fetch.EndTime); e != "" {
		if strings.EqualFold(e, "now") {
			until = time.Now()
		} else {
			until, err = time.ParseInLocation(timeLayout, e, time.Local)
			if err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("invalid end_time %q: %w", e, err)
			}
			// Inclusive day bound
			until = until.Add(24*time.Hour - time.Second)
		}
	}

	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time %q is before start_time %q", c.Fetch.EndTime, c.Fetch.StartTime)
	}

	return since, until, nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if cookie := os.Getenv("DOUYINDL_COOKIE"); cookie != "" {
		c.Douyin.Cookie = cookie
	}
	if userAgent := os.Getenv("DOUYINDL_USER_AGENT"); userAgent != "" {
		c.Douyin.UserAgent = userAgent
	}

	if rpm := os.Getenv("DOUYINDL_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	if outputDir := os.Getenv("DOUYINDL_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}

	if workers := os.Getenv("DOUYINDL_WORKERS"); workers != "" {
		var val int
		fmt.Sscanf(workers, "%d", &val)
		if val > 0 {
			c.Download.Workers = val
		}
	}

	if storePath := os.Getenv("DOUYINDL_STORE_PATH"); storePath != "" {
		c.Store.Path = storePath
	}

	if logLevel := os.Getenv("DOUYINDL_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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
	locations := []string{
		".douyindl.yaml",
		".douyindl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "douyindl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "douyindl", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".douyindl.yaml"),
		filepath.Join(os.Getenv("HOME"), ".douyindl.yml"),
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

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("download workers must be positive"))
	}
	if c.Download.Workers > 16 {
		errs = append(errs, errors.New("download workers should not exceed 16"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.SweepLimit < 0 {
		errs = append(errs, errors.New("sweep limit cannot be negative"))
	}

	if c.Fetch.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Fetch.MaxAttempts <= 0 {
		errs = append(errs, errors.New("fetch max attempts must be positive"))
	}
	if c.Fetch.PageTimeout <= 0 {
		errs = append(errs, errors.New("page timeout must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	for _, mode := range c.Modes {
		switch mode {
		case ModePost, ModeLike, ModeMix:
		default:
			errs = append(errs, fmt.Errorf("unknown mode %q", mode))
		}
	}

	if _, _, err := c.TimeBounds(); err != nil {
		errs = append(errs, err)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
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

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if links, ok := flags["links"].([]string); ok && len(links) > 0 {
		c.Links = append(c.Links, links...)
	}
	if cookie, ok := flags["cookie"].(string); ok && cookie != "" {
		c.Douyin.Cookie = cookie
	}
	if outputDir, ok := flags["path"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Download.Workers = workers
	}
	if modes, ok := flags["modes"].([]string); ok && len(modes) > 0 {
		c.Modes = modes
	}
	if noStore, ok := flags["no-store"].(bool); ok && noStore {
		c.Store.Enabled = false
	}
	if music, ok := flags["music"].(bool); ok {
		c.Media.Music = music
	}
	if cover, ok := flags["cover"].(bool); ok {
		c.Media.Cover = cover
	}
	if avatar, ok := flags["avatar"].(bool); ok {
		c.Media.Avatar = avatar
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if limit, ok := flags["limit"].(int); ok && limit > 0 {
		if c.ModeTable == nil {
			c.ModeTable = make(map[string]ModeSetting)
		}
		for _, mode := range []string{ModePost, ModeLike, ModeMix, ModeMusic} {
			setting := c.ModeTable[mode]
			setting.Limit = limit
			c.ModeTable[mode] = setting
		}
	}
	if incremental, ok := flags["incremental"].(bool); ok && incremental {
		if c.ModeTable == nil {
			c.ModeTable = make(map[string]ModeSetting)
		}
		for _, mode := range []string{ModePost, ModeLike, ModeMix, ModeMusic} {
			setting := c.ModeTable[mode]
			setting.Incremental = true
			c.ModeTable[mode] = setting
		}
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".env"))
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".douyindl.env"))

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
