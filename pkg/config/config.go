package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"ofdl/pkg/sign"
)

const (
	// DefaultRulesURL serves the community-maintained header rule set.
	DefaultRulesURL = sign.DefaultRulesURL

	// DefaultTemplate names a media file after its date, id and caption.
	DefaultTemplate = "{date:%Y-%m-%d}.{media_id}.{text:.35}.{extension}"

	xbcAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	xbcLength   = 40
)

// Config holds all configuration options for the sync tool
type Config struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// HTTP transport settings shared by all scrapers
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Run loop settings
	Run RunConfig `yaml:"run" json:"run"`

	// Scrapers maps a scraper name to its identity settings
	Scrapers map[string]*ScraperConfig `yaml:"scrapers" json:"scrapers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// HTTPConfig governs every request an identity makes.
type HTTPConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	Backoff           time.Duration `yaml:"backoff" json:"backoff"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RunConfig holds settings for the run loop
type RunConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Workers  int           `yaml:"workers" json:"workers"`
}

// ScraperConfig is one authenticated identity.
type ScraperConfig struct {
	Cookie           string `yaml:"cookie" json:"cookie"`
	UserAgent        string `yaml:"user_agent" json:"user_agent"`
	Proxy            string `yaml:"proxy,omitempty" json:"proxy,omitempty"`
	XBC              string `yaml:"x_bc" json:"x_bc"`
	Rules            string `yaml:"rules" json:"rules"`
	DownloadRoot     string `yaml:"download_root" json:"download_root"`
	DownloadTemplate string `yaml:"download_template" json:"download_template"`
	SkipTemporary    bool   `yaml:"skip_temporary" json:"skip_temporary"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		HTTP: HTTPConfig{
			RequestTimeout: 10 * time.Second,
			MaxRetries:     10,
			Backoff:        time.Second,
		},
		Run: RunConfig{
			Interval: 5 * time.Second,
			Workers:  3,
		},
		Scrapers: map[string]*ScraperConfig{},
	}
}

// DefaultScraper returns a scraper with every optional field filled in.
func DefaultScraper() *ScraperConfig {
	s := &ScraperConfig{}
	s.applyDefaults()
	return s
}

func (s *ScraperConfig) applyDefaults() {
	if s.XBC == "" {
		s.XBC = GenerateXBC()
	}
	if s.Rules == "" {
		s.Rules = DefaultRulesURL
	}
	if s.DownloadRoot == "" {
		s.DownloadRoot = "downloads"
	}
	if s.DownloadTemplate == "" {
		s.DownloadTemplate = DefaultTemplate
	}
}

// GenerateXBC returns a fresh 40-character browser fingerprint token.
func GenerateXBC() string {
	var sb strings.Builder
	sb.Grow(xbcLength)
	max := big.NewInt(int64(len(xbcAlphabet)))
	for i := 0; i < xbcLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		sb.WriteByte(xbcAlphabet[n.Int64()])
	}
	return sb.String()
}

// DefaultPath is where the config lives when no path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "ofdl", "scrapers.yaml")
}

// Names returns the scraper names in a stable order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Scrapers))
	for name := range c.Scrapers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if level := os.Getenv("OFDL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("OFDL_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
	if workers := os.Getenv("OFDL_WORKERS"); workers != "" {
		val, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("OFDL_WORKERS: %w", err)
		}
		c.Run.Workers = val
	}
	if root := os.Getenv("OFDL_DOWNLOAD_ROOT"); root != "" {
		for _, s := range c.Scrapers {
			s.DownloadRoot = root
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file. A missing file is not
// an error.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	for name, s := range c.Scrapers {
		if s == nil {
			s = &ScraperConfig{}
			c.Scrapers[name] = s
		}
		s.applyDefaults()
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.HTTP.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if c.HTTP.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.Run.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Run.Interval < 0 {
		errs = append(errs, errors.New("interval cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	for _, name := range c.Names() {
		s := c.Scrapers[name]
		if s.DownloadRoot == "" {
			errs = append(errs, fmt.Errorf("scraper %s: download_root is required", name))
		}
		if s.DownloadTemplate == "" {
			errs = append(errs, fmt.Errorf("scraper %s: download_template is required", name))
		}
		if len(s.XBC) != xbcLength {
			errs = append(errs, fmt.Errorf("scraper %s: x_bc must be %d characters", name, xbcLength))
		}
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: environment (including .env) > config file > defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".ofdl.env"))

	if path == "" {
		path = DefaultPath()
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(path); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}
