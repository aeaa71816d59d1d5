package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval      = 10 * time.Second
	defaultLongPollTimeout   = 100 * time.Second
	defaultInterpolationTick = time.Second
	defaultRequestTimeout    = 5 * time.Second
	defaultFailureThreshold  = 3
	defaultDiscoveryBackend  = "zeroconf"
	defaultDiscoveryTimeout  = 5 * time.Second
	defaultMaxBrowsePages    = 200
	defaultBrowseCacheTTL    = 30 * time.Second
	defaultBrowseCacheBytes  = 8 * 1024 * 1024
	defaultRateInterval      = time.Second
	defaultRateMaxWait       = 10 * time.Second
	defaultLookupTimeout     = 15 * time.Second
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultThumbnailSize     = 48
	defaultPreferencesFile   = ".bluctl.yaml"
)

// Flags holds command line options that shape configuration loading
type Flags struct {
	ConfigFile string
	LogFile    string
	LogLevel   string
	Host       string
}

// PlayerSettings tunes the status synchronizer and the device transport
type PlayerSettings struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	LongPoll          bool          `yaml:"long_poll"`
	LongPollTimeout   time.Duration `yaml:"long_poll_timeout"`
	InterpolationTick time.Duration `yaml:"interpolation_tick"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	FailureThreshold  int           `yaml:"failure_threshold"`
}

// DiscoverySettings selects and tunes the mDNS backend
type DiscoverySettings struct {
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrowseSettings tunes the browse traverser
type BrowseSettings struct {
	MaxPages   int           `yaml:"max_pages"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	CacheBytes int           `yaml:"cache_bytes"`
}

// EnrichSettings tunes background metadata lookups
type EnrichSettings struct {
	RateInterval  time.Duration `yaml:"rate_interval"`
	RateMaxWait   time.Duration `yaml:"rate_max_wait"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	OpenAIModel   string        `yaml:"openai_model"`
	ThumbnailSize int           `yaml:"thumbnail_size"`
}

// AppConfig holds application configuration
type AppConfig struct {
	Player          PlayerSettings    `yaml:"player"`
	Discovery       DiscoverySettings `yaml:"discovery"`
	Browse          BrowseSettings    `yaml:"browse"`
	Enrich          EnrichSettings    `yaml:"enrichment"`
	Notify          bool              `yaml:"notify"`
	PreferencesPath string            `yaml:"preferences_path"`
	Host            string            `yaml:"-"`
}

// Default returns the built-in configuration
func Default() *AppConfig {
	return &AppConfig{
		Player: PlayerSettings{
			PollInterval:      defaultPollInterval,
			LongPoll:          true,
			LongPollTimeout:   defaultLongPollTimeout,
			InterpolationTick: defaultInterpolationTick,
			RequestTimeout:    defaultRequestTimeout,
			FailureThreshold:  defaultFailureThreshold,
		},
		Discovery: DiscoverySettings{
			Backend: defaultDiscoveryBackend,
			Timeout: defaultDiscoveryTimeout,
		},
		Browse: BrowseSettings{
			MaxPages:   defaultMaxBrowsePages,
			CacheTTL:   defaultBrowseCacheTTL,
			CacheBytes: defaultBrowseCacheBytes,
		},
		Enrich: EnrichSettings{
			RateInterval:  defaultRateInterval,
			RateMaxWait:   defaultRateMaxWait,
			LookupTimeout: defaultLookupTimeout,
			OpenAIModel:   defaultOpenAIModel,
			ThumbnailSize: defaultThumbnailSize,
		},
		PreferencesPath: expandPath("~/" + defaultPreferencesFile),
	}
}

// NewAppConfig creates a new application configuration instance.
// Values come from the defaults, then the YAML file named by flags, then BLUCTL_* environment variables.
func NewAppConfig(logger *zap.Logger, flags Flags) (*AppConfig, error) {
	cfg := Default()

	if flags.ConfigFile != "" {
		if err := cfg.loadFile(flags.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.Host = flags.Host
	cfg.PreferencesPath = expandPath(cfg.PreferencesPath)

	logger.Info("Configuration loaded",
		zap.String("file", flags.ConfigFile),
		zap.Duration("pollInterval", cfg.Player.PollInterval),
		zap.Bool("longPoll", cfg.Player.LongPoll),
		zap.String("discovery", cfg.Discovery.Backend),
		zap.String("preferences", cfg.PreferencesPath))

	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	envDuration("BLUCTL_POLL_INTERVAL", &c.Player.PollInterval)
	envDuration("BLUCTL_LONG_POLL_TIMEOUT", &c.Player.LongPollTimeout)
	envDuration("BLUCTL_REQUEST_TIMEOUT", &c.Player.RequestTimeout)
	envBool("BLUCTL_LONG_POLL", &c.Player.LongPoll)
	envInt("BLUCTL_FAILURE_THRESHOLD", &c.Player.FailureThreshold)
	envString("BLUCTL_DISCOVERY", &c.Discovery.Backend)
	envDuration("BLUCTL_DISCOVERY_TIMEOUT", &c.Discovery.Timeout)
	envInt("BLUCTL_MAX_PAGES", &c.Browse.MaxPages)
	envString("BLUCTL_OPENAI_MODEL", &c.Enrich.OpenAIModel)
	envBool("BLUCTL_NOTIFY", &c.Notify)
	envString("BLUCTL_PREFERENCES", &c.PreferencesPath)
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// expandPath expands environment variables and a leading ~
func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	return p
}
