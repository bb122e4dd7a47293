package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env            string
	ServiceName    string
	ServiceVersion string

	Port        string
	CORSOrigins []string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	OtelExporterOTLPEndpoint string
	OtelExporterOTLPHeaders  string

	Cache     CacheConfig
	Scheduler SchedulerConfig
}

// CacheConfig sizes the process-wide cache. Both values are read once at
// startup.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the default entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type SchedulerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SweepSpec string `yaml:"sweep_spec"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      os.Getenv("ENVIRONMENT"),
		ServiceName:              os.Getenv("APP_NAME"),
		ServiceVersion:           os.Getenv("SERVICE_VERSION"),
		Port:                     os.Getenv("PORT"),
		CORSOrigins:              ParseOrigins(os.Getenv("CORS_ORIGINS")),
		OpenAIKey:                os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:            os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:              os.Getenv("OPENAI_MODEL"),
		OtelExporterOTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OtelExporterOTLPHeaders:  os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
		Scheduler: SchedulerConfig{
			SweepSpec: os.Getenv("CACHE_SWEEP_SPEC"),
		},
	}

	var err error
	if cfg.Cache.MaxEntries, err = intFromEnv("CACHE_MAX_ENTRIES"); err != nil {
		return nil, err
	}
	if cfg.Cache.TTLSeconds, err = intFromEnv("CACHE_TTL_SECONDS"); err != nil {
		return nil, err
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		if cfg.Scheduler.Enabled, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("SCHEDULER_ENABLED must be a boolean: %w", err)
		}
	}

	// Load from YAML file if available
	if err := cfg.LoadFromYAML("config.yaml"); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	// Set defaults
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ttlcache"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "1.0.0"
	}
	if cfg.Port == "" {
		cfg.Port = "8000"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.OpenAIBaseURL == "" {
		cfg.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}

	cfg.SetCacheDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func (c *Config) LoadFromYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is not an error
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlConfig struct {
		Cache     CacheConfig     `yaml:"cache"`
		Scheduler SchedulerConfig `yaml:"scheduler"`
	}

	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// Only values present in the file override what is already set
	if yamlConfig.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = yamlConfig.Cache.MaxEntries
	}
	if yamlConfig.Cache.TTLSeconds != 0 {
		c.Cache.TTLSeconds = yamlConfig.Cache.TTLSeconds
	}
	if yamlConfig.Scheduler.Enabled {
		c.Scheduler.Enabled = true
	}
	if yamlConfig.Scheduler.SweepSpec != "" {
		c.Scheduler.SweepSpec = yamlConfig.Scheduler.SweepSpec
	}

	return nil
}

func (c *Config) SetCacheDefaults() {
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 600
	}
	if c.Scheduler.SweepSpec == "" {
		c.Scheduler.SweepSpec = "@every 1m"
	}
}

// ParseOrigins accepts "a,b" or "[a, b]" and returns the trimmed origins.
func ParseOrigins(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "[")
	v = strings.TrimSuffix(v, "]")
	if v == "" {
		return nil
	}

	var origins []string
	for _, o := range strings.Split(v, ",") {
		o = strings.Trim(strings.TrimSpace(o), `"'`)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func intFromEnv(name string) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return n, nil
}

func (c *Config) validate() error {
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive, got %d", c.Cache.TTLSeconds)
	}
	if _, err := cron.ParseStandard(c.Scheduler.SweepSpec); err != nil {
		return fmt.Errorf("CACHE_SWEEP_SPEC is invalid: %w", err)
	}
	return nil
}
