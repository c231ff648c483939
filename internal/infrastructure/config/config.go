package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ProviderConfig describes one configured LLM endpoint.
type ProviderConfig struct {
	Name     string   `mapstructure:"name" yaml:"name"`
	Type     string   `mapstructure:"type" yaml:"type"` // anthropic | openai | gemini | mock
	BaseURL  string   `mapstructure:"base_url" yaml:"base_url"`
	APIKey   string   `mapstructure:"api_key" yaml:"api_key"`
	Models   []string `mapstructure:"models" yaml:"models"`
	Priority int      `mapstructure:"priority" yaml:"priority"`
	// Kind selects the §4.1 rate-limiter profile (high_throughput | moderate | conservative).
	// Left empty, ProfileForProviderName classifies it from Name.
	Kind string `mapstructure:"kind" yaml:"kind"`
}

// LimiterConfig holds the limiter section of the config file. The CLI does
// not pass it to the rate limiter, which takes its defaults from
// ratelimiter.Profiles and its initial workers/QPS from --workers/--qps.
type LimiterConfig struct {
	InitialWorkers  int     `mapstructure:"initial_workers"`
	InitialQPS      float64 `mapstructure:"initial_qps"`
	MinWorkers      int     `mapstructure:"min_workers"`
	MaxWorkers      int     `mapstructure:"max_workers"`
	MinQPS          float64 `mapstructure:"min_qps"`
	MaxQPS          float64 `mapstructure:"max_qps"`
	BackoffFactor   float64 `mapstructure:"backoff_factor"`
	RecoveryFactor  float64 `mapstructure:"recovery_factor"`
	StableThreshold int     `mapstructure:"stable_threshold"`
}

// StoreConfig configures the ResultStore (§4.4).
type StoreConfig struct {
	Format             string `mapstructure:"format"` // document | rowlog
	DocumentPath       string `mapstructure:"document_path"`
	RowLogPath         string `mapstructure:"rowlog_path"`
	CheckpointInterval int    `mapstructure:"checkpoint_interval"` // 0 disables intermediate checkpoints
}

// LedgerConfig configures the crash-recovery task ledger.
type LedgerConfig struct {
	Type string `mapstructure:"type"` // sqlite | postgres
	DSN  string `mapstructure:"dsn"`
}

// PlanDefaults holds the plan section of the config file. The CLI does not
// read it: the Cartesian-product planner (§4.6) is seeded from the
// command-line flags.
type PlanDefaults struct {
	Models             []string `mapstructure:"models"`
	TaskTypes          []string `mapstructure:"task_types"`
	PromptTypes        []string `mapstructure:"prompt_types"`
	Difficulty         []string `mapstructure:"difficulty"`
	PerCell            int      `mapstructure:"per_cell"`
	Workers            int      `mapstructure:"workers"`
	QPS                float64  `mapstructure:"qps"`
	Adaptive           bool     `mapstructure:"adaptive"`
	HardTimeoutSeconds int      `mapstructure:"hard_timeout_seconds"`
	SoftTimeoutSeconds int      `mapstructure:"soft_timeout_seconds"`
}

// LogConfig mirrors the teacher's logger.Config.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Config is the root harness configuration.
type Config struct {
	Providers []ProviderConfig `mapstructure:"providers"`
	Limiter   LimiterConfig    `mapstructure:"limiter"`
	Store     StoreConfig      `mapstructure:"store"`
	Ledger    LedgerConfig     `mapstructure:"ledger"`
	Plan      PlanDefaults     `mapstructure:"plan"`
	Log       LogConfig        `mapstructure:"log"`

	// Env toggles from §6, bound directly so callers don't re-read os.Getenv.
	StorageFormat     string `mapstructure:"storage_format"`
	UsePartialLoading bool   `mapstructure:"use_partial_loading"`
	TaskLoadCount     int    `mapstructure:"task_load_count"`
	SkipModelLoading  bool   `mapstructure:"skip_model_loading"`

	HTTPEnabled bool   `mapstructure:"http_enabled"`
	HTTPAddr    string `mapstructure:"http_addr"`

	// OTelEndpoint is an OTLP/HTTP collector address (e.g. "localhost:4318").
	// Empty runs the tracer with no exporter — spans are created and ended
	// but never leave the process.
	OTelEndpoint string `mapstructure:"otel_endpoint"`
	OTelInsecure bool   `mapstructure:"otel_insecure"`
}

// Load builds the harness configuration the way the teacher's Load() does:
// .env first, then a global file, then a project-local override, then env vars.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	globalPath := filepath.Join(HomeDir(), "config.yaml")
	if _, err := os.Stat(globalPath); err == nil {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read global config %s: %w", globalPath, err)
		}
	}

	for _, candidate := range []string{
		filepath.Join("config", "config.yaml"),
		"config.yaml",
		"evalharness.yaml",
	} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		v.SetConfigFile(candidate)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merge local config %s: %w", candidate, err)
		}
		break
	}

	v.SetEnvPrefix("EVALHARNESS")
	v.AutomaticEnv()
	bindEnvToggles(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.StorageFormat != "" {
		cfg.Store.Format = cfg.StorageFormat
	}

	return &cfg, nil
}

func bindEnvToggles(v *viper.Viper) {
	_ = v.BindEnv("storage_format", "STORAGE_FORMAT")
	_ = v.BindEnv("use_partial_loading", "USE_PARTIAL_LOADING")
	_ = v.BindEnv("task_load_count", "TASK_LOAD_COUNT")
	_ = v.BindEnv("skip_model_loading", "SKIP_MODEL_LOADING")
	_ = v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("limiter.initial_workers", 5)
	v.SetDefault("limiter.initial_qps", 10.0)
	v.SetDefault("limiter.min_workers", 1)
	v.SetDefault("limiter.max_workers", 20)
	v.SetDefault("limiter.min_qps", 1.0)
	v.SetDefault("limiter.max_qps", 50.0)
	v.SetDefault("limiter.backoff_factor", 0.5)
	v.SetDefault("limiter.recovery_factor", 1.2)
	v.SetDefault("limiter.stable_threshold", 20)

	v.SetDefault("store.format", "document")
	v.SetDefault("store.document_path", filepath.Join(HomeDir(), "results", "summary.json"))
	v.SetDefault("store.rowlog_path", filepath.Join(HomeDir(), "results", "records.arrow"))
	v.SetDefault("store.checkpoint_interval", 20)

	v.SetDefault("ledger.type", "sqlite")
	v.SetDefault("ledger.dsn", filepath.Join(HomeDir(), "ledger.db"))

	v.SetDefault("plan.task_types", []string{"all"})
	v.SetDefault("plan.prompt_types", []string{"all"})
	v.SetDefault("plan.difficulty", []string{"all"})
	v.SetDefault("plan.per_cell", 1)
	v.SetDefault("plan.workers", 5)
	v.SetDefault("plan.qps", 10.0)
	v.SetDefault("plan.adaptive", true)
	v.SetDefault("plan.hard_timeout_seconds", 900)
	v.SetDefault("plan.soft_timeout_seconds", 600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("storage_format", "document")
	v.SetDefault("use_partial_loading", false)
	v.SetDefault("task_load_count", 0)
	v.SetDefault("skip_model_loading", false)

	v.SetDefault("http_enabled", false)
	v.SetDefault("http_addr", "127.0.0.1:8791")

	v.SetDefault("otel_endpoint", "")
	v.SetDefault("otel_insecure", true)
}

// ProfileForProviderName classifies a provider into a rate-limiter kind by
// substring match on its name, mirroring original_source/adaptive_rate_limiter.py's
// `if 'idealab' in api_provider.lower()` / `'azure' in ...` branches.
func ProfileForProviderName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "azure"):
		return "high_throughput"
	case strings.Contains(lower, "idealab"):
		return "conservative"
	default:
		return "moderate"
	}
}

// loadProviderOverrides reads a hand-edited JSON provider list, the
// evalharness equivalent of the teacher's openclaw.json compat shim.
func loadProviderOverrides(path string) ([]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var providers []ProviderConfig
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return providers, nil
}
