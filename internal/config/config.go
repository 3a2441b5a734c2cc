package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the faultline API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	Fusion    FusionConfig    `yaml:"fusion"`
	Reasoner  ReasonerConfig  `yaml:"reasoner"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig holds one reasoning/embedding provider's settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// LLMConfig holds reasoning and embedding provider settings.
type LLMConfig struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
	// Generator selects the provider and model for diagnosis/answer generation.
	Generator ModelRef `yaml:"generator"`
	// Classifier selects the provider and model for the router fallback.
	Classifier ModelRef `yaml:"classifier"`
	// Embedder selects the provider and model for query embeddings.
	Embedder EmbedderRef `yaml:"embedder"`
	// RequestTimeoutSec bounds a single provider call.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

// ModelRef names a provider and a chat model.
type ModelRef struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// EmbedderRef names a provider, an embedding model, and its dimensions.
type EmbedderRef struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Capacity      int `yaml:"capacity"`
	DefaultTTLSec int `yaml:"default_ttl_sec"`
}

// FusionConfig holds reciprocal rank fusion settings.
type FusionConfig struct {
	// RRFK is the smoothing constant k in 1/(k+rank).
	RRFK int `yaml:"rrf_k"`
}

// ReasonerConfig holds graph traversal settings.
type ReasonerConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// ConsensusConfig holds expert fan-out settings.
type ConsensusConfig struct {
	Experts        int `yaml:"experts"`
	PassTimeoutSec int `yaml:"pass_timeout_sec"`
	// GateSize is the shared concurrent-call budget toward the provider.
	GateSize int `yaml:"gate_size"`
	// GateWaitMS bounds how long a pass waits for the gate before it is
	// counted as failed.
	GateWaitMS int `yaml:"gate_wait_ms"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	IndexName    string `yaml:"index_name"`
	TopK         int    `yaml:"top_k"`
	DefaultLimit int    `yaml:"default_limit"`
	MaxLimit     int    `yaml:"max_limit"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "faultline:"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.LLM.RequestTimeoutSec <= 0 {
		c.LLM.RequestTimeoutSec = 30
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 1024
	}
	if c.Cache.DefaultTTLSec <= 0 {
		c.Cache.DefaultTTLSec = 3600
	}
	if c.Fusion.RRFK <= 0 {
		c.Fusion.RRFK = 60
	}
	if c.Reasoner.MaxDepth <= 0 {
		c.Reasoner.MaxDepth = 3
	}
	if c.Consensus.Experts <= 0 {
		c.Consensus.Experts = 3
	}
	if c.Consensus.PassTimeoutSec <= 0 {
		c.Consensus.PassTimeoutSec = 45
	}
	if c.Consensus.GateSize <= 0 {
		c.Consensus.GateSize = 4
	}
	if c.Consensus.GateWaitMS <= 0 {
		c.Consensus.GateWaitMS = 5000
	}
	if c.Search.IndexName == "" {
		c.Search.IndexName = "faultline_docs"
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 20
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 10
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for _, ref := range []struct {
		name string
		ref  ModelRef
	}{
		{"llm.generator", c.LLM.Generator},
		{"llm.classifier", c.LLM.Classifier},
	} {
		if ref.ref.Provider == "" || ref.ref.Model == "" {
			return fmt.Errorf("%s.provider and %s.model are required", ref.name, ref.name)
		}
		if _, ok := c.LLM.Providers[ref.ref.Provider]; !ok {
			return fmt.Errorf("%s references unknown provider %q", ref.name, ref.ref.Provider)
		}
	}
	if c.LLM.Embedder.Provider != "" {
		if _, ok := c.LLM.Providers[c.LLM.Embedder.Provider]; !ok {
			return fmt.Errorf("llm.embedder references unknown provider %q", c.LLM.Embedder.Provider)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
