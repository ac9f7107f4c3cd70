package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the retrieval engine and its surfaces.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// StorageConfig locates the on-disk vector store artifacts.
type StorageConfig struct {
	// Dir is the root under which each named store keeps its three
	// artifacts (vectors.json, metadata.json, index.json).
	Dir string `mapstructure:"dir"`
}

// EmbeddingConfig describes the embedding provider.
type EmbeddingConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	FallbackModel string        `mapstructure:"fallback_model"`
	Dimensions    int           `mapstructure:"dimensions"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig carries the tunable scoring constants. The defaults are the
// empirically chosen values from the original relevance tuning; they are
// configuration rather than code so they can be re-tuned against real
// relevance judgments.
type RetrievalConfig struct {
	MinSimilarity      float64 `mapstructure:"min_similarity"`
	OverfetchFactor    int     `mapstructure:"overfetch_factor"`
	OverfetchCap       int     `mapstructure:"overfetch_cap"`
	KeywordBoost       float64 `mapstructure:"keyword_boost"`
	WeightAvgSim       float64 `mapstructure:"weight_avg_similarity"`
	WeightMaxSim       float64 `mapstructure:"weight_max_similarity"`
	WeightDensity      float64 `mapstructure:"weight_verse_density"`
	WeightContextual   float64 `mapstructure:"weight_contextual"`
	WeightDiversity    float64 `mapstructure:"weight_theme_diversity"`
	FallbackScore      float64 `mapstructure:"fallback_score"`
	PassagesPerChapter int     `mapstructure:"passages_per_chapter"`
}

// SummaryConfig controls lazy chapter summary generation.
type SummaryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RedisConfig is the optional summary cache backend. An empty Addr keeps the
// cache purely in-process.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (e EmbeddingConfig) Validate() error {
	if e.Model == "" {
		return fmt.Errorf("embedding.model must be configured")
	}
	if e.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must be >= 0")
	}
	return nil
}

func (r RetrievalConfig) Validate() error {
	if r.OverfetchFactor <= 0 {
		return fmt.Errorf("retrieval.overfetch_factor must be > 0")
	}
	sum := r.WeightAvgSim + r.WeightMaxSim + r.WeightDensity + r.WeightContextual + r.WeightDiversity
	if sum <= 0 {
		return fmt.Errorf("retrieval composite weights must sum to a positive value")
	}
	return nil
}

// Validate checks the parts of the configuration the engine cannot run without.
func (c *Config) Validate() error {
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	return c.Retrieval.Validate()
}

// LoadConfig reads configuration from a JSON config file and RUH_* environment
// variables. Missing config file is fine; defaults cover every key.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":10040")
	viper.SetDefault("storage.dir", "data/vector_store")
	viper.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.fallback_model", "text-embedding-3-large")
	viper.SetDefault("embedding.dimensions", 0)
	viper.SetDefault("embedding.timeout", 30*time.Second)
	viper.SetDefault("retrieval.min_similarity", 0.1)
	viper.SetDefault("retrieval.overfetch_factor", 8)
	viper.SetDefault("retrieval.overfetch_cap", 100)
	viper.SetDefault("retrieval.keyword_boost", 0.1)
	viper.SetDefault("retrieval.weight_avg_similarity", 0.4)
	viper.SetDefault("retrieval.weight_max_similarity", 0.3)
	viper.SetDefault("retrieval.weight_verse_density", 0.15)
	viper.SetDefault("retrieval.weight_contextual", 0.10)
	viper.SetDefault("retrieval.weight_theme_diversity", 0.05)
	viper.SetDefault("retrieval.fallback_score", 0.5)
	viper.SetDefault("retrieval.passages_per_chapter", 3)
	viper.SetDefault("summary.enabled", true)
	viper.SetDefault("summary.model", "gpt-4o-mini")
	viper.SetDefault("summary.timeout", 20*time.Second)
	viper.SetDefault("summary.ttl", 24*time.Hour)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.timeout", 5*time.Second)

	if path == "" {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("RUH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
