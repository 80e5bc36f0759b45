// Package config loads nledit settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	PlannerOpenRouter = "openrouter"
	PlannerGemini     = "gemini"

	EmbeddingOllama = "ollama"
	EmbeddingGemini = "gemini"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	DataDir  string `yaml:"data_dir"`
	DBPath   string `yaml:"db_path"`
	// Store selects where the version tree lives; memory forgets it on exit.
	Store    string `yaml:"store"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	WhisperBin   string `yaml:"whisper_bin"`
	WhisperModel string `yaml:"whisper_model"`

	Resolver   ResolverConfig   `yaml:"resolver"`
	Planner    PlannerConfig    `yaml:"planner"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
}

type ResolverConfig struct {
	// Threshold is the minimum cosine similarity for a quoted reference to resolve.
	Threshold float64 `yaml:"threshold"`
	TopK      int     `yaml:"top_k"`
}

type PlannerConfig struct {
	Provider string        `yaml:"provider"`
	Timeout  time.Duration `yaml:"timeout"`
}

type OpenRouterConfig struct {
	APIKey       string   `yaml:"api_key"`
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

type GeminiConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
}

type EmbeddingConfig struct {
	Provider string        `yaml:"provider"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

func Default() *Config {
	return &Config{
		DataDir:      ".nledit",
		Store:        StoreSQLite,
		LogLevel:     "info",
		HTTPAddr:     ":8080",
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		WhisperBin:   ".cache/bin/whisper.cpp",
		WhisperModel: ".cache/models/ggml-base.bin",
		Resolver: ResolverConfig{
			Threshold: 0.6,
			TopK:      5,
		},
		Planner: PlannerConfig{
			Provider: PlannerOpenRouter,
			Timeout:  90 * time.Second,
		},
		OpenRouter: OpenRouterConfig{
			Model:   "openai/gpt-4o",
			BaseURL: DefaultOpenRouterBaseURL,
		},
		Embedding: EmbeddingConfig{
			Provider: EmbeddingOllama,
			Endpoint: "http://localhost:11434",
			Model:    "embeddinggemma",
			Timeout:  30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     7 * 24 * time.Hour,
		},
		RabbitMQ: RabbitMQConfig{
			Queue:    "nledit.apply",
			Prefetch: 1,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DatabasePath is DBPath or nledit.db under DataDir.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "nledit.db")
}

func (c *Config) VideosDir() string { return filepath.Join(c.DataDir, "videos") }
func (c *Config) CacheDir() string  { return filepath.Join(c.DataDir, "cache") }

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data dir is empty")
	}
	if c.Resolver.Threshold <= 0 || c.Resolver.Threshold > 1 {
		return fmt.Errorf("resolver threshold must be in (0, 1], got %g", c.Resolver.Threshold)
	}
	if c.Resolver.TopK <= 0 {
		return fmt.Errorf("resolver top-k must be > 0")
	}
	if c.Planner.Timeout <= 0 {
		return fmt.Errorf("planner timeout must be > 0")
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("embedding timeout must be > 0")
	}

	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreSQLite, StoreMemory)
	}

	switch c.Planner.Provider {
	case PlannerOpenRouter:
		if err := ValidateBaseURL(c.OpenRouter.BaseURL, c.OpenRouter.AllowedHosts); err != nil {
			return err
		}
	case PlannerGemini:
	default:
		return fmt.Errorf("unknown planner provider %q (want %s or %s)", c.Planner.Provider, PlannerOpenRouter, PlannerGemini)
	}

	switch c.Embedding.Provider {
	case EmbeddingOllama:
		if c.Embedding.Endpoint == "" {
			return errors.New("ollama endpoint is required")
		}
	case EmbeddingGemini:
		if c.Gemini.APIKey == "" {
			return errors.New("GEMINI_API_KEY is required for gemini embeddings")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q (want %s or %s)", c.Embedding.Provider, EmbeddingOllama, EmbeddingGemini)
	}

	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("redis addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache backend %q (want %s or %s)", c.Cache.Backend, CacheMemory, CacheRedis)
	}
	return nil
}

// PlannerConfigured reports whether the selected planner provider has credentials.
func (c *Config) PlannerConfigured() bool {
	switch c.Planner.Provider {
	case PlannerOpenRouter:
		return c.OpenRouter.APIKey != ""
	case PlannerGemini:
		return c.Gemini.APIKey != ""
	}
	return false
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	var errs []error
	dur := func(dst *time.Duration, key string) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str(&c.DataDir, "NLEDIT_DATA_DIR")
	str(&c.DBPath, "NLEDIT_DB_PATH")
	str(&c.Store, "NLEDIT_STORE")
	str(&c.LogLevel, "NLEDIT_LOG_LEVEL")
	str(&c.HTTPAddr, "NLEDIT_HTTP_ADDR")
	str(&c.FFmpegPath, "NLEDIT_FFMPEG")
	str(&c.FFprobePath, "NLEDIT_FFPROBE")
	str(&c.WhisperBin, "NLEDIT_WHISPER_BIN")
	str(&c.WhisperModel, "NLEDIT_WHISPER_MODEL")

	if v, ok := lookup("NLEDIT_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("NLEDIT_THRESHOLD: %w", err))
		} else {
			c.Resolver.Threshold = f
		}
	}
	if v, ok := lookup("NLEDIT_TOP_K"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("NLEDIT_TOP_K: %w", err))
		} else {
			c.Resolver.TopK = n
		}
	}

	str(&c.Planner.Provider, "NLEDIT_PLANNER")
	dur(&c.Planner.Timeout, "NLEDIT_PLANNER_TIMEOUT")

	str(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	str(&c.OpenRouter.Model, "OPENROUTER_MODEL")
	str(&c.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	if v, ok := lookup("OPENROUTER_ALLOWED_HOSTS"); ok && strings.TrimSpace(v) != "" {
		c.OpenRouter.AllowedHosts = strings.Split(v, ",")
	}

	str(&c.Gemini.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	str(&c.Gemini.Model, "GEMINI_MODEL")
	str(&c.Gemini.EmbedModel, "GEMINI_EMBED_MODEL")

	str(&c.Embedding.Provider, "NLEDIT_EMBEDDING")
	str(&c.Embedding.Endpoint, "OLLAMA_ENDPOINT")
	str(&c.Embedding.Model, "OLLAMA_EMBED_MODEL")
	dur(&c.Embedding.Timeout, "NLEDIT_EMBED_TIMEOUT")

	str(&c.Cache.Backend, "NLEDIT_CACHE")
	str(&c.Cache.RedisAddr, "REDIS_ADDR")
	dur(&c.Cache.TTL, "NLEDIT_CACHE_TTL")

	str(&c.RabbitMQ.URL, "RABBITMQ_URL")
	str(&c.RabbitMQ.Queue, "NLEDIT_QUEUE")

	return errors.Join(errs...)
}
