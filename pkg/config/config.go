// Package config loads YAML configuration for the supportly services.
// Environment variables set in the binaries override file values.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// QdrantConfig contains connection details for the Qdrant vector store.
type QdrantConfig struct {
	Addr             string `yaml:"addr"`
	CollectionPrefix string `yaml:"collection_prefix"`
	VectorDims       int    `yaml:"vector_dims"`
}

// OllamaConfig configures the embedding and chat model endpoints.
type OllamaConfig struct {
	BaseURL     string  `yaml:"base_url"`
	EmbedModel  string  `yaml:"embed_model"`
	ChatModel   string  `yaml:"chat_model"`
	Temperature float64 `yaml:"temperature"`
}

// NATSConfig configures the stream-ingestion transport.
type NATSConfig struct {
	URL        string `yaml:"url"`
	QueueGroup string `yaml:"queue_group"`
}

// RetrievalConfig tunes query-time behavior.
type RetrievalConfig struct {
	TopK         int     `yaml:"top_k"`
	EmbedRate    float64 `yaml:"embed_rate"`
	EmbedBurst   int     `yaml:"embed_burst"`
	SystemPrompt string  `yaml:"system_prompt"`
}

// Config is the root configuration for all binaries.
type Config struct {
	DataPath     string          `yaml:"data_path"`
	SupportTypes []string        `yaml:"support_types"`
	Qdrant       QdrantConfig    `yaml:"qdrant"`
	Ollama       OllamaConfig    `yaml:"ollama"`
	NATS         NATSConfig      `yaml:"nats"`
	Retrieval    RetrievalConfig `yaml:"retrieval"`
	MetricsPort  int             `yaml:"metrics_port"`
}

// Load reads a config from path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.DataPath == "" {
		cfg.DataPath = "data"
	}
	if len(cfg.SupportTypes) == 0 {
		cfg.SupportTypes = []string{"technical", "product", "customer"}
	}
	if cfg.Qdrant.Addr == "" {
		cfg.Qdrant.Addr = "localhost:6334"
	}
	if cfg.Qdrant.CollectionPrefix == "" {
		cfg.Qdrant.CollectionPrefix = "tickets"
	}
	if cfg.Qdrant.VectorDims == 0 {
		cfg.Qdrant.VectorDims = 768
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Ollama.EmbedModel == "" {
		cfg.Ollama.EmbedModel = "nomic-embed-text"
	}
	if cfg.Ollama.ChatModel == "" {
		cfg.Ollama.ChatModel = "llama3"
	}
	if cfg.Ollama.Temperature == 0 {
		cfg.Ollama.Temperature = 0.1
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.QueueGroup == "" {
		cfg.NATS.QueueGroup = "ticket-consumers"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.EmbedRate == 0 {
		cfg.Retrieval.EmbedRate = 10
	}
	if cfg.Retrieval.EmbedBurst == 0 {
		cfg.Retrieval.EmbedBurst = 5
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = 9090
	}
}
