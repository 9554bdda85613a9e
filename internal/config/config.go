package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port         int              `json:"port"`
	JWTSecret    string           `json:"jwt_secret"`
	WebhookToken string           `json:"webhook_token"`
	LogConfig    logger.LogConfig `json:"log_config"`
	Database     DatabaseConfig   `json:"database"`
	FileStore    FileStoreConfig  `json:"file_store"`
	Search       SearchConfig     `json:"search"`
	Indexer      IndexerConfig    `json:"indexer"`
	AI           AIConfig         `json:"ai"`
	Jobs         JobsConfig       `json:"jobs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type SearchConfig struct {
	Backend   string      `json:"backend"`
	OverFetch int         `json:"over_fetch"`
	TopN      int         `json:"top_n"`
	Semantic  bool        `json:"semantic"`
	Data      interface{} `json:"data"`
}

type IndexerConfig struct {
	Endpoint            string `json:"endpoint"`
	Name                string `json:"name"`
	APIKey              string `json:"api_key"`
	PollIntervalSeconds int    `json:"poll_interval_seconds"`
	MaxWaitSeconds      int    `json:"max_wait_seconds"`
	TriggerMaxAttempts  int    `json:"trigger_max_attempts"`
	MergeTags           bool   `json:"merge_tags"`
}

type AIConfig struct {
	Provider        string      `json:"provider"`
	Model           string      `json:"model"`
	EmbedModel      string      `json:"embed_model"`
	MaxContextChars int         `json:"max_context_chars"`
	Data            interface{} `json:"data"`
}

type JobsConfig struct {
	StaleSweepSpec   string `json:"stale_sweep_spec"`
	StaleAgeMinutes  int    `json:"stale_age_minutes"`
	SweepBatchLimit  int    `json:"sweep_batch_limit"`
	DisableScheduler bool   `json:"disable_scheduler"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.WebhookToken == "" {
		return nil, fmt.Errorf("webhook_token is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Search.Backend == "" {
		return nil, fmt.Errorf("search.backend is required")
	}
	if cfg.Search.OverFetch <= 0 {
		cfg.Search.OverFetch = 3
	}
	if cfg.Search.TopN <= 0 {
		cfg.Search.TopN = 5
	}
	if cfg.Indexer.Endpoint == "" || cfg.Indexer.Name == "" {
		return nil, fmt.Errorf("indexer.endpoint and indexer.name are required")
	}
	if cfg.Indexer.PollIntervalSeconds <= 0 {
		cfg.Indexer.PollIntervalSeconds = 10
	}
	if cfg.Indexer.MaxWaitSeconds <= 0 {
		cfg.Indexer.MaxWaitSeconds = 300
	}
	if cfg.Indexer.TriggerMaxAttempts <= 0 {
		cfg.Indexer.TriggerMaxAttempts = 3
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" || cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.model and ai.embed_model are required")
	}
	if cfg.AI.MaxContextChars <= 0 {
		cfg.AI.MaxContextChars = 12000
	}
	if cfg.Jobs.StaleSweepSpec == "" {
		cfg.Jobs.StaleSweepSpec = "*/10 * * * *"
	}
	if cfg.Jobs.StaleAgeMinutes <= 0 {
		cfg.Jobs.StaleAgeMinutes = 30
	}
	if cfg.Jobs.SweepBatchLimit <= 0 {
		cfg.Jobs.SweepBatchLimit = 100
	}
	return &cfg, nil
}
