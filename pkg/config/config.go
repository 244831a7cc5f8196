package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	App       AppConfig                 `json:"app"`
	Providers map[string]ProviderConfig `json:"providers"`
	Publish   PublishConfig             `json:"publish"`
	Workflow  WorkflowConfig            `json:"workflow"`
	Store     StoreConfig               `json:"store"`
}

type AppConfig struct {
	Name        string `json:"name"`
	OutputDir   string `json:"output_dir"`
	PromptsDir  string `json:"prompts_dir"`
	FormatsFile string `json:"formats_file,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`
	Enabled bool   `json:"enabled"`
}

type PublishConfig struct {
	Notion   NotionConfig   `json:"notion"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type NotionConfig struct {
	APIKey     string `json:"api_key"`
	DatabaseID string `json:"database_id"`
	Enabled    bool   `json:"enabled"`
}

type TelegramConfig struct {
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
	Enabled bool   `json:"enabled"`
}

type DiscordConfig struct {
	Token     string `json:"token"`
	ChannelID string `json:"channel_id"`
	Enabled   bool   `json:"enabled"`
}

type WorkflowConfig struct {
	MaxInFlight  int `json:"max_in_flight"`
	MaxAttempts  int `json:"max_attempts"`
	BackoffMS    int `json:"backoff_ms"`
	BackoffCapMS int `json:"backoff_cap_ms"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

func LoadConfig(path string) *Config {
	file, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer file.Close()

	var cfg Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config file: %v", err)
	}

	return &cfg
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}
