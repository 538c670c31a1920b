// Package config loads the backend configuration from an optional YAML
// file layered under LEADQUAL_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "LEADQUAL_"

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	OpenAI  OpenAIConfig  `koanf:"openai"`
	CalCom  CalComConfig  `koanf:"calcom"`
	Pipefy  PipefyConfig  `koanf:"pipefy"`
	Storage StorageConfig `koanf:"storage"`
	Session SessionConfig `koanf:"session"`
	Slots   SlotsConfig   `koanf:"slots"`
	Chat    ChatConfig    `koanf:"chat"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type OpenAIConfig struct {
	APIKey      string `koanf:"api_key"`
	AssistantID string `koanf:"assistant_id"`
	BaseURL     string `koanf:"base_url"`
}

type CalComConfig struct {
	APIKey          string `koanf:"api_key"`
	Username        string `koanf:"username"`
	EventTypeID     int    `koanf:"event_type_id"`
	DurationMinutes int    `koanf:"duration_minutes"`
	Timezone        string `koanf:"timezone"`
	BaseURL         string `koanf:"base_url"`
}

// PipefyConfig carries the CRM credentials plus the deployment-specific
// field identifiers. Field ids are configuration, not code.
type PipefyConfig struct {
	APIKey         string       `koanf:"api_key"`
	PipeID         string       `koanf:"pipe_id"`
	BaseURL        string       `koanf:"base_url"`
	EmailFieldName string       `koanf:"email_field_name"`
	Fields         PipefyFields `koanf:"fields"`
}

type PipefyFields struct {
	Name        string `koanf:"name"`
	Email       string `koanf:"email"`
	Company     string `koanf:"company"`
	Need        string `koanf:"need"`
	Interest    string `koanf:"interest"`
	MeetingLink string `koanf:"meeting_link"`
	MeetingTime string `koanf:"meeting_time"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

type SessionConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type SlotsConfig struct {
	// TTL must comfortably exceed the 180s run ceiling so a valid mapping
	// is never lost mid-turn.
	TTL time.Duration `koanf:"ttl"`
}

type ChatConfig struct {
	MaxMessageTokens int `koanf:"max_message_tokens"`
}

// Load reads configuration from the given YAML file (if path is non-empty
// and the file exists) and then overlays environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	applyDefaults(k)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	k.Set("server.port", 8080)
	k.Set("openai.base_url", "https://api.openai.com/v1")
	k.Set("calcom.base_url", "https://api.cal.com/v1")
	k.Set("calcom.duration_minutes", 30)
	k.Set("calcom.timezone", "America/Sao_Paulo")
	k.Set("pipefy.base_url", "https://api.pipefy.com/graphql")
	k.Set("pipefy.email_field_name", "E-mail")
	k.Set("pipefy.fields.name", "nome_do_lead")
	k.Set("pipefy.fields.email", "e_mail")
	k.Set("pipefy.fields.company", "empresa")
	k.Set("pipefy.fields.need", "necessidade_espec_fica")
	k.Set("pipefy.fields.interest", "checklist_vertical")
	k.Set("pipefy.fields.meeting_link", "link_da_reuni_o")
	k.Set("pipefy.fields.meeting_time", "data_e_hora_da_reuni_o")
	k.Set("storage.path", "./data/leadqual.db")
	k.Set("session.ttl", "24h")
	k.Set("slots.ttl", "10m")
	k.Set("chat.max_message_tokens", 2048)
}

func (c *Config) validate() error {
	if c.OpenAI.AssistantID == "" {
		return fmt.Errorf("openai.assistant_id is required")
	}
	if c.CalCom.EventTypeID == 0 {
		return fmt.Errorf("calcom.event_type_id is required")
	}
	if c.Slots.TTL < 4*time.Minute {
		return fmt.Errorf("slots.ttl must exceed the run polling ceiling (got %s)", c.Slots.TTL)
	}
	return nil
}
