package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/showcall/go/internal/display/client"
)

// Config is the optional YAML file named by DISPLAY_CONFIG
type Config struct {
	Origin string `yaml:"origin"`
	WSPath string `yaml:"ws_path"`
	// Display overrides the template's default display
	Display string `yaml:"display"`

	// Static is applied as an init message when there is no socket path
	Static map[string]any `yaml:"static"`

	Publisher struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
		Bucket  string `yaml:"bucket"`
	} `yaml:"publisher"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// connectionConfig merges the environment over the file. Environment wins.
func connectionConfig(cfg *Config) (client.ConnectionConfig, error) {
	conn := client.DefaultConnectionConfig()

	origin := getEnv("DISPLAY_ORIGIN", cfg.Origin)
	path := getEnv("DISPLAY_WS_PATH", cfg.WSPath)
	if origin == "" && path != "" {
		return conn, fmt.Errorf("DISPLAY_WS_PATH is set without DISPLAY_ORIGIN")
	}

	url, err := client.SocketURL(origin, path)
	if err != nil {
		return conn, err
	}
	conn.URL = url

	if conn.URL == "" {
		if cfg.Static == nil {
			return conn, fmt.Errorf("no socket path and no static payload configured")
		}
		payload, err := json.Marshal(cfg.Static)
		if err != nil {
			return conn, fmt.Errorf("encode static payload: %w", err)
		}
		conn.StaticPayload = payload
	}

	conn.SeedBackoff = time.Duration(getEnvAsInt("DISPLAY_BACKOFF_SEED_MS", int(conn.SeedBackoff.Milliseconds()))) * time.Millisecond
	conn.MaxBackoff = time.Duration(getEnvAsInt("DISPLAY_BACKOFF_CAP_MS", int(conn.MaxBackoff.Milliseconds()))) * time.Millisecond
	conn.BackoffMultiplier = getEnvAsFloat("DISPLAY_BACKOFF_MULTIPLIER", conn.BackoffMultiplier)

	return conn, nil
}

// publisherConfig returns the NATS settings, ok is false when publishing is off
func publisherConfig(cfg *Config) (client.PublisherConfig, bool) {
	pub := client.DefaultPublisherConfig()

	if cfg.Publisher.URL != "" {
		pub.URL = cfg.Publisher.URL
	}
	if cfg.Publisher.Bucket != "" {
		pub.Bucket = cfg.Publisher.Bucket
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL != "" {
		pub.URL = natsURL
	}

	return pub, cfg.Publisher.Enabled || natsURL != ""
}
