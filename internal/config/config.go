package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all Dailies Relay environment variables.
const EnvPrefix = "DAILIES_RELAY_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	DBPath                string `yaml:"db_path"`
	ListenAddr            string `yaml:"listen_addr"`
	FeedWSURL             string `yaml:"feed_ws_url"`
	FeedAPIBaseURL        string `yaml:"feed_api_base_url"`
	ReconnectMaxAttempts  int    `yaml:"reconnect_max_attempts"`
	ReconnectBaseDelay    string `yaml:"reconnect_base_delay"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets come from env vars only, never the YAML file.
	FeedAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		DBPath:                "data/dailies-relay.db",
		ListenAddr:            ":8080",
		FeedWSURL:             "wss://feed.example.com/v1/events",
		FeedAPIBaseURL:        "https://feed.example.com/v1",
		ReconnectMaxAttempts:  10,
		ReconnectBaseDelay:    "1s",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedReconnectBaseDelay returns ReconnectBaseDelay as a time.Duration,
// falling back to 1s if the value is invalid.
func (c *Config) ParsedReconnectBaseDelay() time.Duration {
	d, err := time.ParseDuration(c.ReconnectBaseDelay)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "FEED_WS_URL"); v != "" {
		cfg.FeedWSURL = v
	}
	if v := os.Getenv(EnvPrefix + "FEED_API_BASE_URL"); v != "" {
		cfg.FeedAPIBaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "RECONNECT_MAX_ATTEMPTS"); v != "" {
		if attempts, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && attempts > 0 {
			cfg.ReconnectMaxAttempts = attempts
		}
	}
	if v := os.Getenv(EnvPrefix + "RECONNECT_BASE_DELAY"); v != "" {
		cfg.ReconnectBaseDelay = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.FeedAPIKey = os.Getenv(EnvPrefix + "FEED_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.FeedAPIKey == "" {
		warnings = append(warnings, "Feed API key not configured, live transcription ingestion is disabled. Set "+EnvPrefix+"FEED_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.ReconnectBaseDelay); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid reconnect_base_delay %q, using default 1s.", cfg.ReconnectBaseDelay))
	}

	return warnings
}
