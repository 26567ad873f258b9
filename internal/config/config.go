package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Source  SourceConfig  `yaml:"source"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Store   StoreConfig   `yaml:"store"`
	Journal JournalConfig `yaml:"journal"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type SourceConfig struct {
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers"`
	Sector       string            `yaml:"sector"`
	CompanyCode  string            `yaml:"company_code"`
	InputCompany string            `yaml:"input_company"`
	TimeoutSec   int               `yaml:"timeout_sec"`
	Retry        RetryConfig       `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BackoffMs   int `yaml:"backoff_ms"`
}

type FetchConfig struct {
	Targets    []string `yaml:"targets"`
	Iterations int      `yaml:"iterations"`
	WaitSec    int      `yaml:"wait_sec"`
}

type StoreConfig struct {
	CSVPath string `yaml:"csv_path"`
}

type JournalConfig struct {
	SqlitePath string `yaml:"sqlite_path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Source: SourceConfig{
			URL: "https://dataondemand.bvl.com.pe/v1/stock-quote/market",
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
			TimeoutSec: 30,
			Retry: RetryConfig{
				MaxAttempts: 3,
				BackoffMs:   1000,
			},
		},
		Fetch: FetchConfig{
			Targets:    []string{"CREDICORP LTD."},
			Iterations: 3,
			WaitSec:    7200,
		},
		Store: StoreConfig{
			CSVPath: "data/bvl_data.csv",
		},
		Journal: JournalConfig{
			SqlitePath: "data/journal.db",
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("BVL_API_URL"); v != "" {
		cfg.Source.URL = v
	}
	if v := os.Getenv("BVL_USER_AGENT"); v != "" {
		if cfg.Source.Headers == nil {
			cfg.Source.Headers = map[string]string{}
		}
		cfg.Source.Headers["User-Agent"] = v
	}
	if v := os.Getenv("CSV_PATH"); v != "" {
		cfg.Store.CSVPath = v
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.SqlitePath = v
	}
	if v := os.Getenv("FETCH_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid FETCH_ITERATIONS: %q", v)
		}
		cfg.Fetch.Iterations = n
	}
	if v := os.Getenv("FETCH_WAIT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid FETCH_WAIT_SEC: %q", v)
		}
		cfg.Fetch.WaitSec = n
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if len(cfg.Fetch.Targets) == 0 {
		return fmt.Errorf("fetch.targets is empty")
	}
	if cfg.Fetch.Iterations <= 0 {
		return fmt.Errorf("fetch.iterations must be positive")
	}
	if cfg.Source.Retry.MaxAttempts <= 0 {
		cfg.Source.Retry.MaxAttempts = 3
	}
	if cfg.Source.TimeoutSec <= 0 {
		cfg.Source.TimeoutSec = 30
	}
	return nil
}
