// Package config loads the optional YAML configuration file. Everything in
// it can also be set through flags or environment variables; the file is for
// deployment-specific oracle heuristics and site paths.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors the tunable engine and oracle settings.
type Config struct {
	BaseURL        string `yaml:"base_url"`
	ListingPath    string `yaml:"listing_path"`
	ItemPathFmt    string `yaml:"item_path_fmt"`
	RewardPathFmt  string `yaml:"reward_path_fmt"`
	ProfilePathFmt string `yaml:"profile_path_fmt"`

	CheckInterval          time.Duration `yaml:"check_interval"`
	RescanInterval         time.Duration `yaml:"rescan_interval"`
	SettleDelay            time.Duration `yaml:"settle_delay"`
	MaxConcurrent          int           `yaml:"max_concurrent"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout"`
	RecencyWindow          time.Duration `yaml:"recency_window"`
	ProfileRefreshInterval time.Duration `yaml:"profile_refresh_interval"`
	RetentionDays          int           `yaml:"retention_days"`
	MaxItems               int           `yaml:"max_items"`
	HistoryCap             int           `yaml:"history_cap"`

	Oracle OracleConfig `yaml:"oracle"`
}

// OracleConfig overrides the document heuristics.
type OracleConfig struct {
	CompletionKeywords []string `yaml:"completion_keywords"`
	AcceptedLabels     []string `yaml:"accepted_labels"`
	ProfileLinkPattern string   `yaml:"profile_link_pattern"`
	ItemLinkPattern    string   `yaml:"item_link_pattern"`
	RewardPattern      string   `yaml:"reward_pattern"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
