package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StoreConfig is the parsed YAML configuration for a node's DAG store
// (spec §4.2, §4.3): where it persists its logs and checkpoints, and
// the size thresholds that trigger rollover and squash.
type StoreConfig struct {
	Dir                        string `yaml:"dir"`
	BlockMetadataMaxSizeFactor int    `yaml:"block_metadata_max_size_factor"`
	CheckpointSize             int    `yaml:"checkpoint_size"`
	LatestMessageMaxSizeFactor int    `yaml:"latest_message_max_size_factor"`
}

const (
	defaultBlockMetadataMaxSizeFactor = 4
	defaultCheckpointSize             = 256
	defaultLatestMessageMaxSizeFactor = 4
)

// LoadStoreConfig loads and parses a DAG store config YAML file,
// applying defaults for any size threshold left unset.
func LoadStoreConfig(path string) (*StoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read store config: %w", err)
	}

	var cfg StoreConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse store config: %w", err)
	}

	if cfg.Dir == "" {
		return nil, fmt.Errorf("config: store dir must not be empty")
	}
	if cfg.BlockMetadataMaxSizeFactor == 0 {
		cfg.BlockMetadataMaxSizeFactor = defaultBlockMetadataMaxSizeFactor
	}
	if cfg.CheckpointSize == 0 {
		cfg.CheckpointSize = defaultCheckpointSize
	}
	if cfg.LatestMessageMaxSizeFactor == 0 {
		cfg.LatestMessageMaxSizeFactor = defaultLatestMessageMaxSizeFactor
	}

	return &cfg, nil
}
