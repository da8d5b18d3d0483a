package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/casperlabs/dagcore/dagtypes"
)

// rawCeremonyConfig is the on-disk YAML shape for the genesis
// ceremony: trusted validator public keys and the timing parameters of
// spec §4.6 (N, D, I).
type rawCeremonyConfig struct {
	TrustedValidators []string `yaml:"trusted_validators"`
	Threshold         uint32   `yaml:"threshold"`
	DurationMs        int64    `yaml:"duration_ms"`
	PollIntervalMs    int64    `yaml:"poll_interval_ms"`
}

// CeremonyConfig is the parsed configuration for a genesis approval
// ceremony.
type CeremonyConfig struct {
	Trusted      map[dagtypes.ValidatorID]struct{}
	Threshold    uint32
	Duration     time.Duration
	PollInterval time.Duration
}

// LoadCeremonyConfig loads and parses a genesis ceremony config YAML
// file. Trusted validator keys are given as hex-encoded 32-byte
// Ed25519 public keys, optionally "0x"-prefixed.
func LoadCeremonyConfig(path string) (*CeremonyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read ceremony config: %w", err)
	}

	var raw rawCeremonyConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse ceremony config: %w", err)
	}

	if raw.PollIntervalMs <= 0 {
		return nil, fmt.Errorf("config: poll_interval_ms must be positive")
	}

	trusted := make(map[dagtypes.ValidatorID]struct{}, len(raw.TrustedValidators))
	for i, hexStr := range raw.TrustedValidators {
		hexStr = strings.TrimPrefix(hexStr, "0x")
		keyBytes, err := hex.DecodeString(hexStr)
		if err != nil {
			return nil, fmt.Errorf("config: invalid trusted validator hex at index %d: %w", i, err)
		}
		if len(keyBytes) != 32 {
			return nil, fmt.Errorf("config: trusted validator at index %d is %d bytes, want 32", i, len(keyBytes))
		}
		var vid dagtypes.ValidatorID
		copy(vid[:], keyBytes)
		trusted[vid] = struct{}{}
	}

	if raw.Threshold > 0 && len(trusted) < int(raw.Threshold) {
		return nil, fmt.Errorf("config: threshold %d exceeds trusted validator count %d", raw.Threshold, len(trusted))
	}

	return &CeremonyConfig{
		Trusted:      trusted,
		Threshold:    raw.Threshold,
		Duration:     time.Duration(raw.DurationMs) * time.Millisecond,
		PollInterval: time.Duration(raw.PollIntervalMs) * time.Millisecond,
	}, nil
}
