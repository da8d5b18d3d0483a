package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCeremonyConfigRejectsWrongKeyLength(t *testing.T) {
	path := writeTempConfig(t, ""+
		"trusted_validators:\n"+
		"  - \"0x000000000000000000000000000000000000000000000000000000000000000002\"\n"+
		"threshold: 1\n"+
		"duration_ms: 30\n"+
		"poll_interval_ms: 1\n")

	_, err := LoadCeremonyConfig(path)
	if err == nil {
		t.Fatal("expected error for a key longer than 32 bytes")
	}
}

func TestLoadCeremonyConfigValidKeys(t *testing.T) {
	keyA := strings.Repeat("aa", 32)
	keyB := "0x" + strings.Repeat("bb", 32)
	path := writeTempConfig(t, ""+
		"trusted_validators:\n"+
		"  - \""+keyA+"\"\n"+
		"  - \""+keyB+"\"\n"+
		"threshold: 2\n"+
		"duration_ms: 30\n"+
		"poll_interval_ms: 5\n")

	cfg, err := LoadCeremonyConfig(path)
	if err != nil {
		t.Fatalf("LoadCeremonyConfig: %v", err)
	}
	if len(cfg.Trusted) != 2 {
		t.Fatalf("got %d trusted validators, want 2", len(cfg.Trusted))
	}
	if cfg.Threshold != 2 {
		t.Fatalf("threshold = %d, want 2", cfg.Threshold)
	}
	if cfg.Duration.Milliseconds() != 30 {
		t.Fatalf("duration = %v, want 30ms", cfg.Duration)
	}
	if cfg.PollInterval.Milliseconds() != 5 {
		t.Fatalf("poll interval = %v, want 5ms", cfg.PollInterval)
	}
}

func TestLoadCeremonyConfigRejectsThresholdAboveTrustedCount(t *testing.T) {
	keyA := strings.Repeat("aa", 32)
	path := writeTempConfig(t, ""+
		"trusted_validators:\n"+
		"  - \""+keyA+"\"\n"+
		"threshold: 5\n"+
		"duration_ms: 30\n"+
		"poll_interval_ms: 1\n")

	_, err := LoadCeremonyConfig(path)
	if err == nil {
		t.Fatal("expected error when threshold exceeds trusted validator count")
	}
}

func TestLoadCeremonyConfigRejectsZeroPollInterval(t *testing.T) {
	path := writeTempConfig(t, "threshold: 0\nduration_ms: 30\npoll_interval_ms: 0\n")
	_, err := LoadCeremonyConfig(path)
	if err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestLoadStoreConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "dir: /var/lib/dagcore\n")
	cfg, err := LoadStoreConfig(path)
	if err != nil {
		t.Fatalf("LoadStoreConfig: %v", err)
	}
	if cfg.BlockMetadataMaxSizeFactor != defaultBlockMetadataMaxSizeFactor {
		t.Fatalf("got %d, want default %d", cfg.BlockMetadataMaxSizeFactor, defaultBlockMetadataMaxSizeFactor)
	}
	if cfg.CheckpointSize != defaultCheckpointSize {
		t.Fatalf("got %d, want default %d", cfg.CheckpointSize, defaultCheckpointSize)
	}
	if cfg.LatestMessageMaxSizeFactor != defaultLatestMessageMaxSizeFactor {
		t.Fatalf("got %d, want default %d", cfg.LatestMessageMaxSizeFactor, defaultLatestMessageMaxSizeFactor)
	}
}

func TestLoadStoreConfigRejectsEmptyDir(t *testing.T) {
	path := writeTempConfig(t, "checkpoint_size: 100\n")
	_, err := LoadStoreConfig(path)
	if err == nil {
		t.Fatal("expected error for missing dir")
	}
}

func TestLoadStoreConfigHonorsOverrides(t *testing.T) {
	path := writeTempConfig(t, ""+
		"dir: /data/dagcore\n"+
		"block_metadata_max_size_factor: 8\n"+
		"checkpoint_size: 512\n"+
		"latest_message_max_size_factor: 2\n")
	cfg, err := LoadStoreConfig(path)
	if err != nil {
		t.Fatalf("LoadStoreConfig: %v", err)
	}
	if cfg.BlockMetadataMaxSizeFactor != 8 || cfg.CheckpointSize != 512 || cfg.LatestMessageMaxSizeFactor != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
