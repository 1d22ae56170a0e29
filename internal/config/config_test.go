package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AYURAG_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != "8080" {
		t.Fatalf("APIPort = %q", cfg.APIPort)
	}
	if cfg.SearchTopK != 5 || cfg.RankTopN != 5 || cfg.CompressMaxChars != 8000 || cfg.HistoryTurns != 6 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg)
	}
	if cfg.DefaultMode != "legacy" {
		t.Fatalf("DefaultMode = %q", cfg.DefaultMode)
	}
	if !reflect.DeepEqual(cfg.KeywordPartitions, []string{"herb", "condition", "remedy", "general"}) {
		t.Fatalf("KeywordPartitions = %v", cfg.KeywordPartitions)
	}
	if cfg.NATSEnabled {
		t.Fatalf("NATS must default to disabled")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("AYURAG_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("API_PORT", "9090")
	t.Setenv("PIPELINE_SEARCH_TOP_K", "7")
	t.Setenv("KEYWORD_PARTITIONS", "herb, remedy ,")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("OLLAMA_MAX_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIPort != "9090" || cfg.SearchTopK != 7 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.KeywordPartitions, []string{"herb", "remedy"}) {
		t.Fatalf("csv parsing broken: %v", cfg.KeywordPartitions)
	}
	if !cfg.NATSEnabled || cfg.OllamaMaxRPS != 2.5 {
		t.Fatalf("typed env values not applied: %+v", cfg)
	}
}

func TestLoadYAMLOverlayWinsOverEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	overlay := `
pipeline:
  search_top_k: 9
  default_mode: vaidya
keyword:
  partitions: [herb, lifestyle]
`
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("AYURAG_CONFIG_FILE", path)
	t.Setenv("PIPELINE_SEARCH_TOP_K", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SearchTopK != 9 {
		t.Fatalf("overlay must win over env, got %d", cfg.SearchTopK)
	}
	if cfg.DefaultMode != "vaidya" {
		t.Fatalf("DefaultMode = %q", cfg.DefaultMode)
	}
	if !reflect.DeepEqual(cfg.KeywordPartitions, []string{"herb", "lifestyle"}) {
		t.Fatalf("KeywordPartitions = %v", cfg.KeywordPartitions)
	}
	// Knobs absent from the overlay keep their env/default values.
	if cfg.RankTopN != 5 {
		t.Fatalf("RankTopN = %d", cfg.RankTopN)
	}
}

func TestLoadRejectsMalformedOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline: ["), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("AYURAG_CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for malformed yaml")
	}
}
