package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/orbitdeck/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Selection.MaxCount != 150 {
		t.Fatalf("default max_count = %d, want 150", cfg.Selection.MaxCount)
	}
	if cfg.Budget.TotalInstanceCap != 300 {
		t.Fatalf("default total_instance_cap = %d, want 300", cfg.Budget.TotalInstanceCap)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	crit := cfg.Criteria()
	if _, ok := crit.AlwaysIncludeIDs["25544"]; !ok {
		t.Fatalf("default criteria should always include the ISS")
	}

	budget := cfg.RenderBudget()
	if budget.PerTierCount[model.TierHero] != 10 {
		t.Fatalf("hero count = %d, want 10", budget.PerTierCount[model.TierHero])
	}
	if budget.PerTierInterval[model.TierHero] != 250*time.Millisecond {
		t.Fatalf("hero interval = %v, want 250ms", budget.PerTierInterval[model.TierHero])
	}
}

func TestLoadTOML(t *testing.T) {
	raw := `
[catalog]
categories = ["stations", "gps-ops"]
ttl_minutes = 30

[selection]
max_count = 80
always_include = ["25544", "20580"]

[selection.quotas]
gps-ops = 32

[weights]
recency = 0.5
category_importance = 0.3
region_relevance = 0.2

[weights.category_rank]
stations = 1.0

[budget]
total_instance_cap = 120

[server]
addr = ":9090"
`
	path := filepath.Join(t.TempDir(), "orbitdeck.toml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Selection.MaxCount != 80 {
		t.Fatalf("max_count = %d, want 80", cfg.Selection.MaxCount)
	}
	if cfg.CatalogTTL() != 30*time.Minute {
		t.Fatalf("ttl = %v, want 30m", cfg.CatalogTTL())
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("addr = %q, want :9090", cfg.Server.Addr)
	}
	// Unset sections fall back to defaults.
	if cfg.Budget.Hero.Count != 10 {
		t.Fatalf("hero count default = %d, want 10", cfg.Budget.Hero.Count)
	}

	crit := cfg.Criteria()
	if crit.CategoryQuotas[model.Category("gps-ops")] != 32 {
		t.Fatalf("quota not converted: %+v", crit.CategoryQuotas)
	}
	if cfg.ScoreWeights().CategoryRank[model.Category("stations")] != 1.0 {
		t.Fatalf("category rank not converted")
	}
}

func TestValidateRejectsOverCapSelection(t *testing.T) {
	cfg := Default()
	cfg.Selection.MaxCount = 500
	cfg.Budget.TotalInstanceCap = 100

	if err := cfg.Validate(); err == nil {
		t.Fatalf("max_count above the instance cap should fail validation")
	}
}

func TestValidateRejectsNegativeQuota(t *testing.T) {
	cfg := Default()
	cfg.Selection.Quotas = map[string]int{"gps-ops": -1}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("negative quota should fail validation")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
