// Package config loads the engine configuration from TOML and converts it
// into the model types the engine consumes.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/signalsfoundry/orbitdeck/model"
)

// Config is the full orbitdeck-server configuration.
type Config struct {
	Catalog   CatalogConfig   `toml:"catalog"`
	Selection SelectionConfig `toml:"selection"`
	Weights   WeightsConfig   `toml:"weights"`
	Budget    BudgetConfig    `toml:"budget"`
	Server    ServerConfig    `toml:"server"`
}

// CatalogConfig controls ingestion.
type CatalogConfig struct {
	BaseURL          string   `toml:"base_url"`
	Categories       []string `toml:"categories"`
	TTLMinutes       int      `toml:"ttl_minutes"`
	RefreshMinutes   int      `toml:"refresh_minutes"`
	FallbackPath     string   `toml:"fallback_path"`
	FetchRetries     int      `toml:"fetch_retries"`
	FetchTimeoutSecs int      `toml:"fetch_timeout_secs"`
}

// SelectionConfig controls the curation algorithm.
type SelectionConfig struct {
	MaxCount      int            `toml:"max_count"`
	AlwaysInclude []string       `toml:"always_include"`
	Quotas        map[string]int `toml:"quotas"`
	DebounceMs    int            `toml:"debounce_ms"`
}

// WeightsConfig holds the priority-score weights.
type WeightsConfig struct {
	Recency            float64            `toml:"recency"`
	CategoryImportance float64            `toml:"category_importance"`
	RegionRelevance    float64            `toml:"region_relevance"`
	CategoryRank       map[string]float64 `toml:"category_rank"`
}

// TierConfig is one LOD tier's budget slice.
type TierConfig struct {
	Count      int `toml:"count"`
	IntervalMs int `toml:"interval_ms"`
}

// BudgetConfig bounds the rendered population.
type BudgetConfig struct {
	Hero             TierConfig `toml:"hero"`
	High             TierConfig `toml:"high"`
	Medium           TierConfig `toml:"medium"`
	Low              TierConfig `toml:"low"`
	TotalInstanceCap int        `toml:"total_instance_cap"`
}

// ServerConfig controls the HTTP surface and the render tick.
type ServerConfig struct {
	Addr   string `toml:"addr"`
	TickMs int    `toml:"tick_ms"`
}

// Load reads, defaults, and validates a TOML config file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with workable defaults.
func (c *Config) ApplyDefaults() {
	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = "https://celestrak.org/NORAD/elements/gp.php"
	}
	if len(c.Catalog.Categories) == 0 {
		c.Catalog.Categories = []string{"stations", "gps-ops", "weather", "active"}
	}
	if c.Catalog.TTLMinutes <= 0 {
		c.Catalog.TTLMinutes = 60
	}
	if c.Catalog.RefreshMinutes <= 0 {
		c.Catalog.RefreshMinutes = 60
	}
	if c.Catalog.FetchRetries <= 0 {
		c.Catalog.FetchRetries = 2
	}
	if c.Catalog.FetchTimeoutSecs <= 0 {
		c.Catalog.FetchTimeoutSecs = 30
	}

	if c.Selection.MaxCount <= 0 {
		c.Selection.MaxCount = 150
	}
	if len(c.Selection.AlwaysInclude) == 0 {
		// The ISS: the one object every display is expected to show.
		c.Selection.AlwaysInclude = []string{"25544"}
	}
	if c.Selection.DebounceMs <= 0 {
		c.Selection.DebounceMs = 150
	}

	if c.Weights.Recency == 0 && c.Weights.CategoryImportance == 0 && c.Weights.RegionRelevance == 0 {
		c.Weights.Recency = 0.4
		c.Weights.CategoryImportance = 0.4
		c.Weights.RegionRelevance = 0.2
	}

	if c.Budget.Hero.Count <= 0 {
		c.Budget.Hero = TierConfig{Count: 10, IntervalMs: 250}
	}
	if c.Budget.High.Count <= 0 {
		c.Budget.High = TierConfig{Count: 30, IntervalMs: 500}
	}
	if c.Budget.Medium.Count <= 0 {
		c.Budget.Medium = TierConfig{Count: 60, IntervalMs: 5000}
	}
	if c.Budget.Low.Count <= 0 {
		c.Budget.Low = TierConfig{Count: 200, IntervalMs: 30000}
	}
	if c.Budget.TotalInstanceCap <= 0 {
		c.Budget.TotalInstanceCap = 300
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.TickMs <= 0 {
		c.Server.TickMs = 250
	}
}

// Validate rejects configurations the engine cannot honour.
func (c *Config) Validate() error {
	if c.Selection.MaxCount > c.Budget.TotalInstanceCap {
		return fmt.Errorf("selection.max_count %d exceeds budget.total_instance_cap %d",
			c.Selection.MaxCount, c.Budget.TotalInstanceCap)
	}
	for category, quota := range c.Selection.Quotas {
		if quota < 0 {
			return fmt.Errorf("selection.quotas[%s] is negative", category)
		}
	}
	for _, tier := range []TierConfig{c.Budget.Hero, c.Budget.High, c.Budget.Medium, c.Budget.Low} {
		if tier.IntervalMs < 0 {
			return fmt.Errorf("budget tier interval is negative")
		}
	}
	return nil
}

// Criteria converts the selection section into engine criteria.
func (c *Config) Criteria() model.SelectionCriteria {
	always := make(map[string]struct{}, len(c.Selection.AlwaysInclude))
	for _, id := range c.Selection.AlwaysInclude {
		always[id] = struct{}{}
	}
	quotas := make(map[model.Category]int, len(c.Selection.Quotas))
	for category, quota := range c.Selection.Quotas {
		quotas[model.Category(category)] = quota
	}
	return model.SelectionCriteria{
		MaxCount:         c.Selection.MaxCount,
		AlwaysIncludeIDs: always,
		CategoryQuotas:   quotas,
	}
}

// ScoreWeights converts the weights section.
func (c *Config) ScoreWeights() model.ScoreWeights {
	rank := make(map[model.Category]float64, len(c.Weights.CategoryRank))
	for category, r := range c.Weights.CategoryRank {
		rank[model.Category(category)] = r
	}
	return model.ScoreWeights{
		Recency:            c.Weights.Recency,
		CategoryImportance: c.Weights.CategoryImportance,
		RegionRelevance:    c.Weights.RegionRelevance,
		CategoryRank:       rank,
	}
}

// RenderBudget converts the budget section.
func (c *Config) RenderBudget() model.RenderBudget {
	return model.RenderBudget{
		PerTierCount: map[model.LODTier]int{
			model.TierHero:   c.Budget.Hero.Count,
			model.TierHigh:   c.Budget.High.Count,
			model.TierMedium: c.Budget.Medium.Count,
			model.TierLow:    c.Budget.Low.Count,
		},
		PerTierInterval: map[model.LODTier]time.Duration{
			model.TierHero:   time.Duration(c.Budget.Hero.IntervalMs) * time.Millisecond,
			model.TierHigh:   time.Duration(c.Budget.High.IntervalMs) * time.Millisecond,
			model.TierMedium: time.Duration(c.Budget.Medium.IntervalMs) * time.Millisecond,
			model.TierLow:    time.Duration(c.Budget.Low.IntervalMs) * time.Millisecond,
		},
		TotalInstanceCap: c.Budget.TotalInstanceCap,
	}
}

// Categories converts the catalog category list.
func (c *Config) Categories() []model.Category {
	out := make([]model.Category, 0, len(c.Catalog.Categories))
	for _, category := range c.Catalog.Categories {
		out = append(out, model.Category(category))
	}
	return out
}

// CatalogTTL returns the cache TTL as a duration.
func (c *Config) CatalogTTL() time.Duration {
	return time.Duration(c.Catalog.TTLMinutes) * time.Minute
}

// RefreshInterval returns the periodic refresh cadence.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Catalog.RefreshMinutes) * time.Minute
}

// Debounce returns the criteria debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Selection.DebounceMs) * time.Millisecond
}

// Tick returns the render tick interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Server.TickMs) * time.Millisecond
}
