package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default tuning invalid: %v", err)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero time scale", func(c *Config) { c.TimeScale = 0 }},
		{"weight above one", func(c *Config) { c.Economy.SupplyDemandWeight = 1.5 }},
		{"zero smoothing", func(c *Config) { c.Economy.PriceSmoothing = 0 }},
		{"inverted mults", func(c *Config) { c.Economy.MinMult = 5; c.Economy.MaxMult = 1 }},
		{"floor above ceiling", func(c *Config) { c.Economy.PriceFloor = 10; c.Economy.PriceCeiling = 5 }},
		{"zero dampening", func(c *Config) { c.Economy.RippleDampening = 0 }},
		{"zero batch", func(c *Config) { c.Crafting.JobBatchSize = 0 }},
		{"zero chain depth", func(c *Config) { c.Crafting.MaxChainDepth = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	data := []byte("seed: 99\ntime_scale: 120\neconomy:\n  price_floor: 2\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Seed != 99 || cfg.TimeScale != 120 {
		t.Fatalf("overrides not applied: seed=%d scale=%v", cfg.Seed, cfg.TimeScale)
	}
	if cfg.Economy.PriceFloor != 2 {
		t.Fatalf("nested override not applied: floor=%d", cfg.Economy.PriceFloor)
	}
	// Untouched values keep defaults.
	if cfg.Economy.MaxActiveEvents != Default().Economy.MaxActiveEvents {
		t.Fatal("unrelated default clobbered")
	}
}

func TestGameHours(t *testing.T) {
	cfg := Default() // time_scale 60
	if got := cfg.GameHours(60); got != 1 {
		t.Fatalf("60 sim-seconds = %v game-hours, want 1", got)
	}
}
