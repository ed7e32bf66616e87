// Package config holds the tuning record that drives every subsystem.
// Values load from a YAML file and fall back to defaults; nothing in the
// simulation reads tuning from anywhere else.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete tuning record for one world.
type Config struct {
	Seed           int64   `yaml:"seed"`
	TimeScale      float64 `yaml:"time_scale"` // game-hour = 3600 sim-seconds / time_scale
	FrameIntervalS float64 `yaml:"frame_interval_s"`

	Economy  EconomyConfig  `yaml:"economy"`
	Crafting CraftingConfig `yaml:"crafting"`
}

// EconomyConfig tunes markets, prices, events, ripples, and routes.
type EconomyConfig struct {
	SimulationThresholdS float64 `yaml:"simulation_threshold_s"` // market advance interval
	PriceUpdateIntervalS float64 `yaml:"price_update_interval_s"`

	SupplyDemandWeight float64 `yaml:"supply_demand_weight"` // [0,1]
	PriceSmoothing     float64 `yaml:"price_smoothing"`      // (0,1]
	SellRatio          float64 `yaml:"sell_ratio"`           // (0,1]
	DemandElasticity   float64 `yaml:"demand_elasticity"`
	MinMult            float64 `yaml:"min_mult"`
	MaxMult            float64 `yaml:"max_mult"`
	PriceFloor         int64   `yaml:"price_floor"`
	PriceCeiling       int64   `yaml:"price_ceiling"`
	TrendCoefficient   float64 `yaml:"trend_coefficient"`
	TrendWindow        int     `yaml:"trend_window"`
	VolatilityThresh   float64 `yaml:"volatility_threshold"`
	VolumeDiscountMax   float64 `yaml:"volume_discount_max"`
	VolumeDiscountSlope float64 `yaml:"volume_discount_slope"`
	SpecializationBonus float64 `yaml:"specialization_bonus"`
	PriceHistoryCap     int     `yaml:"price_history_cap"`

	EventCheckIntervalS   float64 `yaml:"event_check_interval_s"`
	BaseEventChancePerHr  float64 `yaml:"base_event_chance_per_hour"`
	MinTimeBetweenEventsS float64 `yaml:"min_time_between_events_s"`
	MaxActiveEvents       int     `yaml:"max_active_events"`
	CatastrophicEnabled   bool    `yaml:"catastrophic_enabled"`
	CatastrophicChance    float64 `yaml:"catastrophic_chance"`
	CatastrophicMinGapS   float64 `yaml:"catastrophic_min_gap_s"`
	ChainDelayMinS        float64 `yaml:"chain_delay_min_s"`
	ChainDelayMaxS        float64 `yaml:"chain_delay_max_s"`
	EventHistoryCap       int     `yaml:"event_history_cap"`

	RippleStepIntervalS float64 `yaml:"ripple_step_interval_s"`
	RippleMaxDepth      int     `yaml:"ripple_max_depth"`
	RippleDampening     float64 `yaml:"ripple_dampening"`
	MagnitudeCutoff     float64 `yaml:"magnitude_cutoff"`

	RouteRefreshIntervalS float64 `yaml:"route_refresh_interval_s"`
	RouteRiskWeight       float64 `yaml:"route_risk_weight"`
	OpportunityTTLS       float64 `yaml:"opportunity_ttl_s"`
}

// CraftingConfig tunes jobs, quality, skills, automation, and the planner.
type CraftingConfig struct {
	JobUpdateFrequencyS     float64 `yaml:"job_update_frequency_s"`
	JobBatchSize            int     `yaml:"job_batch_size"`
	MaxGlobalConcurrentJobs int     `yaml:"max_global_concurrent_jobs"`

	BaseQualityVariance  float64 `yaml:"base_quality_variance"`
	BaseCriticalChance   float64 `yaml:"base_critical_chance"`
	CriticalQualityBonus int     `yaml:"critical_quality_bonus"`

	ExperienceCurveExponent   float64 `yaml:"experience_curve_exponent"`
	ExperienceCurveMultiplier float64 `yaml:"experience_curve_multiplier"`
	SkillPointsPerLevel       int     `yaml:"skill_points_per_level"`
	MaxConcurrentResearch     int     `yaml:"max_concurrent_research"`
	ResearchSpeedMultiplier   float64 `yaml:"research_speed_multiplier"`
	BaseExperimentationChance float64 `yaml:"base_experimentation_chance"`

	NetworkUpdateFrequencyS      float64 `yaml:"network_update_frequency_s"`
	BottleneckDetectionIntervalS float64 `yaml:"bottleneck_detection_interval_s"`
	MaxNodesInNetwork            int     `yaml:"max_nodes_in_network"`

	MaxChainDepth    int `yaml:"max_chain_depth"`
	MaxPlanCacheSize int `yaml:"max_plan_cache_size"`
	MaxVariationsPerRecipe int `yaml:"max_variations_per_recipe"`
}

// Default returns the tuning every test and fresh world starts from.
func Default() Config {
	return Config{
		Seed:           42,
		TimeScale:      60, // one game-hour per real minute
		FrameIntervalS: 0.05,
		Economy: EconomyConfig{
			SimulationThresholdS: 60,
			PriceUpdateIntervalS: 5,

			SupplyDemandWeight: 0.7,
			PriceSmoothing:     0.2,
			SellRatio:          0.8,
			DemandElasticity:   0.85,
			MinMult:            0.25,
			MaxMult:            4.0,
			PriceFloor:         1,
			PriceCeiling:       100000,
			TrendCoefficient:   0.15,
			TrendWindow:        10,
			VolatilityThresh:   0.08,
			VolumeDiscountMax:   0.25,
			VolumeDiscountSlope: 0.002,
			SpecializationBonus: 1.15,
			PriceHistoryCap:     100,

			EventCheckIntervalS:   10,
			BaseEventChancePerHr:  0.35,
			MinTimeBetweenEventsS: 120,
			MaxActiveEvents:       6,
			CatastrophicEnabled:   true,
			CatastrophicChance:    0.05,
			CatastrophicMinGapS:   1800,
			ChainDelayMinS:        30,
			ChainDelayMaxS:        180,
			EventHistoryCap:       64,

			RippleStepIntervalS: 0.5,
			RippleMaxDepth:      4,
			RippleDampening:     0.6,
			MagnitudeCutoff:     0.05,

			RouteRefreshIntervalS: 15,
			RouteRiskWeight:       0.2,
			OpportunityTTLS:       60,
		},
		Crafting: CraftingConfig{
			JobUpdateFrequencyS:     0.1,
			JobBatchSize:            16,
			MaxGlobalConcurrentJobs: 32,

			BaseQualityVariance:  0.15,
			BaseCriticalChance:   0.05,
			CriticalQualityBonus: 1,

			ExperienceCurveExponent:   1.5,
			ExperienceCurveMultiplier: 1.0,
			SkillPointsPerLevel:       1,
			MaxConcurrentResearch:     3,
			ResearchSpeedMultiplier:   1.0,
			BaseExperimentationChance: 0.25,

			NetworkUpdateFrequencyS:      0.1,
			BottleneckDetectionIntervalS: 5,
			MaxNodesInNetwork:            128,

			MaxChainDepth:          10,
			MaxPlanCacheSize:       64,
			MaxVariationsPerRecipe: 8,
		},
	}
}

// Load reads a YAML tuning file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("tuning %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects tuning values outside their documented ranges.
func (c Config) Validate() error {
	e := c.Economy
	switch {
	case c.TimeScale <= 0:
		return fmt.Errorf("time_scale must be > 0, got %v", c.TimeScale)
	case e.SupplyDemandWeight < 0 || e.SupplyDemandWeight > 1:
		return fmt.Errorf("supply_demand_weight must be in [0,1], got %v", e.SupplyDemandWeight)
	case e.PriceSmoothing <= 0 || e.PriceSmoothing > 1:
		return fmt.Errorf("price_smoothing must be in (0,1], got %v", e.PriceSmoothing)
	case e.SellRatio <= 0 || e.SellRatio > 1:
		return fmt.Errorf("sell_ratio must be in (0,1], got %v", e.SellRatio)
	case e.MinMult <= 0 || e.MinMult > e.MaxMult:
		return fmt.Errorf("min_mult/max_mult invalid: %v/%v", e.MinMult, e.MaxMult)
	case e.PriceFloor < 1 || e.PriceFloor > e.PriceCeiling:
		return fmt.Errorf("price_floor/price_ceiling invalid: %v/%v", e.PriceFloor, e.PriceCeiling)
	case e.RippleDampening <= 0 || e.RippleDampening > 1:
		return fmt.Errorf("ripple_dampening must be in (0,1], got %v", e.RippleDampening)
	}
	cr := c.Crafting
	switch {
	case cr.JobBatchSize < 1:
		return fmt.Errorf("job_batch_size must be >= 1, got %d", cr.JobBatchSize)
	case cr.MaxChainDepth < 1:
		return fmt.Errorf("max_chain_depth must be >= 1, got %d", cr.MaxChainDepth)
	case cr.MaxNodesInNetwork < 1:
		return fmt.Errorf("max_nodes_in_network must be >= 1, got %d", cr.MaxNodesInNetwork)
	}
	return nil
}

// GameHours converts simulation seconds into game-hours under this tuning.
func (c Config) GameHours(simSeconds float64) float64 {
	return simSeconds * c.TimeScale / 3600.0
}
