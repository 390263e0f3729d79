package domain

import "time"

// SinkConfig configures the prospect status sink webhook. When URL is empty
// the engine keeps prospect status locally only.
type SinkConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"` // Encrypted in storage
}

// MonitorConfig tunes the agent health monitor.
type MonitorConfig struct {
	CheckInterval    time.Duration `json:"check_interval"`
	OfflineTimeout   time.Duration `json:"offline_timeout"`
	StaggerThreshold int           `json:"stagger_threshold"`
	StaggerSpacing   time.Duration `json:"stagger_spacing"`
}

// SweepConfig tunes the reply detection sweep.
type SweepConfig struct {
	Interval       time.Duration `json:"interval"`
	ContactWindow  time.Duration `json:"contact_window"`
	CheckCacheTTL  time.Duration `json:"check_cache_ttl"`
	SettleTimeout  time.Duration `json:"settle_timeout"`
	SettleInterval time.Duration `json:"settle_interval"`
	BatchSize      int           `json:"batch_size"`
	BatchDelay     time.Duration `json:"batch_delay"`
}

// LimitDefaults is the engine-wide throttling default plus the safe bands
// operator overrides must stay inside.
type LimitDefaults struct {
	Families     map[string]FamilyLimits `json:"families"`
	HourlyBand   CapBand                 `json:"hourly_band"`
	DailyBand    CapBand                 `json:"daily_band"`
	WeeklyBand   CapBand                 `json:"weekly_band"`
	WorkingHours WorkingHours            `json:"working_hours"`
}

// EngineConfig is the persisted engine configuration.
type EngineConfig struct {
	Limits  LimitDefaults `json:"limits"`
	Monitor MonitorConfig `json:"monitor"`
	Sweep   SweepConfig   `json:"sweep"`
	Sink    SinkConfig    `json:"sink"`
}

// DefaultConfig returns safe defaults. Caps are deliberately conservative:
// an overage risks the underlying third-party account.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Limits: LimitDefaults{
			Families: map[string]FamilyLimits{
				"invitation": {HourlyCap: 10, DailyCap: 40, WeeklyCap: 180, MinSpacing: 90 * time.Second},
				"message":    {HourlyCap: 15, DailyCap: 60, WeeklyCap: 250, MinSpacing: 60 * time.Second},
				"visit":      {HourlyCap: 30, DailyCap: 150, WeeklyCap: 700, MinSpacing: 20 * time.Second},
				"check":      {HourlyCap: 60, DailyCap: 400, WeeklyCap: 2000, MinSpacing: 5 * time.Second},
			},
			HourlyBand:   CapBand{Min: 1, Max: 60},
			DailyBand:    CapBand{Min: 5, Max: 400},
			WeeklyBand:   CapBand{Min: 20, Max: 2000},
			WorkingHours: WorkingHours{Enabled: true, StartHour: 9, EndHour: 18},
		},
		Monitor: MonitorConfig{
			CheckInterval:    30 * time.Second,
			OfflineTimeout:   2 * time.Minute,
			StaggerThreshold: 100,
			StaggerSpacing:   10 * time.Second,
		},
		Sweep: SweepConfig{
			Interval:       15 * time.Minute,
			ContactWindow:  7 * 24 * time.Hour,
			CheckCacheTTL:  30 * time.Minute,
			SettleTimeout:  25 * time.Second,
			SettleInterval: 2 * time.Second,
			BatchSize:      5,
			BatchDelay:     5 * time.Second,
		},
		Sink: SinkConfig{},
	}
}
