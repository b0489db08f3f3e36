package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a Config that passes Validate.
func validConfig() Config {
	cfg := Defaults()
	cfg.Venues = map[string]VenueConfig{
		"alpha": {Enabled: true, BaseURL: "https://alpha.example"},
		"beta":  {Enabled: true, BaseURL: "https://beta.example"},
	}
	return cfg
}

func TestDefaultsAreValidForPaperMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateAcceptsFullConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "yolo" },
			wantMsg: "unknown mode",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantMsg: "unknown log_level",
		},
		{
			name: "single enabled venue",
			mutate: func(c *Config) {
				delete(c.Venues, "beta")
			},
			wantMsg: "at least two enabled venues",
		},
		{
			name: "enabled venue without base url",
			mutate: func(c *Config) {
				v := c.Venues["alpha"]
				v.BaseURL = ""
				c.Venues["alpha"] = v
			},
			wantMsg: "base_url",
		},
		{
			name: "negative fees",
			mutate: func(c *Config) {
				v := c.Venues["alpha"]
				v.Fees.TakerEntryPct = -0.1
				c.Venues["alpha"] = v
			},
			wantMsg: "must not be negative",
		},
		{
			name:    "zero scan interval",
			mutate:  func(c *Config) { c.Scanner.Interval = duration{} },
			wantMsg: "interval must be positive",
		},
		{
			name:    "zero stake",
			mutate:  func(c *Config) { c.Executor.StakeSizeUSD = 0 },
			wantMsg: "stake_size_usd",
		},
		{
			name:    "leverage below one",
			mutate:  func(c *Config) { c.Executor.Leverage = 0.5 },
			wantMsg: "leverage must be >= 1",
		},
		{
			name:    "liquidation margin out of range",
			mutate:  func(c *Config) { c.Supervisor.LiquidationMarginPct = 150 },
			wantMsg: "liquidation_margin_pct",
		},
		{
			name: "postgres enabled without host",
			mutate: func(c *Config) {
				c.Postgres.Enabled = true
				c.Postgres.Host = ""
			},
			wantMsg: "postgres: host",
		},
		{
			name: "redis enabled without addr",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantMsg: "redis: addr",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "yolo"
	cfg.Executor.StakeSizeUSD = -1
	cfg.Scanner.TopN = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"unknown mode", "stake_size_usd", "top_n"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("combined error %q missing %q", err.Error(), want)
		}
	}
}

func TestPaperModeNeedsNoVenues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "paper"
	cfg.Venues = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("duration = %v, want 90s", d.Duration)
	}
	if err := d.UnmarshalText([]byte("not a duration")); err == nil {
		t.Error("UnmarshalText accepted garbage")
	}
}

func TestFeeModelsOnlyEnabledVenues(t *testing.T) {
	cfg := validConfig()
	v := cfg.Venues["beta"]
	v.Enabled = false
	cfg.Venues["beta"] = v

	models := cfg.FeeModels()
	if _, ok := models["alpha"]; !ok {
		t.Error("alpha missing from fee models")
	}
	if _, ok := models["beta"]; ok {
		t.Error("disabled venue present in fee models")
	}
}
