/*
Package config loads the billing engine configuration.

The label->amount and label->rate tables vary between deployments (the
source variants even disagreed with each other), so they are injected
here as configuration rather than compiled in. Both tables are ORDERED:
table order is the priority order reconciliation uses when several
billing labels are present at once.

Secrets (the time-tracking API token) come from the environment, not
the config file; cmd loads a .env file before reading it.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/warp/billing-engine/ledger"
	"github.com/warp/billing-engine/toggl"
)

// Config holds all billing engine configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Reconcile   ReconcileConfig   `toml:"reconcile"`
	Toggl       TogglConfig       `toml:"toggl"`
	AutoCharges []AutoChargeEntry `toml:"auto_charge"`
	HourlyRates []HourlyRateEntry `toml:"hourly_rate"`
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Port          int      `toml:"port"`
	DBPath        string   `toml:"db_path"`
	SweepInterval duration `toml:"sweep_interval"`
	CORSOrigins   []string `toml:"cors_origins"`
}

// ReconcileConfig holds reconciliation behavior settings.
type ReconcileConfig struct {
	// RetractOnRemoval: whether removing a label retracts its automatic
	// charge. The source variants disagreed; default is to retract.
	RetractOnRemoval bool    `toml:"retract_on_removal"`
	DefaultRate      float64 `toml:"default_rate"`
}

// TogglConfig holds time-tracking API settings. The token itself comes
// from the TOGGL_API_TOKEN environment variable.
type TogglConfig struct {
	BaseURL        string `toml:"base_url"`
	ProxyURL       string `toml:"proxy_url"`
	SyncWindowDays int    `toml:"sync_window_days"`
}

// AutoChargeEntry is one row of the label->flat-fee table.
type AutoChargeEntry struct {
	Label  string  `toml:"label"`
	Amount float64 `toml:"amount"`
}

// HourlyRateEntry is one row of the label->rate table.
type HourlyRateEntry struct {
	Label string  `toml:"label"`
	Rate  float64 `toml:"rate"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in configuration, carrying the table values
// of the source system's latest variant.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:          8080,
			DBPath:        "billing.db",
			SweepInterval: duration{10 * time.Minute},
			CORSOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Reconcile: ReconcileConfig{
			RetractOnRemoval: true,
			DefaultRate:      100,
		},
		Toggl: TogglConfig{
			BaseURL:        toggl.DefaultBaseURL,
			SyncWindowDays: 365,
		},
		AutoCharges: []AutoChargeEntry{
			{Label: "Pierce GAL", Amount: 2000},
			{Label: "Pierce MG GAL", Amount: 2000},
			{Label: "Kitsap GAL", Amount: 4000},
			{Label: "Kitsap MG GAL", Amount: 4000},
		},
		HourlyRates: []HourlyRateEntry{
			{Label: "Kitsap GAL", Rate: 200},
			{Label: "Pierce GAL", Rate: 125},
			{Label: "Kitsap MG GAL", Rate: 200},
			{Label: "Pierce CV", Rate: 126},
			{Label: "Kitsap CV", Rate: 75},
			{Label: "Pierce MG GAL", Rate: 125},
		},
	}
}

// Load reads a TOML config file over the defaults. A missing file is
// not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Reconciler builds the ledger reconciler from the configured tables,
// preserving table order as priority order.
func (c Config) Reconciler() *ledger.Reconciler {
	rc := &ledger.Reconciler{
		RetractOnRemoval: c.Reconcile.RetractOnRemoval,
		DefaultRate:      ledger.NewMoney(c.Reconcile.DefaultRate),
	}
	for _, e := range c.AutoCharges {
		rc.AutoCharges = append(rc.AutoCharges, ledger.AutoChargeRule{
			Label:  e.Label,
			Amount: ledger.NewMoney(e.Amount),
		})
	}
	for _, e := range c.HourlyRates {
		rc.HourlyRates = append(rc.HourlyRates, ledger.RateRule{
			Label: e.Label,
			Rate:  ledger.NewMoney(e.Rate),
		})
	}
	return rc
}

// TogglClient builds the API client, or nil when no token is set.
func (c Config) TogglClient() *toggl.Client {
	token := os.Getenv("TOGGL_API_TOKEN")
	if token == "" {
		return nil
	}
	client := toggl.New(token)
	if c.Toggl.BaseURL != "" {
		client.BaseURL = c.Toggl.BaseURL
	}
	client.ProxyURL = c.Toggl.ProxyURL
	return client
}
