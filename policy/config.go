package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DenyListConfig holds pattern-matched identifiers that force a BLOCK
// hard outcome on any match. Entries may use the wildcard syntax accepted
// by enforce.MatchPattern ("*", "?"), so a deny entry like "device:stolen-*"
// matches a whole family of device IDs.
type DenyListConfig struct {
	Users     []string `yaml:"users,omitempty" json:"users,omitempty"`
	Devices   []string `yaml:"devices,omitempty" json:"devices,omitempty"`
	IPs       []string `yaml:"ips,omitempty" json:"ips,omitempty"`
	Merchants []string `yaml:"merchants,omitempty" json:"merchants,omitempty"`
}

// VelocityCaps bounds transaction frequency per user and per device.
// Exceeding any cap forces a BLOCK hard outcome.
type VelocityCaps struct {
	UserHourly     int `yaml:"user_hourly" json:"user_hourly"`
	UserDaily      int `yaml:"user_daily" json:"user_daily"`
	DeviceHourly   int `yaml:"device_hourly" json:"device_hourly"`
	HighValueDaily int `yaml:"high_value_daily" json:"high_value_daily"`
}

// GeoConfig configures distance- and travel-based rules.
type GeoConfig struct {
	DistanceKmReview    float64 `yaml:"distance_km_review" json:"distance_km_review"`
	ImpossibleTravelKmh float64 `yaml:"impossible_travel_kmh" json:"impossible_travel_kmh"`
}

// TimeConfig configures the night-window tag used to flag, but not itself
// decide, off-hours transactions.
type TimeConfig struct {
	NightWindowStart int `yaml:"night_window_start" json:"night_window_start"`
	NightWindowEnd   int `yaml:"night_window_end" json:"night_window_end"`
}

// AmountConfig configures the amount-based rules.
type AmountConfig struct {
	FirstTransactionStepUp float64 `yaml:"first_transaction_step_up" json:"first_transaction_step_up"`
	ReviewAbsolute         float64 `yaml:"review_absolute" json:"review_absolute"`
	ReviewMultiplierOfMean float64 `yaml:"review_multiplier_of_mean" json:"review_multiplier_of_mean"`
}

// Config is the versioned rules-engine configuration document. It replaces
// the allow/deny Policy schema's role as the signed
// document the rules engine evaluates against.
type Config struct {
	Version     string         `yaml:"version" json:"version"`
	DenyList    DenyListConfig `yaml:"deny_list" json:"deny_list"`
	Velocity    VelocityCaps   `yaml:"velocity" json:"velocity"`
	Geo         GeoConfig      `yaml:"geo" json:"geo"`
	Time        TimeConfig     `yaml:"time" json:"time"`
	Amount      AmountConfig   `yaml:"amount" json:"amount"`
	CustomRules []Rule         `yaml:"custom_rules,omitempty" json:"custom_rules,omitempty"`
}

// DefaultConfig returns the rules-engine defaults.
func DefaultConfig() Config {
	return Config{
		Version: "1",
		Velocity: VelocityCaps{
			UserHourly:     10,
			UserDaily:      50,
			DeviceHourly:   5,
			HighValueDaily: 3,
		},
		Geo: GeoConfig{
			DistanceKmReview:    500,
			ImpossibleTravelKmh: 500,
		},
		Time: TimeConfig{
			NightWindowStart: 3,
			NightWindowEnd:   5,
		},
		Amount: AmountConfig{
			FirstTransactionStepUp: 500,
			ReviewAbsolute:         10000,
			ReviewMultiplierOfMean: 100,
		},
	}
}

// Validate checks the configuration for internal consistency,
// rejecting a malformed document at load rather than at first use
// (see ratelimit.Config.Validate).
func (c Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("policy: version is required")
	}
	if c.Velocity.UserHourly <= 0 || c.Velocity.UserDaily <= 0 || c.Velocity.DeviceHourly <= 0 || c.Velocity.HighValueDaily <= 0 {
		return fmt.Errorf("policy: velocity caps must be positive")
	}
	if c.Velocity.UserHourly > c.Velocity.UserDaily {
		return fmt.Errorf("policy: user_hourly cap cannot exceed user_daily cap")
	}
	if c.Geo.DistanceKmReview <= 0 {
		return fmt.Errorf("policy: geo.distance_km_review must be positive")
	}
	if c.Geo.ImpossibleTravelKmh <= 0 {
		return fmt.Errorf("policy: geo.impossible_travel_kmh must be positive")
	}
	if c.Time.NightWindowStart < 0 || c.Time.NightWindowStart > 23 {
		return fmt.Errorf("policy: time.night_window_start must be in [0,23]")
	}
	if c.Time.NightWindowEnd < 0 || c.Time.NightWindowEnd > 23 {
		return fmt.Errorf("policy: time.night_window_end must be in [0,23]")
	}
	if c.Amount.FirstTransactionStepUp <= 0 || c.Amount.ReviewAbsolute <= 0 || c.Amount.ReviewMultiplierOfMean <= 0 {
		return fmt.Errorf("policy: amount thresholds must be positive")
	}
	for _, rule := range c.CustomRules {
		if rule.Name == "" {
			return fmt.Errorf("policy: custom rule missing name")
		}
		if !rule.Effect.IsValid() {
			return fmt.Errorf("policy: custom rule %q has invalid effect %q", rule.Name, rule.Effect)
		}
	}
	return nil
}

// LoadConfigFile reads and validates a rules Config from a local YAML
// document, the file-based counterpart to SSMLoader.Load for
// deployments that ship rules alongside the binary instead of through
// Parameter Store. A malformed or inconsistent document is rejected
// here rather than surfacing as a first-request failure.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("policy: read rules file %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("policy: parse rules file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("policy: rules file %s: %w", path, err)
	}
	return cfg, nil
}
