package types

import (
	"fmt"
	"os"
	"time"
)

// ControllersFile is the on-disk list of pool controllers.
type ControllersFile struct {
	Version     string              `yaml:"version" json:"version"`
	Controllers []ControllerProfile `yaml:"controllers" json:"controllers"`
}

// ControllerProfile describes how to reach one ProCon.IP controller.
type ControllerProfile struct {
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	Username     string `yaml:"username" json:"username"`
	PasswordEnv  string `yaml:"password_env,omitempty" json:"password_env,omitempty"`
	Timeout      string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	PollInterval string `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
	Disabled     bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	// ForbidDosageRelayOff overrides the global relay setting when set.
	ForbidDosageRelayOff *bool `yaml:"forbid_dosage_relay_off,omitempty" json:"forbid_dosage_relay_off,omitempty"`
}

// Password liest das Passwort aus der konfigurierten Environment Variable
func (p ControllerProfile) Password() string {
	if p.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(p.PasswordEnv)
}

// TimeoutOr returns the profile timeout or fallback if unset.
func (p ControllerProfile) TimeoutOr(fallback time.Duration) (time.Duration, error) {
	return durationOr(p.Timeout, fallback, "timeout")
}

// PollIntervalOr returns the profile poll interval or fallback if unset.
func (p ControllerProfile) PollIntervalOr(fallback time.Duration) (time.Duration, error) {
	return durationOr(p.PollInterval, fallback, "poll_interval")
}

func durationOr(raw string, fallback time.Duration, field string) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", field, raw)
	}
	return d, nil
}
