package config

import "errors"

type ObservabilityConfig struct {
	ServiceName string         `koanf:"service_name"`
	Environment string         `koanf:"environment"`
	NewRelic    NewRelicConfig `koanf:"new_relic"`
}

type NewRelicConfig struct {
	Enabled    bool   `koanf:"enabled"`
	LicenseKey string `koanf:"license_key"`
}

func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{}
}

// DefaultServiceName is the APM application name reported by each binary.
func DefaultServiceName(section Section) string {
	switch section {
	case ForGenerator:
		return "logpipe-generator"
	case ForProvision:
		return "logpipe-provision"
	default:
		return "logpipe-consumer"
	}
}

func (o *ObservabilityConfig) Validate() error {
	if o.NewRelic.Enabled && o.NewRelic.LicenseKey == "" {
		return errors.New("new_relic.license_key is required when new_relic.enabled is set")
	}
	return nil
}
