// Package config handles loading and validating the Klafs vDC bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with KLAFSVDC_* environment variables
//   - Validation of the mandatory account and appliance fields
//   - Writing a template when no configuration exists
//
// Security Considerations:
//   - The Klafs password and PIN should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if errors.Is(err, config.ErrConfigMissing) {
//	    _ = config.WriteTemplate("configs/config.yaml")
//	}
package config
