// Package config handles loading and validating the Starlink bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with STARLINK_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Dish.Target)
package config
