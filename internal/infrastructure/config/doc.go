// Package config handles loading and validating inventory server configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Generating a commented template when no file exists
//   - Overriding with INVENTORY_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Credentials (MQTT password, InfluxDB token) should be set via environment variables
//   - Generated templates are written with 0600 permissions
//
// Usage:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
//
// The returned *Config is built once at start-up and handed to each
// component that needs it. Nothing in the server mutates it afterwards.
package config
