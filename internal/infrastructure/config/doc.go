// Package config handles loading and validating feederpull configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Reading secrets from an optional .env file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Historian, warehouse and broker passwords should come from the
//     environment or a .env file, never from the committed YAML
//   - The config and .env files should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Historian.BaseURL)
package config
