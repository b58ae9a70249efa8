// Package config handles loading and validating the Gree bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Writing a default config file for --create-config
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file is created with restricted permissions (0600)
//   - Config.String() masks credentials and device keys before they reach a log
//
// Usage:
//
//	cfg, err := config.Load(config.ResolvePath(*configFlag))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
