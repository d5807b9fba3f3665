// Package config provides configuration management for the Divan decision engine.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.divan/config.yaml and is automatically
// created with sensible defaults on first use. The file structure mirrors
// the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the DIVAN_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - DIVAN_GATE_RISK_THRESHOLD=0.8
//   - DIVAN_COUNCIL_POOL_SIZE=4
//   - DIVAN_LEARNING_ENABLED=false
//   - DIVAN_LOGGING_LEVEL=debug
//
// # Usage Example
//
//	package main
//
//	import (
//	    "log"
//	    "github.com/normanking/divan/internal/config"
//	)
//
//	func main() {
//	    cfg, err := config.Load()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := cfg.EnsureDirectories(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := cfg.Validate(); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Configuration Sections
//
//   - Storage: SQLite database holding knowledge entries, the decision log,
//     the outcome index, and learned priors
//   - Scoring: knowledge ranking engine tuning (top-K, recency half-life)
//   - Council: minister consultation bounds (pool size, per-minister timeout,
//     consensus threshold)
//   - Gate: final-authority thresholds
//   - Learning: outcome feedback loop controls
//   - Doctrine: optional on-disk doctrine override directory
//   - Observer: websocket audit stream address and replay depth
//   - Logging: log level and output file configuration
//
// # Path Expansion
//
// The package automatically expands ~ to the user's home directory in
// all path configurations, making config files portable across systems.
//
// # Validation
//
// The Validate() method checks configuration for common errors:
//   - Valid enum values (log level)
//   - Numeric range validation (thresholds, pool size, sample minimums)
//   - Required field presence
//
// # Thread Safety
//
// Config instances are not thread-safe. The engine loads one Config at
// startup and treats it as read-only from then on.
package config
