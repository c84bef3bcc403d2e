// Package config provides configuration types and loading for the
// operation gateway.
//
// Configuration is YAML with ${VAR} and ${VAR:-default} substitution.
// Missing values fall back to DefaultConfig, and Validate reports every
// problem at once with the offending path:
//
//	cfg, err := config.LoadConfig("opgw.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//
// A Watcher reloads the file on change and hands validated configurations
// to a callback; the gateway uses it to apply new rate limit buckets.
package config
