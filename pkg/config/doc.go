// Package config loads gridsync's YAML configuration for the server
// and client roles, with environment overrides for the shared secret,
// the client token, and the shared cache DSN.
package config
