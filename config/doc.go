// Package config loads speechgate configuration from YAML, .env files and
// environment variables.
//
// The gateway's own config struct embeds ServiceConfig and adds one section
// per component; each section applies its own defaults and validation.
//
//	var cfg GatewayConfig
//	if err := config.LoadConfig("speechgate", &cfg); err != nil { ... }
//
// Environment variables override file values: SERVER_PORT maps to
// server.port, SESSION_STOP_TIMEOUT to session.stop_timeout.
package config
