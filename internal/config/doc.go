// Package config loads, normalizes, and validates scan station configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// UUKSCAN_BACKEND_URL. The Config type centralizes every knob the station and
// CLI need so the backend endpoint, camera driver, and local data directory
// are discovered in one pass.
//
// The relay reads its settings from the environment instead; ParseEnv is the
// shared entry point for that path.
package config
