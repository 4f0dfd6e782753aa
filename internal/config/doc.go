// Package config loads, normalizes, and validates scenegen configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as SCENEGEN_BACKEND_TOKEN and GEMINI_API_KEY. The
// Config type centralizes every knob the daemon and CLI need: working
// directories, the generation backend, the attempt-policy table, scorer
// settings, assembly and ducking parameters, and asset storage.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
