// Package config loads, normalizes, and validates Capstan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CAPSTAN_TOKEN. The stream URL is derived from the server URL when not set
// explicitly.
//
// Always obtain settings through this package so downstream code receives
// sanitized URLs, canonical log formats, and clear validation errors.
package config
