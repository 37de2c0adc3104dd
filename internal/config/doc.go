// Package config loads, normalizes, and validates embedder configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for secrets
// such as EMBEDDER_QUEUE_DSN. The Config type centralizes every knob the worker
// and CLI need: queue connection, clip extraction, audio preparation, the
// embedding model, index and mapping locations, and snapshot upload.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
