// Package config loads, normalizes, and validates annotator configuration.
//
// It supplies defaults for every knob, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SECRET_KEY and ANNOTATOR_POSTGRES_DSN. Distribution tunables
// (annotators per clip, clips per block) and the scoring IoU threshold live
// here so they remain externally adjustable.
package config
