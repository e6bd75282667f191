// Package config provides configuration management for flowd.
//
// Configuration is loaded from environment variables with sensible defaults
// for local development. Executor knobs (max parallelism, per-step timeout,
// stop-on-error) become the defaults for submitted tasks; callers may
// override them per request.
package config
