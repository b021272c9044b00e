// Package logging provides structured logging setup and helpers for joinly.
//
// All components log through log/slog. Setup selects the handler (JSON by
// default, plain text console with --logging-plain) and maps the CLI
// verbosity flags onto slog levels. The attribute helpers keep log keys
// consistent across the codebase so sessions, tools and services can be
// correlated.
package logging
