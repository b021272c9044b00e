// Package config assembles the server settings from command line flags,
// JOINLY_* environment variables and an optional YAML settings file.
// Flags win over environment, environment wins over the file. Provider
// credentials are read from the environment only and never appear in the
// settings file.
package config
