// Package config loads the monitor configuration from a YAML file and
// environment variables and validates it. It covers the status HTTP server,
// logging, scan timing, the registry backend and how groups are balanced
// across monitor nodes.
package config
