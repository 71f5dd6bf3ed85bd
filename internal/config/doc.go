// Package config loads the rigd configuration.
//
// Values come from built-in defaults, an optional YAML file and RIGD_*
// environment variables, in that order. Durations in YAML use Go syntax
// ("1s", "1500ms"); environment durations also accept bare milliseconds.
package config
