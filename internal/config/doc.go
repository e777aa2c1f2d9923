// Package config loads listener configuration from YAML.
//
// Environment variables in the form ${VAR} are expanded before parsing, so
// secrets such as the database password stay out of the file. Load parses
// only; LoadWithDefaults fills optional fields; LoadAndValidate also checks
// required fields and ranges.
package config
