// Package config loads taskforge settings from TASKFORGE_* environment
// variables and an optional config file using viper, decodes them with
// mapstructure hooks and validates them with struct tags.
package config
