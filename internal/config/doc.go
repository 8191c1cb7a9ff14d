// Package config holds the runtime configuration of torcorrelate.
//
// Values come from three layers, later layers winning:
//  1. defaults from NewConfig
//  2. the YAML file found by FindConfigFile (.torcorrelate)
//  3. command-line flags
//
// The correlation engine settings and the active weight profile are derived
// from the resulting Config with EngineSettings and ResolveProfile.
package config
