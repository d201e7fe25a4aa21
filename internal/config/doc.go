// Package config provides agent configuration for snapctl-agent.
//
// This package defines the configuration structure and validation:
//
//   - spec.go: AgentConfig struct definition
//   - default.go: default configuration values
//   - cluster.go: ClusterSection -> cluster.RosterConfig conversion
//   - verify.go: business validation (required paths, peer addressing)
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: in-code defaults, a YAML file read once at startup,
// and environment variables, each overriding the one before.
package config
