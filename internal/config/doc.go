// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional YAML file. It provides type-safe
// access to the settings of the registry, the durable store, the request
// coordinator, the fetcher, and thumbnail derivation.
package config
