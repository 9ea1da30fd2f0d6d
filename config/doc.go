// Package config loads chronicle's settings.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file,
// a .env file, the environment and command-line overrides. Well-known variables
// such as QDRANT_CLOUD_URL and OPENAI_API_KEY map to their keys directly; any
// other key can be set with a CHRONICLE_ variable named after its path.
package config
