// Package config loads greeter and echo server configuration from YAML.
//
// ${VAR} references in the file are expanded from the environment before
// decoding. Every field has a default, so an empty path yields a usable
// configuration pointed at ws://127.0.0.1:5050.
package config
