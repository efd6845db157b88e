// Package config loads client configuration from JSON or YAML files,
// selected by extension, with defaulting and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/discos/statuskit/errors"
)

// Duration is a time.Duration that unmarshals from strings like "5s"
// in both JSON and YAML.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds everything needed to run a subscriber.
type Config struct {
	// SchemaRoot is the directory holding definitions/, common/ and
	// any telescope overlay directories.
	SchemaRoot string `json:"schema_root" yaml:"schema_root"`

	// Telescope selects an overlay directory; empty loads common only.
	Telescope string `json:"telescope" yaml:"telescope"`

	// NATSURL is the transport server address.
	NATSURL string `json:"nats_url" yaml:"nats_url"`

	// Topics to subscribe; empty subscribes to every catalog topic.
	Topics []string `json:"topics" yaml:"topics"`

	// HandshakeTimeout bounds the wait for each topic's initial
	// snapshot.
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		SchemaRoot:       "schemas",
		NATSURL:          "nats://127.0.0.1:4222",
		HandshakeTimeout: Duration(5 * time.Second),
	}
}

// Load reads a configuration file, fills unset fields from Default and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.WrapFatal(err, "Config", "Load", "read config file")
	}

	switch ext := filepath.Ext(path); ext {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, errors.WrapInvalid(
			fmt.Errorf("unsupported config extension %q", ext),
			"Config", "Load", "detect format")
	}
	if err != nil {
		return Config{}, errors.WrapInvalid(err, "Config", "Load", "parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for fields no run can do without.
func (c Config) Validate() error {
	if c.SchemaRoot == "" {
		return errors.WrapInvalid(
			fmt.Errorf("schema_root must not be empty"),
			"Config", "Validate", "check schema root")
	}
	if c.NATSURL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("nats_url must not be empty"),
			"Config", "Validate", "check transport address")
	}
	if c.HandshakeTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("handshake_timeout must not be negative"),
			"Config", "Validate", "check handshake timeout")
	}
	return nil
}
