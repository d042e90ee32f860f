package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DecodeStrict decodes YAML from a reader into out, rejecting unknown
// fields so a typo in a config file is a startup error, not a silent
// no-op.
func DecodeStrict(r io.Reader, out interface{}) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadFromYAMLFile reads and decodes a Config from path.
func LoadFromYAMLFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %s: %w", path, err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := DecodeStrict(f, cfg); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}
	return cfg, nil
}
