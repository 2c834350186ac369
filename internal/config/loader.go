package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "mb-classifier.v1.schema.json"

// LoadAndValidate reads the YAML config at path, validates it against the
// embedded schema and merges it over Default. Relative file paths in the
// config are resolved against the config file's directory.
func LoadAndValidate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("config: failed to resolve config directory: %w", err)
	}
	cfg.ResolvePaths(dir)

	return cfg, nil
}

// LoadOrDefault behaves like LoadAndValidate but falls back to Default when
// the file does not exist. The bool reports whether a file was read.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := LoadAndValidate(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Parse validates and decodes raw YAML.
func Parse(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	schema, err := jsonschema.CompileString(schemaURL, schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return cfg, nil
}
