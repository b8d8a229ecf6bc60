package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// readAsJSON reads a configuration file and returns its content normalized
// to JSON. The format is chosen by file extension: .json, .yaml/.yml or
// .toml. Everything downstream (schema validation, struct decoding,
// unknown-field detection) works on the normalized JSON.
func readAsJSON(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return normalize(path, data)
}

func normalize(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", "":
		if !json.Valid(data) {
			var v any
			err := json.Unmarshal(data, &v)
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		return data, nil
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if v == nil {
			v = map[string]any{}
		}
		return marshalNormalized(v)
	case ".toml":
		v := map[string]any{}
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		return marshalNormalized(v)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (use .json, .yaml, .yml or .toml)", ext)
	}
}

func marshalNormalized(v any) ([]byte, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config file: %w", err)
	}
	return out, nil
}
