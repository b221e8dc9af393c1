package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load decodes a YAML document into a validated Config. Environment
// references in the document are expanded first, then OMNIFORGE_* overrides
// apply, then defaults and validation.
func Load(data []byte) (*Config, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded, err := yaml.Marshal(normalizeKeys(ExpandEnvVarsInData(normalizeKeys(raw))))
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return ProcessPipeline(cfg)
}

// LoadFromFile loads a YAML config file. An empty path yields the default
// configuration with environment overrides applied.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		if err := cfg.ApplyEnv(); err != nil {
			return nil, err
		}
		return ProcessPipeline(cfg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Load(data)
}

// normalizeKeys converts map[interface{}]interface{} nodes from the YAML
// decoder into map[string]interface{} so expansion can walk them.
func normalizeKeys(data interface{}) interface{} {
	switch v := data.(type) {
	case map[interface{}]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[fmt.Sprintf("%v", key)] = normalizeKeys(value)
		}
		return result
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = normalizeKeys(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = normalizeKeys(item)
		}
		return result
	default:
		return v
	}
}
