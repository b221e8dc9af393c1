package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// LoadEnvFiles loads .env.local then .env from the working directory.
// Missing files are not an error.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ParseBool parses a boolean environment value. Accepted true values are
// true, True, TRUE, 1, yes, Yes; false values are false, False, FALSE, 0,
// no, No.
func ParseBool(value string) (bool, error) {
	switch value {
	case "true", "True", "TRUE", "1", "yes", "Yes":
		return true, nil
	case "false", "False", "FALSE", "0", "no", "No":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", value)
}

// ProviderAPIKey returns the API key for a provider type from the
// environment. Provider types map to OMNIFORGE_<PROVIDER>_API_KEY.
func ProviderAPIKey(providerType string) string {
	switch providerType {
	case "openai":
		return os.Getenv("OMNIFORGE_OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("OMNIFORGE_ANTHROPIC_API_KEY")
	case "groq":
		return os.Getenv("OMNIFORGE_GROQ_API_KEY")
	case "openrouter":
		return os.Getenv("OMNIFORGE_OPENROUTER_API_KEY")
	case "azure_openai":
		return os.Getenv("OMNIFORGE_AZURE_OPENAI_API_KEY")
	default:
		return ""
	}
}

// APIBase returns OMNIFORGE_<PROVIDER>_API_BASE for providers that carry an
// endpoint in the environment (Azure OpenAI).
func APIBase(provider string) string {
	return os.Getenv("OMNIFORGE_" + provider + "_API_BASE")
}

// ApplyEnv overlays OMNIFORGE_* environment variables onto the config.
// Environment values win over file values.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("OMNIFORGE_TENANT_ID"); v != "" {
		c.Tenant.DefaultTenantID = v
	}

	if v := os.Getenv("OMNIFORGE_LLM_DEFAULT_MODEL"); v != "" {
		c.LLM.DefaultModel = v
	}
	if v := os.Getenv("OMNIFORGE_LLM_FALLBACK_MODELS"); v != "" {
		c.LLM.FallbackModels = splitList(v)
	}
	if v := os.Getenv("OMNIFORGE_LLM_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OMNIFORGE_LLM_TIMEOUT_MS: %w", err)
		}
		c.LLM.TimeoutMS = ms
	}
	if v := os.Getenv("OMNIFORGE_LLM_MAX_RETRIES"); v != "" {
		retries, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OMNIFORGE_LLM_MAX_RETRIES: %w", err)
		}
		c.LLM.MaxRetries = retries
	}
	if v := os.Getenv("OMNIFORGE_LLM_APPROVED_MODELS"); v != "" {
		c.LLM.ApprovedModels = splitList(v)
	}
	if v := os.Getenv("OMNIFORGE_LLM_CACHE_ENABLED"); v != "" {
		enabled, err := ParseBool(v)
		if err != nil {
			return fmt.Errorf("OMNIFORGE_LLM_CACHE_ENABLED: %w", err)
		}
		c.LLM.CacheEnabled = enabled
	}
	if v := os.Getenv("OMNIFORGE_LLM_CACHE_TTL_SECONDS"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OMNIFORGE_LLM_CACHE_TTL_SECONDS: %w", err)
		}
		c.LLM.CacheTTLSeconds = ttl
	}

	for _, provider := range c.LLM.Providers {
		if provider.APIKey == "" {
			provider.APIKey = ProviderAPIKey(provider.Type)
		}
		if provider.Type == "azure_openai" {
			if provider.BaseURL == "" {
				provider.BaseURL = APIBase("AZURE_OPENAI")
			}
			if provider.APIVersion == "" {
				provider.APIVersion = os.Getenv("OMNIFORGE_AZURE_OPENAI_API_VERSION")
			}
		}
	}

	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if len(parts) == 3 {
			if val := os.Getenv(parts[1]); val != "" {
				return val
			}
			return parts[2]
		}
		return match
	})

	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.braced.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.simple.FindStringSubmatch(match)
		if len(parts) == 2 {
			return os.Getenv(parts[1])
		}
		return match
	})

	return s
}

func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}

	if intVal, err := strconv.Atoi(value); err == nil {
		return intVal
	}
	if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
		return floatVal
	}

	return value
}

// ExpandEnvVarsInData walks a decoded YAML document and expands environment
// references in every string. Expanded values are re-typed so "${PORT:-8080}"
// becomes an int.
func ExpandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		expanded := expandEnvVars(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return expanded

	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			result[key] = ExpandEnvVarsInData(value)
		}
		return result

	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = ExpandEnvVarsInData(item)
		}
		return result

	default:
		return v
	}
}
