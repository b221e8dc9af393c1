package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FullDocument(t *testing.T) {
	cfg, err := Load([]byte(`
server:
  host: 127.0.0.1
  port: 9090
  auth:
    jwks_url: https://idp.example.com/.well-known/jwks.json
    issuer: https://idp.example.com
    audience: omniforge-api
storage:
  backend: sql
  driver: postgres
  dsn: postgres://localhost/omniforge
tenant:
  default_tenant_id: tenant-acme
llm:
  default_model: gpt-4o
  fallback_models: [gpt-4o-mini, claude-sonnet-4]
  timeout_ms: 30000
  max_retries: 3
  approved_models: ["gpt-4o*", "claude-*"]
  providers:
    primary:
      type: openai
      model: gpt-4o
rate_limits:
  llm_calls_per_minute: 50
  external_calls_per_minute: 100
  database_calls_per_minute: 200
  tokens_per_minute: 50000
  tokens_per_hour: 500000
  cost_per_hour_usd: 5
  cost_per_day_usd: 50
agents:
  researcher:
    name: Researcher
    max_iterations: 10
    allowed_tools: [web_search, calculator]
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Address())
	assert.Equal(t, "omniforge-api", cfg.Server.Auth.Audience)
	assert.True(t, cfg.Storage.IsSQL())
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 25, cfg.Storage.MaxOpenConns)
	assert.Equal(t, "tenant-acme", cfg.Tenant.DefaultTenantID)
	assert.Equal(t, []string{"gpt-4o-mini", "claude-sonnet-4"}, cfg.LLM.FallbackModels)
	assert.Equal(t, int64(50), cfg.RateLimits.LLMCallsPerMinute)

	agent := cfg.Agents["researcher"]
	require.NotNil(t, agent)
	assert.Equal(t, "gpt-4o", agent.Model) // inherits the default model
	assert.Equal(t, 10, agent.MaxIterations)

	// Approved models feed the default governance policy.
	gov := cfg.Governor()
	assert.NoError(t, gov.Validate("tenant-acme", "gpt-4o-mini", 0))
	assert.Error(t, gov.Validate("tenant-acme", "llama-3", 0))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]byte(`agents: {assistant: {}}`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageBackendInMemory, cfg.Storage.Backend)
	assert.Equal(t, "default", cfg.Tenant.DefaultTenantID)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.DefaultModel)
	assert.Equal(t, 120_000, cfg.LLM.TimeoutMS)
	require.NotNil(t, cfg.RateLimits)
	assert.Equal(t, int64(100), cfg.RateLimits.LLMCallsPerMinute)
	assert.Equal(t, 15, cfg.Agents["assistant"].MaxIterations)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9999")
	t.Setenv("TEST_CFG_MODEL", "gpt-4o")

	cfg, err := Load([]byte(`
server:
  port: ${TEST_CFG_PORT:-8080}
llm:
  default_model: ${TEST_CFG_MODEL}
storage:
  dsn: ${TEST_CFG_MISSING:-fallback.db}
  backend: sql
  driver: sqlite3
`))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.DefaultModel)
	assert.Equal(t, "fallback.db", cfg.Storage.DSN)
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("OMNIFORGE_TENANT_ID", "tenant-env")
	t.Setenv("OMNIFORGE_LLM_DEFAULT_MODEL", "claude-sonnet-4")
	t.Setenv("OMNIFORGE_LLM_FALLBACK_MODELS", "gpt-4o, gpt-4o-mini")
	t.Setenv("OMNIFORGE_LLM_TIMEOUT_MS", "45000")
	t.Setenv("OMNIFORGE_LLM_MAX_RETRIES", "5")
	t.Setenv("OMNIFORGE_LLM_APPROVED_MODELS", "claude-*")
	t.Setenv("OMNIFORGE_LLM_CACHE_ENABLED", "yes")
	t.Setenv("OMNIFORGE_LLM_CACHE_TTL_SECONDS", "600")
	t.Setenv("OMNIFORGE_OPENAI_API_KEY", "sk-env-key")

	cfg, err := Load([]byte(`
llm:
  default_model: gpt-4o
  providers:
    primary:
      type: openai
`))
	require.NoError(t, err)

	assert.Equal(t, "tenant-env", cfg.Tenant.DefaultTenantID)
	assert.Equal(t, "claude-sonnet-4", cfg.LLM.DefaultModel)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, cfg.LLM.FallbackModels)
	assert.Equal(t, 45000, cfg.LLM.TimeoutMS)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
	assert.True(t, cfg.LLM.CacheEnabled)
	assert.Equal(t, 600, cfg.LLM.CacheTTLSeconds)
	assert.Equal(t, "sk-env-key", cfg.LLM.Providers["primary"].APIKey)
}

func TestApplyEnv_AzureOpenAI(t *testing.T) {
	t.Setenv("OMNIFORGE_AZURE_OPENAI_API_KEY", "azure-key")
	t.Setenv("OMNIFORGE_AZURE_OPENAI_API_BASE", "https://acme.openai.azure.com")
	t.Setenv("OMNIFORGE_AZURE_OPENAI_API_VERSION", "2024-06-01")

	cfg, err := Load([]byte(`
llm:
  providers:
    azure:
      type: azure_openai
`))
	require.NoError(t, err)

	provider := cfg.LLM.Providers["azure"]
	assert.Equal(t, "azure-key", provider.APIKey)
	assert.Equal(t, "https://acme.openai.azure.com", provider.BaseURL)
	assert.Equal(t, "2024-06-01", provider.APIVersion)
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "True", "TRUE", "1", "yes", "Yes"} {
		got, err := ParseBool(v)
		require.NoError(t, err, v)
		assert.True(t, got, v)
	}
	for _, v := range []string{"false", "False", "FALSE", "0", "no", "No"} {
		got, err := ParseBool(v)
		require.NoError(t, err, v)
		assert.False(t, got, v)
	}
	for _, v := range []string{"", "maybe", "YES ", "tRue"} {
		_, err := ParseBool(v)
		assert.Error(t, err, v)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"sql without dsn", "storage: {backend: sql}"},
		{"bad driver", "storage: {backend: sql, driver: oracle, dsn: x}"},
		{"bad backend", "storage: {backend: redis}"},
		{"auth without jwks", "server: {auth: {issuer: x}}"},
		{"bad provider type", "llm: {providers: {p: {type: bedrock}}}"},
		{"provider without type", "llm: {providers: {p: {model: x}}}"},
		{"negative iterations", "agents: {a: {max_iterations: -1}}"},
		{"temperature out of range", "agents: {a: {temperature: 3.5}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile_Empty(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Agents)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/omniforge.yaml")
	assert.Error(t, err)
}
