// Package config loads and validates runtime configuration from YAML files
// and OMNIFORGE_* environment variables. Files are expanded with
// ${VAR:-default} syntax before decoding, then environment overrides apply
// on top.
package config

import (
	"fmt"

	"github.com/omniforge-ai/omniforge/pkg/governance"
	"github.com/omniforge-ai/omniforge/pkg/ratelimit"
)

// Config is the root configuration document.
type Config struct {
	// Server configures the HTTP API.
	Server ServerConfig `yaml:"server,omitempty"`

	// Storage configures task and chain persistence.
	Storage StorageConfig `yaml:"storage,omitempty"`

	// Tenant holds tenancy defaults.
	Tenant TenantConfig `yaml:"tenant,omitempty"`

	// LLM configures language model access.
	LLM LLMConfig `yaml:"llm,omitempty"`

	// RateLimits are the default per-tenant quota caps.
	RateLimits *ratelimit.Config `yaml:"rate_limits,omitempty"`

	// Governance holds model approval policies.
	Governance GovernanceConfig `yaml:"governance,omitempty"`

	// Agents declares the agents the server exposes, keyed by agent id.
	Agents map[string]*AgentConfig `yaml:"agents,omitempty"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty"`

	// Port to listen on.
	Port int `yaml:"port,omitempty"`

	// Auth configures JWT-based authentication. Nil disables auth.
	Auth *AuthConfig `yaml:"auth,omitempty"`

	// CORS configuration.
	CORS *CORSConfig `yaml:"cors,omitempty"`
}

// Address returns the HTTP listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig configures JWT validation against an identity provider.
type AuthConfig struct {
	// JWKSURL is the provider's JWKS endpoint.
	JWKSURL string `yaml:"jwks_url"`

	// Issuer is the expected iss claim.
	Issuer string `yaml:"issuer"`

	// Audience is the expected aud claim.
	Audience string `yaml:"audience"`
}

// CORSConfig configures CORS.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty"`
}

// StorageBackend identifies a storage backend type.
type StorageBackend string

const (
	StorageBackendInMemory StorageBackend = "inmemory"
	StorageBackendSQL      StorageBackend = "sql"
)

// StorageConfig configures task and reasoning chain persistence.
type StorageConfig struct {
	// Backend is "inmemory" (default) or "sql".
	Backend StorageBackend `yaml:"backend,omitempty"`

	// Driver is the SQL driver: sqlite3, postgres, or mysql.
	Driver string `yaml:"driver,omitempty"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn,omitempty"`

	// MaxOpenConns caps the connection pool.
	MaxOpenConns int `yaml:"max_open_conns,omitempty"`

	// MaxIdleConns caps idle connections.
	MaxIdleConns int `yaml:"max_idle_conns,omitempty"`
}

// IsSQL reports whether a SQL backend is configured.
func (c *StorageConfig) IsSQL() bool {
	return c.Backend == StorageBackendSQL
}

// TenantConfig holds tenancy defaults.
type TenantConfig struct {
	// DefaultTenantID is used when a request carries no tenant.
	DefaultTenantID string `yaml:"default_tenant_id,omitempty"`
}

// LLMConfig configures language model access.
type LLMConfig struct {
	// DefaultModel is used when an agent does not name one.
	DefaultModel string `yaml:"default_model,omitempty"`

	// FallbackModels are tried in order when the default is unavailable.
	FallbackModels []string `yaml:"fallback_models,omitempty"`

	// TimeoutMS bounds a single provider call.
	TimeoutMS int `yaml:"timeout_ms,omitempty"`

	// MaxRetries on transient provider failures.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// ApprovedModels feeds the default governance policy when the policy
	// itself lists none.
	ApprovedModels []string `yaml:"approved_models,omitempty"`

	// CacheEnabled turns on response caching.
	CacheEnabled bool `yaml:"cache_enabled,omitempty"`

	// CacheTTLSeconds bounds cached response age.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds,omitempty"`

	// Providers declares LLM providers keyed by name.
	Providers map[string]*ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	// Type is the provider kind: openai, anthropic, groq, openrouter,
	// azure_openai.
	Type string `yaml:"type"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey authenticates with the provider. Usually left empty in files
	// and filled from OMNIFORGE_*_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`

	// Model is the provider's default model.
	Model string `yaml:"model,omitempty"`

	// APIVersion is required for azure_openai.
	APIVersion string `yaml:"api_version,omitempty"`
}

// GovernanceConfig holds the default policy and per-tenant overrides.
type GovernanceConfig struct {
	Default governance.Policy            `yaml:"default,omitempty"`
	Tenants map[string]governance.Policy `yaml:"tenants,omitempty"`
}

// AgentConfig declares a single agent.
type AgentConfig struct {
	// Name is a human-readable label.
	Name string `yaml:"name,omitempty"`

	// Model overrides LLM.DefaultModel for this agent.
	Model string `yaml:"model,omitempty"`

	// SystemPrompt prefixes every reasoning conversation.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// MaxIterations caps the reasoning loop.
	MaxIterations int `yaml:"max_iterations,omitempty"`

	// Temperature for model sampling.
	Temperature float64 `yaml:"temperature,omitempty"`

	// MaxTokens per model reply.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// AllowedTools restricts the agent to the named tools. Empty allows
	// all registered tools.
	AllowedTools []string `yaml:"allowed_tools,omitempty"`
}

// Default returns a zero-config setup: in-memory storage, no auth, one
// general-purpose agent.
func Default() *Config {
	cfg := &Config{
		Agents: map[string]*AgentConfig{
			"assistant": {Name: "Assistant"},
		},
	}
	cfg.SetDefaults()
	return cfg
}

// ProcessPipeline applies defaults and validates the configuration.
func ProcessPipeline(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return cfg, nil
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.CORS == nil {
		c.Server.CORS = &CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendInMemory
	}
	if c.Storage.IsSQL() {
		if c.Storage.Driver == "" {
			c.Storage.Driver = "sqlite3"
		}
		if c.Storage.MaxOpenConns == 0 {
			c.Storage.MaxOpenConns = 25
		}
		if c.Storage.MaxIdleConns == 0 {
			c.Storage.MaxIdleConns = 5
		}
	}

	if c.Tenant.DefaultTenantID == "" {
		c.Tenant.DefaultTenantID = "default"
	}

	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "gpt-4o-mini"
	}
	if c.LLM.TimeoutMS == 0 {
		c.LLM.TimeoutMS = 120_000
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	if c.LLM.CacheEnabled && c.LLM.CacheTTLSeconds == 0 {
		c.LLM.CacheTTLSeconds = 300
	}

	if c.RateLimits == nil {
		defaults := ratelimit.DefaultConfig()
		c.RateLimits = &defaults
	}

	if len(c.Governance.Default.ApprovedModels) == 0 && len(c.LLM.ApprovedModels) > 0 {
		c.Governance.Default.ApprovedModels = c.LLM.ApprovedModels
		c.Governance.Default.RequireApproval = true
	}

	if c.Agents == nil {
		c.Agents = make(map[string]*AgentConfig)
	}
	for _, agent := range c.Agents {
		if agent.Model == "" {
			agent.Model = c.LLM.DefaultModel
		}
		if agent.MaxIterations == 0 {
			agent.MaxIterations = 15
		}
		if agent.MaxTokens == 0 {
			agent.MaxTokens = 4096
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}

	if c.Server.Auth != nil {
		if c.Server.Auth.JWKSURL == "" {
			return fmt.Errorf("auth: jwks_url is required")
		}
		if c.Server.Auth.Issuer == "" {
			return fmt.Errorf("auth: issuer is required")
		}
	}

	switch c.Storage.Backend {
	case StorageBackendInMemory:
	case StorageBackendSQL:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage: dsn is required when backend is sql")
		}
		switch c.Storage.Driver {
		case "sqlite3", "postgres", "mysql":
		default:
			return fmt.Errorf("storage: unknown driver %q (valid: sqlite3, postgres, mysql)", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage: invalid backend %q (valid: inmemory, sql)", c.Storage.Backend)
	}

	if c.LLM.TimeoutMS < 0 {
		return fmt.Errorf("llm: timeout_ms must be non-negative")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm: max_retries must be non-negative")
	}

	for name, provider := range c.LLM.Providers {
		if provider.Type == "" {
			return fmt.Errorf("llm: provider %q: type is required", name)
		}
		switch provider.Type {
		case "openai", "anthropic", "groq", "openrouter", "azure_openai":
		default:
			return fmt.Errorf("llm: provider %q: unknown type %q", name, provider.Type)
		}
		if provider.Type == "azure_openai" && provider.BaseURL == "" && APIBase("AZURE_OPENAI") == "" {
			return fmt.Errorf("llm: provider %q: azure_openai requires base_url or OMNIFORGE_AZURE_OPENAI_API_BASE", name)
		}
	}

	if c.RateLimits != nil {
		if err := c.RateLimits.Validate(); err != nil {
			return fmt.Errorf("rate_limits: %w", err)
		}
	}

	for id, agent := range c.Agents {
		if agent.MaxIterations < 0 {
			return fmt.Errorf("agents: %q: max_iterations must be non-negative", id)
		}
		if agent.Temperature < 0 || agent.Temperature > 2 {
			return fmt.Errorf("agents: %q: temperature must be in [0, 2]", id)
		}
	}

	return nil
}

// Governor builds a governance.Governor from the configured policies.
func (c *Config) Governor() *governance.Governor {
	gov := governance.NewGovernor(c.Governance.Default)
	for tenantID, policy := range c.Governance.Tenants {
		gov.SetPolicy(tenantID, policy)
	}
	return gov
}
