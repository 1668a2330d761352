// Package config provides the configuration schema, loader, watcher and
// provider registry for the report generation server.
package config

import (
	"time"

	"github.com/eduardocaminha/reporter-sub000/internal/tools"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// HistoryDriver selects the report history backend.
type HistoryDriver string

const (
	HistoryMemory   HistoryDriver = "memory"
	HistoryPostgres HistoryDriver = "postgres"
	HistoryMySQL    HistoryDriver = "mysql"
)

// IsValid reports whether d is a recognised history driver.
func (d HistoryDriver) IsValid() bool {
	switch d {
	case HistoryMemory, HistoryPostgres, HistoryMySQL:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Templates TemplatesConfig `yaml:"templates"`
	Retry     RetryConfig     `yaml:"retry"`
	Search    SearchConfig    `yaml:"search"`
	MCP       MCPConfig       `yaml:"mcp"`
	History   HistoryConfig   `yaml:"history"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Observe   ObserveConfig   `yaml:"observe"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ReadHeaderTimeout bounds how long a client may take to send headers.
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the model providers. Each entry selects a named
// provider registered in the [Registry].
type ProvidersConfig struct {
	// LLM writes the report and drives the tool-resolution phase.
	LLM ProviderEntry `yaml:"llm"`

	// Selector picks templates. When nil the LLM entry is used.
	Selector *ProviderEntry `yaml:"selector"`

	// Fallbacks are tried in order when the LLM provider keeps failing.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the configuration block shared by all providers.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values such as max_tokens and
	// temperature.
	Options map[string]any `yaml:"options"`
}

// OptInt returns the integer option key, or def when it is absent or not a
// number.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// OptFloat returns the numeric option key, or def when it is absent or not a
// number.
func (e ProviderEntry) OptFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// TemplatesConfig locates the template tree.
type TemplatesConfig struct {
	// Dir contains the mascaras/ and achados/ folders.
	Dir string `yaml:"dir"`

	// Optimize enables template selection. Defaults to true; when false the
	// whole catalog goes into the prompt.
	Optimize *bool `yaml:"optimize"`
}

// OptimizeEnabled reports whether template selection is on.
func (t TemplatesConfig) OptimizeEnabled() bool {
	return t.Optimize == nil || *t.Optimize
}

// RetryConfig is the backoff policy for overloaded and rate-limited calls.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// SearchConfig configures the built-in reference search tool.
type SearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// MCPConfig holds the list of Model Context Protocol servers to connect to.
type MCPConfig struct {
	Servers []tools.ServerConfig `yaml:"servers"`
}

// HistoryConfig selects where finished reports are stored.
type HistoryConfig struct {
	Driver HistoryDriver `yaml:"driver"`

	// DSN is required for every driver but memory.
	DSN string `yaml:"dsn"`
}

// PricingConfig holds model prices in US dollars per million tokens, as
// decimal strings.
type PricingConfig struct {
	InputPerMTok  string `yaml:"input_per_mtok"`
	OutputPerMTok string `yaml:"output_per_mtok"`
}

// ObserveConfig configures telemetry.
type ObserveConfig struct {
	ServiceName string `yaml:"service_name"`

	// Metrics exposes Prometheus metrics on /metrics.
	Metrics bool `yaml:"metrics"`
}

// Defaults for fields left empty in the file.
const (
	DefaultListenAddr        = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultTemplatesDir      = "templates"
	DefaultMaxRetries        = 3
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 8 * time.Second
	DefaultSearchBaseURL     = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	DefaultSearchMaxResults  = 5
	DefaultSearchTimeout     = 10 * time.Second
	DefaultServiceName       = "reporter"
)

// ApplyDefaults fills in every unset field that has a default.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = DefaultTemplatesDir
	}
	if c.Retry == (RetryConfig{}) {
		c.Retry.MaxRetries = DefaultMaxRetries
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = DefaultMaxDelay
	}
	if c.Search.BaseURL == "" {
		c.Search.BaseURL = DefaultSearchBaseURL
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = DefaultSearchMaxResults
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = DefaultSearchTimeout
	}
	if c.History.Driver == "" {
		c.History.Driver = HistoryMemory
	}
	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = DefaultServiceName
	}
}

// SelectorEntry returns the provider entry used for template selection.
func (c *Config) SelectorEntry() ProviderEntry {
	if c.Providers.Selector != nil {
		return *c.Providers.Selector
	}
	return c.Providers.LLM
}
