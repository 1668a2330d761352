package config_test

import (
	"slices"
	"testing"

	"github.com/eduardocaminha/reporter-sub000/internal/config"
	"github.com/eduardocaminha/reporter-sub000/internal/tools"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "anthropic", Model: "claude-sonnet-4-5"}},
		Pricing:   config.PricingConfig{InputPerMTok: "3", OutputPerMTok: "15"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	if d := config.Diff(baseConfig(), baseConfig()); !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	off := false

	tests := []struct {
		name        string
		mutate      func(*config.Config)
		logLevel    bool
		templates   bool
		pricing     bool
		wantRestart []string
	}{
		{
			name:     "log level",
			mutate:   func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			logLevel: true,
		},
		{
			name:      "templates dir",
			mutate:    func(c *config.Config) { c.Templates.Dir = "/other" },
			templates: true,
		},
		{
			name:      "optimize off",
			mutate:    func(c *config.Config) { c.Templates.Optimize = &off },
			templates: true,
		},
		{
			name:    "pricing",
			mutate:  func(c *config.Config) { c.Pricing.OutputPerMTok = "75" },
			pricing: true,
		},
		{
			name:        "listen addr",
			mutate:      func(c *config.Config) { c.Server.ListenAddr = ":1" },
			wantRestart: []string{"server"},
		},
		{
			name:        "llm model",
			mutate:      func(c *config.Config) { c.Providers.LLM.Model = "claude-opus-4-1" },
			wantRestart: []string{"providers"},
		},
		{
			name: "selector added",
			mutate: func(c *config.Config) {
				c.Providers.Selector = &config.ProviderEntry{Name: "anthropic"}
			},
			wantRestart: []string{"providers"},
		},
		{
			name:   "llm options only",
			mutate: func(c *config.Config) { c.Providers.LLM.Options = map[string]any{"temperature": 0.5} },
		},
		{
			name: "history and mcp",
			mutate: func(c *config.Config) {
				c.History = config.HistoryConfig{Driver: config.HistoryMySQL, DSN: "u@/db"}
				c.MCP.Servers = []tools.ServerConfig{{Name: "x", Transport: tools.TransportStdio, Command: "x"}}
			},
			wantRestart: []string{"history", "mcp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			newCfg := baseConfig()
			tt.mutate(newCfg)
			d := config.Diff(baseConfig(), newCfg)

			if d.LogLevelChanged != tt.logLevel {
				t.Errorf("LogLevelChanged: got %v, want %v", d.LogLevelChanged, tt.logLevel)
			}
			if tt.logLevel && d.NewLogLevel != newCfg.Server.LogLevel {
				t.Errorf("NewLogLevel: got %q", d.NewLogLevel)
			}
			if d.TemplatesChanged != tt.templates {
				t.Errorf("TemplatesChanged: got %v, want %v", d.TemplatesChanged, tt.templates)
			}
			if d.PricingChanged != tt.pricing {
				t.Errorf("PricingChanged: got %v, want %v", d.PricingChanged, tt.pricing)
			}
			if !slices.Equal(d.RestartRequired, tt.wantRestart) {
				t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, tt.wantRestart)
			}
		})
	}
}
