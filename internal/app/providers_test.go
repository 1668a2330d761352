package app_test

import (
	"errors"
	"testing"

	"github.com/eduardocaminha/reporter-sub000/internal/app"
	"github.com/eduardocaminha/reporter-sub000/internal/config"
	"github.com/eduardocaminha/reporter-sub000/internal/resilience"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
	llmmock "github.com/eduardocaminha/reporter-sub000/pkg/provider/llm/mock"
)

// testRegistry registers "ok-a" and "ok-b" as working providers and "broken"
// as a factory that always fails.
func testRegistry(created map[string]llm.Provider) *config.Registry {
	reg := config.NewRegistry()
	for _, name := range []string{"ok-a", "ok-b"} {
		reg.RegisterLLM(name, func(config.ProviderEntry) (llm.Provider, error) {
			p := &llmmock.Provider{}
			created[name] = p
			return p, nil
		})
	}
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("missing api key")
	})
	return reg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		llm       string
		fallbacks []string
		check     func(t *testing.T, ps *app.Providers, created map[string]llm.Provider)
	}{
		{
			name: "single provider",
			llm:  "ok-a",
			check: func(t *testing.T, ps *app.Providers, created map[string]llm.Provider) {
				if ps.LLM != created["ok-a"] {
					t.Errorf("LLM = %T, want the ok-a provider itself", ps.LLM)
				}
			},
		},
		{
			name:      "fallback group",
			llm:       "ok-a",
			fallbacks: []string{"ok-b"},
			check: func(t *testing.T, ps *app.Providers, _ map[string]llm.Provider) {
				if _, ok := ps.LLM.(*resilience.LLMFallback); !ok {
					t.Errorf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
				}
			},
		},
		{
			name:      "broken primary promotes fallback",
			llm:       "broken",
			fallbacks: []string{"ok-b"},
			check: func(t *testing.T, ps *app.Providers, created map[string]llm.Provider) {
				if ps.LLM != created["ok-b"] {
					t.Errorf("LLM = %T, want the ok-b provider", ps.LLM)
				}
			},
		},
		{
			name:      "nothing works",
			llm:       "broken",
			fallbacks: []string{"unregistered"},
			check: func(t *testing.T, ps *app.Providers, _ map[string]llm.Provider) {
				if ps.LLM != nil {
					t.Errorf("LLM = %T, want nil", ps.LLM)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			created := map[string]llm.Provider{}
			cfg := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: tt.llm}}}
			for _, fb := range tt.fallbacks {
				cfg.Providers.Fallbacks = append(cfg.Providers.Fallbacks, config.ProviderEntry{Name: fb})
			}
			ps, err := app.BuildProviders(cfg, testRegistry(created))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ps.Selector != nil {
				t.Error("Selector should stay nil without a selector entry")
			}
			tt.check(t, ps, created)
		})
	}
}

func TestBuildProviders_Selector(t *testing.T) {
	t.Parallel()
	created := map[string]llm.Provider{}
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:      config.ProviderEntry{Name: "ok-a"},
		Selector: &config.ProviderEntry{Name: "ok-b"},
	}}
	ps, err := app.BuildProviders(cfg, testRegistry(created))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ps.Selector != created["ok-b"] {
		t.Errorf("Selector = %T, want the ok-b provider", ps.Selector)
	}

	cfg.Providers.Selector = &config.ProviderEntry{Name: "unregistered"}
	if _, err := app.BuildProviders(cfg, testRegistry(created)); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
}
