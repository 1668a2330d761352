package app

import (
	"fmt"
	"log/slog"

	"github.com/eduardocaminha/reporter-sub000/internal/config"
	"github.com/eduardocaminha/reporter-sub000/internal/resilience"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// BuildProviders instantiates the providers named in cfg using reg.
//
// Fallback entries join the primary in a [resilience.LLMFallback] group. When
// the primary cannot be created the first working fallback takes its place;
// when none can, Providers.LLM stays nil and generation answers 503. A
// selector entry that fails is reported as an error.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	type named struct {
		name string
		p    llm.Provider
	}
	var chain []named
	for i, entry := range append([]config.ProviderEntry{cfg.Providers.LLM}, cfg.Providers.Fallbacks...) {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			slog.Error("provider not available", "kind", "llm", "name", entry.Name, "position", i, "err", err)
			continue
		}
		chain = append(chain, named{name: entry.Name, p: p})
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model, "position", i)
	}

	switch len(chain) {
	case 0:
		slog.Warn("no llm provider available, report generation is disabled")
	case 1:
		ps.LLM = chain[0].p
	default:
		group := resilience.NewLLMFallback(chain[0].name, chain[0].p, resilience.BreakerConfig{Name: "llm"})
		for _, fb := range chain[1:] {
			group.AddFallback(fb.name, fb.p)
		}
		ps.LLM = group
	}

	if sel := cfg.Providers.Selector; sel != nil && ps.LLM != nil {
		p, err := reg.CreateLLM(*sel)
		if err != nil {
			return nil, fmt.Errorf("app: selector provider: %w", err)
		}
		ps.Selector = p
		slog.Info("provider created", "kind", "selector", "name", sel.Name, "model", sel.Model)
	}
	return ps, nil
}
