package main

import (
	"errors"
	"slices"
	"testing"

	"github.com/eduardocaminha/reporter-sub000/internal/config"
)

func TestRegisterBuiltinProviders_CoversKnownNames(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	names := reg.LLMNames()
	for _, want := range config.ValidProviderNames {
		if !slices.Contains(names, want) {
			t.Errorf("provider %q is not registered", want)
		}
	}
}

func TestRegisterBuiltinProviders_LocalBackendNeedsNoKey(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, err := reg.CreateLLM(config.ProviderEntry{Name: "ollama", Model: "llama3", BaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected provider")
	}
}

func TestRegisterBuiltinProviders_Unknown(t *testing.T) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "watson"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
}

func TestOptString(t *testing.T) {
	opts := map[string]any{"organization": "org-1", "max_tokens": 10}
	if got := optString(opts, "organization"); got != "org-1" {
		t.Errorf("got %q", got)
	}
	if got := optString(opts, "max_tokens"); got != "" {
		t.Errorf("non-string value: got %q", got)
	}
	if got := optString(nil, "x"); got != "" {
		t.Errorf("nil map: got %q", got)
	}
}
