package config

import "testing"

func TestNewProfileSpecDefaults(t *testing.T) {
	p := NewProfileSpec()
	if p.Provider != "ollama" || p.URL != "http://localhost:11434/v1" || p.APIType != "openai" {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if len(p.Models) != 1 || p.Models[0] != "qwen3-8b" {
		t.Fatalf("expected default single-model tier list, got %v", p.Models)
	}
}

func TestProfileSpecModelForTierClamps(t *testing.T) {
	p := ProfileSpec{Models: []string{"small", "medium", "large"}}

	if got := p.ModelForTier(-5); got != "small" {
		t.Fatalf("expected negative tier to clamp to first model, got %q", got)
	}
	if got := p.ModelForTier(1); got != "medium" {
		t.Fatalf("expected tier 1 to resolve to medium, got %q", got)
	}
	if got := p.ModelForTier(99); got != "large" {
		t.Fatalf("expected out-of-range tier to clamp to last model, got %q", got)
	}
}

func TestProfileSpecModelForTierEmpty(t *testing.T) {
	p := ProfileSpec{}
	if got := p.ModelForTier(0); got != "" {
		t.Fatalf("expected empty string for a profile with no models, got %q", got)
	}
	if got := p.TierCount(); got != 0 {
		t.Fatalf("expected zero tier count, got %d", got)
	}
}

func TestNewHarnessConfigDefaults(t *testing.T) {
	c := NewHarnessConfig()

	if c.Profile != "local" {
		t.Fatalf("expected default profile %q, got %q", "local", c.Profile)
	}
	if c.MaxRetries != 3 || c.ThinkingMode != "auto" || c.MaxSteps != 50 {
		t.Fatalf("unexpected run-level defaults: %+v", c)
	}
	if _, ok := c.Profiles["local"]; !ok {
		t.Fatal("expected a \"local\" profile to be present by default")
	}
}

func TestHarnessConfigActiveProfileFallsBackWhenMissing(t *testing.T) {
	c := HarnessConfig{
		Profile:  "missing",
		Profiles: map[string]ProfileSpec{"local": NewProfileSpec()},
	}

	got := c.ActiveProfile()
	want := NewProfileSpec()
	if got.Provider != want.Provider || got.URL != want.URL {
		t.Fatalf("expected fallback to default profile, got %+v", got)
	}
}

func TestHarnessConfigActiveProfileResolvesNamedProfile(t *testing.T) {
	remote := ProfileSpec{Provider: "openai", URL: "https://api.openai.com/v1", Models: []string{"gpt-4o-mini"}}
	c := HarnessConfig{
		Profile:  "remote",
		Profiles: map[string]ProfileSpec{"local": NewProfileSpec(), "remote": remote},
	}

	got := c.ActiveProfile()
	if got.Provider != "openai" || got.ModelForTier(0) != "gpt-4o-mini" {
		t.Fatalf("expected the named remote profile, got %+v", got)
	}
}
