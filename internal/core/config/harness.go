package config

import "github.com/haasonsaas/nexus/internal/core/policy"

// HarnessConfig selects an active profile out of a named set and
// carries the policy preset and run-level knobs (retry budget,
// thinking-mode hint, step cap) that the orchestrator and LLM client
// are constructed from.
type HarnessConfig struct {
	Profile      string
	Profiles     map[string]ProfileSpec
	Policy       policy.Spec
	MaxRetries   int
	ThinkingMode string
	MaxSteps     int
}

// NewHarnessConfig returns the reference's default config: a single
// "local" profile pointing at Ollama, the balanced policy preset, and
// the same retry/step defaults as open_harness_v2.
func NewHarnessConfig() HarnessConfig {
	return HarnessConfig{
		Profile:      "local",
		Profiles:     map[string]ProfileSpec{"local": NewProfileSpec()},
		Policy:       policy.NewSpec(policy.ModeBalanced),
		MaxRetries:   3,
		ThinkingMode: "auto",
		MaxSteps:     50,
	}
}

// ActiveProfile returns the profile named by Profile, falling back to
// a fresh default profile if the name isn't present in Profiles —
// matching the reference's `profiles.get(self.profile, ProfileSpec())`.
func (c HarnessConfig) ActiveProfile() ProfileSpec {
	if p, ok := c.Profiles[c.Profile]; ok {
		return p
	}
	return NewProfileSpec()
}
