// Package config holds the in-process configuration structs the rest
// of the harness is constructed from: a named LLM backend profile and
// the top-level harness config that selects one plus the policy preset
// and retry/planning knobs. Grounded on
// original_source/src/open_harness_v2/config.py's dataclass shapes;
// YAML/file loading is the excluded host-side concern named in spec.md
// §1, so only the in-memory shapes and their defaults are ported.
package config

// ProfileSpec describes one LLM backend: where to reach it, how to
// authenticate, and the tier-ordered list of models it can serve.
type ProfileSpec struct {
	Provider    string
	URL         string
	APIKey      string
	APIType     string
	Models      []string
	ExtraParams map[string]any
}

// NewProfileSpec returns the reference's default profile: a local
// Ollama instance serving a single small model.
func NewProfileSpec() ProfileSpec {
	return ProfileSpec{
		Provider:    "ollama",
		URL:         "http://localhost:11434/v1",
		APIKey:      "no-key",
		APIType:     "openai",
		Models:      []string{"qwen3-8b"},
		ExtraParams: map[string]any{},
	}
}

// TierCount returns how many model tiers this profile has.
func (p ProfileSpec) TierCount() int {
	return len(p.Models)
}

// ModelForTier returns the model name for the given tier, clamping out
// of range as the reference does: negative tiers resolve to the
// cheapest (first) model, tiers beyond the list resolve to the
// strongest (last) model.
func (p ProfileSpec) ModelForTier(tier int) string {
	if len(p.Models) == 0 {
		return ""
	}
	if tier < 0 {
		tier = 0
	}
	if tier > len(p.Models)-1 {
		tier = len(p.Models) - 1
	}
	return p.Models[tier]
}
