package mitre

import (
	"strings"

	"soc-triage/internal/schema"
)

// Mapper evaluates a rule table against enrichment findings and the
// classifier's rationale. Pure and deterministic.
type Mapper struct {
	rules []Rule
}

// NewMapper creates a Mapper with the given rules; nil means the
// built-in table.
func NewMapper(rules []Rule) *Mapper {
	if rules == nil {
		rules = BuiltinRules()
	}
	return &Mapper{rules: rules}
}

// Map evaluates the rules in order against the case-folded tag set of
// all findings and the lower-cased reason. Every matching rule
// contributes its mapping; results are deduplicated by technique_id,
// preserving first-match order.
func (m *Mapper) Map(osint map[string]schema.Finding, reason string) []schema.TechniqueMapping {
	tags := make(map[string]bool)
	for _, finding := range osint {
		for _, tag := range finding.Tags {
			tags[strings.ToLower(tag)] = true
		}
	}
	reason = strings.ToLower(reason)

	out := []schema.TechniqueMapping{}
	seen := make(map[string]bool)

	for _, rule := range m.rules {
		if !rule.matches(tags, reason) {
			continue
		}
		if seen[rule.Mapping.TechniqueID] {
			continue
		}
		seen[rule.Mapping.TechniqueID] = true
		out = append(out, rule.Mapping)
	}
	return out
}

func (r Rule) matches(tags map[string]bool, reason string) bool {
	for _, want := range r.Tags {
		if !tags[strings.ToLower(want)] {
			return false
		}
	}

	if len(r.ReasonContains) > 0 {
		any := false
		for _, substr := range r.ReasonContains {
			if strings.Contains(reason, substr) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}
