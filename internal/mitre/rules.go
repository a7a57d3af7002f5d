// Package mitre maps enrichment tags and classification rationale to
// MITRE ATT&CK techniques using a static, ordered rule table.
package mitre

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"soc-triage/internal/schema"
)

// Rule matches an alert's enrichment tags and classification reason.
// Tags, when present, must all appear among the finding tags; ReasonContains,
// when present, matches if any one substring occurs in the lower-cased
// reason. A rule with both predicates requires both to hold.
type Rule struct {
	Tags           []string                `yaml:"tags,omitempty"`
	ReasonContains []string                `yaml:"reason_contains,omitempty"`
	Mapping        schema.TechniqueMapping `yaml:"mapping"`
}

// BuiltinRules returns the built-in technique mapping rules, in
// evaluation order.
func BuiltinRules() []Rule {
	return []Rule{
		// Credential Access
		{
			Tags:    []string{"brute-force"},
			Mapping: schema.TechniqueMapping{Tactic: "Credential Access", TechniqueID: "T1110", Technique: "Brute Force"},
		},
		{
			ReasonContains: []string{"password spray", "credential stuffing"},
			Mapping:        schema.TechniqueMapping{Tactic: "Credential Access", TechniqueID: "T1110.003", Technique: "Password Spraying"},
		},

		// Initial Access (phishing)
		{
			ReasonContains: []string{"phish", "spearphish", "malicious attachment"},
			Mapping:        schema.TechniqueMapping{Tactic: "Initial Access", TechniqueID: "T1566.001", Technique: "Spearphishing Attachment"},
		},
		{
			ReasonContains: []string{"link click", "phishing link"},
			Mapping:        schema.TechniqueMapping{Tactic: "Initial Access", TechniqueID: "T1566.002", Technique: "Spearphishing Link"},
		},

		// Lateral Movement
		{
			ReasonContains: []string{"lateral", "remote service", "psexec", "winrm", "smb"},
			Mapping:        schema.TechniqueMapping{Tactic: "Lateral Movement", TechniqueID: "T1021", Technique: "Remote Services"},
		},

		// Persistence
		{
			ReasonContains: []string{"registry run key", "startup folder", "scheduled task"},
			Mapping:        schema.TechniqueMapping{Tactic: "Persistence", TechniqueID: "T1060", Technique: "Registry Run Keys / Startup Folder"},
		},

		// Exfiltration
		{
			ReasonContains: []string{"exfiltration", "data exfil", "large outbound"},
			Mapping:        schema.TechniqueMapping{Tactic: "Exfiltration", TechniqueID: "T1041", Technique: "Exfiltration Over C2 Channel"},
		},
	}
}

// LoadRules reads a rule table from a yaml file. Order in the file is
// evaluation order.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	for i, rule := range rules {
		if rule.Mapping.TechniqueID == "" {
			return nil, fmt.Errorf("rule %d: mapping.technique_id is required", i)
		}
		if len(rule.Tags) == 0 && len(rule.ReasonContains) == 0 {
			return nil, fmt.Errorf("rule %d (%s): at least one predicate is required", i, rule.Mapping.TechniqueID)
		}
	}
	return rules, nil
}
