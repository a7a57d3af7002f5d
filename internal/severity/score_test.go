package severity

import (
	"testing"

	"soc-triage/internal/schema"
)

func TestScore(t *testing.T) {
	maliciousFinding := map[string]schema.Finding{
		"203.0.113.45": {Reputation: schema.ReputationMalicious},
	}
	unknownFinding := map[string]schema.Finding{
		"example.com": {Reputation: schema.ReputationUnknown},
	}

	tests := []struct {
		name  string
		label schema.Label
		osint map[string]schema.Finding
		want  schema.Severity
	}{
		{"malicious with malicious osint", schema.LabelMalicious, maliciousFinding, schema.SeverityCritical},
		{"malicious alone", schema.LabelMalicious, unknownFinding, schema.SeverityHigh},
		{"malicious without osint", schema.LabelMalicious, nil, schema.SeverityHigh},
		{"suspicious with malicious osint", schema.LabelSuspicious, maliciousFinding, schema.SeverityMedium},
		{"suspicious alone", schema.LabelSuspicious, nil, schema.SeverityLow},
		{"benign with malicious osint", schema.LabelBenign, maliciousFinding, schema.SeverityLow},
		{"benign alone", schema.LabelBenign, nil, schema.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detection := schema.Classification{Label: tt.label, Confidence: 0.5}

			if got := Score(detection, tt.osint); got != tt.want {
				t.Errorf("Score = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("multiple malicious findings count once", func(t *testing.T) {
		osint := map[string]schema.Finding{
			"203.0.113.45": {Reputation: schema.ReputationMalicious},
			"203.0.113.46": {Reputation: schema.ReputationMalicious},
		}
		detection := schema.Classification{Label: schema.LabelBenign}

		if got := Score(detection, osint); got != schema.SeverityLow {
			t.Errorf("Score = %q, want low (0.2 total)", got)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		detection := schema.Classification{Label: schema.LabelMalicious}

		first := Score(detection, maliciousFinding)
		second := Score(detection, maliciousFinding)

		if first != second {
			t.Errorf("Score not idempotent: %q then %q", first, second)
		}
	})
}
