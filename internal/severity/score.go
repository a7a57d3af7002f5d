// Package severity computes the discrete urgency tier of an alert from
// its classification and enrichment results.
package severity

import (
	"soc-triage/internal/schema"
)

// Score contributions and tier thresholds.
const (
	maliciousLabelWeight  = 0.6
	suspiciousLabelWeight = 0.35
	maliciousOSINTWeight  = 0.2

	criticalThreshold = 0.8
	highThreshold     = 0.6
	mediumThreshold   = 0.4
)

// Score maps a classification and enrichment findings to a severity
// tier. Pure and idempotent: the same inputs always yield the same tier.
func Score(detection schema.Classification, osint map[string]schema.Finding) schema.Severity {
	s := 0.0

	switch detection.Label {
	case schema.LabelMalicious:
		s += maliciousLabelWeight
	case schema.LabelSuspicious:
		s += suspiciousLabelWeight
	}

	for _, finding := range osint {
		if finding.Reputation == schema.ReputationMalicious {
			s += maliciousOSINTWeight
			break
		}
	}

	switch {
	case s >= criticalThreshold:
		return schema.SeverityCritical
	case s >= highThreshold:
		return schema.SeverityHigh
	case s >= mediumThreshold:
		return schema.SeverityMedium
	default:
		return schema.SeverityLow
	}
}
