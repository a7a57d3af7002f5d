package osint

import (
	"context"
	"strings"
	"time"

	"soc-triage/internal/schema"
)

// stubSource is the provenance string recorded by the heuristic stub.
const stubSource = "HeuristicStub"

// HeuristicStub is a deterministic offline lookup backend. Addresses in
// the 203.0.113.0/24 documentation range (RFC 5737 TEST-NET-3) are
// reported malicious to simulate intelligence hits; placeholder domains
// are reported unknown with stub provenance; everything else is unknown.
// Replace with a real provider client in production.
type HeuristicStub struct {
	now func() time.Time
}

// NewHeuristicStub creates the stub backend.
func NewHeuristicStub() *HeuristicStub {
	return &HeuristicStub{now: func() time.Time { return time.Now().UTC() }}
}

// Lookup implements Backend. It never fails.
func (s *HeuristicStub) Lookup(_ context.Context, ind schema.Indicator) (schema.Finding, error) {
	if ind.Kind == schema.IndicatorAddress && strings.HasPrefix(ind.Value, "203.0.113.") {
		lastSeen := s.now().Truncate(time.Second)
		return schema.Finding{
			Reputation: schema.ReputationMalicious,
			Sources:    []string{stubSource},
			LastSeen:   &lastSeen,
			Tags:       []string{"brute-force"},
		}, nil
	}

	if ind.Kind == schema.IndicatorDomain || ind.Kind == schema.IndicatorURL {
		if strings.Contains(ind.Value, "example.com") || strings.Contains(ind.Value, "example.org") {
			return schema.Finding{
				Reputation: schema.ReputationUnknown,
				Sources:    []string{stubSource},
				Tags:       []string{},
			}, nil
		}
	}

	return schema.Finding{
		Reputation: schema.ReputationUnknown,
		Sources:    []string{},
		Tags:       []string{},
	}, nil
}
