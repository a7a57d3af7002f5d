package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"soc-triage/internal/classify"
	"soc-triage/internal/mitre"
	"soc-triage/internal/osint"
	"soc-triage/internal/schema"
	"soc-triage/internal/store"
)

type failingStore struct{}

func (failingStore) Persist(context.Context, *schema.Alert) error {
	return errors.New("index unavailable")
}

func newTestPipeline(s store.Store) *Pipeline {
	if s == nil {
		s = store.NewLogStore()
	}
	return New(
		classify.New(nil),
		osint.New(nil, nil, osint.DefaultConfig()),
		mitre.NewMapper(nil),
		s,
	)
}

func hasTechnique(alert *schema.Alert, id string) bool {
	for _, m := range alert.MITRE {
		if m.TechniqueID == id {
			return true
		}
	}
	return false
}

func TestRunBruteForceScenario(t *testing.T) {
	p := newTestPipeline(nil)

	alert, err := p.Run(context.Background(), schema.RawEvent{
		"src_ip": "203.0.113.45",
		"event":  "multiple failed logins",
		"user":   "alice",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if alert.Detection.Label != schema.LabelMalicious {
		t.Errorf("Label = %q, want malicious", alert.Detection.Label)
	}
	if alert.Detection.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", alert.Detection.Confidence)
	}

	finding, ok := alert.OSINT["203.0.113.45"]
	if !ok {
		t.Fatalf("no finding for src_ip, OSINT = %v", alert.OSINT)
	}
	if finding.Reputation != schema.ReputationMalicious {
		t.Errorf("Reputation = %q, want malicious", finding.Reputation)
	}
	if len(finding.Tags) != 1 || finding.Tags[0] != "brute-force" {
		t.Errorf("Tags = %v, want [brute-force]", finding.Tags)
	}

	if !hasTechnique(alert, "T1110") {
		t.Errorf("MITRE = %v, want T1110 present", alert.MITRE)
	}
	if alert.Severity != schema.SeverityCritical {
		t.Errorf("Severity = %q, want critical", alert.Severity)
	}
}

func TestRunBenignScenario(t *testing.T) {
	p := newTestPipeline(nil)

	alert, err := p.Run(context.Background(), schema.RawEvent{
		"event": "routine login success",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if alert.Detection.Label != schema.LabelBenign {
		t.Errorf("Label = %q, want benign", alert.Detection.Label)
	}
	if alert.Detection.Confidence != 0.55 {
		t.Errorf("Confidence = %v, want 0.55", alert.Detection.Confidence)
	}
	if alert.Severity != schema.SeverityLow {
		t.Errorf("Severity = %q, want low", alert.Severity)
	}
}

func TestRunIndicatorRichEvent(t *testing.T) {
	p := newTestPipeline(nil)

	alert, err := p.Run(context.Background(), schema.RawEvent{
		"event": "Failed logins from 203.0.113.45 against https://example.com/login; " +
			"hash=5d41402abc4b2a76b9719d911017c592; contact secops@example.org",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantKinds := map[schema.IndicatorKind]string{
		schema.IndicatorAddress: "203.0.113.45",
		schema.IndicatorURL:     "https://example.com/login",
		schema.IndicatorHash:    "5d41402abc4b2a76b9719d911017c592",
		schema.IndicatorDomain:  "example.com",
		schema.IndicatorEmail:   "secops@example.org",
	}
	for kind, value := range wantKinds {
		found := false
		for _, ind := range alert.IOCs {
			if ind.Kind == kind && ind.Value == value {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("indicator (%s, %s) missing from %v", kind, value, alert.IOCs)
		}
	}

	// Every distinct indicator value has a finding.
	values := make(map[string]bool)
	for _, ind := range alert.IOCs {
		values[ind.Value] = true
	}
	if len(alert.OSINT) != len(values) {
		t.Errorf("OSINT keys = %d, want %d", len(alert.OSINT), len(values))
	}
	for value := range values {
		if _, ok := alert.OSINT[value]; !ok {
			t.Errorf("no finding for %q", value)
		}
	}
}

func TestRunPreservesURLQueryString(t *testing.T) {
	p := newTestPipeline(nil)

	alert, err := p.Run(context.Background(), schema.RawEvent{
		"event": "user clicked phishing link",
		"url":   "https://evil.test/login?a=1&b=2",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "https://evil.test/login?a=1&b=2"
	found := false
	for _, ind := range alert.IOCs {
		if ind.Kind == schema.IndicatorURL {
			found = true
			if ind.Value != want {
				t.Errorf("URL indicator = %q, want %q", ind.Value, want)
			}
		}
	}
	if !found {
		t.Fatalf("no URL indicator in %v", alert.IOCs)
	}
	if _, ok := alert.OSINT[want]; !ok {
		t.Errorf("no finding keyed by %q, OSINT = %v", want, alert.OSINT)
	}
}

func TestRunValidation(t *testing.T) {
	p := newTestPipeline(nil)

	t.Run("missing description rejected before start", func(t *testing.T) {
		alert, err := p.Run(context.Background(), schema.RawEvent{"src_ip": "203.0.113.45"})

		if !errors.Is(err, schema.ErrMissingField) {
			t.Errorf("err = %v, want ErrMissingField", err)
		}
		if alert != nil {
			t.Error("alert returned for rejected event")
		}
	})

	t.Run("nothing processed", func(t *testing.T) {
		if got := p.Metrics().Processed; got != 0 {
			t.Errorf("Processed = %d, want 0", got)
		}
	})
}

func TestRunPersistFailure(t *testing.T) {
	p := newTestPipeline(failingStore{})

	alert, err := p.Run(context.Background(), schema.RawEvent{
		"event": "routine login success",
	})

	if err == nil {
		t.Fatal("Run succeeded with failing store")
	}
	if alert == nil {
		t.Fatal("computed alert discarded on persistence failure")
	}
	if alert.Severity != schema.SeverityLow {
		t.Errorf("Severity = %q, want low (alert fully computed)", alert.Severity)
	}

	metrics := p.Metrics()
	if metrics.PersistErrors != 1 {
		t.Errorf("PersistErrors = %d, want 1", metrics.PersistErrors)
	}
	if metrics.Persisted != 0 {
		t.Errorf("Persisted = %d, want 0", metrics.Persisted)
	}
}

func TestRunConcurrent(t *testing.T) {
	p := newTestPipeline(nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Run(context.Background(), schema.RawEvent{
				"src_ip": "203.0.113.45",
				"event":  "multiple failed logins",
			})
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := p.Metrics().Persisted; got != 16 {
		t.Errorf("Persisted = %d, want 16", got)
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateClassifying: "classifying",
		StateExtracting:  "extracting",
		StateEnriching:   "enriching",
		StateMapping:     "mapping",
		StateScoring:     "scoring",
		StatePersisting:  "persisting",
		StateDone:        "done",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
