// Package pipeline orchestrates the alert-processing stages: a raw
// event is classified, mined for indicators, enriched, mapped to
// techniques, scored and persisted, strictly in that order. Each stage
// only consumes fields produced by earlier stages plus the original raw
// event.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"soc-triage/internal/classify"
	"soc-triage/internal/ioc"
	"soc-triage/internal/mitre"
	"soc-triage/internal/osint"
	"soc-triage/internal/schema"
	"soc-triage/internal/severity"
	"soc-triage/internal/store"
)

// State identifies the pipeline stage an in-flight alert is in.
// States are internal: no partial alert is exposed outside a run.
type State int

const (
	StateClassifying State = iota
	StateExtracting
	StateEnriching
	StateMapping
	StateScoring
	StatePersisting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateClassifying:
		return "classifying"
	case StateExtracting:
		return "extracting"
	case StateEnriching:
		return "enriching"
	case StateMapping:
		return "mapping"
	case StateScoring:
		return "scoring"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Pipeline runs raw events through the fixed stage sequence. One run
// owns its alert exclusively; the only shared state between concurrent
// runs is the enricher's cache and the store, both safe for concurrent
// use.
type Pipeline struct {
	validator  *schema.Validator
	classifier *classify.Classifier
	enricher   *osint.Enricher
	mapper     *mitre.Mapper
	store      store.Store
	logger     *slog.Logger

	processed   uint64
	persisted   uint64
	persistErrs uint64
}

// New creates a Pipeline over the given stages and store.
func New(classifier *classify.Classifier, enricher *osint.Enricher, mapper *mitre.Mapper, s store.Store) *Pipeline {
	return &Pipeline{
		validator:  schema.NewValidator(),
		classifier: classifier,
		enricher:   enricher,
		mapper:     mapper,
		store:      s,
		logger:     slog.Default().With("component", "pipeline"),
	}
}

// Run processes one raw event end-to-end and returns the finished
// alert.
//
// A validation error means the pipeline never started and the alert is
// nil. Once classification has started no stage can abort the run:
// classification and enrichment absorb their own failures. The one
// terminal failure is persistence; then the returned error is non-nil
// but the computed alert is still returned, so the caller can retry
// persistence or store it elsewhere.
func (p *Pipeline) Run(ctx context.Context, raw schema.RawEvent) (*schema.Alert, error) {
	if err := p.validator.ValidateRawEvent(raw); err != nil {
		return nil, err
	}

	// The raw event is serialized once; classification and extraction
	// both operate on this text, so indicators in any field are found.
	eventText, err := serializeEvent(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}

	alert := schema.NewAlert(raw)
	state := StateClassifying
	p.transition(alert, &state, StateClassifying)

	alert.Detection = p.classifier.Classify(ctx, eventText)

	p.transition(alert, &state, StateExtracting)
	alert.IOCs = ioc.Extract(eventText)

	p.transition(alert, &state, StateEnriching)
	alert.OSINT = p.enricher.Enrich(ctx, alert.IOCs)

	p.transition(alert, &state, StateMapping)
	alert.MITRE = p.mapper.Map(alert.OSINT, alert.Detection.Reason)

	p.transition(alert, &state, StateScoring)
	alert.Severity = severity.Score(alert.Detection, alert.OSINT)

	p.transition(alert, &state, StatePersisting)
	atomic.AddUint64(&p.processed, 1)

	if err := p.store.Persist(ctx, alert); err != nil {
		atomic.AddUint64(&p.persistErrs, 1)
		p.logger.Error("alert not persisted",
			"event_id", alert.EventID,
			"severity", alert.Severity,
			"error", err,
		)
		return alert, fmt.Errorf("persist alert %s: %w", alert.EventID, err)
	}
	atomic.AddUint64(&p.persisted, 1)

	p.transition(alert, &state, StateDone)
	p.logger.Info("alert processed",
		"event_id", alert.EventID,
		"label", alert.Detection.Label,
		"severity", alert.Severity,
		"iocs", len(alert.IOCs),
		"techniques", len(alert.MITRE),
	)
	return alert, nil
}

// serializeEvent renders the raw event as JSON without HTML escaping.
// The default marshaler rewrites & < > as \u escapes, which would
// corrupt URL indicators with query strings before extraction sees
// them.
func serializeEvent(raw schema.RawEvent) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(raw); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func (p *Pipeline) transition(alert *schema.Alert, state *State, next State) {
	*state = next
	p.logger.Debug("stage transition", "event_id", alert.EventID, "state", next.String())
}

// Metrics returns pipeline counters.
func (p *Pipeline) Metrics() Metrics {
	return Metrics{
		Processed:     atomic.LoadUint64(&p.processed),
		Persisted:     atomic.LoadUint64(&p.persisted),
		PersistErrors: atomic.LoadUint64(&p.persistErrs),
	}
}

// Metrics holds pipeline statistics.
type Metrics struct {
	Processed     uint64 `json:"processed"`
	Persisted     uint64 `json:"persisted"`
	PersistErrors uint64 `json:"persist_errors"`
}
