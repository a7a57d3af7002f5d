// Package schema defines the canonical alert schema for soc-triage.
// A raw security event is transformed into this structure by the
// processing pipeline and stored once complete.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// DescriptionField is the raw-event field that must always be present.
// It carries the free-text description the classifier and extractor run on.
const DescriptionField = "event"

// RawEvent is the event as received: an open-ended mapping of field
// names to string values. Unknown fields are kept as-is and travel
// with the alert. Immutable once received.
type RawEvent map[string]string

// Label is the classification verdict for an event.
type Label string

const (
	LabelBenign     Label = "benign"
	LabelSuspicious Label = "suspicious"
	LabelMalicious  Label = "malicious"
)

// IsValid checks if the label is a valid value.
func (l Label) IsValid() bool {
	switch l {
	case LabelBenign, LabelSuspicious, LabelMalicious:
		return true
	}
	return false
}

// Classification is the detection verdict attached to an alert.
// Produced exactly once per alert, immutable afterward.
type Classification struct {
	Label      Label   `json:"label" validate:"required,oneof=benign suspicious malicious"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// IndicatorKind categorizes extracted indicators.
type IndicatorKind string

const (
	IndicatorAddress     IndicatorKind = "ip"
	IndicatorDomain      IndicatorKind = "domain"
	IndicatorURL         IndicatorKind = "url"
	IndicatorHash        IndicatorKind = "hash"
	IndicatorEmail       IndicatorKind = "email"
	IndicatorFilePath    IndicatorKind = "file_path"
	IndicatorRegistryKey IndicatorKind = "registry_key"
)

// IsValid checks if the indicator kind is a valid value.
func (k IndicatorKind) IsValid() bool {
	switch k {
	case IndicatorAddress, IndicatorDomain, IndicatorURL, IndicatorHash,
		IndicatorEmail, IndicatorFilePath, IndicatorRegistryKey:
		return true
	}
	return false
}

// Indicator is a structured fact extracted from event text, usable for
// threat lookup. Two indicators are equal when kind and value match,
// value compared case-insensitively.
type Indicator struct {
	Kind  IndicatorKind `json:"type" validate:"required,oneof=ip domain url hash email file_path registry_key"`
	Value string        `json:"value" validate:"required"`
}

// Reputation is the intelligence verdict for a single indicator.
type Reputation string

const (
	ReputationUnknown    Reputation = "unknown"
	ReputationSuspicious Reputation = "suspicious"
	ReputationMalicious  Reputation = "malicious"
)

// IsValid checks if the reputation is a valid value.
func (r Reputation) IsValid() bool {
	switch r {
	case ReputationUnknown, ReputationSuspicious, ReputationMalicious:
		return true
	}
	return false
}

// Finding is the threat-intelligence result for one indicator value.
type Finding struct {
	Reputation Reputation `json:"reputation" validate:"required,oneof=unknown suspicious malicious"`
	Sources    []string   `json:"sources"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	Tags       []string   `json:"tags"`
}

// TechniqueMapping maps an alert to a MITRE ATT&CK technique.
type TechniqueMapping struct {
	Tactic      string `json:"tactic" yaml:"tactic"`
	TechniqueID string `json:"technique_id" yaml:"technique_id" validate:"required"`
	Technique   string `json:"technique" yaml:"technique"`
}

// Severity is the discrete urgency tier of an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a valid value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Alert is the aggregate produced by the pipeline for one raw event.
// The orchestrator owns it exclusively while in flight; it becomes
// immutable once handed to the store.
type Alert struct {
	EventID   uuid.UUID          `json:"event_id" validate:"required"`
	Timestamp time.Time          `json:"ts" validate:"required"`
	Raw       RawEvent           `json:"raw" validate:"required"`
	Detection Classification     `json:"detection"`
	IOCs      []Indicator        `json:"iocs" validate:"dive"`
	OSINT     map[string]Finding `json:"osint" validate:"dive"`
	MITRE     []TechniqueMapping `json:"mitre" validate:"dive"`
	Severity  Severity           `json:"severity" validate:"required,oneof=low medium high critical"`
}

// NewAlert creates an alert shell for a raw event: fresh ID, placeholder
// severity, empty collections. The timestamp comes from the event's own
// "timestamp" field when it parses as RFC 3339; otherwise the current UTC
// time is stamped at second precision.
func NewAlert(raw RawEvent) *Alert {
	ts := time.Now().UTC().Truncate(time.Second)
	if supplied, ok := raw["timestamp"]; ok {
		if parsed, err := time.Parse(time.RFC3339, supplied); err == nil {
			ts = parsed
		}
	}

	return &Alert{
		EventID:   uuid.New(),
		Timestamp: ts,
		Raw:       raw,
		IOCs:      []Indicator{},
		OSINT:     map[string]Finding{},
		MITRE:     []TechniqueMapping{},
		Severity:  SeverityLow,
	}
}

// SchemaVersionCurrent is the current version of the alert schema.
const SchemaVersionCurrent = "1.0.0"
