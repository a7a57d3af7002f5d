// Package classify assigns a benign/suspicious/malicious label to a raw
// event, either via a remote inference backend or a deterministic local
// heuristic. Classification never fails outward: every internal error
// degrades to the heuristic.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"soc-triage/internal/schema"
)

// Inferencer is the remote classification capability: a prompt in,
// free-form text out. Implementations must bound their own latency.
type Inferencer interface {
	Infer(ctx context.Context, prompt string) (string, error)
}

// prompt is the instruction sent to the inference backend. The reply is
// expected to be strict JSON but is recovered leniently.
const prompt = `You are a SOC analyst.
Classify the event as benign, suspicious, or malicious.
Return STRICT JSON: {"label": "...", "reason": "...", "confidence": 0.0}.

Event JSON:
%s`

// suspiciousKeywords trigger the middle heuristic branch.
var suspiciousKeywords = []string{"phish", "suspicious", "malware", "exfil", "c2"}

// Classifier labels event text. A nil backend means heuristic-only.
type Classifier struct {
	backend Inferencer
	logger  *slog.Logger
}

// New creates a Classifier.
func New(backend Inferencer) *Classifier {
	return &Classifier{
		backend: backend,
		logger:  slog.Default().With("component", "classify"),
	}
}

// Classify labels the event text. It always returns a usable
// classification: backend errors, timeouts and unparseable replies all
// silently degrade to Heuristic.
func (c *Classifier) Classify(ctx context.Context, eventText string) schema.Classification {
	if c.backend == nil {
		return Heuristic(eventText)
	}

	resp, err := c.backend.Infer(ctx, fmt.Sprintf(prompt, eventText))
	if err != nil {
		c.logger.Warn("inference failed, using heuristic", "error", err)
		return Heuristic(eventText)
	}

	detection, ok := parseResponse(resp)
	if !ok {
		c.logger.Warn("unparseable inference response, using heuristic")
		return Heuristic(eventText)
	}
	return detection
}

// Heuristic is the deterministic local fallback. Branches in order of
// precedence: brute-force phrasing, suspicious keywords, benign.
func Heuristic(eventText string) schema.Classification {
	t := strings.ToLower(eventText)

	if strings.Contains(t, "failed login") || strings.Contains(t, "multiple failed") || strings.Contains(t, "brute") {
		return schema.Classification{
			Label:      schema.LabelMalicious,
			Reason:     "Heuristic: repeated failed logins/brute-force pattern",
			Confidence: 0.75,
		}
	}

	for _, k := range suspiciousKeywords {
		if strings.Contains(t, k) {
			return schema.Classification{
				Label:      schema.LabelSuspicious,
				Reason:     "Heuristic: suspicious keywords",
				Confidence: 0.6,
			}
		}
	}

	return schema.Classification{
		Label:      schema.LabelBenign,
		Reason:     "Heuristic: no suspicious signals",
		Confidence: 0.55,
	}
}

// parseResponse interprets a backend reply as the expected JSON object.
// If the whole reply does not parse, the first top-level object
// substring (first '{' through last '}') is tried. Missing or invalid
// keys get defaults rather than failing.
func parseResponse(resp string) (schema.Classification, bool) {
	var data map[string]any

	if err := json.Unmarshal([]byte(resp), &data); err != nil {
		start := strings.Index(resp, "{")
		end := strings.LastIndex(resp, "}")
		if start == -1 || end <= start {
			return schema.Classification{}, false
		}
		if err := json.Unmarshal([]byte(resp[start:end+1]), &data); err != nil {
			return schema.Classification{}, false
		}
	}

	if len(data) == 0 {
		return schema.Classification{}, false
	}

	detection := schema.Classification{
		Label:      schema.LabelSuspicious,
		Reason:     "model response parsed with defaults",
		Confidence: 0.5,
	}

	if label, ok := data["label"].(string); ok && schema.Label(label).IsValid() {
		detection.Label = schema.Label(label)
	}
	if reason, ok := data["reason"].(string); ok && reason != "" {
		detection.Reason = reason
	}
	if confidence, ok := data["confidence"].(float64); ok && confidence >= 0 && confidence <= 1 {
		detection.Confidence = confidence
	}
	return detection, true
}
