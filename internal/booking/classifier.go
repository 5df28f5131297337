package booking

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/medbridge/voicebook/internal/llm"
	"github.com/medbridge/voicebook/internal/observability/metrics"
	"github.com/medbridge/voicebook/pkg/logging"
)

const (
	defaultClassifyTimeout = 10 * time.Second
	classifyMaxTokens      = 300
)

const classifierSystemPrompt = `You are an intent classifier for a Singapore healthcare appointment booking system.

Given a patient's utterance (already normalized to standard English), extract:

1. intent — one of:
   - "book_appointment"    : patient wants to book / schedule an appointment
   - "reschedule"          : patient wants to change an existing appointment
   - "cancel_appointment"  : patient wants to cancel an existing appointment
   - "check_availability"  : patient asking about available slots / doctors
   - "unclear"             : cannot determine intent

2. slots — extract whatever is mentioned:
   - doctor_name    : string or null  (e.g. "Dr. Tan", "Dr. Lee")
   - specialty      : string or null  (e.g. "Cardiology", "General Practice", "skin", "heart")
   - preferred_date : string or null  (e.g. "next Monday", "3 March", "this week", "tomorrow")
   - preferred_time : string or null  (e.g. "morning", "10am", "afternoon", "after 2pm")
   - urgency        : boolean         (true if patient says urgent, emergency, ASAP, pain, etc.)

Respond with ONLY valid JSON in this exact format — no markdown, no explanation:
{
  "intent": "<intent>",
  "slots": {
    "doctor_name": <string or null>,
    "specialty": <string or null>,
    "preferred_date": <string or null>,
    "preferred_time": <string or null>,
    "urgency": <true or false>
  }
}`

// DefaultClassification is the universal safe default returned on any
// classifier failure.
func DefaultClassification() Classification {
	return Classification{Intent: IntentUnclear}
}

// Classifier maps a normalized utterance to an intent plus a structured
// slot set. Decoding is zero-temperature so identical input yields
// identical output; every failure mode degrades to the unclear default
// rather than propagating an error.
type Classifier struct {
	client  llm.Client
	modelID string
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.PipelineMetrics
}

// NewClassifier builds a classifier around the supplied completion client.
func NewClassifier(client llm.Client, modelID string, timeout time.Duration, logger *logging.Logger, m *metrics.PipelineMetrics) *Classifier {
	if client == nil {
		panic("booking: llm client cannot be nil")
	}
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{
		client:  client,
		modelID: modelID,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Classify never returns an error: unavailability, empty responses, and
// malformed JSON all produce DefaultClassification.
func (c *Classifier) Classify(ctx context.Context, normalizedText string) Classification {
	if strings.TrimSpace(normalizedText) == "" {
		return DefaultClassification()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.client.Complete(ctx, llm.Request{
		Model:       c.modelID,
		System:      []string{classifierSystemPrompt},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: normalizedText}},
		MaxTokens:   classifyMaxTokens,
		Temperature: 0,
	})
	c.metrics.ObserveLLMLatency("classify", time.Since(started).Seconds())

	if err != nil {
		c.logger.Warn("classifier degraded to unclear", "error", err)
		c.metrics.ObserveClassifierFallback()
		return DefaultClassification()
	}

	result, ok := parseClassification(resp.Text)
	if !ok {
		c.logger.Warn("classifier could not parse response", "raw", truncate(resp.Text, 200))
		c.metrics.ObserveClassifierFallback()
		return DefaultClassification()
	}
	return result
}

// parseClassification extracts the first JSON object from raw model output
// and validates it against the closed intent enum.
func parseClassification(raw string) (Classification, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Classification{}, false
	}

	var parsed struct {
		Intent string `json:"intent"`
		Slots  struct {
			DoctorName    *string `json:"doctor_name"`
			Specialty     *string `json:"specialty"`
			PreferredDate *string `json:"preferred_date"`
			PreferredTime *string `json:"preferred_time"`
			Urgency       bool    `json:"urgency"`
		} `json:"slots"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return Classification{}, false
	}

	return Classification{
		Intent: ParseIntent(parsed.Intent),
		Slots: SlotRequest{
			DoctorName:    deref(parsed.Slots.DoctorName),
			Specialty:     deref(parsed.Slots.Specialty),
			PreferredDate: deref(parsed.Slots.PreferredDate),
			PreferredTime: deref(parsed.Slots.PreferredTime),
			Urgency:       parsed.Slots.Urgency,
		},
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
