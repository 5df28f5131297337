package booking

import (
	"context"
	"strings"
	"time"

	"github.com/medbridge/voicebook/internal/llm"
	"github.com/medbridge/voicebook/internal/observability/metrics"
	"github.com/medbridge/voicebook/pkg/logging"
)

const (
	defaultNormalizeTimeout = 10 * time.Second
	normalizeMaxTokens      = 200
	normalizeTemperature    = 0.1
)

const normalizerSystemPrompt = `You are a dialect normalizer for a Singapore healthcare appointment system.
The patient is speaking %LANG%.
Convert the input to clear, standard English.
Rules:
- Preserve ALL appointment details exactly: doctor names, specialties, dates, times, symptoms.
- Remove filler words (lah, leh, mah, wor, lor, kan, nah) but keep the meaning.
- If the input mixes languages, translate everything to English.
- Output ONLY the normalized English text — no explanations, no labels.`

// Normalizer converts dialect-influenced or mixed-language transcripts to
// standard English. It is best-effort and never fails the caller: on any
// upstream error or empty response the raw text is returned unchanged.
type Normalizer struct {
	client  llm.Client
	modelID string
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.PipelineMetrics
}

// NewNormalizer builds a normalizer around the supplied completion client.
func NewNormalizer(client llm.Client, modelID string, timeout time.Duration, logger *logging.Logger, m *metrics.PipelineMetrics) *Normalizer {
	if client == nil {
		panic("booking: llm client cannot be nil")
	}
	if timeout <= 0 {
		timeout = defaultNormalizeTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Normalizer{
		client:  client,
		modelID: modelID,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Normalize returns standard English text with appointment entities
// preserved, falling back to rawText whenever the language service is
// unavailable, slow, or returns nothing usable.
func (n *Normalizer) Normalize(ctx context.Context, rawText, language, dialect string) string {
	if strings.TrimSpace(rawText) == "" {
		return rawText
	}

	langLabel := language
	if langLabel == "" {
		langLabel = "English"
	}
	if dialect != "" {
		langLabel = langLabel + " (" + dialect + ")"
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	started := time.Now()
	resp, err := n.client.Complete(ctx, llm.Request{
		Model:       n.modelID,
		System:      []string{strings.ReplaceAll(normalizerSystemPrompt, "%LANG%", langLabel)},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: rawText}},
		MaxTokens:   normalizeMaxTokens,
		Temperature: normalizeTemperature,
	})
	n.metrics.ObserveLLMLatency("normalize", time.Since(started).Seconds())

	if err != nil {
		n.logger.Warn("normalizer falling back to raw text", "error", err)
		n.metrics.ObserveNormalizerFallback()
		return rawText
	}
	if strings.TrimSpace(resp.Text) == "" {
		n.logger.Warn("normalizer received empty response, using raw text")
		n.metrics.ObserveNormalizerFallback()
		return rawText
	}
	return strings.TrimSpace(resp.Text)
}
