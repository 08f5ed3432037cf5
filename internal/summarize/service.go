// Package summarize produces short synopses of note text. The model call is
// best-effort: every failure past input validation resolves to a local
// fallback string so saving a note is never blocked on the LLM endpoint.
package summarize

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	// minInputLength counts runes, not bytes, after trimming surrounding
	// whitespace.
	minInputLength = 50

	maxOutputTokens   = 150
	samplingTemp      = 0.5
	systemInstruction = "You are a helpful assistant that summarizes text. Provide a concise summary in 2-3 sentences."
	userPromptPrefix  = "Summarize the following text in 2-3 sentences:\n\n"

	degradedMessage    = "Summary could not be generated."
	unavailableMessage = "Failed to generate summary. Please try again later."
)

// ErrTextTooShort rejects input before any network call is attempted.
var ErrTextTooShort = errors.New("text must be at least 50 characters long")

// Source says which path produced a summary, so callers and tests never
// have to compare sentinel strings.
type Source string

const (
	// SourceModel is the trimmed reply of the completion endpoint.
	SourceModel Source = "model"
	// SourceExtract is the deterministic two-sentence excerpt used when the
	// endpoint answered with a failure status.
	SourceExtract Source = "extract"
	// SourceUnavailable is a fixed placeholder: missing credential, network
	// failure, or degenerate input that produced no usable sentences.
	SourceUnavailable Source = "unavailable"
)

type Result struct {
	Text   string
	Source Source
}

type completionClient interface {
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)
}

type Service struct {
	client completionClient
}

// NewService wires the completion client. client may be nil when no API
// credential is configured; summarization then always degrades to the
// unavailable sentinel.
func NewService(client *ChatClient) *Service {
	if client == nil {
		return &Service{}
	}
	return &Service{client: client}
}

// Summarize returns a short synopsis of text. The only error it ever
// returns is ErrTextTooShort; everything after validation resolves to a
// Result, whatever happened on the wire.
func (s *Service) Summarize(ctx context.Context, text string) (Result, error) {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minInputLength {
		return Result{}, ErrTextTooShort
	}

	if s.client == nil {
		return Result{Text: unavailableMessage, Source: SourceUnavailable}, nil
	}

	content, err := s.client.Complete(ctx, systemInstruction, userPromptPrefix+trimmed, maxOutputTokens, samplingTemp)
	if err == nil {
		return Result{Text: strings.TrimSpace(content), Source: SourceModel}, nil
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return extractiveSummary(trimmed), nil
	}
	return Result{Text: unavailableMessage, Source: SourceUnavailable}, nil
}

// extractiveSummary takes the first two sentence-terminated fragments of
// text, joined with ". " and closed with a period. Fragments only count
// when a terminator follows them: a trailing run without punctuation is
// discarded, matching the degenerate-input contract.
func extractiveSummary(text string) Result {
	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		fragment := strings.TrimSpace(text[start:i])
		if fragment != "" {
			sentences = append(sentences, fragment)
		}
		start = i + 1
	}

	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	fallback := strings.Join(sentences, ". ") + "."
	if utf8.RuneCountInString(fallback) <= 10 {
		return Result{Text: degradedMessage, Source: SourceUnavailable}
	}
	return Result{Text: fallback, Source: SourceExtract}
}
