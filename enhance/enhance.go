// Package enhance asks a language model to improve the readability and
// formatting of extracted document text.
package enhance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FallbackNote prefixes the original text when the model is rate limited.
const FallbackNote = "[Note: AI enhancement unavailable]\n\n"

const systemPrompt = "You are an expert document formatter. Your task is to enhance the given document content while preserving its structure and meaning. Focus on improving readability, formatting, and visual appeal. Return the enhanced content in a JSON object with an 'enhancedContent' field."

var (
	// ErrRateLimited is returned by providers when the model service throttles the caller.
	ErrRateLimited = errors.New("enhancement rate limited")
	// ErrInvalidResponse is returned when the model reply lacks enhanced content.
	ErrInvalidResponse = errors.New("invalid response format from model")
)

// Result is the outcome of a successful enhancement.
type Result struct {
	Text     string
	Provider string
	// Fallback is set when Text is the annotated original rather than model output.
	Fallback bool
}

// Enhancer improves document text.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (Result, error)
}

// EnhancerFunc adapts a function to the Enhancer interface.
type EnhancerFunc func(ctx context.Context, text string) (Result, error)

// Enhance calls f(ctx, text).
func (f EnhancerFunc) Enhance(ctx context.Context, text string) (Result, error) {
	return f(ctx, text)
}

type fallbackEnhancer struct {
	next       Enhancer
	onFallback func(err error)
}

// WithFallback wraps next so that rate limiting yields the original text
// prefixed with FallbackNote instead of an error. onFallback may be nil.
func WithFallback(next Enhancer, onFallback func(err error)) Enhancer {
	return &fallbackEnhancer{next: next, onFallback: onFallback}
}

func (f *fallbackEnhancer) Enhance(ctx context.Context, text string) (Result, error) {
	res, err := f.next.Enhance(ctx, text)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrRateLimited) {
		return Result{}, err
	}
	if f.onFallback != nil {
		f.onFallback(err)
	}
	return Result{
		Text:     FallbackNote + text,
		Provider: res.Provider,
		Fallback: true,
	}, nil
}

// Passthrough returns the text unchanged. It stands in when no model is configured.
type Passthrough struct{}

// Enhance returns text as is.
func (Passthrough) Enhance(_ context.Context, text string) (Result, error) {
	return Result{Text: text, Provider: "none"}, nil
}

type enhancedPayload struct {
	EnhancedContent string `json:"enhancedContent"`
}

// parseEnhanced decodes the {"enhancedContent": ...} object a model replies with.
func parseEnhanced(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty reply: %w", ErrInvalidResponse)
	}

	var payload enhancedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", fmt.Errorf("decode reply: %v: %w", err, ErrInvalidResponse)
	}
	if payload.EnhancedContent == "" {
		return "", fmt.Errorf("missing enhancedContent: %w", ErrInvalidResponse)
	}
	return payload.EnhancedContent, nil
}
