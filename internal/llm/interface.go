// Package llm abstracts the model providers behind the advisor strategy.
// Providers answer single-turn queries; the advisor never holds a
// conversation, so there is no message history in the contract.
package llm

import "context"

// Provider answers one-shot completion queries.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn query. JSONMode constrains the output to a
// JSON object on providers whose API supports it.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// Response is the provider's answer with token accounting.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string
}
