// internal/llm/factory/factory.go
package factory

import (
	"fmt"

	"github.com/quantfold/backtestd/internal/llm"
	"github.com/quantfold/backtestd/internal/llm/claude"
	"github.com/quantfold/backtestd/internal/llm/openai"
)

// New creates an LLM provider by name.
func New(provider, apiKey, model string) (llm.Provider, error) {
	switch provider {
	case "claude":
		return claude.New(apiKey, model)
	case "openai":
		return openai.New(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", provider)
	}
}
