// Package mock provides a deterministic llm.Port for tests and local
// development.
package mock

import (
	"context"

	"github.com/orbtalk/orb/internal/adapters/llm"
)

// Adapter always returns the same configured response text.
type Adapter struct {
	responseText string
}

// New constructs a mock LLM adapter. An empty responseText defaults to
// "mock response".
func New(responseText string) *Adapter {
	if responseText == "" {
		responseText = "mock response"
	}
	return &Adapter{responseText: responseText}
}

func (a *Adapter) Name() string { return "mock_llm" }

func (a *Adapter) Generate(context.Context, llm.Turn) (llm.Response, error) {
	return llm.Response{Text: a.responseText}, nil
}

var _ llm.Port = (*Adapter)(nil)
