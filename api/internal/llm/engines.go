package llm

import (
	"fmt"
	"strings"
)

// Factory builds a backend for one model name.
type Factory func(model string) (Backend, error)

// Engines resolves a provider name to a backend factory.
type Engines struct {
	Ollama Factory
	Gemini Factory
	GPT    Factory
}

func (e *Engines) GetEngine(provider, model string) (Backend, error) {
	var f Factory
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "ollama":
		f = e.Ollama
	case "gemini", "google":
		f = e.Gemini
	case "gpt", "openai":
		f = e.GPT
	default:
		return nil, fmt.Errorf("unknown provider %q; use 'ollama', 'gemini' or 'gpt'", provider)
	}
	if f == nil {
		return nil, fmt.Errorf("provider %q is not configured", provider)
	}
	return f(model)
}
