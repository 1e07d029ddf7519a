package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

// Request describes a single blocking completion call.
type Request struct {
	Prompt      string
	System      string
	Temperature float64
}

// Reply is the decoded backend reply. Field names vary per backend; callers
// pick the text field they understand.
type Reply map[string]any

// Generator defines a pluggable generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Reply, error)
	// Endpoint names where requests go, for diagnostics.
	Endpoint() string
}

// NewFromConfig builds the generator selected by cfg.Mode.
func NewFromConfig(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockGenerator(), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model, nil), nil
	case "openai":
		return NewOpenAIGenerator(cfg.Endpoint, cfg.APIKey, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}

// Timeout converts a millisecond setting into a duration, defaulting to two minutes.
func Timeout(ms int) time.Duration {
	if ms <= 0 {
		return 120 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
