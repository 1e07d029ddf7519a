package llm

import (
	"context"
	"strings"
)

type mockGenerator struct{}

// NewMockGenerator returns a generator that echoes the payload of the prompt,
// i.e. everything after the first blank line.
func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Endpoint() string { return "mock" }

func (m *mockGenerator) Generate(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, ClassifyTransport(err)
	}
	content := req.Prompt
	if _, after, ok := strings.Cut(req.Prompt, "\n\n"); ok {
		content = after
	}
	return Reply{"response": content, "done": true}, nil
}
