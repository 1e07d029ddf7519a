package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiGenerator talks to any OpenAI-compatible chat completions endpoint.
type openaiGenerator struct {
	api      openai.Client
	model    string
	endpoint string
}

func NewOpenAIGenerator(endpoint, apiKey, model string) Generator {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are owned by the translation gateway
		option.WithMaxRetries(0),
	}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &openaiGenerator{api: openai.NewClient(opts...), model: model, endpoint: endpoint}
}

func (g *openaiGenerator) Endpoint() string {
	if g.endpoint == "" {
		return "https://api.openai.com/v1"
	}
	return g.endpoint
}

func (g *openaiGenerator) Generate(ctx context.Context, req Request) (Reply, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := g.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: openai api error: %v", ErrBackend, err)
		}
		return nil, ClassifyTransport(err)
	}
	if len(resp.Choices) == 0 {
		return Reply{"id": resp.ID, "model": resp.Model}, nil
	}
	return Reply{"content": resp.Choices[0].Message.Content, "model": resp.Model}, nil
}
