package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ollamaGenerator struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewOllamaGenerator(endpoint, model string, client *http.Client) Generator {
	if client == nil {
		client = http.DefaultClient
	}
	if model == "" {
		model = "llama3"
	}
	return &ollamaGenerator{endpoint: strings.TrimRight(endpoint, "/"), model: model, client: client}
}

type ollamaRequest struct {
	Model       string        `json:"model"`
	Prompt      string        `json:"prompt"`
	System      string        `json:"system,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Options     ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

func (g *ollamaGenerator) Endpoint() string { return g.endpoint + "/api/generate" }

func (g *ollamaGenerator) Generate(ctx context.Context, req Request) (Reply, error) {
	payload := ollamaRequest{
		Model:       g.model,
		Prompt:      req.Prompt,
		System:      req.System,
		Temperature: req.Temperature,
		Stream:      false,
		Options:     ollamaOptions{Temperature: req.Temperature},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransport(err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: ollama returned status %s", ErrBackend, resp.Status)
	}

	var reply Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode ollama reply: %v", ErrBackend, err)
	}
	return reply, nil
}
