package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execGenerator runs a local command per request: the request is written as
// JSON on stdin and a JSON object is read from stdout.
type execGenerator struct {
	cmd []string
	mu  sync.Mutex
}

func NewExecGenerator(command string) (Generator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse llm command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("llm command empty")
	}
	return &execGenerator{cmd: args}, nil
}

func (g *execGenerator) Endpoint() string { return strings.Join(g.cmd, " ") }

func (g *execGenerator) Generate(ctx context.Context, req Request) (Reply, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	payload := map[string]any{
		"prompt":      req.Prompt,
		"system":      req.System,
		"temperature": req.Temperature,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	base := g.cmd[0]
	args := append([]string{}, g.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ClassifyTransport(ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: llm exec command failed: %v", ErrBackend, err)
		}
		return nil, fmt.Errorf("%w: start llm command: %v", ErrConnection, err)
	}

	var reply Reply
	if err := json.Unmarshal(output, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode llm exec response: %v", ErrBackend, err)
	}
	return reply, nil
}
