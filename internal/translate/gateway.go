// Package translate sends text to a generation backend for translation with
// bounded retry. It never fails past its own boundary: callers always get a
// string back, plus the failure when there was one.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/llm"
	"github.com/loqalabs/loqa-narrator/internal/logging"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 1.5
	DefaultTimeout     = 120 * time.Second
)

// Policy bounds the retry loop. Between attempt n and n+1 the gateway sleeps
// BackoffBase^n seconds.
type Policy struct {
	MaxAttempts int
	BackoffBase float64
	Timeout     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BackoffBase: DefaultBackoffBase, Timeout: DefaultTimeout}
}

func PolicyFromConfig(cfg config.TranslateConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffBase >= 1 {
		p.BackoffBase = cfg.BackoffBase
	}
	if cfg.TimeoutMS > 0 {
		p.Timeout = llm.Timeout(cfg.TimeoutMS)
	}
	return p
}

func (p Policy) Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(p.BackoffBase, float64(attempt)) * float64(time.Second))
}

// Result carries the translated text, or a descriptive error message in Text
// together with the failure in Err.
type Result struct {
	Text     string
	Err      error
	Attempts int
}

func (r Result) Failed() bool { return r.Err != nil }

type Gateway struct {
	gen             llm.Generator
	policy          Policy
	temperature     float64
	defaultLanguage string
	sleep           func(context.Context, time.Duration) error
	logger          *slog.Logger
	attempts        metric.Int64Counter
	failures        metric.Int64Counter
}

type Option func(*Gateway)

func WithPolicy(p Policy) Option { return func(g *Gateway) { g.policy = p } }

func WithTemperature(t float64) Option { return func(g *Gateway) { g.temperature = t } }

func WithDefaultLanguage(lang string) Option {
	return func(g *Gateway) {
		if lang != "" {
			g.defaultLanguage = lang
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithSleep replaces the blocking wait between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = fn }
}

func New(gen llm.Generator, opts ...Option) *Gateway {
	g := &Gateway{
		gen:             gen,
		policy:          DefaultPolicy(),
		defaultLanguage: "Marathi",
		sleep:           sleepContext,
		logger:          logging.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "translation-gateway"))

	meter := otel.Meter("github.com/loqalabs/loqa-narrator/translate")
	var err error
	if g.attempts, err = meter.Int64Counter("narrator.translate.attempts"); err != nil {
		g.logger.Warn("failed to create attempts counter", slogError(err))
	}
	if g.failures, err = meter.Int64Counter("narrator.translate.failures"); err != nil {
		g.logger.Warn("failed to create failures counter", slogError(err))
	}
	return g
}

// BuildPrompt asks for the translated text only.
func BuildPrompt(text, targetLanguage string) string {
	return fmt.Sprintf("Translate the following text into %s. "+
		"Only return the translated text without any additional commentary:\n\n%s", targetLanguage, text)
}

func (g *Gateway) DefaultLanguage() string { return g.defaultLanguage }

// Text is Translate without the failure detail.
func (g *Gateway) Text(ctx context.Context, text, targetLanguage string) string {
	return g.Translate(ctx, text, targetLanguage).Text
}

func (g *Gateway) TranslateToDefault(ctx context.Context, text string) Result {
	return g.Translate(ctx, text, g.defaultLanguage)
}

// Translate issues one backend call per attempt, up to the policy's limit.
// Empty input returns immediately without touching the backend.
func (g *Gateway) Translate(ctx context.Context, text, targetLanguage string) Result {
	if text == "" {
		return Result{}
	}

	req := llm.Request{Prompt: BuildPrompt(text, targetLanguage), Temperature: g.temperature}
	maxAttempts := g.policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	langAttr := metric.WithAttributes(attribute.String("language", targetLanguage))

	var (
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= maxAttempts; attempt++ {
		reply, err := g.generate(ctx, req)
		if g.attempts != nil {
			g.attempts.Add(ctx, 1, langAttr)
		}
		if err == nil {
			return Result{Text: ReplyText(reply), Attempts: attempt}
		}
		lastErr = err
		g.logger.Warn("translation attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("language", targetLanguage),
			slogError(err))

		if attempt == maxAttempts || !llm.Retryable(err) {
			break
		}
		if err := g.sleep(ctx, g.policy.Backoff(attempt)); err != nil {
			break
		}
	}
	if attempt > maxAttempts {
		attempt = maxAttempts
	}

	if g.failures != nil {
		g.failures.Add(ctx, 1, langAttr)
	}
	return Result{Text: g.describe(lastErr), Err: lastErr, Attempts: attempt}
}

func (g *Gateway) generate(ctx context.Context, req llm.Request) (llm.Reply, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.policy.Timeout)
	defer cancel()
	reply, err := g.gen.Generate(attemptCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		// the per-attempt deadline fired, whatever the backend reported
		return nil, llm.ClassifyTransport(context.DeadlineExceeded)
	}
	return reply, err
}

func (g *Gateway) describe(err error) string {
	switch {
	case errors.Is(err, llm.ErrTimeout):
		return fmt.Sprintf("Error: translation backend timed out after %s. Is the server running and the model available?", g.policy.Timeout)
	case errors.Is(err, llm.ErrConnection):
		return fmt.Sprintf("Error: could not connect to translation backend at %s. Is the server running?", g.gen.Endpoint())
	case err != nil:
		return "Error: " + err.Error()
	default:
		return ""
	}
}

var replyFields = []string{"response", "text", "content"}

// ReplyText picks the translated text out of a backend reply. Known field
// names are tried in order; the raw reply is the last resort.
func ReplyText(reply llm.Reply) string {
	for _, key := range replyFields {
		if s, ok := reply[key].(string); ok && s != "" {
			return s
		}
	}
	if msg, ok := reply["message"].(map[string]any); ok {
		if s, ok := msg["content"].(string); ok && s != "" {
			return s
		}
	}
	if choices, ok := reply["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg, ok := choice["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok && s != "" {
					return s
				}
			}
			if s, ok := choice["text"].(string); ok && s != "" {
				return s
			}
		}
	}
	raw, err := json.Marshal(reply)
	if err != nil {
		return fmt.Sprint(map[string]any(reply))
	}
	return string(raw)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
