package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

func TestOllamaGenerate(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"model":"llama3","response":"namaskar","done":true}`))
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL+"/", "llama3", srv.Client())
	reply, err := gen.Generate(context.Background(), Request{Prompt: "hello", Temperature: 0.2})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply["response"] != "namaskar" {
		t.Fatalf("unexpected reply %v", reply)
	}
	if got.Stream || got.Model != "llama3" || got.Prompt != "hello" || got.Options.Temperature != 0.2 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOllamaStatusIsBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaGenerator(srv.URL, "", srv.Client()).Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected backend failure, got %v", err)
	}
}

func TestOllamaTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOllamaGenerator(srv.URL, "", srv.Client()).Generate(ctx, Request{Prompt: "x"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestOllamaConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = NewOllamaGenerator("http://"+addr, "", nil).Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection failure, got %v", err)
	}
}

func TestClassifyTransport(t *testing.T) {
	if !errors.Is(ClassifyTransport(context.DeadlineExceeded), ErrTimeout) {
		t.Fatal("deadline should classify as timeout")
	}
	if !errors.Is(ClassifyTransport(errors.New("dial tcp: refused")), ErrConnection) {
		t.Fatal("generic transport error should classify as connection")
	}
	if errors.Is(ClassifyTransport(context.Canceled), ErrConnection) {
		t.Fatal("cancellation must not be classified")
	}
	if Retryable(context.Canceled) {
		t.Fatal("cancellation is not retryable")
	}
	if ClassifyTransport(nil) != nil {
		t.Fatal("nil stays nil")
	}
}

func TestExecGenerator(t *testing.T) {
	gen, err := NewExecGenerator("cat")
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	reply, err := gen.Generate(context.Background(), Request{Prompt: "echo me"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply["prompt"] != "echo me" {
		t.Fatalf("unexpected reply %v", reply)
	}
}

func TestExecGeneratorMissingBinary(t *testing.T) {
	gen, err := NewExecGenerator("/nonexistent/narrator-llm")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gen.Generate(context.Background(), Request{Prompt: "x"}); !errors.Is(err, ErrConnection) {
		t.Fatalf("expected connection failure, got %v", err)
	}
	if _, err := NewExecGenerator("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestMockGenerator(t *testing.T) {
	reply, err := NewMockGenerator().Generate(context.Background(), Request{Prompt: "Translate this:\n\nbody text"})
	if err != nil {
		t.Fatal(err)
	}
	if reply["response"] != "body text" {
		t.Fatalf("unexpected reply %v", reply)
	}
}

func TestNewFromConfig(t *testing.T) {
	for _, mode := range []string{"mock", "ollama", "openai"} {
		gen, err := NewFromConfig(config.LLMConfig{Mode: mode, Endpoint: "http://localhost:11434", APIKey: "k"})
		if err != nil || gen == nil {
			t.Fatalf("mode %s: %v", mode, err)
		}
	}
	if _, err := NewFromConfig(config.LLMConfig{Mode: "bogus"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
