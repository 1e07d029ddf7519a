package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

func TestLanguageCode(t *testing.T) {
	cases := map[string]string{
		"Marathi": "mr",
		"hindi":   "hi",
		"Tamil":   "ta",
		"English": "en",
		"Kannada": "kn",
		"Telugu":  "te",
		"Bengali": "bn",
		"Klingon": "en",
		"":        "en",
	}
	for name, want := range cases {
		if got := LanguageCode(name); got != want {
			t.Fatalf("LanguageCode(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestMockWritesWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	synth := NewMockSynth(16000, 1)
	if err := synth.Synthesize(context.Background(), Request{Text: "hello there", Language: "English"}, path); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("expected a valid wav file")
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 {
		t.Fatalf("unexpected format %d Hz %d ch", dec.SampleRate, dec.NumChans)
	}
}

func TestMockRejectsEmptyText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	err := NewMockSynth(0, 0).Synthesize(context.Background(), Request{Text: "  "}, path)
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file, stat err %v", statErr)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\ncat > /dev/null\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecWritesAudioChunks(t *testing.T) {
	script := writeScript(t, `echo '{"audio_base64":"aGVs"}'
echo '{"audio_base64":"bG8=","final":true}'
`)
	synth, err := NewExecSynth("sh "+script, "mp3", 22050, 1)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.mp3")
	if err := synth.Synthesize(context.Background(), Request{Text: "hi", Language: "Hindi"}, path); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected audio %q", data)
	}
}

func TestExecWrapsPCMForWav(t *testing.T) {
	script := writeScript(t, `echo '{"pcm_base64":"AAAAAAAAAAA=","final":true}'
`)
	synth, err := NewExecSynth("sh "+script, "wav", 8000, 1)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := synth.Synthesize(context.Background(), Request{Text: "hi"}, path); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if !wav.NewDecoder(f).IsValidFile() {
		t.Fatal("expected wav container")
	}
}

func TestExecFailureLeavesNoFile(t *testing.T) {
	script := writeScript(t, "exit 3\n")
	synth, err := NewExecSynth("sh "+script, "mp3", 22050, 1)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	path := filepath.Join(t.TempDir(), "out.mp3")
	if err := synth.Synthesize(context.Background(), Request{Text: "hi"}, path); !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file, stat err %v", statErr)
	}
}

func TestNewFromConfig(t *testing.T) {
	synth, err := NewFromConfig(config.TTSConfig{Mode: "mock"})
	if err != nil || synth.Format() != "wav" {
		t.Fatalf("unexpected mock synth %v %v", synth, err)
	}
	if _, err := NewFromConfig(config.TTSConfig{Mode: "exec"}); err == nil {
		t.Fatal("expected empty command error")
	}
	if _, err := NewFromConfig(config.TTSConfig{Mode: "cloud"}); err == nil {
		t.Fatal("expected unsupported mode error")
	}
}
