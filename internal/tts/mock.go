package tts

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// mockSynth writes silence: 5ms of audio per character of text.
type mockSynth struct {
	sampleRate int
	channels   int
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Format() string { return "wav" }

func (m *mockSynth) Synthesize(ctx context.Context, req Request, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrSynthesis)
	}
	frames := m.sampleRate / 200 * len([]rune(req.Text))
	pcm := make([]byte, frames*m.channels*2)
	if err := writeWav(path, pcm, m.sampleRate, m.channels); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return nil
}
