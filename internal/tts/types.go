package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

// ErrSynthesis marks a speech engine failure.
var ErrSynthesis = errors.New("speech synthesis failed")

// Request contains parameters to synthesize speech. Language is a language
// name such as "Marathi"; engines receive its short code.
type Request struct {
	Text     string
	Language string
}

// Synthesizer is the contract for producing audio files.
type Synthesizer interface {
	// Synthesize writes the audio for req to path. On failure no file is left behind.
	Synthesize(ctx context.Context, req Request, path string) error
	// Format is the file extension of produced audio, without the dot.
	Format() string
}

var languageCodes = map[string]string{
	"marathi": "mr",
	"hindi":   "hi",
	"tamil":   "ta",
	"english": "en",
	"kannada": "kn",
	"telugu":  "te",
	"bengali": "bn",
}

// LanguageCode maps a language name to the engine's short code. Unknown names map to "en".
func LanguageCode(language string) string {
	if code, ok := languageCodes[strings.ToLower(strings.TrimSpace(language))]; ok {
		return code
	}
	return "en"
}

func NewFromConfig(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.Format, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
