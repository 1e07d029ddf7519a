package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth runs a speech engine command per request. The request goes in
// as JSON on stdin; the engine answers with JSON lines carrying base64 audio.
// For the wav format the engine may send raw 16-bit PCM instead, which is
// wrapped into a WAV container here.
type execSynth struct {
	cmd        []string
	format     string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Language   string `json:"language"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
	PCMBase64   string `json:"pcm_base64"`
	Final       bool   `json:"final"`
}

func NewExecSynth(command, format string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	if format == "" {
		format = "mp3"
	}
	return &execSynth{cmd: args, format: format, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Format() string { return e.format }

func (e *execSynth) Synthesize(ctx context.Context, req Request, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	audio, pcm, err := e.run(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	switch {
	case len(pcm) > 0 && e.format == "wav":
		err = writeWav(path, pcm, e.sampleRate, e.channels)
	case len(pcm) > 0:
		err = fmt.Errorf("engine sent pcm for format %s", e.format)
	case len(audio) == 0:
		err = fmt.Errorf("engine produced no audio")
	default:
		err = os.WriteFile(path, audio, 0o644)
	}
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	return nil
}

func (e *execSynth) run(ctx context.Context, req Request) ([]byte, []byte, error) {
	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Language:   LanguageCode(req.Language),
		Format:     e.format,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("start tts command: %w", err)
	}

	var (
		audio, pcm []byte
		done       bool
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || done {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return nil, nil, fmt.Errorf("decode tts response: %w", err)
		}
		if resp.AudioBase64 != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
			if err != nil {
				_ = cmd.Wait()
				return nil, nil, fmt.Errorf("decode audio chunk: %w", err)
			}
			audio = append(audio, chunk...)
		}
		if resp.PCMBase64 != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				_ = cmd.Wait()
				return nil, nil, fmt.Errorf("decode pcm chunk: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		done = resp.Final
	}
	scanErr := scanner.Err()
	if err := cmd.Wait(); err != nil {
		return nil, nil, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}
	if scanErr != nil {
		return nil, nil, scanErr
	}
	return audio, pcm, nil
}
