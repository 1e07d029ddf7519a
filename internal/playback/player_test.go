package playback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

func tempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestPlayFileWaitsForMock(t *testing.T) {
	path := tempAudio(t)
	player := NewMockPlayer(30 * time.Millisecond)
	start := time.Now()
	if err := PlayFile(context.Background(), player, path, 5*time.Millisecond); err != nil {
		t.Fatalf("play: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("returned before playback finished")
	}
	if got := player.Played(); len(got) != 1 || got[0] != path {
		t.Fatalf("unexpected played list %v", got)
	}
	if player.Busy() {
		t.Fatal("player should be idle after unload")
	}
}

func TestPlayFileMissingFile(t *testing.T) {
	err := PlayFile(context.Background(), NewMockPlayer(0), filepath.Join(t.TempDir(), "nope.wav"), time.Millisecond)
	if !errors.Is(err, ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
}

func TestPlayFilePlayError(t *testing.T) {
	player := NewMockPlayer(0)
	player.FailNext(errors.New("device gone"))
	if err := PlayFile(context.Background(), player, tempAudio(t), time.Millisecond); !errors.Is(err, ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
}

func TestPlayFileHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := PlayFile(ctx, NewMockPlayer(time.Hour), tempAudio(t), 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestExecPlayer(t *testing.T) {
	player, err := NewExecPlayer("sleep")
	if err != nil {
		t.Fatalf("new exec player: %v", err)
	}
	// "sleep <file>" fails fast because the path is not a number.
	if err := PlayFile(context.Background(), player, tempAudio(t), 5*time.Millisecond); !errors.Is(err, ErrPlayback) {
		t.Fatalf("expected exit failure, got %v", err)
	}

	player, err = NewExecPlayer("true")
	if err != nil {
		t.Fatalf("new exec player: %v", err)
	}
	if err := PlayFile(context.Background(), player, tempAudio(t), 5*time.Millisecond); err != nil {
		t.Fatalf("play: %v", err)
	}
}

func TestExecPlayerRequiresLoad(t *testing.T) {
	player, err := NewExecPlayer("true")
	if err != nil {
		t.Fatalf("new exec player: %v", err)
	}
	if err := player.Play(); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	if _, err := NewFromConfig(config.PlayerConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := NewFromConfig(config.PlayerConfig{Mode: "exec"}); err == nil {
		t.Fatal("expected empty command error")
	}
	if PollInterval(0) != 100*time.Millisecond || PollInterval(20) != 20*time.Millisecond {
		t.Fatal("unexpected poll interval")
	}
}
