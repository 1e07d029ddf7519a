package playback

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// MockPlayer pretends to play for a fixed duration. It checks that the file
// exists and remembers every path it played.
type MockPlayer struct {
	duration time.Duration

	mu     sync.Mutex
	path   string
	until  time.Time
	played []string
	fail   error
}

func NewMockPlayer(duration time.Duration) *MockPlayer {
	return &MockPlayer{duration: duration}
}

func (m *MockPlayer) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = path
	return nil
}

func (m *MockPlayer) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return ErrNotLoaded
	}
	if m.fail != nil {
		err := fmt.Errorf("play %s: %w", m.path, m.fail)
		m.fail = nil
		return err
	}
	m.played = append(m.played, m.path)
	m.until = time.Now().Add(m.duration)
	return nil
}

func (m *MockPlayer) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Now().Before(m.until)
}

func (m *MockPlayer) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.path = ""
	m.until = time.Time{}
	return nil
}

// FailNext makes the next Play call return err.
func (m *MockPlayer) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Played returns the paths played so far.
func (m *MockPlayer) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.played...)
}
