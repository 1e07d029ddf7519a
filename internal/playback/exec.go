package playback

import (
	"bytes"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execPlayer plays a file by running "<command> <file>"; it is busy while the
// process runs.
type execPlayer struct {
	cmd []string

	mu     sync.Mutex
	path   string
	proc   *exec.Cmd
	stderr bytes.Buffer
	done   chan struct{}
	err    error
}

func NewExecPlayer(command string) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("player command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Load(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proc != nil {
		return fmt.Errorf("player busy with %s", p.path)
	}
	p.path = path
	return nil
}

func (p *execPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return ErrNotLoaded
	}
	if p.proc != nil {
		return fmt.Errorf("already playing %s", p.path)
	}
	args := append(append([]string{}, p.cmd[1:]...), p.path)
	proc := exec.Command(p.cmd[0], args...)
	p.stderr.Reset()
	proc.Stderr = &p.stderr
	if err := proc.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	p.proc = proc
	p.err = nil
	p.done = make(chan struct{})
	go func(done chan struct{}) {
		err := proc.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(done)
	}(p.done)
	return nil
}

func (p *execPlayer) Busy() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (p *execPlayer) Unload() error {
	p.mu.Lock()
	proc, done := p.proc, p.done
	p.mu.Unlock()

	if proc != nil && done != nil {
		select {
		case <-done:
		default:
			_ = proc.Process.Kill()
			<-done
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.err
	if err != nil {
		err = fmt.Errorf("player exited: %w: %s", err, p.stderr.String())
	}
	p.path, p.proc, p.done, p.err = "", nil, nil, nil
	return err
}
