// Package audiocache owns generated narration audio: it synthesizes files,
// keeps at most one live artifact per key, plays them and deletes them.
package audiocache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-narrator/internal/logging"
	"github.com/loqalabs/loqa-narrator/internal/narration"
	"github.com/loqalabs/loqa-narrator/internal/playback"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

// Recorder receives artifact lifecycle events.
type Recorder interface {
	Record(ctx context.Context, itemID, language, kind, detail string) error
}

// Cache maps keys to audio artifacts. The map is guarded by mu; synthesis and
// playback run outside it. playMu serializes use of the playback engine.
type Cache struct {
	dir      string
	synth    tts.Synthesizer
	player   playback.Player
	poll     time.Duration
	eviction EvictionPolicy
	clock    func() time.Time
	recorder Recorder
	logger   *slog.Logger

	mu        sync.Mutex
	artifacts map[Key]*Artifact
	lastStamp int64

	playMu sync.Mutex

	generated metric.Int64Counter
	deleted   metric.Int64Counter
}

type Option func(*Cache)

func WithEviction(p EvictionPolicy) Option { return func(c *Cache) { c.eviction = p } }

func WithPollInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.poll = d
		}
	}
}

func WithClock(clock func() time.Time) Option { return func(c *Cache) { c.clock = clock } }

func WithRecorder(r Recorder) Option { return func(c *Cache) { c.recorder = r } }

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates dir if needed and returns an empty cache writing into it.
func New(dir string, synth tts.Synthesizer, player playback.Player, opts ...Option) (*Cache, error) {
	if synth == nil || player == nil {
		return nil, errors.New("audio cache needs a synthesizer and a player")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	c := &Cache{
		dir:       dir,
		synth:     synth,
		player:    player,
		poll:      100 * time.Millisecond,
		eviction:  EvictGlobal,
		clock:     time.Now,
		logger:    logging.Discard(),
		artifacts: make(map[Key]*Artifact),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "audio-cache"), slog.String("eviction", string(c.eviction)))

	meter := otel.Meter("github.com/loqalabs/loqa-narrator/audiocache")
	var err error
	if c.generated, err = meter.Int64Counter("narrator.audio.generated"); err != nil {
		c.logger.Warn("failed to create generated counter", slogError(err))
	}
	if c.deleted, err = meter.Int64Counter("narrator.audio.deleted"); err != nil {
		c.logger.Warn("failed to create deleted counter", slogError(err))
	}
	if err := c.observeArtifacts(meter); err != nil {
		c.logger.Warn("failed to register artifact gauge", slogError(err))
	}
	return c, nil
}

// Generate synthesizes script into a new file, evicts what the policy says
// and registers the file as Ready under key. Failures are logged and reported
// as false.
func (c *Cache) Generate(ctx context.Context, key Key, script narration.Script) bool {
	if strings.TrimSpace(script.Text) == "" {
		c.logger.Warn("no text to synthesize", keyAttrs(key)...)
		c.record(ctx, key, StateFailed, "empty script")
		return false
	}
	path := c.newPath(key)
	c.record(ctx, key, StateGenerating, filepath.Base(path))
	if err := c.synth.Synthesize(ctx, tts.Request{Text: script.Text, Language: key.Language}, path); err != nil {
		c.logger.Error("error generating audio", append(keyAttrs(key), slogError(err))...)
		c.record(ctx, key, StateFailed, err.Error())
		return false
	}

	c.mu.Lock()
	victims := c.evictLocked(key)
	c.artifacts[key] = &Artifact{Key: key, Path: path, CreatedAt: c.clock(), State: StateReady}
	c.mu.Unlock()

	c.removeAll(ctx, victims)
	c.count(ctx, c.generated, key)
	c.record(ctx, key, StateReady, filepath.Base(path))
	c.logger.Info("audio generated", append(keyAttrs(key), slog.String("file", filepath.Base(path)))...)
	return true
}

// SpeakNow synthesizes and plays script without caching it. The file is
// removed on every exit path.
func (c *Cache) SpeakNow(ctx context.Context, script narration.Script, key Key) bool {
	if strings.TrimSpace(script.Text) == "" {
		c.logger.Warn("no text to speak", keyAttrs(key)...)
		return false
	}
	path := c.newPath(key)
	defer c.removeFile(ctx, key, path)

	if err := c.synth.Synthesize(ctx, tts.Request{Text: script.Text, Language: key.Language}, path); err != nil {
		c.logger.Error("error in text-to-speech", append(keyAttrs(key), slogError(err))...)
		c.record(ctx, key, StateFailed, err.Error())
		return false
	}
	c.count(ctx, c.generated, key)

	c.mu.Lock()
	victims := c.evictLocked(key)
	c.mu.Unlock()
	c.removeAll(ctx, victims)

	c.record(ctx, key, StatePlaying, filepath.Base(path))
	if err := c.play(ctx, path); err != nil {
		c.logger.Error("error playing audio", append(keyAttrs(key), slogError(err))...)
		return false
	}
	return true
}

// Play plays the Ready artifact under key and deletes it afterwards.
func (c *Cache) Play(ctx context.Context, key Key) bool {
	c.mu.Lock()
	a, ok := c.artifacts[key]
	if !ok || a.State != StateReady {
		c.mu.Unlock()
		return false
	}
	a.State = StatePlaying
	path := a.Path
	c.mu.Unlock()

	c.record(ctx, key, StatePlaying, filepath.Base(path))
	err := c.play(ctx, path)

	c.mu.Lock()
	if c.artifacts[key] == a {
		delete(c.artifacts, key)
	}
	a.State = StateDeleted
	c.mu.Unlock()
	c.removeFile(ctx, key, path)

	if err != nil {
		c.logger.Error("error playing audio", append(keyAttrs(key), slogError(err))...)
		return false
	}
	return true
}

// Cleanup deletes the artifact under key. It reports whether one was registered.
// An artifact that is playing is unregistered now and deleted when playback ends.
func (c *Cache) Cleanup(ctx context.Context, key Key) bool {
	c.mu.Lock()
	a, ok := c.artifacts[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.artifacts, key)
	playing := a.State == StatePlaying
	if !playing {
		a.State = StateDeleted
	}
	path := a.Path
	c.mu.Unlock()

	if !playing {
		c.removeFile(ctx, key, path)
	}
	return true
}

// State reports the state of the artifact under key, StateAbsent if none.
func (c *Cache) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.artifacts[key]; ok {
		return a.State
	}
	return StateAbsent
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.artifacts)
}

func (c *Cache) observeArtifacts(meter metric.Meter) error {
	gauge, err := meter.Int64ObservableGauge("narrator.audio.artifacts", metric.WithDescription("Registered audio artifacts"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(c.Len()))
		return nil
	}, gauge)
	return err
}

// Snapshot copies the registered artifacts, oldest first.
func (c *Cache) Snapshot() []Artifact {
	c.mu.Lock()
	out := make([]Artifact, 0, len(c.artifacts))
	for _, a := range c.artifacts {
		out = append(out, *a)
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Close deletes every registered artifact that is not playing.
func (c *Cache) Close() {
	c.mu.Lock()
	var victims []*Artifact
	for key, a := range c.artifacts {
		delete(c.artifacts, key)
		if a.State != StatePlaying {
			a.State = StateDeleted
			victims = append(victims, a)
		}
	}
	c.mu.Unlock()
	c.removeAll(context.Background(), victims)
}

// evictLocked unregisters the artifacts displaced by a new one for key and
// returns those whose files should be removed now. Playing artifacts are
// unregistered but their file belongs to Play until it finishes.
func (c *Cache) evictLocked(key Key) []*Artifact {
	var victims []*Artifact
	for k, a := range c.artifacts {
		if c.eviction == EvictPerKey && k != key {
			continue
		}
		delete(c.artifacts, k)
		if a.State == StatePlaying {
			continue
		}
		a.State = StateDeleted
		victims = append(victims, a)
	}
	return victims
}

func (c *Cache) removeAll(ctx context.Context, victims []*Artifact) {
	for _, a := range victims {
		c.removeFile(ctx, a.Key, a.Path)
	}
}

// removeFile deletes path; a missing file is not an error.
func (c *Cache) removeFile(ctx context.Context, key Key, path string) {
	err := os.Remove(path)
	switch {
	case err == nil:
		c.count(ctx, c.deleted, key)
		c.record(ctx, key, StateDeleted, filepath.Base(path))
		c.logger.Info("deleted audio file", append(keyAttrs(key), slog.String("file", filepath.Base(path)))...)
	case errors.Is(err, fs.ErrNotExist):
	default:
		c.logger.Error("error cleaning up audio file", append(keyAttrs(key), slogError(err))...)
	}
}

func (c *Cache) play(ctx context.Context, path string) error {
	c.playMu.Lock()
	defer c.playMu.Unlock()
	return playback.PlayFile(ctx, c.player, path, c.poll)
}

// newPath returns a fresh file path for key. Timestamps are forced to be
// strictly increasing so two calls never share a name.
func (c *Cache) newPath(key Key) string {
	c.mu.Lock()
	now := c.clock()
	if stamp := now.UnixNano(); stamp <= c.lastStamp {
		now = time.Unix(0, c.lastStamp+1)
	}
	c.lastStamp = now.UnixNano()
	c.mu.Unlock()
	return filepath.Join(c.dir, fileName(key, now, c.synth.Format()))
}

func (c *Cache) record(ctx context.Context, key Key, state State, detail string) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, key.ItemID, key.Language, "audio."+state.String(), detail); err != nil {
		c.logger.Warn("failed to record audio event", append(keyAttrs(key), slogError(err))...)
	}
}

func (c *Cache) count(ctx context.Context, counter metric.Int64Counter, key Key) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("language", key.Language)))
}

func keyAttrs(key Key) []any {
	return []any{slog.String("item_id", key.ItemID), slog.String("language", key.Language)}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
