package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-narrator/internal/audiocache"
	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/llm"
	"github.com/loqalabs/loqa-narrator/internal/mailsource"
	"github.com/loqalabs/loqa-narrator/internal/narration"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/playback"
	"github.com/loqalabs/loqa-narrator/internal/translate"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

// Graph holds the narration components built from one configuration.
type Graph struct {
	Store    *eventstore.Store
	Gateway  *translate.Gateway
	Cache    *audiocache.Cache
	Source   mailsource.Source
	Narrator *pipeline.Narrator
}

// Build wires event store, translation gateway, formatter, audio cache and
// mail source into a narrator. Close must be called to release them.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Graph, error) {
	g := &Graph{}
	ok := false
	defer func() {
		if !ok {
			g.Close()
		}
	}()

	store, err := eventstore.Open(ctx, cfg.EventStore, logger.With(slog.String("component", "event-store")))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	g.Store = store

	gen, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build llm backend: %w", err)
	}
	g.Gateway = translate.New(gen,
		translate.WithPolicy(translate.PolicyFromConfig(cfg.Translate)),
		translate.WithTemperature(cfg.LLM.Temperature),
		translate.WithDefaultLanguage(cfg.Translate.DefaultLanguage),
		translate.WithLogger(logger),
	)
	formatter := narration.NewFormatter(g.Gateway,
		narration.WithSourceLanguage(cfg.Translate.SourceLanguage),
		narration.WithLogger(logger),
	)

	synth, err := tts.NewFromConfig(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("build speech engine: %w", err)
	}
	player, err := playback.NewFromConfig(cfg.Player)
	if err != nil {
		return nil, fmt.Errorf("build player: %w", err)
	}
	eviction, err := audiocache.ParseEvictionPolicy(cfg.Cache.Eviction)
	if err != nil {
		return nil, err
	}
	g.Cache, err = audiocache.New(cfg.Cache.Dir, synth, player,
		audiocache.WithEviction(eviction),
		audiocache.WithPollInterval(playback.PollInterval(cfg.Player.PollIntervalMS)),
		audiocache.WithRecorder(store),
		audiocache.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	g.Source, err = mailsource.NewFromConfig(ctx, cfg.Mail)
	if err != nil {
		return nil, fmt.Errorf("open mail source: %w", err)
	}

	g.Narrator = pipeline.New(g.Gateway, formatter, g.Cache,
		pipeline.WithSource(g.Source),
		pipeline.WithHistory(store),
		pipeline.WithLogger(logger),
	)
	ok = true
	return g, nil
}

// Close deletes cached audio and closes the event store.
func (g *Graph) Close() error {
	if g == nil {
		return nil
	}
	if g.Cache != nil {
		g.Cache.Close()
	}
	if g.Store != nil {
		return g.Store.Close()
	}
	return nil
}
