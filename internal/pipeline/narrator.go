// Package pipeline runs one narration request end to end: fetch, extract,
// translate, format, then hand the script to the audio cache. Each stage
// finishes before the next starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/loqalabs/loqa-narrator/internal/audiocache"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/extract"
	"github.com/loqalabs/loqa-narrator/internal/logging"
	"github.com/loqalabs/loqa-narrator/internal/mailsource"
	"github.com/loqalabs/loqa-narrator/internal/narration"
	"github.com/loqalabs/loqa-narrator/internal/translate"
)

var tracer = otel.Tracer("github.com/loqalabs/loqa-narrator/pipeline")

var (
	ErrNoSource = errors.New("no message source configured")
	ErrAudio    = errors.New("audio generation failed")
)

// Mode selects what happens to the script once it is built.
type Mode string

const (
	// ModeScript only builds the script.
	ModeScript Mode = "script"
	// ModeGenerate caches the audio for later playback.
	ModeGenerate Mode = "generate"
	// ModeSpeak plays the audio immediately without caching it.
	ModeSpeak Mode = "speak"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeGenerate, "":
		return ModeGenerate, nil
	case ModeSpeak:
		return ModeSpeak, nil
	case ModeScript:
		return ModeScript, nil
	default:
		return "", fmt.Errorf("unknown narration mode %q", s)
	}
}

type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) translate.Result
	DefaultLanguage() string
}

type AudioCache interface {
	Generate(ctx context.Context, key audiocache.Key, script narration.Script) bool
	SpeakNow(ctx context.Context, script narration.Script, key audiocache.Key) bool
	Play(ctx context.Context, key audiocache.Key) bool
	Cleanup(ctx context.Context, key audiocache.Key) bool
}

// History stores one row per narrated item and language.
type History interface {
	AppendNarration(ctx context.Context, n eventstore.Narration) error
}

// Translation is a fetched message with its translated body.
type Translation struct {
	Email          mailsource.Email
	Body           string
	TranslatedBody string
	Language       string
	Warnings       []string
}

// Result describes one narration.
type Result struct {
	ItemID      string
	Language    string
	From        string
	Subject     string
	DisplayBody string
	Summary     string
	Script      string
	Mode        Mode
	Audio       bool
	Warnings    []string
}

type Narrator struct {
	source     mailsource.Source
	extractor  *extract.Extractor
	translator Translator
	formatter  *narration.Formatter
	cache      AudioCache
	history    History
	logger     *slog.Logger
}

type Option func(*Narrator)

func WithSource(src mailsource.Source) Option { return func(n *Narrator) { n.source = src } }

func WithHistory(h History) Option { return func(n *Narrator) { n.history = h } }

func WithLogger(l *slog.Logger) Option {
	return func(n *Narrator) {
		if l != nil {
			n.logger = l
		}
	}
}

// New wires the stages. formatter may be nil, in which case one is built over
// translator with the default phrases.
func New(translator Translator, formatter *narration.Formatter, cache AudioCache, opts ...Option) *Narrator {
	n := &Narrator{
		translator: translator,
		formatter:  formatter,
		cache:      cache,
		logger:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(slog.String("component", "narrator"))
	n.extractor = extract.New(n.logger)
	if n.formatter == nil {
		n.formatter = narration.NewFormatter(translator, narration.WithLogger(n.logger))
	}
	return n
}

// Recent lists the newest messages of the configured source.
func (n *Narrator) Recent(ctx context.Context, max int) ([]mailsource.Email, error) {
	if n.source == nil {
		return nil, ErrNoSource
	}
	return n.source.ListRecent(ctx, max)
}

// Translate fetches itemID and translates its extracted body. An empty
// language selects the translator's default.
func (n *Narrator) Translate(ctx context.Context, itemID, language string) (Translation, error) {
	email, err := n.fetch(ctx, itemID)
	if err != nil {
		return Translation{}, err
	}
	return n.TranslateEmail(ctx, email, language), nil
}

// TranslateEmail never fails: extraction and translation problems come back
// as fallback text plus warnings. A body already in the source language is
// passed through untranslated.
func (n *Narrator) TranslateEmail(ctx context.Context, email mailsource.Email, language string) Translation {
	if language == "" {
		language = n.translator.DefaultLanguage()
	}
	out := Translation{Email: email, Language: language}

	body := n.extractor.Extract(email.Message)
	if body.Degraded() {
		out.Warnings = append(out.Warnings, body.Warning.Error())
	}
	out.Body = body.Text
	if n.formatter.IsSourceLanguage(language) {
		out.TranslatedBody = body.Text
		return out
	}

	res := n.translator.Translate(ctx, body.Text, language)
	if res.Failed() {
		out.Warnings = append(out.Warnings, res.Err.Error())
	}
	out.TranslatedBody = res.Text
	return out
}

// Narrate fetches, translates and narrates itemID in language.
func (n *Narrator) Narrate(ctx context.Context, itemID, language string, mode Mode) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "narrator.narrate")
	span.SetAttributes(
		attribute.String("narrator.item_id", itemID),
		attribute.String("narrator.language", language),
		attribute.String("narrator.mode", string(mode)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	email, err := n.fetch(ctx, itemID)
	if err != nil {
		return Result{}, err
	}
	return n.NarrateEmail(ctx, n.TranslateEmail(ctx, email, language), mode)
}

// NarrateEmail formats an already translated message and produces audio as
// mode asks. A failed phrase translation or failed audio is an error; other
// problems are reported in Warnings.
func (n *Narrator) NarrateEmail(ctx context.Context, tr Translation, mode Mode) (Result, error) {
	out, err := n.formatter.Format(ctx, narration.Input{
		OriginalBody:    tr.Body,
		OriginalSubject: tr.Email.Subject,
		TranslatedBody:  tr.TranslatedBody,
		From:            tr.Email.From,
		Language:        tr.Language,
	})
	if err != nil {
		return Result{}, fmt.Errorf("narrate %s: %w", tr.Email.ID, err)
	}

	res := Result{
		ItemID:      tr.Email.ID,
		Language:    tr.Language,
		From:        tr.Email.From,
		Subject:     out.Subject,
		DisplayBody: out.DisplayBody,
		Summary:     out.Summary,
		Script:      out.Script.Text,
		Mode:        mode,
		Warnings:    append([]string(nil), tr.Warnings...),
	}
	for _, w := range out.Warnings {
		res.Warnings = append(res.Warnings, w.Error())
	}
	n.remember(ctx, res)

	key := audiocache.Key{ItemID: tr.Email.ID, Language: tr.Language}
	switch mode {
	case ModeScript:
		return res, nil
	case ModeSpeak:
		res.Audio = n.cache.SpeakNow(ctx, out.Script, key)
	default:
		res.Audio = n.cache.Generate(ctx, key, out.Script)
	}
	if !res.Audio {
		return res, fmt.Errorf("%w: %s/%s", ErrAudio, key.ItemID, key.Language)
	}
	return res, nil
}

// Play plays the cached narration of itemID in language and deletes it.
func (n *Narrator) Play(ctx context.Context, itemID, language string) bool {
	return n.cache.Play(ctx, audiocache.Key{ItemID: itemID, Language: language})
}

// Cleanup drops the cached narration of itemID in language.
func (n *Narrator) Cleanup(ctx context.Context, itemID, language string) bool {
	return n.cache.Cleanup(ctx, audiocache.Key{ItemID: itemID, Language: language})
}

func (n *Narrator) fetch(ctx context.Context, itemID string) (mailsource.Email, error) {
	if n.source == nil {
		return mailsource.Email{}, ErrNoSource
	}
	email, err := n.source.Fetch(ctx, itemID)
	if err != nil {
		return mailsource.Email{}, fmt.Errorf("fetch %s: %w", itemID, err)
	}
	return email, nil
}

func (n *Narrator) remember(ctx context.Context, res Result) {
	if n.history == nil {
		return
	}
	err := n.history.AppendNarration(ctx, eventstore.Narration{
		ItemID:   res.ItemID,
		Language: res.Language,
		From:     res.From,
		Subject:  res.Subject,
		Degraded: len(res.Warnings) > 0,
	})
	if err != nil {
		n.logger.Warn("failed to record narration", slog.String("item_id", res.ItemID), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
