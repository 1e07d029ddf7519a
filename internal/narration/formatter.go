// Package narration turns an email and its translation into a short script
// for speech synthesis.
package narration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loqalabs/loqa-narrator/internal/logging"
)

// ErrSummaryDegraded is recorded when the summary had to fall back.
var ErrSummaryDegraded = errors.New("narration summary degraded")

// SourceLanguage is the language email bodies are summarized in.
const SourceLanguage = "English"

// Input is everything one narration needs.
type Input struct {
	OriginalBody    string
	OriginalSubject string
	TranslatedBody  string
	From            string
	Language        string
}

// Script is the text handed to speech synthesis. It is never empty.
type Script struct {
	Text string
}

// Narration is the formatter's full output. Warnings lists every step that
// degraded to a fallback value.
type Narration struct {
	Script      Script
	DisplayBody string
	Summary     string
	Subject     string
	Phrases     PhraseSet
	Warnings    []error
}

func (n Narration) Degraded() bool { return len(n.Warnings) > 0 }

type Formatter struct {
	tr             Translator
	phrases        PhraseSet
	sourceLanguage string
	logger         *slog.Logger
}

type Option func(*Formatter)

func WithPhrases(p PhraseSet) Option {
	return func(f *Formatter) {
		merged := DefaultPhrases()
		for k, v := range p {
			if v != "" {
				merged[k] = v
			}
		}
		f.phrases = merged
	}
}

func WithSourceLanguage(lang string) Option {
	return func(f *Formatter) {
		if lang != "" {
			f.sourceLanguage = lang
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Formatter) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFormatter(tr Translator, opts ...Option) *Formatter {
	f := &Formatter{
		tr:             tr,
		phrases:        DefaultPhrases(),
		sourceLanguage: SourceLanguage,
		logger:         logging.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(slog.String("component", "narration-formatter"))
	return f
}

// IsSourceLanguage reports whether language needs no translation. An empty
// language counts as the source language.
func (f *Formatter) IsSourceLanguage(language string) bool {
	return f.sameLanguage(language)
}

func (f *Formatter) sameLanguage(language string) bool {
	language = strings.TrimSpace(language)
	return language == "" || strings.EqualFold(language, f.sourceLanguage)
}

// Phrases returns the template vocabulary in language.
func (f *Formatter) Phrases(ctx context.Context, language string) (PhraseSet, error) {
	if f.sameLanguage(language) {
		return f.phrases.clone(), nil
	}
	return translatePhrases(ctx, f.tr, f.phrases, language)
}

// Format builds the narration. Only a failure to translate the phrase set is
// returned as an error; summary problems degrade the output instead.
func (f *Formatter) Format(ctx context.Context, in Input) (Narration, error) {
	phrases, err := f.Phrases(ctx, in.Language)
	if err != nil {
		return Narration{}, fmt.Errorf("format narration: %w", err)
	}

	displayBody := CleanBody(in.TranslatedBody, phrases[PhraseLink])
	cleanedOriginal := CleanBody(in.OriginalBody, "link")

	summary, subject, warning := f.summarize(ctx, cleanedOriginal, in.OriginalSubject, in.Language)

	n := Narration{
		Script:      Script{Text: assemble(phrases, in.From, subject, summary)},
		DisplayBody: displayBody,
		Summary:     summary,
		Subject:     subject,
		Phrases:     phrases,
	}
	if warning != nil {
		n.Warnings = append(n.Warnings, warning)
	}
	return n, nil
}

// EnglishSummary is the subject followed by the first two key sentences of body.
func EnglishSummary(body, subject string) string {
	parts := make([]string, 0, 3)
	if subject != "" {
		parts = append(parts, subject)
	}
	sentences := KeySentences(body)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	parts = append(parts, sentences...)
	return joinSentences(parts)
}

func (f *Formatter) summarize(ctx context.Context, body, subject, language string) (string, string, error) {
	english := EnglishSummary(body, subject)
	if f.sameLanguage(language) {
		return english, subject, nil
	}

	summaryRes := f.tr.Translate(ctx, english, language)
	subjectRes := f.tr.Translate(ctx, subject, language)
	if !summaryRes.Failed() && !subjectRes.Failed() {
		return strings.TrimSpace(summaryRes.Text), strings.TrimSpace(subjectRes.Text), nil
	}
	cause := errors.Join(summaryRes.Err, subjectRes.Err)
	f.logger.Error("error generating summary", slogError(cause))

	fallback := leadingFragments(body)
	if fallback == "" {
		return "", subject, fmt.Errorf("%w: %w", ErrSummaryDegraded, cause)
	}
	res := f.tr.Translate(ctx, fallback, language)
	if res.Failed() {
		f.logger.Error("error in fallback summary generation", slogError(res.Err))
		return "", subject, fmt.Errorf("%w: %w", ErrSummaryDegraded, errors.Join(cause, res.Err))
	}
	return strings.TrimSpace(res.Text), subject, fmt.Errorf("%w: %w", ErrSummaryDegraded, cause)
}

// leadingFragments is the first two period-delimited fragments of body.
func leadingFragments(body string) string {
	fragments := strings.Split(body, ".")
	if len(fragments) > 2 {
		fragments = fragments[:2]
	}
	return joinSentences(fragments)
}

func assemble(p PhraseSet, from, subject, summary string) string {
	script := fmt.Sprintf("%s %s. %s %s. %s",
		p[PhraseFrom], from,
		p[PhraseSubject], subject,
		p[PhraseSummaryIntro])
	if summary != "" {
		script += " " + summary
	}
	return script
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
