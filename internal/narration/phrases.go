package narration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/loqalabs/loqa-narrator/internal/translate"
)

type PhraseKey string

const (
	PhraseFrom         PhraseKey = "from"
	PhraseSubject      PhraseKey = "subject"
	PhraseDate         PhraseKey = "date"
	PhraseSummaryIntro PhraseKey = "summary_intro"
	PhraseKeyPoints    PhraseKey = "key_points"
	PhraseFullContent  PhraseKey = "full_content"
	PhraseLink         PhraseKey = "link"
)

// PhraseKeys lists the template vocabulary in its fixed order.
var PhraseKeys = []PhraseKey{
	PhraseFrom,
	PhraseSubject,
	PhraseDate,
	PhraseSummaryIntro,
	PhraseKeyPoints,
	PhraseFullContent,
	PhraseLink,
}

// ErrPhrases means the template vocabulary could not be translated.
var ErrPhrases = errors.New("translate narration phrases")

// PhraseSet maps every PhraseKey to its text in one language.
type PhraseSet map[PhraseKey]string

func DefaultPhrases() PhraseSet {
	return PhraseSet{
		PhraseFrom:         "This email is from",
		PhraseSubject:      "The subject is",
		PhraseDate:         "Sent on",
		PhraseSummaryIntro: "Let me summarize this email for you.",
		PhraseKeyPoints:    "The main points are:",
		PhraseFullContent:  "Here is the complete message:",
		PhraseLink:         "link",
	}
}

func (p PhraseSet) Get(key PhraseKey) string { return p[key] }

func (p PhraseSet) clone() PhraseSet {
	out := make(PhraseSet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Translator is the slice of the translation gateway the formatter needs.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) translate.Result
}

// translatePhrases issues one gateway call per phrase, in key order. Any
// failure aborts: a narration cannot be assembled without its vocabulary.
func translatePhrases(ctx context.Context, tr Translator, source PhraseSet, language string) (PhraseSet, error) {
	out := make(PhraseSet, len(source))
	for _, key := range PhraseKeys {
		res := tr.Translate(ctx, source[key], language)
		if res.Failed() {
			return nil, fmt.Errorf("%w: %s: %w", ErrPhrases, key, res.Err)
		}
		out[key] = strings.TrimSpace(res.Text)
	}
	return out, nil
}
