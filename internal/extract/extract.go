// Package extract turns Gmail-shaped message trees into a plain-text body.
package extract

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"google.golang.org/api/gmail/v1"

	"github.com/loqalabs/loqa-narrator/internal/logging"
)

// DecodeErrorText replaces the body when a payload cannot be decoded.
const DecodeErrorText = "Error decoding email content"

// ErrDecode marks a payload that is not valid base64url or not valid UTF-8.
var ErrDecode = errors.New("decode email body")

// Result is the outcome of one extraction. Text is always usable; Warning is
// set when Text is a fallback rather than the decoded content.
type Result struct {
	Text    string
	Warning error
}

// Degraded reports whether extraction fell back to the sentinel text.
func (r Result) Degraded() bool { return r.Warning != nil }

type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Extractor{logger: logger.With(slog.String("component", "extractor"))}
}

// Body returns the best-effort plain-text body of msg. It never fails.
func (e *Extractor) Body(msg *gmail.Message) string {
	return e.Extract(msg).Text
}

// Extract prefers a text/plain part, falls back to a stripped text/html part,
// and handles single-body messages by sniffing for markup.
func (e *Extractor) Extract(msg *gmail.Message) Result {
	if msg == nil || msg.Payload == nil {
		return Result{}
	}
	return e.ExtractPart(msg.Payload)
}

func (e *Extractor) ExtractPart(payload *gmail.MessagePart) Result {
	if payload == nil {
		return Result{}
	}

	if len(payload.Parts) > 0 {
		if part := findPart(payload.Parts, "text/plain"); part != nil {
			text, err := decodeBody(part.Body)
			if err != nil {
				return e.decodeFailure(err, part.MimeType)
			}
			if text != "" {
				return Result{Text: text}
			}
		}
		if part := findPart(payload.Parts, "text/html"); part != nil {
			raw, err := decodeBody(part.Body)
			if err != nil {
				return e.decodeFailure(err, part.MimeType)
			}
			return Result{Text: HTMLToText(raw)}
		}
		return Result{}
	}

	if payload.Body == nil || payload.Body.Data == "" {
		return Result{}
	}
	raw, err := decodeBody(payload.Body)
	if err != nil {
		return e.decodeFailure(err, payload.MimeType)
	}
	if strings.Contains(raw, "<") && strings.Contains(raw, ">") {
		return Result{Text: HTMLToText(raw)}
	}
	return Result{Text: raw}
}

func (e *Extractor) decodeFailure(err error, mimeType string) Result {
	e.logger.Error("error decoding email body", slog.String("mime_type", mimeType), slogError(err))
	return Result{Text: DecodeErrorText, Warning: err}
}

// findPart walks the tree depth-first in document order and returns the first
// part with the requested MIME type.
func findPart(parts []*gmail.MessagePart, mimeType string) *gmail.MessagePart {
	for _, part := range parts {
		if part == nil {
			continue
		}
		if strings.EqualFold(part.MimeType, mimeType) {
			return part
		}
		if len(part.Parts) > 0 {
			if found := findPart(part.Parts, mimeType); found != nil {
				return found
			}
		}
	}
	return nil
}

func decodeBody(body *gmail.MessagePartBody) (string, error) {
	if body == nil {
		return "", nil
	}
	return Decode(body.Data)
}

// Decode decodes a base64url payload, padded or not, into UTF-8 text.
func Decode(data string) (string, error) {
	if data == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		var rawErr error
		raw, rawErr = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if rawErr != nil {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrDecode)
	}
	return string(raw), nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
