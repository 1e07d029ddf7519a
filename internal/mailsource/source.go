// Package mailsource supplies message trees in the Gmail API shape, from the
// Gmail API itself or from a local mbox archive.
package mailsource

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

var ErrNotFound = errors.New("message not found")

const (
	DefaultSubject = "No Subject"
	Unknown        = "Unknown"
)

// Email is one message with its commonly used headers resolved. Message is
// nil for listings.
type Email struct {
	ID       string
	ThreadID string
	From     string
	To       string
	Subject  string
	Date     string
	Snippet  string
	Message  *gmail.Message
}

type Source interface {
	// ListRecent returns up to max inbox messages, newest first, without bodies.
	ListRecent(ctx context.Context, max int) ([]Email, error)
	// Fetch returns the full message tree for id.
	Fetch(ctx context.Context, id string) (Email, error)
}

func NewFromConfig(ctx context.Context, cfg config.MailConfig) (Source, error) {
	switch cfg.Source {
	case "gmail", "":
		return NewGmail(ctx, cfg.CredentialsPath, cfg.TokenPath)
	case "mbox":
		return NewMbox(cfg.MboxPath)
	default:
		return nil, fmt.Errorf("unsupported mail source %q", cfg.Source)
	}
}

// Header returns the first header named name, or fallback.
func Header(msg *gmail.Message, name, fallback string) string {
	if msg == nil || msg.Payload == nil {
		return fallback
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return fallback
}

func emailFromMessage(msg *gmail.Message, withBody bool) Email {
	e := Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		From:     Header(msg, "From", Unknown),
		To:       Header(msg, "To", Unknown),
		Subject:  Header(msg, "Subject", DefaultSubject),
		Date:     Header(msg, "Date", Unknown),
		Snippet:  msg.Snippet,
	}
	if withBody {
		e.Message = msg
	}
	return e
}
