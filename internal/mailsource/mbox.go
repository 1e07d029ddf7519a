package mailsource

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"
)

// Mbox serves messages from a local mbox archive. The archive is re-read on
// every call, so appended messages show up without a restart. The item id is
// the Message-Id without angle brackets, or "mbox-<n>" when it is missing.
type Mbox struct {
	path string
}

func NewMbox(path string) (*Mbox, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	return &Mbox{path: path}, nil
}

// ListRecent treats the end of the archive as the newest mail.
func (m *Mbox) ListRecent(ctx context.Context, max int) ([]Email, error) {
	if max <= 0 {
		max = 10
	}
	var all []Email
	err := m.each(ctx, func(msg *gmail.Message) (bool, error) {
		all = append(all, emailFromMessage(msg, false))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Email, 0, max)
	for i := len(all) - 1; i >= 0 && len(out) < max; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Mbox) Fetch(ctx context.Context, id string) (Email, error) {
	var found *gmail.Message
	err := m.each(ctx, func(msg *gmail.Message) (bool, error) {
		if msg.Id == id {
			found = msg
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return Email{}, err
	}
	if found == nil {
		return Email{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return emailFromMessage(found, true), nil
}

func (m *Mbox) each(ctx context.Context, fn func(*gmail.Message) (bool, error)) error {
	file, err := os.Open(m.path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()

	reader := mboxlib.NewReader(file)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("message %d: %w", idx, err)
		}
		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("message %d read: %w", idx, err)
		}
		msg, err := ParseMessage(raw)
		if err != nil {
			return fmt.Errorf("message %d parse: %w", idx, err)
		}
		if msg.Id == "" {
			msg.Id = fmt.Sprintf("mbox-%d", idx)
		}
		more, err := fn(msg)
		if err != nil || !more {
			return err
		}
	}
}

// ParseMessage converts an RFC 5322 message into the Gmail API tree: one
// MessagePart per MIME entity, leaf bodies base64url encoded after transfer
// and charset decoding.
func ParseMessage(raw []byte) (*gmail.Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, err
	}
	payload, err := convertEntity(entity)
	if err != nil {
		return nil, err
	}

	h := mail.Header{Header: entity.Header}
	id, _ := h.MessageID()
	if subject, err := h.Subject(); err == nil && subject != "" {
		setHeader(payload, "Subject", subject)
	}
	for _, key := range []string{"From", "To"} {
		if text, err := h.Text(key); err == nil && text != "" {
			setHeader(payload, key, text)
		}
	}
	return &gmail.Message{
		Id:           id,
		ThreadId:     id,
		Payload:      payload,
		Snippet:      snippet(payload),
		SizeEstimate: int64(len(raw)),
	}, nil
}

func convertEntity(e *message.Entity) (*gmail.MessagePart, error) {
	mimeType, _, err := e.Header.ContentType()
	if err != nil || mimeType == "" {
		mimeType = "text/plain"
	}
	part := &gmail.MessagePart{MimeType: mimeType, Body: &gmail.MessagePartBody{}}
	fields := e.Header.Fields()
	for fields.Next() {
		part.Headers = append(part.Headers, &gmail.MessagePartHeader{Name: fields.Key(), Value: fields.Value()})
	}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				return nil, fmt.Errorf("read part: %w", err)
			}
			sub, err := convertEntity(child)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, sub)
		}
		return part, nil
	}

	body, err := io.ReadAll(e.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	part.Body.Data = base64.URLEncoding.EncodeToString(body)
	part.Body.Size = int64(len(body))
	return part, nil
}

func setHeader(part *gmail.MessagePart, name, value string) {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			h.Value = value
			return
		}
	}
	part.Headers = append(part.Headers, &gmail.MessagePartHeader{Name: name, Value: value})
}

const snippetLength = 100

func snippet(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		text := strings.Join(strings.Fields(string(data)), " ")
		if r := []rune(text); len(r) > snippetLength {
			text = string(r[:snippetLength])
		}
		return text
	}
	for _, p := range part.Parts {
		if s := snippet(p); s != "" {
			return s
		}
	}
	return ""
}
