package mailsource

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

const archive = `From alice@example.com Mon Jan  1 10:00:00 2024
From: Alice <alice@example.com>
To: bob@example.com
Subject: First
Message-Id: <first@example.com>
Content-Type: text/plain; charset=utf-8

Plain hello from Alice.

From carol@example.com Tue Jan  2 10:00:00 2024
From: Carol <carol@example.com>
Subject: =?utf-8?q?Caf=C3=A9_news?=
Message-Id: <second@example.com>
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=iso-8859-1
Content-Transfer-Encoding: quoted-printable

Caf=E9 opens today.
--b1
Content-Type: text/html; charset=utf-8

<p>Caf&eacute; opens today.</p>
--b1--

From dave@example.com Wed Jan  3 10:00:00 2024
From: dave@example.com
Content-Type: text/plain

No id and no subject here.
`

func writeArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inbox.mbox")
	if err := os.WriteFile(path, []byte(archive), 0o644); err != nil {
		t.Fatalf("write mbox: %v", err)
	}
	return path
}

func decodePart(t *testing.T, p *gmail.MessagePart) string {
	t.Helper()
	data, err := base64.URLEncoding.DecodeString(p.Body.Data)
	if err != nil {
		t.Fatalf("decode part: %v", err)
	}
	return string(data)
}

func TestMboxListRecent(t *testing.T) {
	src, err := NewMbox(writeArchive(t))
	if err != nil {
		t.Fatalf("new mbox: %v", err)
	}
	emails, err := src.ListRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(emails))
	}
	if emails[0].ID != "mbox-2" || emails[0].Subject != DefaultSubject || emails[0].Date != Unknown {
		t.Fatalf("unexpected newest email %+v", emails[0])
	}
	if emails[1].ID != "second@example.com" || emails[1].Subject != "Café news" {
		t.Fatalf("unexpected second email %+v", emails[1])
	}
	if emails[1].Message != nil {
		t.Fatal("listing should not carry bodies")
	}
}

func TestParseMessageMissingSubject(t *testing.T) {
	msg, err := ParseMessage([]byte("From: dave@example.com\r\nContent-Type: text/plain\r\n\r\nNo subject here."))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") {
			t.Fatalf("unexpected subject header %q", h.Value)
		}
	}
	if got := emailFromMessage(msg, false).Subject; got != DefaultSubject {
		t.Fatalf("want %q, got %q", DefaultSubject, got)
	}
}

func TestMboxFetchMultipart(t *testing.T) {
	src, _ := NewMbox(writeArchive(t))
	email, err := src.Fetch(context.Background(), "second@example.com")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	payload := email.Message.Payload
	if payload.MimeType != "multipart/alternative" || len(payload.Parts) != 2 {
		t.Fatalf("unexpected tree %+v", payload)
	}
	if got := decodePart(t, payload.Parts[0]); strings.TrimSpace(got) != "Café opens today." {
		t.Fatalf("unexpected plain part %q", got)
	}
	if payload.Parts[1].MimeType != "text/html" {
		t.Fatalf("unexpected second part %s", payload.Parts[1].MimeType)
	}
	if email.From != "Carol <carol@example.com>" {
		t.Fatalf("unexpected from %q", email.From)
	}
	if !strings.HasPrefix(email.Message.Snippet, "Café opens today") {
		t.Fatalf("unexpected snippet %q", email.Message.Snippet)
	}
}

func TestMboxFetchMissing(t *testing.T) {
	src, _ := NewMbox(writeArchive(t))
	if _, err := src.Fetch(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := NewMbox(" "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestHeaderFallback(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{{Name: "subject", Value: "Hi"}}}}
	if Header(msg, "Subject", DefaultSubject) != "Hi" {
		t.Fatal("expected case-insensitive match")
	}
	if Header(msg, "From", Unknown) != Unknown || Header(nil, "From", "x") != "x" {
		t.Fatal("expected fallback")
	}
}

func TestGmailSource(t *testing.T) {
	full := &gmail.Message{
		Id: "abc",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers:  []*gmail.MessagePartHeader{{Name: "From", Value: "a@b.c"}, {Name: "Subject", Value: "Hello"}},
			Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("hi"))},
		},
	}
	var gotLabel, gotFormat string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			gotLabel = r.URL.Query().Get("labelIds")
			_ = json.NewEncoder(w).Encode(gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "abc"}}})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/abc"):
			gotFormat = r.URL.Query().Get("format")
			_ = json.NewEncoder(w).Encode(full)
		default:
			http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
		}
	}))
	defer ts.Close()

	src, err := NewGmailWithOptions(context.Background(), option.WithEndpoint(ts.URL+"/"), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new gmail: %v", err)
	}
	emails, err := src.ListRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotLabel != "INBOX" || gotFormat != "metadata" || len(emails) != 1 || emails[0].Subject != "Hello" {
		t.Fatalf("unexpected listing %+v (label %q format %q)", emails, gotLabel, gotFormat)
	}
	email, err := src.Fetch(context.Background(), "abc")
	if err != nil || email.Message == nil || email.From != "a@b.c" || gotFormat != "full" {
		t.Fatalf("unexpected fetch %+v %v", email, err)
	}
	if _, err := src.Fetch(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	if _, err := NewFromConfig(context.Background(), config.MailConfig{Source: "imap"}); err == nil {
		t.Fatal("expected unsupported source error")
	}
	if _, err := NewFromConfig(context.Background(), config.MailConfig{Source: "gmail", CredentialsPath: filepath.Join(t.TempDir(), "none.json")}); err == nil {
		t.Fatal("expected missing credentials error")
	}
	src, err := NewFromConfig(context.Background(), config.MailConfig{Source: "mbox", MboxPath: writeArchive(t)})
	if err != nil {
		t.Fatalf("mbox: %v", err)
	}
	if _, ok := src.(*Mbox); !ok {
		t.Fatalf("unexpected source type %T", src)
	}
}
