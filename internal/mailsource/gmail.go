package mailsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const inboxLabel = "INBOX"

// Gmail reads messages through the Gmail API for the authorized user.
type Gmail struct {
	srv *gmail.Service
}

// NewGmail builds a read-only Gmail client from an OAuth client credentials
// file and an already issued token file. It never starts an OAuth flow.
func NewGmail(ctx context.Context, credentialsPath, tokenPath string) (*Gmail, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", credentialsPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("cannot parse %s: %w", credentialsPath, err)
	}
	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read token %s: %w", tokenPath, err)
	}
	return NewGmailWithOptions(ctx, option.WithTokenSource(cfg.TokenSource(ctx, tok)))
}

// NewGmailWithOptions builds the client from raw API options.
func NewGmailWithOptions(ctx context.Context, opts ...option.ClientOption) (*Gmail, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create gmail service: %w", err)
	}
	return &Gmail{srv: srv}, nil
}

func (g *Gmail) ListRecent(ctx context.Context, max int) ([]Email, error) {
	if max <= 0 {
		max = 10
	}
	list, err := g.srv.Users.Messages.List("me").
		LabelIds(inboxLabel).
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	emails := make([]Email, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg, err := g.srv.Users.Messages.Get("me", m.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", m.Id, err)
		}
		emails = append(emails, emailFromMessage(msg, false))
	}
	return emails, nil
}

func (g *Gmail) Fetch(ctx context.Context, id string) (Email, error) {
	msg, err := g.srv.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return Email{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Email{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return emailFromMessage(msg, true), nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}
