package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/hyperifyio/newsdigest/internal/content"
	"github.com/hyperifyio/newsdigest/internal/normalize"
)

// ErrNoToken means no stored OAuth token exists yet; run the auth flow first.
var ErrNoToken = errors.New("gmail token not found")

// Gmail reads messages through the Gmail API as the authenticated user.
type Gmail struct {
	Service *gmail.Service
	User    string
}

// OAuthConfig loads the installed-app client secrets with a read-only scope.
func OAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return cfg, nil
}

// NewGmail builds a source from a client secrets file and a stored token.
func NewGmail(ctx context.Context, credentialsPath, tokenPath string) (*Gmail, error) {
	cfg, err := OAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}
	tok, err := loadToken(tokenPath)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &Gmail{Service: svc, User: "me"}, nil
}

// ExchangeToken trades an authorization code for a token and stores it.
func ExchangeToken(ctx context.Context, cfg *oauth2.Config, code, tokenPath string) error {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath, b, 0o600)
}

func loadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return &tok, nil
}

func (g *Gmail) Name() string { return "gmail" }

func (g *Gmail) QueryMessages(ctx context.Context, query string, max int) ([]string, error) {
	call := g.Service.Users.Messages.List(g.user()).Q(query).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (g *Gmail) GetMessage(ctx context.Context, id string) (content.Message, error) {
	m, err := g.Service.Users.Messages.Get(g.user(), id).Format("full").Context(ctx).Do()
	if err != nil {
		return content.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	msg := FromGmail(m)
	log.Debug().Str("id", id).Str("subject", msg.Subject).Int("links", len(msg.Links)).Msg("message loaded")
	return msg, nil
}

func (g *Gmail) user() string {
	if g.User == "" {
		return "me"
	}
	return g.User
}

// FromGmail converts an API message. HTML parts win over plain text; the body
// is the normalized HTML when there is one.
func FromGmail(m *gmail.Message) content.Message {
	msg := content.Message{ID: m.Id, Subject: "No Subject", Sender: "Unknown Sender"}
	if m.InternalDate > 0 {
		msg.ReceivedAt = time.UnixMilli(m.InternalDate).UTC()
	}
	if m.Payload == nil {
		return msg
	}
	msg.Subject = header(m.Payload.Headers, "Subject", msg.Subject)
	msg.Sender = header(m.Payload.Headers, "From", msg.Sender)
	htmlBody, plain := bodies(m.Payload)
	msg.HTML = htmlBody
	if htmlBody != "" {
		msg.Body = normalize.Normalize(htmlBody)
		msg.Links = normalize.ExtractLinks(htmlBody)
	} else {
		msg.Body = plain
	}
	if len(msg.Links) == 0 && plain != "" {
		msg.Links = normalize.ExtractLinks(plain)
	}
	if len(msg.Links) == 0 && msg.Body != "" {
		msg.Links = normalize.ExtractLinks(msg.Body)
	}
	return msg
}
