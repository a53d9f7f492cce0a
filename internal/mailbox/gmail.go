package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/service"
)

const gmailUser = "me"

// Gmail searches a mailbox through the Gmail API.
type Gmail struct {
	svc    *gmail.Service
	logger *slog.Logger
}

var _ service.Mailbox = (*Gmail)(nil)

// NewGmail creates a Gmail mailbox. Callers pass option.WithHTTPClient with an authorized client.
func NewGmail(ctx context.Context, opts ...option.ClientOption) (*Gmail, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return &Gmail{svc: svc, logger: slog.Default()}, nil
}

// Search lists messages matching a Gmail query and fetches each one. Messages that fail to
// fetch are skipped.
func (g *Gmail) Search(ctx context.Context, query string, maxResults int) ([]model.Email, error) {
	query, maxResults = normalize(query, maxResults)

	list, err := g.svc.Users.Messages.List(gmailUser).
		Q(query).
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMailboxSearch, err)
	}

	emails := make([]model.Email, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := g.svc.Users.Messages.Get(gmailUser, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("Failed to fetch message", "id", ref.Id, "error", err)
			continue
		}
		emails = append(emails, parseGmailMessage(msg))
	}

	g.logger.Info("Gmail search finished", "query", query, "found", len(emails))
	return emails, nil
}

func parseGmailMessage(msg *gmail.Message) model.Email {
	email := model.Email{ID: msg.Id}
	if msg.Payload == nil {
		return email
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			email.Subject = h.Value
		case "from":
			email.From = h.Value
		case "date":
			email.Date = h.Value
		}
	}
	email.Body = gmailBody(msg.Payload)
	return email
}

// gmailBody prefers the first text/plain part and falls back to stripped text/html.
func gmailBody(part *gmail.MessagePart) string {
	if text, ok := findPart(part, "text/plain"); ok {
		return text
	}
	if doc, ok := findPart(part, "text/html"); ok {
		return HTMLToText(doc)
	}
	if part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}
	return ""
}

func findPart(part *gmail.MessagePart, mimeType string) (string, bool) {
	if part == nil {
		return "", false
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data), true
	}
	for _, child := range part.Parts {
		if text, ok := findPart(child, mimeType); ok {
			return text, true
		}
	}
	return "", false
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
		if err != nil {
			return ""
		}
	}
	return string(b)
}

// GmailOpener opens a Gmail mailbox per account from saved OAuth tokens.
type GmailOpener struct {
	Config OAuth2Config
	// Options are appended after the authorized HTTP client, so tests can point at a fake endpoint.
	Options []option.ClientOption
	// Client overrides the authorized HTTP client when set.
	Client *http.Client
}

// Open loads the account token and builds a Gmail mailbox.
func (o GmailOpener) Open(ctx context.Context, account string) (service.Mailbox, error) {
	httpClient := o.Client
	if httpClient == nil {
		var err error
		httpClient, err = HTTPClient(ctx, o.Config, account)
		if err != nil {
			return nil, err
		}
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, o.Options...)
	return NewGmail(ctx, opts...)
}
