package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/Veraticus/finmail/internal/common"
)

// OAuth2Config holds the Gmail OAuth2 settings.
type OAuth2Config struct {
	ClientID        string
	ClientSecret    string
	CredentialsFile string // Google "installed app" credentials JSON, used when ClientID is empty
	TokenDir        string // Where tokens are saved, one per account
	CallbackAddr    string // Local address for the redirect listener
}

const defaultCallbackAddr = "localhost:8080"

// oauthConfig builds the oauth2 config from client credentials or a credentials file.
func (c OAuth2Config) oauthConfig() (*oauth2.Config, error) {
	addr := c.CallbackAddr
	if addr == "" {
		addr = defaultCallbackAddr
	}
	redirect := "http://" + addr + "/callback"

	if c.ClientID != "" {
		return &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirect,
			Scopes:       []string{gmail.GmailReadonlyScope},
		}, nil
	}

	if c.CredentialsFile == "" {
		return nil, fmt.Errorf("%w: gmail client id or credentials file", common.ErrMissingConfig)
	}
	data, err := os.ReadFile(c.CredentialsFile) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	cfg.RedirectURL = redirect
	return cfg, nil
}

var unsafeTokenChars = regexp.MustCompile(`[^A-Za-z0-9._@-]+`)

// TokenFile returns the token path for an account. The empty account uses token.json.
func (c OAuth2Config) TokenFile(account string) string {
	name := "token.json"
	if account != "" {
		name = "token_" + unsafeTokenChars.ReplaceAllString(strings.ToLower(account), "_") + ".json"
	}
	return filepath.Join(c.TokenDir, name)
}

// AuthenticateInteractive runs the browser OAuth2 flow and saves the token for account.
func AuthenticateInteractive(ctx context.Context, config OAuth2Config, account string) (*oauth2.Token, error) {
	oauthConfig, err := config.oauthConfig()
	if err != nil {
		return nil, err
	}

	addr := config.CallbackAddr
	if addr == "" {
		addr = defaultCallbackAddr
	}

	codeChan := make(chan string, 1)
	errorChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errorChan <- fmt.Errorf("no authorization code received")
			_, _ = fmt.Fprintf(w, `<html><body>
				<h1>Authentication Failed</h1>
				<p>No authorization code received. Please try again.</p>
			</body></html>`)
			return
		}

		codeChan <- code
		_, _ = fmt.Fprintf(w, `<html><body>
			<h1>Authentication Successful!</h1>
			<p>You can close this window and return to the terminal.</p>
		</body></html>`)
	})

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errorChan <- fmt.Errorf("callback server failed: %w", serveErr)
		}
	}()

	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	slog.Info("Gmail authentication required", "account", account)
	slog.Info("Please visit this URL to authenticate", "url", authURL)
	slog.Info("Waiting for authentication...")

	var authCode string
	select {
	case authCode = <-codeChan:
		slog.Info("Received authorization code")
	case err := <-errorChan:
		_ = server.Shutdown(ctx)
		return nil, err
	case <-ctx.Done():
		_ = server.Shutdown(context.Background())
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		_ = server.Shutdown(ctx)
		return nil, fmt.Errorf("authentication timeout - no response received within 5 minutes")
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("Error shutting down callback server", "error", err)
	}

	token, err := oauthConfig.Exchange(ctx, authCode)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	tokenFile := config.TokenFile(account)
	if err := saveToken(tokenFile, token); err != nil {
		slog.Warn("Failed to save token to file", "error", err, "file", tokenFile)
	} else {
		slog.Info("Token saved successfully", "file", tokenFile)
	}

	return token, nil
}

// LoadToken loads a token from file.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	f, err := os.Open(tokenFile) // #nosec G304
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

// saveToken saves a token to file.
func saveToken(path string, token *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	return nil
}

// persistingSource writes refreshed tokens back to disk.
type persistingSource struct {
	base oauth2.TokenSource
	last *oauth2.Token
	path string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}
	if p.last == nil || tok.AccessToken != p.last.AccessToken {
		if err := saveToken(p.path, tok); err != nil {
			slog.Warn("Failed to save refreshed token", "error", err)
		}
		p.last = tok
	}
	return tok, nil
}

// HTTPClient returns an authorized client for account using its saved token.
// A missing token is reported as common.ErrMailboxAuth; run the auth command first.
func HTTPClient(ctx context.Context, config OAuth2Config, account string) (*http.Client, error) {
	oauthConfig, err := config.oauthConfig()
	if err != nil {
		return nil, err
	}

	tokenFile := config.TokenFile(account)
	token, err := LoadToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: no usable token at %s: %v", common.ErrMailboxAuth, tokenFile, err)
	}

	src := &persistingSource{
		base: oauthConfig.TokenSource(ctx, token),
		last: token,
		path: tokenFile,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, src)), nil
}

// Validate checks that some client credentials are configured.
func (c OAuth2Config) Validate() error {
	if c.ClientID == "" && c.CredentialsFile == "" {
		return fmt.Errorf("%w: gmail client id or credentials file", common.ErrMissingConfig)
	}
	if c.ClientID != "" && c.ClientSecret == "" {
		return fmt.Errorf("%w: gmail client secret", common.ErrMissingConfig)
	}
	if c.TokenDir == "" {
		return fmt.Errorf("%w: gmail token directory", common.ErrMissingConfig)
	}
	return nil
}
