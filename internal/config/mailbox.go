package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/mailbox"
)

// Mail backends.
const (
	MailBackendGmail = "gmail"
	MailBackendIMAP  = "imap"
)

// MailBackend returns the configured mailbox backend, gmail by default.
func MailBackend() (string, error) {
	backend := strings.ToLower(viper.GetString("mail.backend"))
	if backend == "" {
		backend = strings.ToLower(os.Getenv("MAIL_BACKEND"))
	}
	switch backend {
	case "", MailBackendGmail:
		return MailBackendGmail, nil
	case MailBackendIMAP:
		return MailBackendIMAP, nil
	default:
		return "", fmt.Errorf("%w: unknown mail backend %q", common.ErrInvalidConfig, backend)
	}
}

// LoadGmailConfig loads Gmail OAuth2 configuration from Viper and environment variables.
// It follows this precedence:
// 1. Viper configuration (from config file or FINMAIL_ env vars)
// 2. Direct environment variables (GMAIL_*)
// 3. Default values
func LoadGmailConfig() (*mailbox.OAuth2Config, error) {
	config := mailbox.OAuth2Config{
		TokenDir:     configPath("tokens"),
		CallbackAddr: "localhost:8080",
	}

	if v := viper.GetString("gmail.client_id"); v != "" {
		config.ClientID = v
	}
	if v := viper.GetString("gmail.client_secret"); v != "" {
		config.ClientSecret = v
	}
	if v := viper.GetString("gmail.credentials_file"); v != "" {
		config.CredentialsFile = ExpandPath(v)
	}
	if v := viper.GetString("gmail.token_dir"); v != "" {
		config.TokenDir = ExpandPath(v)
	}
	if v := viper.GetString("gmail.callback_addr"); v != "" {
		config.CallbackAddr = v
	}

	if config.ClientID == "" {
		config.ClientID = os.Getenv("GMAIL_CLIENT_ID")
	}
	if config.ClientSecret == "" {
		config.ClientSecret = os.Getenv("GMAIL_CLIENT_SECRET")
	}
	if config.CredentialsFile == "" {
		if v := os.Getenv("GMAIL_CREDENTIALS_FILE"); v != "" {
			config.CredentialsFile = ExpandPath(v)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadIMAPConfig loads IMAP configuration. Port defaults to 993 with TLS.
func LoadIMAPConfig() (*mailbox.IMAPConfig, error) {
	config := mailbox.IMAPConfig{
		Mailbox: "INBOX",
		Port:    993,
		Timeout: 30 * time.Second,
		UseTLS:  true,
	}

	if v := viper.GetString("imap.host"); v != "" {
		config.Host = v
	}
	if v := viper.GetString("imap.username"); v != "" {
		config.Username = v
	}
	if v := viper.GetString("imap.password"); v != "" {
		config.Password = v
	}
	if v := viper.GetString("imap.mailbox"); v != "" {
		config.Mailbox = v
	}
	if v := viper.GetInt("imap.port"); v != 0 {
		config.Port = v
	}
	if v := viper.GetDuration("imap.timeout"); v > 0 {
		config.Timeout = v
	}
	if viper.IsSet("imap.tls") {
		config.UseTLS = viper.GetBool("imap.tls")
	}

	if config.Host == "" {
		config.Host = os.Getenv("IMAP_HOST")
	}
	if config.Username == "" {
		config.Username = os.Getenv("IMAP_USERNAME")
	}
	if config.Password == "" {
		config.Password = os.Getenv("IMAP_PASSWORD")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadOutputDir returns the directory batch exports are written to.
func LoadOutputDir() string {
	if v := viper.GetString("output_dir"); v != "" {
		return ExpandPath(v)
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		return ExpandPath(v)
	}
	return "output"
}
