package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // decode non-UTF-8 bodies

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/model"
	"github.com/Veraticus/finmail/internal/service"
)

// IMAPConfig configures an IMAP mailbox.
type IMAPConfig struct {
	Host     string
	Username string
	Password string
	Mailbox  string
	Port     int
	Timeout  time.Duration
	UseTLS   bool
}

// IMAP searches a mailbox over IMAP.
type IMAP struct {
	logger *slog.Logger
	cfg    IMAPConfig
}

var _ service.Mailbox = (*IMAP)(nil)

// NewIMAP creates an IMAP mailbox. Connections are opened per search.
func NewIMAP(cfg IMAPConfig) *IMAP {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &IMAP{cfg: cfg, logger: slog.Default()}
}

// Open implements service.MailboxOpener for a single configured account.
func (m *IMAP) Open(_ context.Context, _ string) (service.Mailbox, error) {
	return m, nil
}

func (m *IMAP) connect() (*client.Client, error) {
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}

	var (
		c   *client.Client
		err error
	)
	if m.cfg.UseTLS {
		c, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12})
	} else {
		c, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", common.ErrMailboxSearch, addr, err)
	}
	c.Timeout = m.cfg.Timeout

	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("%w: %v", common.ErrMailboxAuth, err)
	}
	return c, nil
}

// Search translates the Gmail-style query into IMAP criteria and returns the newest
// maxResults matching messages, newest first.
func (m *IMAP) Search(ctx context.Context, query string, maxResults int) ([]model.Email, error) {
	query, maxResults = normalize(query, maxResults)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = c.Logout() }()

	// go-imap v1 has no context support; dropping the connection unblocks any pending command.
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if _, err := c.Select(m.cfg.Mailbox, true); err != nil {
		return nil, m.searchErr(ctx, fmt.Errorf("select %s: %w", m.cfg.Mailbox, err))
	}

	uids, err := c.UidSearch(TranslateQuery(query))
	if err != nil {
		return nil, m.searchErr(ctx, err)
	}
	if len(uids) == 0 {
		return []model.Email{}, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if len(uids) > maxResults {
		uids = uids[:maxResults]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var emails []model.Email
	for msg := range messages {
		if msg == nil {
			continue
		}
		email, parseErr := parseIMAPMessage(msg, msg.GetBody(section))
		if parseErr != nil {
			m.logger.Warn("Skipping unparsable message", "uid", msg.Uid, "error", parseErr)
			continue
		}
		emails = append(emails, email)
	}
	if err := <-done; err != nil {
		return nil, m.searchErr(ctx, fmt.Errorf("fetch: %w", err))
	}

	sort.SliceStable(emails, func(i, j int) bool { return emails[i].ID > emails[j].ID })
	m.logger.Info("IMAP search finished", "query", query, "found", len(emails))
	return emails, nil
}

func (m *IMAP) searchErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", common.ErrMailboxSearch, err)
}

// parseIMAPMessage builds an email from the envelope and the raw RFC 822 body. The id is the
// zero-padded UID so ids sort in arrival order.
func parseIMAPMessage(msg *imap.Message, raw io.Reader) (model.Email, error) {
	email := model.Email{ID: fmt.Sprintf("imap-%010d", msg.Uid)}
	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			email.From = formatAddress(msg.Envelope.From[0])
		}
		if !msg.Envelope.Date.IsZero() {
			email.Date = msg.Envelope.Date.Format(time.RFC1123Z)
		}
	}
	if raw == nil {
		return email, nil
	}

	entity, err := message.Read(raw)
	if err != nil && !message.IsUnknownCharset(err) {
		return email, fmt.Errorf("failed to read message: %w", err)
	}
	if email.Subject == "" {
		email.Subject = entity.Header.Get("Subject")
	}
	if email.Date == "" {
		email.Date = entity.Header.Get("Date")
	}

	var plain, htmlBody string
	walkEntity(entity, &plain, &htmlBody)
	switch {
	case plain != "":
		email.Body = plain
	case htmlBody != "":
		email.Body = HTMLToText(htmlBody)
	}
	return email, nil
}

// walkEntity keeps the first text/plain and text/html parts of a MIME tree.
func walkEntity(entity *message.Entity, plain, htmlBody *string) {
	mediaType, _, _ := entity.Header.ContentType()

	if mr := entity.MultipartReader(); mr != nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			walkEntity(part, plain, htmlBody)
		}
		return
	}

	disposition, _, _ := entity.Header.ContentDisposition()
	if disposition == "attachment" {
		return
	}

	switch {
	case (mediaType == "text/plain" || mediaType == "") && *plain == "":
		body, _ := io.ReadAll(entity.Body)
		*plain = string(body)
	case mediaType == "text/html" && *htmlBody == "":
		body, _ := io.ReadAll(entity.Body)
		*htmlBody = string(body)
	}
}

func formatAddress(addr *imap.Address) string {
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", addr.PersonalName, addr.MailboxName, addr.HostName)
	}
	return fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
}

// TranslateQuery maps the Gmail search subset used by finmail onto IMAP criteria:
// subject:word, subject:(a OR b), from:addr, after:/before: dates (YYYY/MM/DD or YYYY-MM-DD)
// and bare words matched against the whole message. Terms are ANDed.
func TranslateQuery(query string) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()

	for _, term := range splitQuery(query) {
		key, value, hasKey := strings.Cut(term, ":")
		if !hasKey {
			criteria.Text = append(criteria.Text, term)
			continue
		}

		switch strings.ToLower(key) {
		case "subject":
			alternatives := orTerms(value)
			if len(alternatives) == 1 {
				criteria.Header.Add("Subject", alternatives[0])
				continue
			}
			criteria.Or = append(criteria.Or, headerOr("Subject", alternatives))
		case "from":
			criteria.Header.Add("From", strings.Trim(value, "()"))
		case "after":
			if t, ok := queryDate(value); ok {
				criteria.Since = t
			}
		case "before":
			if t, ok := queryDate(value); ok {
				criteria.Before = t
			}
		default:
			criteria.Text = append(criteria.Text, term)
		}
	}
	return criteria
}

// splitQuery splits on whitespace outside parentheses.
func splitQuery(query string) []string {
	var (
		terms []string
		cur   strings.Builder
		depth int
	)
	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, cur.String())
			cur.Reset()
		}
	}
	for _, r := range query {
		switch {
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && depth == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return terms
}

func orTerms(value string) []string {
	value = strings.TrimSuffix(strings.TrimPrefix(value, "("), ")")
	var out []string
	for _, word := range strings.Fields(value) {
		if strings.EqualFold(word, "OR") {
			continue
		}
		out = append(out, strings.Trim(word, `"`))
	}
	return out
}

// headerOr nests alternatives into IMAP's binary OR.
func headerOr(header string, values []string) [2]*imap.SearchCriteria {
	left := imap.NewSearchCriteria()
	left.Header.Add(header, values[0])

	right := imap.NewSearchCriteria()
	if len(values) == 2 {
		right.Header.Add(header, values[1])
	} else {
		right.Or = append(right.Or, headerOr(header, values[1:]))
	}
	return [2]*imap.SearchCriteria{left, right}
}

func queryDate(s string) (time.Time, bool) {
	for _, layout := range []string{"2006/01/02", "2006-01-02", "2006/1/2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Validate checks the connection settings.
func (c IMAPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: imap host", common.ErrMissingConfig)
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("%w: imap username and password", common.ErrMissingConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: imap port %d", common.ErrInvalidConfig, c.Port)
	}
	return nil
}
