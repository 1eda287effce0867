package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/logging"
)

// GmailSender sends through the Gmail API as the authorized account.
type GmailSender struct {
	svc  *gmail.Service
	from string
	now  func() time.Time
	log  *logging.Logger
}

// NewGmailSender loads OAuth client credentials and a cached token. The
// token is obtained out of band; this sender never starts a browser flow.
func NewGmailSender(ctx context.Context, cfg config.GmailConfig, from string, log *logging.Logger) (*GmailSender, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	oc, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("no auth token found at %s: %w", cfg.TokenFile, err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oc.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return newGmailSender(svc, from, log), nil
}

func newGmailSender(svc *gmail.Service, from string, log *logging.Logger) *GmailSender {
	return &GmailSender{svc: svc, from: from, now: time.Now, log: log.Sub("mailer")}
}

// Send implements Sender.
func (g *GmailSender) Send(ctx context.Context, to, subject, body string, att *Attachment) (bool, error) {
	msg, err := BuildMessage(g.from, to, subject, body, att, g.now())
	if err != nil {
		return false, &DeliveryFailure{To: to, Err: fmt.Errorf("build message: %w", err)}
	}
	raw := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(msg)}
	sent, err := g.svc.Users.Messages.Send("me", raw).Context(ctx).Do()
	if err != nil {
		return false, &DeliveryFailure{To: to, Err: err}
	}
	g.log.Info().Str("id", sent.Id).Int("bytes", len(msg)).Msg("report mailed via gmail")
	return true, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// New picks the sender for cfg.Driver.
func New(ctx context.Context, cfg config.MailConfig, log *logging.Logger) (Sender, error) {
	switch cfg.Driver {
	case "", "none":
		return Noop{}, nil
	case "smtp":
		return NewSMTPSender(cfg.SMTP, cfg.From, log), nil
	case "gmail":
		return NewGmailSender(ctx, cfg.Gmail, cfg.From, log)
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}
