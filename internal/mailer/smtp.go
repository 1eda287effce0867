package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/logging"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender relays through an SMTP server. smtp.SendMail upgrades to
// STARTTLS when the server offers it.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
	send sendFunc
	now  func() time.Time
	log  *logging.Logger
}

// NewSMTPSender creates a sender from config. Port defaults to 587.
func NewSMTPSender(cfg config.SMTPConfig, from string, log *logging.Logger) *SMTPSender {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		auth: auth,
		from: from,
		send: smtp.SendMail,
		now:  time.Now,
		log:  log.Sub("mailer"),
	}
}

// Send implements Sender. net/smtp takes no context; ctx is only checked
// before dialing.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string, att *Attachment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &DeliveryFailure{To: to, Err: err}
	}
	msg, err := BuildMessage(s.from, to, subject, body, att, s.now())
	if err != nil {
		return false, &DeliveryFailure{To: to, Err: fmt.Errorf("build message: %w", err)}
	}
	if err := s.send(s.addr, s.auth, s.from, []string{to}, msg); err != nil {
		return false, &DeliveryFailure{To: to, Err: err}
	}
	s.log.Info().Str("addr", s.addr).Int("bytes", len(msg)).Msg("report mailed via smtp")
	return true, nil
}
