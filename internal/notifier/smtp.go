package notifier

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

const smtpTimeout = 15 * time.Second

// SMTPConfig holds mail relay settings
type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Complete reports whether every field needed to send mail is set
func (c SMTPConfig) Complete() bool {
	return c.Server != "" && c.Username != "" && c.Password != "" && c.From != "" && len(c.To) > 0
}

// SMTP sends plain-text mail through an authenticated relay, upgrading with
// STARTTLS when the server offers it
type SMTP struct {
	cfg     SMTPConfig
	deliver func(ctx context.Context, msg *mail.Msg) error
	now     func() time.Time
}

// NewSMTP creates a mail sink
func NewSMTP(cfg SMTPConfig) *SMTP {
	s := &SMTP{cfg: cfg, now: time.Now}
	s.deliver = s.dialAndSend
	return s
}

// Send delivers the message. The whole exchange with the relay is bounded by ctx.
func (s *SMTP) Send(ctx context.Context, subject, body string) error {
	if !s.cfg.Complete() {
		return fmt.Errorf("smtp configuration incomplete")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.message(subject, body)
	if err != nil {
		return err
	}
	if err := s.deliver(ctx, msg); err != nil {
		return fmt.Errorf("sending mail via %s:%d: %w", s.cfg.Server, s.cfg.Port, err)
	}
	return nil
}

func (s *SMTP) message(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", s.cfg.From, err)
	}
	if err := msg.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(s.now())
	msg.SetBodyString(mail.TypeTextPlain, strings.ReplaceAll(body, "\n", "\r\n"))
	return msg, nil
}

func (s *SMTP) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Server,
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(smtpTimeout),
		mail.WithDialContextFunc(boundedDialer(ctx)),
	)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// boundedDialer ties the relay connection to ctx: reads and writes stop at
// its deadline and the connection is closed when it is cancelled.
func boundedDialer(ctx context.Context) mail.DialContextFunc {
	return func(dialCtx context.Context, network, address string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, network, address)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		context.AfterFunc(ctx, func() { _ = conn.Close() })
		return conn, nil
	}
}
