package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	hilerrors "github.com/AndreyAkinshin/hilrun/internal/errors"
	"github.com/AndreyAkinshin/hilrun/internal/logging"
)

// DefaultEmailTimeout bounds one delivery when Email.Timeout is zero.
const DefaultEmailTimeout = 30 * time.Second

// Email sends notifications through an SMTP relay.
type Email struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	Timeout    time.Duration // dial, greeting and transfer together

	send func(ctx context.Context, m *mail.Msg) error
	now  func() time.Time
}

// Notify implements Notifier. The plain-text body is always sent; an HTML
// body is attached as an alternative part.
func (e *Email) Notify(ctx context.Context, kind Kind, p Payload) error {
	log := logging.For(ctx, "Email")
	if len(e.Recipients) == 0 {
		log.Warn("email recipients not configured, skipping email notification")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := e.compose(kind, p)
	if err != nil {
		return hilerrors.WrapKind(hilerrors.KindNotification, err, "compose email")
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	send := e.send
	if send == nil {
		send = e.deliver
	}
	if err := send(ctx, m); err != nil {
		return hilerrors.WrapKind(hilerrors.KindNotification, err, "send email")
	}
	log.Info("email sent", "recipients", len(e.Recipients), "subject", p.Subject)
	return nil
}

func (e *Email) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultEmailTimeout
}

func (e *Email) deliver(ctx context.Context, m *mail.Msg) error {
	opts := []mail.Option{
		mail.WithTimeout(e.timeout()),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithDialContextFunc(deadlineDialer(e.timeout())),
	}
	if e.Port != 0 {
		opts = append(opts, mail.WithPort(e.Port))
	}
	if e.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(e.Username),
			mail.WithPassword(e.Password),
		)
	}
	client, err := mail.NewClient(e.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}

// deadlineDialer dials with a connection deadline so that a relay which
// accepts but never greets cannot stall the read.
func deadlineDialer(timeout time.Duration) mail.DialContextFunc {
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, address)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (e *Email) compose(kind Kind, p Payload) (*mail.Msg, error) {
	now := time.Now
	if e.now != nil {
		now = e.now
	}
	m := mail.NewMsg()
	if err := m.From(e.From); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(e.Recipients...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	m.Subject(p.Subject)
	m.SetDateWithValue(now())
	m.SetMessageIDWithValue(uuid.NewString() + "@hilrun")
	m.SetGenHeader(mail.Header("X-Hilrun-Kind"), string(kind))

	text := p.Body
	if text == "" && p.HTML == "" {
		text = p.Subject
	}
	if text != "" {
		m.SetBodyString(mail.TypeTextPlain, normalizeNewlines(text))
		if p.HTML != "" {
			m.AddAlternativeString(mail.TypeTextHTML, p.HTML)
		}
	} else {
		m.SetBodyString(mail.TypeTextHTML, p.HTML)
	}
	return m, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// ErrNoRecipients is returned by ParseRecipients for an empty list.
var ErrNoRecipients = errors.New("no email recipients")

// ParseRecipients merges a single recipient and a recipient list,
// dropping blanks and duplicates.
func ParseRecipients(single string, list []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, r := range append([]string{single}, list...) {
		r = strings.TrimSpace(r)
		if r == "" || seen[strings.ToLower(r)] {
			continue
		}
		seen[strings.ToLower(r)] = true
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, ErrNoRecipients
	}
	return out, nil
}
