// internal/infra/email/adapter.go
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"chore_notifier/internal/domain/channel"
	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"

	"github.com/google/uuid"
)

// Adapter sends mail over plain SMTP. SMTP exposes no delivery receipts, so
// it does not implement channel.StatusChecker; a locally generated id stands
// in for the provider message id.
type Adapter struct {
	host     string
	port     int
	from     string
	username string
	password string
	timeout  time.Duration
}

func NewAdapter(host string, port int, from, username, password string, timeout time.Duration) *Adapter {
	return &Adapter{host: host, port: port, from: from, username: username, password: password, timeout: timeout}
}

func (a *Adapter) Kind() notification.Channel {
	return notification.ChannelEmail
}

func (a *Adapter) IsConfigured() bool {
	return a.host != "" && a.from != ""
}

func (a *Adapter) Send(ctx context.Context, rcpt *household.User, payload notification.Payload) (*channel.Result, error) {
	if !a.IsConfigured() {
		return nil, fmt.Errorf("smtp is not configured")
	}
	if rcpt.Email == "" {
		return nil, fmt.Errorf("user %s has no email address", rcpt.ID)
	}

	deadline := a.timeout
	if d, ok := ctx.Deadline(); ok {
		if until := time.Until(d); until < deadline {
			deadline = until
		}
	}

	addr := net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port))
	conn, err := net.DialTimeout("tcp", addr, deadline)
	if err != nil {
		return nil, fmt.Errorf("smtp dial failed: %w", err)
	}
	// Bound every subsequent protocol exchange, not just the dial.
	_ = conn.SetDeadline(time.Now().Add(deadline))

	client, err := smtp.NewClient(conn, a.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake failed: %w", err)
	}
	defer client.Close()

	if a.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", a.username, a.password, a.host)
			if err := client.Auth(auth); err != nil {
				return nil, fmt.Errorf("smtp auth failed: %w", err)
			}
		}
	}

	if err := client.Mail(a.from); err != nil {
		return nil, fmt.Errorf("smtp MAIL failed: %w", err)
	}
	if err := client.Rcpt(rcpt.Email); err != nil {
		return nil, fmt.Errorf("smtp RCPT failed: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return nil, fmt.Errorf("smtp DATA failed: %w", err)
	}

	localID := uuid.NewString()
	msg := buildMessage(a.from, rcpt.Email, payload, localID)
	if _, err := w.Write([]byte(msg)); err != nil {
		return nil, fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("smtp send failed: %w", err)
	}
	_ = client.Quit()

	return &channel.Result{ProviderMessageID: localID}, nil
}

func buildMessage(from, to string, payload notification.Payload, messageID string) string {
	subject := payload.Subject
	if subject == "" {
		subject = "Chore reminder"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Message-ID: <%s@chore-notifier>\r\n", messageID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(payload.Body)
	b.WriteString("\r\n")
	return b.String()
}
