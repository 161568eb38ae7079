package mailer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

// MailerSend delivers through the MailerSend HTTP API.
type MailerSend struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	Enabled bool
}

func NewMailerSend(apiKey, fromName, fromEmail string) *MailerSend {
	m := &MailerSend{
		Enabled: apiKey != "" && fromEmail != "",
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}
	if m.Enabled {
		m.client = mailersend.NewMailersend(apiKey)
	}
	return m
}

func (m *MailerSend) Send(ctx context.Context, msg *Message) (string, error) {
	if !m.Enabled {
		return "", errors.New("mailer disabled (missing MAILERSEND_API_KEY or MAIL_FROM)")
	}
	if err := msg.validate(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out := m.client.Email.NewMessage()
	out.SetFrom(m.from)
	out.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.To}})
	out.SetSubject(msg.Subject)
	out.SetText(msg.Text)
	for _, a := range msg.Attachments {
		out.AddAttachment(mailersend.Attachment{
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}

	res, err := m.client.Email.Send(ctx, out)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	// MailerSend uses X-Message-Id
	return res.Header.Get("X-Message-Id"), nil
}
