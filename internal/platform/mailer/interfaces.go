package mailer

import (
	"context"
	"errors"
	"strings"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is a single plain-text email with optional attachments.
type Message struct {
	To          string
	ToName      string
	Subject     string
	Text        string
	Attachments []Attachment
}

func (m *Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("empty recipient email")
	}
	if strings.ContainsAny(m.To+m.Subject+m.ToName, "\r\n") {
		return errors.New("header fields must not contain line breaks")
	}
	return nil
}

// Mailer performs at most one delivery attempt per Send. The returned id is
// provider specific and may be empty.
type Mailer interface {
	Send(ctx context.Context, msg *Message) (string, error)
}
