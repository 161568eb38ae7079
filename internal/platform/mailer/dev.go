package mailer

import (
	"context"

	"github.com/diagnosis/campus-tickets/pkg/logger"
)

// DevMailer logs messages instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, msg *Message) (string, error) {
	if err := msg.validate(); err != nil {
		return "", err
	}
	names := make([]string, 0, len(msg.Attachments))
	sizes := make([]int, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Filename)
		sizes = append(sizes, len(a.Data))
	}
	logger.InfoContext(ctx, "[DEV MAIL]",
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
		"attachments", names,
		"attachment_bytes", sizes,
	)
	return "", nil
}
