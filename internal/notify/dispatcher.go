package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/platform/mailer"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/diagnosis/campus-tickets/pkg/metrics"
	"github.com/diagnosis/campus-tickets/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultAttachmentName = "qrcode.png"

// Dispatcher emails a stored artifact as an attachment. It fetches first and
// only sends after a successful fetch. One delivery attempt per call, no
// deduplication.
type Dispatcher struct {
	fetcher Fetcher
	mailer  mailer.Mailer
	metrics metrics.Recorder
}

func NewDispatcher(fetcher Fetcher, m mailer.Mailer, rec metrics.Recorder) *Dispatcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Dispatcher{fetcher: fetcher, mailer: m, metrics: rec}
}

func (d *Dispatcher) Dispatch(ctx context.Context, recipient, subject, body, artifactURL string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "notify.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("artifact.url", artifactURL))

	outcome, err := d.dispatch(ctx, recipient, subject, body, artifactURL)
	d.metrics.RecordDispatch(outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logger.ErrorContext(ctx, "Ticket email not sent", "outcome", outcome, "url", artifactURL, "error", err)
		return err
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, recipient, subject, body, artifactURL string) (string, error) {
	status, data, err := d.fetcher.Fetch(ctx, artifactURL)
	if err != nil {
		return "fetch_failed", domain.E(domain.KindFetchFailed, "could not fetch ticket image", err)
	}
	if status < 200 || status > 299 {
		return "fetch_failed", domain.E(domain.KindFetchFailed, "could not fetch ticket image",
			fmt.Errorf("artifact fetch returned status %d", status))
	}

	msg := &mailer.Message{
		To:      recipient,
		Subject: subject,
		Text:    body,
		Attachments: []mailer.Attachment{{
			Filename:    attachmentName(artifactURL),
			ContentType: http.DetectContentType(data),
			Data:        data,
		}},
	}
	id, err := d.mailer.Send(ctx, msg)
	if err != nil {
		return "delivery_failed", domain.E(domain.KindDeliveryFailed, "could not send ticket email", err)
	}
	logger.InfoContext(ctx, "Ticket email sent", "to", recipient, "message_id", id)
	return "sent", nil
}

// attachmentName is the last path segment of the artifact URL.
func attachmentName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return defaultAttachmentName
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" || strings.Contains(name, "..") {
		return defaultAttachmentName
	}
	return name
}
