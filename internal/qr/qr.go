package qr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/diagnosis/campus-tickets/internal/artifact"
	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/diagnosis/campus-tickets/pkg/metrics"
	"github.com/diagnosis/campus-tickets/pkg/telemetry"
	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ContentType = "image/png"
	DefaultSize = 256
)

// Issuer turns a payload into a stored QR image.
type Issuer struct {
	store   artifact.Store
	size    int
	metrics metrics.Recorder
}

func NewIssuer(store artifact.Store, rec metrics.Recorder) *Issuer {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Issuer{store: store, size: DefaultSize, metrics: rec}
}

// Issue serializes payload to JSON, renders it as a QR PNG, stores it under
// name and returns its URL. Every failure is KindIssuanceFailed. Nothing is
// retried.
func (i *Issuer) Issue(ctx context.Context, payload any, name string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "qr.Issue")
	defer span.End()
	span.SetAttributes(attribute.String("artifact.name", name))

	start := time.Now()
	url, err := i.issue(ctx, payload, name)
	i.metrics.RecordIssuance(err == nil, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issuance failed")
		logger.ErrorContext(ctx, "QR issuance failed", "name", name, "error", err)
		return "", err
	}
	return url, nil
}

func (i *Issuer) issue(ctx context.Context, payload any, name string) (string, error) {
	png, err := Encode(payload, i.size)
	if err != nil {
		return "", domain.E(domain.KindIssuanceFailed, "could not generate QR code", err)
	}
	if err := i.store.Put(ctx, name, png, ContentType); err != nil {
		return "", domain.E(domain.KindIssuanceFailed, "could not store QR code", err)
	}
	return i.store.URL(name), nil
}

// Encode renders the JSON form of payload as a medium-recovery QR PNG.
func Encode(payload any, size int) ([]byte, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	png, err := qrcode.Encode(string(text), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// Decode reads the text of the QR symbol in a PNG or JPEG image.
func Decode(img []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(src)
	if err != nil {
		return "", fmt.Errorf("binarize image: %w", err)
	}

	// Payloads are always written as UTF-8 JSON.
	hints := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_CHARACTER_SET: "UTF-8"}
	reader := zxqr.NewQRCodeReader()
	result, err := reader.Decode(bmp, hints)
	if err != nil {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
		result, err = reader.Decode(bmp, hints)
		if err != nil {
			return "", fmt.Errorf("read qr: %w", err)
		}
	}
	return result.GetText(), nil
}

// DecodeInto decodes the QR symbol and unmarshals its JSON text into v.
func DecodeInto(img []byte, v any) error {
	text, err := Decode(img)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(text), v)
}
