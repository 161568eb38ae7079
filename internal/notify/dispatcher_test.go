package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/platform/mailer"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []*mailer.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg *mailer.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, msg)
	return "id", nil
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func artifactServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write(pngHeader)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newDispatcher(m mailer.Mailer) *Dispatcher {
	return NewDispatcher(NewHTTPFetcher(NewPlainClient(2*time.Second), 1<<20), m, nil)
}

func TestDispatch_SendsOneEmailWithAttachment(t *testing.T) {
	srv := artifactServer(t, http.StatusOK)
	m := &recordingMailer{}

	err := newDispatcher(m).Dispatch(context.Background(), "a@b.com", "Your Event Ticket",
		"Please find your event ticket attached.", srv.URL+"/artifacts/sends/abc/qrcode.png")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(m.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(m.sent))
	}
	msg := m.sent[0]
	if msg.To != "a@b.com" || msg.Subject != "Your Event Ticket" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d", len(msg.Attachments))
	}
	a := msg.Attachments[0]
	if a.Filename != "qrcode.png" || a.ContentType != "image/png" || len(a.Data) != len(pngHeader) {
		t.Fatalf("unexpected attachment %s %s %d", a.Filename, a.ContentType, len(a.Data))
	}
}

func TestDispatch_FetchFailureSendsNothing(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		srv := artifactServer(t, status)
		m := &recordingMailer{}

		err := newDispatcher(m).Dispatch(context.Background(), "a@b.com", "s", "b", srv.URL+"/x.png")
		if !domain.IsKind(err, domain.KindFetchFailed) {
			t.Fatalf("status %d: expected FETCH_FAILED, got %v", status, err)
		}
		if len(m.sent) != 0 {
			t.Fatalf("status %d: mail submitted %d times", status, len(m.sent))
		}
	}
}

func TestDispatch_UnreachableArtifact(t *testing.T) {
	srv := artifactServer(t, http.StatusOK)
	url := srv.URL + "/x.png"
	srv.Close()

	m := &recordingMailer{}
	err := newDispatcher(m).Dispatch(context.Background(), "a@b.com", "s", "b", url)
	if !domain.IsKind(err, domain.KindFetchFailed) {
		t.Fatalf("expected FETCH_FAILED, got %v", err)
	}
	if len(m.sent) != 0 {
		t.Fatal("mail submitted after failed fetch")
	}
}

func TestDispatch_DeliveryFailure(t *testing.T) {
	srv := artifactServer(t, http.StatusOK)
	m := &recordingMailer{err: errors.New("535 authentication failed")}

	err := newDispatcher(m).Dispatch(context.Background(), "a@b.com", "s", "b", srv.URL+"/x.png")
	if !domain.IsKind(err, domain.KindDeliveryFailed) {
		t.Fatalf("expected DELIVERY_FAILED, got %v", err)
	}
}

func TestDispatch_NoDeduplication(t *testing.T) {
	srv := artifactServer(t, http.StatusOK)
	m := &recordingMailer{}
	d := newDispatcher(m)

	for i := 0; i < 2; i++ {
		if err := d.Dispatch(context.Background(), "a@b.com", "s", "b", srv.URL+"/x.png"); err != nil {
			t.Fatal(err)
		}
	}
	if len(m.sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(m.sent))
	}
}

func TestDispatch_OversizedArtifact(t *testing.T) {
	srv := artifactServer(t, http.StatusOK)
	m := &recordingMailer{}
	d := NewDispatcher(NewHTTPFetcher(NewPlainClient(time.Second), 4), m, nil)

	err := d.Dispatch(context.Background(), "a@b.com", "s", "b", srv.URL+"/x.png")
	if !domain.IsKind(err, domain.KindFetchFailed) {
		t.Fatalf("expected FETCH_FAILED, got %v", err)
	}
}

func TestGuardedClient_BlocksLoopback(t *testing.T) {
	srv := artifactServer(t, http.StatusOK)
	m := &recordingMailer{}
	d := NewDispatcher(NewHTTPFetcher(NewGuardedClient(time.Second), 1<<20), m, nil)

	err := d.Dispatch(context.Background(), "a@b.com", "s", "b", srv.URL+"/x.png")
	if !domain.IsKind(err, domain.KindFetchFailed) {
		t.Fatalf("expected FETCH_FAILED from guard, got %v", err)
	}
	if len(m.sent) != 0 {
		t.Fatal("mail submitted for blocked fetch")
	}
}

func TestAttachmentName(t *testing.T) {
	cases := map[string]string{
		"https://storage.googleapis.com/qr-code-store/tickets/t1.png": "t1.png",
		"http://localhost:8080/artifacts/sends/u/qrcode.png":          "qrcode.png",
		"https://example.com/":                                        "qrcode.png",
		"::bad":                                                       "qrcode.png",
	}
	for in, want := range cases {
		if got := attachmentName(in); got != want {
			t.Errorf("attachmentName(%q) = %q, want %q", in, got, want)
		}
	}
}
