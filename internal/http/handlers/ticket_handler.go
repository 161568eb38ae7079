package handlers

import (
	"io"
	"net/http"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/http/response"
	"github.com/diagnosis/campus-tickets/internal/service"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) sendQR(w http.ResponseWriter, r *http.Request) {
	var in domain.SendQRRequest
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.Tickets.SendQR(r.Context(), &in); err != nil {
		fail(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, service.SendQRSuccess)
}

type purchaseResponse struct {
	*domain.Ticket
	EmailSent bool `json:"email_sent"`
}

// purchase issues a ticket directly. Students may only claim free events
// for themselves; paid events go through /initiate_payment. Staff may issue
// any event to any user.
func (h *Handlers) purchase(w http.ResponseWriter, r *http.Request) {
	var in domain.PurchaseRequest
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err)
		return
	}
	in.Normalize()

	me := current(r)
	holder := me
	if me.Role != domain.RoleStaff || in.UserID == "" || in.UserID == me.UserID {
		in.UserID = me.UserID
	} else {
		p, err := h.Accounts.Profile(r.Context(), in.UserID)
		if err != nil {
			fail(w, r, err)
			return
		}
		holder = p
	}

	if me.Role != domain.RoleStaff && in.EventID != "" {
		ev, err := h.Events.Get(r.Context(), in.EventID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if ev.Price > 0 {
			response.WriteError(w, http.StatusBadRequest, "this event requires payment", string(domain.KindValidation))
			return
		}
	}

	t, err := h.Tickets.Purchase(r.Context(), &in)
	if err != nil {
		fail(w, r, err)
		return
	}

	// The ticket exists either way; a failed email is reported, not undone.
	sent := true
	if err := h.Tickets.Deliver(r.Context(), t, holder.Email); err != nil {
		logger.WarnContext(r.Context(), "Ticket email failed", "ticket_id", t.TicketID, "error", err)
		sent = false
	}
	response.JSON(w, http.StatusCreated, purchaseResponse{Ticket: t, EmailSent: sent})
}

func (h *Handlers) myTickets(w http.ResponseWriter, r *http.Request) {
	ts, err := h.Tickets.ListForUser(r.Context(), current(r).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, ts)
}

// getTicket hides other users' tickets behind the same 404 as a missing one.
func (h *Handlers) getTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tickets.GetTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	me := current(r)
	if t.UserID != me.UserID && me.Role != domain.RoleStaff {
		fail(w, r, domain.NotFound("ticket not found"))
		return
	}
	response.JSON(w, http.StatusOK, t)
}

// scanTicket checks a ticket in from either the decoded QR text (JSON) or
// an uploaded photo of the code (multipart field "qr").
func (h *Handlers) scanTicket(w http.ResponseWriter, r *http.Request) {
	staffID := current(r).UserID

	var (
		t   *domain.Ticket
		err error
	)
	if isJSON(r) {
		var in domain.ScanRequest
		if err := decodeJSON(r, &in); err != nil {
			fail(w, r, err)
			return
		}
		t, err = h.Tickets.Scan(r.Context(), in.Payload, staffID)
	} else {
		var img []byte
		img, _, err = h.readUpload(w, r, "qr")
		if err != nil {
			fail(w, r, err)
			return
		}
		t, err = h.Tickets.ScanImage(r.Context(), img, staffID)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, t)
}

// readUpload returns the bytes and client filename of a multipart file
// field, bounded by MaxUploadBytes.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request, field string) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		return nil, "", domain.E(domain.KindValidation, "invalid multipart upload", err)
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", domain.E(domain.KindValidation, "missing file field "+field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.MaxUploadBytes+1))
	if err != nil {
		return nil, "", domain.E(domain.KindValidation, "could not read upload", err)
	}
	if int64(len(data)) > h.MaxUploadBytes {
		return nil, "", domain.Validation("file too large")
	}
	return data, hdr.Filename, nil
}
