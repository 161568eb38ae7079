package handlers

import (
	"net/http"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/internal/http/response"
	"github.com/go-chi/chi/v5"
)

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := h.Events.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, evs)
}

func (h *Handlers) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, ev)
}

func (h *Handlers) createEvent(w http.ResponseWriter, r *http.Request) {
	var in domain.EventRequest
	if err := decodeJSON(r, &in); err != nil {
		fail(w, r, err)
		return
	}
	ev, err := h.Events.Create(r.Context(), &in)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, ev)
}

func (h *Handlers) updateEvent(w http.ResponseWriter, r *http.Request) {
	var patch domain.EventPatch
	if err := decodeJSON(r, &patch); err != nil {
		fail(w, r, err)
		return
	}
	ev, err := h.Events.Update(r.Context(), chi.URLParam(r, "id"), &patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, ev)
}

func (h *Handlers) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.Events.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) uploadImage(w http.ResponseWriter, r *http.Request) {
	data, filename, err := h.readUpload(w, r, "eventImage")
	if err != nil {
		fail(w, r, err)
		return
	}
	url, err := h.Events.UploadImage(r.Context(), filename, data)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"imageUrl": url})
}
