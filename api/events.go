package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/kyudo-console/calendar"
)

// ListEvents returns events overlapping [start, end]. Without parameters the
// current month is used.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	rng := calendar.Month(time.Now().UTC())
	q := r.URL.Query()
	if q.Has("start") || q.Has("end") {
		start, ok1 := queryTime(r, "start")
		end, ok2 := queryEnd(r, "end")
		if !ok1 || !ok2 {
			writeError(w, http.StatusBadRequest, "start and end must both be RFC 3339 times or dates")
			return
		}
		rng = calendar.Range{Start: start, End: end}
	}
	list, err := h.events.List(r.Context(), rng)
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	dtos := make([]EventDTO, len(list))
	for i, e := range list {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (req EventRequest) toInput() calendar.EventInput {
	return calendar.EventInput{
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		AllDay:      req.AllDay,
		Color:       req.Color,
	}
}

// CreateEvent adds a calendar event.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.events.Create(r.Context(), identity(r).AccountID, req.toInput())
	if err != nil {
		h.fail(w, r, err, "failed to save event")
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(*e))
}

// UpdateEvent replaces an event.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	e, err := h.events.Update(r.Context(), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.fail(w, r, err, "failed to save event")
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*e))
}

// DeleteEvent removes an event.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "failed to delete event")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
