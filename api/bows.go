package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/kyudo-console/equipment"
)

// ListBows returns the bow inventory. ?available=true|false narrows it.
func (h *Handler) ListBows(w http.ResponseWriter, r *http.Request) {
	var f equipment.ListFilter
	if v := r.URL.Query().Get("available"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "available must be true or false")
			return
		}
		f.Available = &b
	}
	list, err := h.bows.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	dtos := make([]BowDTO, len(list))
	for i, b := range list {
		dtos[i] = toBowDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListLoans returns the loan history of a bow, newest first.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.bows.Loans(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// BorrowBow lends a bow to the caller, or to the named borrower when the
// caller administers bows. An empty body borrows for oneself.
func (h *Handler) BorrowBow(w http.ResponseWriter, r *http.Request) {
	var req BorrowRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	loan, err := h.bows.Borrow(r.Context(), identity(r), chi.URLParam(r, "id"), req.BorrowerProfileID)
	if err != nil {
		h.fail(w, r, err, "failed to borrow bow")
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// ReturnBow closes the open loan of a bow.
func (h *Handler) ReturnBow(w http.ResponseWriter, r *http.Request) {
	loan, err := h.bows.Return(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "failed to return bow")
		return
	}
	writeJSON(w, http.StatusOK, toLoanDTO(*loan))
}

// =============================================================================
// BOW ADMINISTRATION
// =============================================================================

func (req BowRequest) toInput() equipment.BowInput {
	return equipment.BowInput{
		BowNumber: req.BowNumber,
		Name:      req.Name,
		Strength:  req.Strength,
		Length:    equipment.Length(req.Length),
		Note:      req.Note,
	}
}

// CreateBow adds a bow to the inventory.
func (h *Handler) CreateBow(w http.ResponseWriter, r *http.Request) {
	var req BowRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.bows.Create(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, err, "failed to save bow")
		return
	}
	writeJSON(w, http.StatusCreated, toBowDTO(*b))
}

// UpdateBow edits a bow. The loan state is not touched.
func (h *Handler) UpdateBow(w http.ResponseWriter, r *http.Request) {
	var req BowRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.bows.Update(r.Context(), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.fail(w, r, err, "failed to save bow")
		return
	}
	writeJSON(w, http.StatusOK, toBowDTO(*b))
}

// DeleteBow removes an available bow.
func (h *Handler) DeleteBow(w http.ResponseWriter, r *http.Request) {
	if err := h.bows.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err, "failed to delete bow")
		return
	}
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}
