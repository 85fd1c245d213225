package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/kyudo-console/auth"
	"github.com/warp/kyudo-console/billing"
)

// ListInvoices returns invoices. Members only ever get their own; invoice
// administrators may filter by ?status= and ?accountId=.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.invoices.List(r.Context(), identity(r), billing.ListFilter{
		Status:    billing.Status(q.Get("status")),
		AccountID: q.Get("accountId"),
	})
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	dtos := make([]InvoiceDTO, len(list))
	for i, inv := range list {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns one invoice.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.Get(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err, "fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// CreateInvoice bills a member.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	inv, err := h.invoices.Create(r.Context(), identity(r), billing.NewInvoice{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		BilledAt:    req.BilledAt,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, err, "failed to save invoice")
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// ApproveInvoices approves the pending invoices among the ids. Already
// approved ones are left alone and not counted.
func (h *Handler) ApproveInvoices(w http.ResponseWriter, r *http.Request) {
	h.bulkInvoices(w, r, h.invoices.Approve, "failed to approve invoices")
}

// RevertInvoices returns approved invoices to pending.
func (h *Handler) RevertInvoices(w http.ResponseWriter, r *http.Request) {
	h.bulkInvoices(w, r, h.invoices.Revert, "failed to revert invoices")
}

// DeleteInvoices removes invoices.
func (h *Handler) DeleteInvoices(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.invoices.Delete(r.Context(), identity(r), req.IDs)
	if err != nil {
		h.fail(w, r, err, "failed to delete invoices")
		return
	}
	writeJSON(w, http.StatusOK, DeletedResponse{Deleted: n})
}

type bulkInvoiceFunc func(ctx context.Context, op auth.Identity, ids []string) (int, error)

func (h *Handler) bulkInvoices(w http.ResponseWriter, r *http.Request, fn bulkInvoiceFunc, fallback string) {
	var req IDsRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := fn(r.Context(), identity(r), req.IDs)
	if err != nil {
		h.fail(w, r, err, fallback)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Updated: n})
}
