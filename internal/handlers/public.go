package handlers

import (
	"net/http"

	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/services"
)

// PublicHandler serves the unauthenticated token-gated endpoints used by
// clients and contractor fee payers.
type PublicHandler struct {
	Quotes   *services.QuoteService
	Invoices *services.InvoiceService
}

func NewPublicHandler(quotes *services.QuoteService, invoices *services.InvoiceService) *PublicHandler {
	return &PublicHandler{Quotes: quotes, Invoices: invoices}
}

// Quote handles GET /public/quote?id=N&token=T.
func (h *PublicHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q, err := h.Quotes.PublicQuote(queryID(r, "id"), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toQuoteResponse(q))
}

// Approve handles POST /public/quote/approve?id=N.
func (h *PublicHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var in services.ApproveInput
	if !decodeJSON(w, r, &in) {
		return
	}
	inv, err := h.Quotes.Approve(queryID(r, "id"), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"total":          inv.Total,
	})
}

// Feedback handles POST /public/quote/feedback?id=N.
func (h *PublicHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var in services.FeedbackInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.Quotes.Reject(queryID(r, "id"), in); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ContractorFee handles GET /public/contractor-fee?invoice=N&token=T (view the
// fees behind a token) and POST /public/contractor-fee/pay?invoice=N&token=T.
func (h *PublicHandler) ContractorFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rows, err := h.Invoices.ContractorFeeRows(queryID(r, "invoice"), r.URL.Query().Get("token"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *PublicHandler) PayContractorFee(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		var body struct {
			Token string `json:"token"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		token = body.Token
	}
	payments, err := h.Invoices.PayContractorFee(queryID(r, "invoice"), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payments)
}
