package handlers

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/auth"
	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/models"
	"github.com/clefworks/studio-billing/internal/money"
	"github.com/clefworks/studio-billing/internal/services"
)

type QuoteHandler struct {
	DB     *gorm.DB
	Quotes *services.QuoteService
}

func NewQuoteHandler(db *gorm.DB, quotes *services.QuoteService) *QuoteHandler {
	return &QuoteHandler{DB: db, Quotes: quotes}
}

// quoteResponse wraps a quote with the amounts the client is actually asked
// to pay, so callers never recompute them.
type quoteResponse struct {
	Quote         *models.Quote   `json:"quote"`
	PayableTotal  decimal.Decimal `json:"payable_total"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	Expired       bool            `json:"expired"`
}

func toQuoteResponse(q *models.Quote) quoteResponse {
	payable := services.PayableTotal(q)
	return quoteResponse{Quote: q, PayableTotal: payable, DepositAmount: money.Deposit(payable)}
}

// Collection handles GET /quotes and POST /quotes.
func (h *QuoteHandler) Collection(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		limit, offset := pagination(r)
		quotes, total, err := h.Quotes.List(uid, r.URL.Query().Get("q"), limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"quotes": quotes, "total": total})
	case http.MethodPost:
		var in services.QuoteInput
		if !decodeJSON(w, r, &in) {
			return
		}
		q, err := h.Quotes.Create(uid, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, toQuoteResponse(q))
	default:
		methodNotAllowed(w)
	}
}

// Item handles GET/PUT/DELETE /quotes/item?id=N.
// An owner reading their own expired quote still gets it back, with the
// status already flipped and the expiry called out on the response.
func (h *QuoteHandler) Item(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := queryID(r, "id")
	switch r.Method {
	case http.MethodGet:
		q, err := h.Quotes.Get(uid, id)
		if err != nil && !errors.Is(err, services.ErrExpired) {
			writeServiceError(w, err)
			return
		}
		resp := toQuoteResponse(q)
		resp.Expired = errors.Is(err, services.ErrExpired)
		httpx.JSON(w, http.StatusOK, resp)
	case http.MethodPut:
		var in services.QuoteInput
		if !decodeJSON(w, r, &in) {
			return
		}
		q, err := h.Quotes.UpdateDraft(uid, id, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toQuoteResponse(q))
	case http.MethodDelete:
		if err := h.Quotes.Delete(uid, id); err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		methodNotAllowed(w)
	}
}

// Send handles POST /quotes/send?id=N.
func (h *QuoteHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	q, err := h.Quotes.Send(uid, queryID(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toQuoteResponse(q))
}

// Activity handles GET /quotes/activity?id=N.
func (h *QuoteHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	var q models.Quote
	if err := h.DB.Where("user_id = ?", uid).First(&q, queryID(r, "id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	entries, err := services.ActivityFor(h.DB, models.ActivityOwnerQuote, q.ID)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
