package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/auth"
	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/models"
	"github.com/clefworks/studio-billing/internal/pdf"
	"github.com/clefworks/studio-billing/internal/services"
)

type InvoiceHandler struct {
	DB       *gorm.DB
	Invoices *services.InvoiceService
}

func NewInvoiceHandler(db *gorm.DB, invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{DB: db, Invoices: invoices}
}

type invoiceResponse struct {
	Invoice    *models.Invoice `json:"invoice"`
	BalanceDue decimal.Decimal `json:"balance_due"`
}

// Collection handles GET /invoices.
func (h *InvoiceHandler) Collection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	limit, offset := pagination(r)
	invoices, total, err := h.Invoices.List(uid, r.URL.Query().Get("q"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices, "total": total})
}

// Item handles GET /invoices/item?id=N.
func (h *InvoiceHandler) Item(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	inv, balance, err := h.Invoices.Get(uid, queryID(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Invoice: inv, BalanceDue: balance})
}

// Send handles POST /invoices/send?id=N.
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	inv, err := h.Invoices.Send(uid, queryID(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv})
}

// Cancel handles POST /invoices/cancel?id=N.
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	inv, err := h.Invoices.Cancel(uid, queryID(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice": inv})
}

// Payments handles GET /invoices/payments?id=N (ledger) and POST (record one).
func (h *InvoiceHandler) Payments(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id := queryID(r, "id")
	switch r.Method {
	case http.MethodGet:
		payments, err := h.Invoices.Payments(uid, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, payments)
	case http.MethodPost:
		var in services.PaymentInput
		if !decodeJSON(w, r, &in) {
			return
		}
		payment, err := h.Invoices.RecordPayment(uid, id, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, payment)
	default:
		methodNotAllowed(w)
	}
}

// BillSeparately handles POST /invoices/contractors/bill-separately?id=N&row=A&row=B.
// Without row params every still-included contractor row is covered.
func (h *InvoiceHandler) BillSeparately(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	var rowIDs []uint
	for _, raw := range r.URL.Query()["row"] {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]string{"row": "invalid"})
			return
		}
		rowIDs = append(rowIDs, uint(n))
	}
	token, rows, err := h.Invoices.BillSeparately(uid, queryID(r, "id"), rowIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fee_payment_token": token, "contractors": rows})
}

// Activity handles GET /invoices/activity?id=N.
func (h *InvoiceHandler) Activity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	var inv models.Invoice
	if err := h.DB.Where("user_id = ?", uid).First(&inv, queryID(r, "id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	entries, err := services.ActivityFor(h.DB, models.ActivityOwnerInvoice, inv.ID)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

// PDF handles GET /invoices/pdf?id=N and streams the rendered document.
func (h *InvoiceHandler) PDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	inv, balance, err := h.Invoices.Get(uid, queryID(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var user models.User
	if err := h.DB.First(&user, uid).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	doc, err := pdf.RenderInvoice(inv, &user, balance)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "pdf_render_failed", nil)
		return
	}
	filename := strings.ToLower(inv.InvoiceNumber) + ".pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
