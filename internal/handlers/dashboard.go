package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/auth"
	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/models"
)

type DashboardHandler struct {
	DB *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler { return &DashboardHandler{DB: db} }

type dashboardSummary struct {
	QuotesByStatus   map[string]int64 `json:"quotes_by_status"`
	InvoicesByStatus map[string]int64 `json:"invoices_by_status"`
	OutstandingTotal decimal.Decimal  `json:"outstanding_total"`
	CollectedTotal   decimal.Decimal  `json:"collected_total"`
}

// Summary handles GET /dashboard/summary.
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	out := dashboardSummary{
		QuotesByStatus:   map[string]int64{},
		InvoicesByStatus: map[string]int64{},
		OutstandingTotal: decimal.Zero,
		CollectedTotal:   decimal.Zero,
	}

	type statusCount struct {
		Status string
		N      int64
	}
	var rows []statusCount
	if err := h.DB.Model(&models.Quote{}).Select("status, COUNT(*) as n").
		Where("user_id = ?", uid).Group("status").Scan(&rows).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	for _, rc := range rows {
		out.QuotesByStatus[rc.Status] = rc.N
	}
	rows = rows[:0]
	if err := h.DB.Model(&models.Invoice{}).Select("status, COUNT(*) as n").
		Where("user_id = ?", uid).Group("status").Scan(&rows).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	for _, rc := range rows {
		out.InvoicesByStatus[rc.Status] = rc.N
	}

	var collected decimal.Decimal
	err := h.DB.Model(&models.Payment{}).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("invoices.user_id = ? AND payments.status = ?", uid, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(payments.amount), 0)").
		Scan(&collected).Error
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	out.CollectedTotal = collected

	var billed decimal.Decimal
	err = h.DB.Model(&models.Invoice{}).
		Where("user_id = ? AND status IN ?", uid, []string{models.InvoiceStatusSent, models.InvoiceStatusOverdue}).
		Select("COALESCE(SUM(total), 0)").
		Scan(&billed).Error
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}

	// Outstanding is what open invoices still owe: billed minus what has been
	// collected against those same invoices.
	var collectedOpen decimal.Decimal
	err = h.DB.Model(&models.Payment{}).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Where("invoices.user_id = ? AND invoices.status IN ? AND payments.status = ?",
			uid, []string{models.InvoiceStatusSent, models.InvoiceStatusOverdue}, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(payments.amount), 0)").
		Scan(&collectedOpen).Error
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
		return
	}
	out.OutstandingTotal = billed.Sub(collectedOpen)

	httpx.JSON(w, http.StatusOK, out)
}
