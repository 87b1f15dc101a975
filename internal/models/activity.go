package models

import "time"

// Activity log owners
const (
	ActivityOwnerQuote   = "quote"
	ActivityOwnerInvoice = "invoice"
)

// Activity actions
const (
	ActionQuoteSent       = "QUOTE_SENT"
	ActionQuoteExpired    = "QUOTE_EXPIRED"
	ActionQuoteRejected   = "QUOTE_REJECTED"
	ActionTermsAgreed     = "TERMS_AGREED"
	ActionQuoteApproved   = "QUOTE_APPROVED"
	ActionInvoiceCreated  = "INVOICE_CREATED"
	ActionInvoiceSent     = "INVOICE_SENT"
	ActionInvoiceOverdue  = "INVOICE_OVERDUE"
	ActionInvoicePaid      = "INVOICE_PAID"
	ActionInvoiceCancelled = "INVOICE_CANCELLED"
	ActionContractorFunded = "CONTRACTOR_FUNDED"
)

// ActivityEntry is an append-only audit trail row attached to a quote or an
// invoice. Position preserves submission order per document; entries are
// appended under the same transaction as the state change they describe.
type ActivityEntry struct {
	ID        uint   `gorm:"primaryKey"`
	OwnerType string `gorm:"size:16;not null;index:idx_activity_owner,priority:1"`
	OwnerID   uint   `gorm:"not null;index:idx_activity_owner,priority:2"`
	Position  int    `gorm:"not null"`
	Actor     string `gorm:"not null"` // System, Client, or the user's name
	Action    string `gorm:"not null"`
	Message   string
	CreatedAt time.Time
}
