package models

// Quote lifecycle: draft -> sent -> {approved | expired | rejected}, all terminal.
const (
	QuoteStatusDraft    = "draft"
	QuoteStatusSent     = "sent"
	QuoteStatusApproved = "approved"
	QuoteStatusExpired  = "expired"
	QuoteStatusRejected = "rejected"
)

// Invoice lifecycle: draft -> sent -> {paid | overdue -> paid} | cancelled.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Payment states
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Contractor rate types
const (
	RateTypeHourly = "hourly"
	RateTypeFlat   = "flat"
)
