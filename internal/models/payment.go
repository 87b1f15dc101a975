package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment tied to invoices. Rows are append-only: settlements create new rows,
// amounts are never mutated in place.
type Payment struct {
	ID               uint            `gorm:"primaryKey"`
	InvoiceID        uint            `gorm:"not null;index"`
	Amount           decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency         string          `gorm:"not null;default:'USD'"`
	PaymentMethod    string          `gorm:"not null"` // ex: card, transfer, contractor_fee
	PaymentReference string          // human-auditable free text
	Status           string          `gorm:"not null"` // pending, completed, failed
	TransactionID    string          `gorm:"index"`    // processor reference (locally generated placeholder)
	BulkBillingGroupID string        `gorm:"index"`    // set when part of a bulk contractor settlement
	ProcessedAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
