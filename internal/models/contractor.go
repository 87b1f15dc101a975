package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contractor is a reusable resource (session musician, engineer, etc.).
// Per-document assignments live in QuoteContractor / InvoiceContractor,
// each document owning its own copies.
type Contractor struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     uint   `gorm:"not null;index"`
	Name       string `gorm:"not null;index"`
	Email      string
	Skills     string          // comma separated, e.g. "mixing,mastering"
	RateType   string          `gorm:"not null;default:'hourly'"` // hourly, flat
	HourlyRate decimal.Decimal `gorm:"type:numeric(12,2)"`
	FlatRate   decimal.Decimal `gorm:"type:numeric(12,2)"`
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
