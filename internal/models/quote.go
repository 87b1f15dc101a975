package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote / estimate models
type Quote struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;index:idx_user_quote_number,priority:1"`
	QuoteNumber string `gorm:"size:20;not null;index:idx_user_quote_number,unique,priority:2"`
	ClientID    uint   `gorm:"not null;index"`
	Client      Client `gorm:"foreignKey:ClientID"`

	ProjectName        string `gorm:"not null"`
	ProjectDescription string

	// draft, sent, approved, expired, rejected
	Status string `gorm:"not null;default:'draft'"`

	// Stored totals are a cache; always recomputed from live items before use.
	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2)"`
	TaxRate   decimal.Decimal `gorm:"type:numeric(5,2)"` // percent, e.g. 10 for 10%
	TaxAmount decimal.Decimal `gorm:"type:numeric(12,2)"`
	Total     decimal.Decimal `gorm:"type:numeric(12,2)"`

	ValidUntil    *time.Time
	ApprovalToken string `gorm:"size:64;index"` // minted on send, usable while status=sent
	ApprovedAt    *time.Time
	InvoiceID     uint // set once materialized into an invoice

	Notes string
	Terms string

	Items       []QuoteItem       `gorm:"foreignKey:QuoteID"`
	Contractors []QuoteContractor `gorm:"foreignKey:QuoteID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type QuoteItem struct {
	ID                uint `gorm:"primaryKey"`
	QuoteID           uint `gorm:"not null;index"`
	ServiceTemplateID *uint
	ContractorID      *uint
	Name              string `gorm:"not null"`
	Description       string
	Quantity          decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	UnitPrice         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Total             decimal.Decimal `gorm:"type:numeric(12,2)"`
	Taxable           bool            `gorm:"not null;default:true"`
	SortOrder         int             `gorm:"not null;default:0"`
}

// QuoteContractor binds a contractor to one quote with a computed cost.
// Rows are copied, never shared, when the quote becomes an invoice.
type QuoteContractor struct {
	ID           uint       `gorm:"primaryKey"`
	QuoteID      uint       `gorm:"not null;index"`
	ContractorID uint       `gorm:"not null"`
	Contractor   Contractor `gorm:"foreignKey:ContractorID"`
	Skills       string     // assigned skill subset
	RateType     string     `gorm:"not null;default:'hourly'"` // hourly, flat
	Hours        decimal.Decimal `gorm:"type:numeric(8,2)"`
	Cost         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IncludeInTotal bool          `gorm:"not null;default:true"`
	Notes        string
}
