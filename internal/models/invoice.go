package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoicing models
type Invoice struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        uint   `gorm:"not null;index:idx_user_invoice_number,priority:1"`
	InvoiceNumber string `gorm:"size:20;not null;index:idx_user_invoice_number,unique,priority:2"` // INV-<year>-<seq3>
	ClientID      uint   `gorm:"not null;index"`
	Client        Client `gorm:"foreignKey:ClientID"`
	QuoteID       uint   `gorm:"index"` // originating quote, 0 if created directly

	ProjectName        string `gorm:"not null"`
	ProjectDescription string

	// draft, sent, paid, overdue, cancelled
	Status string `gorm:"not null;default:'draft'"`

	// Monetary snapshot as of approval. Total includes contractor costs
	// marked IncludeInTotal at materialization time.
	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2)"`
	TaxRate   decimal.Decimal `gorm:"type:numeric(5,2)"`
	TaxAmount decimal.Decimal `gorm:"type:numeric(12,2)"`
	Total     decimal.Decimal `gorm:"type:numeric(12,2)"`

	DueDate time.Time `gorm:"not null"`

	Items       []InvoiceItem       `gorm:"foreignKey:InvoiceID"`
	Contractors []InvoiceContractor `gorm:"foreignKey:InvoiceID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceItem is a frozen snapshot copy of a QuoteItem. Never edited after
// creation; quote edits must not retroactively change an issued invoice.
type InvoiceItem struct {
	ID                uint `gorm:"primaryKey"`
	InvoiceID         uint `gorm:"not null;index"`
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

// InvoiceContractor is the snapshot copy of a QuoteContractor assignment.
// IncludeInTotal flips to false exactly once, when the contractor's
// separately billed fee is settled.
type InvoiceContractor struct {
	ID           uint       `gorm:"primaryKey"`
	InvoiceID    uint       `gorm:"not null;index"`
	ContractorID uint       `gorm:"not null"`
	Contractor   Contractor `gorm:"foreignKey:ContractorID"`
	Skills       string
	RateType     string          `gorm:"not null;default:'hourly'"`
	Hours        decimal.Decimal `gorm:"type:numeric(8,2)"`
	Cost         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IncludeInTotal bool          `gorm:"not null;default:true"`
	Notes        string

	BilledSeparately bool   `gorm:"not null;default:false"`
	FeePaymentToken  string `gorm:"size:64;index"` // usable while BilledSeparately && IncludeInTotal
}
