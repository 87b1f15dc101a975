package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceTemplate is a reusable service line (e.g. "Vocal tracking, per hour")
// that quote items can be created from.
type ServiceTemplate struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;index"`
	Name        string `gorm:"not null"`
	Description string
	DefaultRate decimal.Decimal `gorm:"type:numeric(12,2)"`
	Taxable     bool            `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
