package models

import "time"

// Client entity
type Client struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"not null;index"` // owning studio account
	Name      string `gorm:"not null;index"`
	Company   string
	Email     string
	Phone     string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
