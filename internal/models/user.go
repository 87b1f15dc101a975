package models

import "time"

// User & auth related models
type User struct {
	ID         uint   `gorm:"primaryKey"`
	Email      string `gorm:"unique;not null;index"`
	Password   string `gorm:"not null"` // bcrypt hash
	Name       string
	StudioName string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
