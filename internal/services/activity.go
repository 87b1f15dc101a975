package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/models"
)

// appendActivity adds one log entry for a document. Must run inside the same
// transaction as the state change it describes, after that transaction has
// taken a write lock on the owning row (a conditional status flip or a
// lockInvoice call); that lock is what keeps two writers from computing the
// same position.
func appendActivity(tx *gorm.DB, ownerType string, ownerID uint, actor, action, message string) error {
	var maxPos int
	err := tx.Model(&models.ActivityEntry{}).
		Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Select("COALESCE(MAX(position), 0)").
		Scan(&maxPos).Error
	if err != nil {
		return err
	}
	entry := models.ActivityEntry{
		OwnerType: ownerType,
		OwnerID:   ownerID,
		Position:  maxPos + 1,
		Actor:     actor,
		Action:    action,
		Message:   message,
		CreatedAt: time.Now(),
	}
	return tx.Create(&entry).Error
}

// copyActivity seeds a new invoice's log with the originating quote's full log,
// verbatim and in order, so chronological history survives the quote->invoice
// boundary.
func copyActivity(tx *gorm.DB, quoteID, invoiceID uint) error {
	var entries []models.ActivityEntry
	err := tx.Where("owner_type = ? AND owner_id = ?", models.ActivityOwnerQuote, quoteID).
		Order("position asc, id asc").
		Find(&entries).Error
	if err != nil {
		return err
	}
	for _, e := range entries {
		dup := models.ActivityEntry{
			OwnerType: models.ActivityOwnerInvoice,
			OwnerID:   invoiceID,
			Position:  e.Position,
			Actor:     e.Actor,
			Action:    e.Action,
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		}
		if err := tx.Create(&dup).Error; err != nil {
			return err
		}
	}
	return nil
}

// ActivityFor returns a document's log in append order, with insertion id as
// the tiebreaker.
func ActivityFor(db *gorm.DB, ownerType string, ownerID uint) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := db.Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).
		Order("position asc, id asc").
		Find(&entries).Error
	return entries, err
}
