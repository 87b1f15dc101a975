package services

import (
	"testing"
	"time"

	"github.com/clefworks/studio-billing/internal/models"
)

func TestActivityOrderBreaksPositionTies(t *testing.T) {
	conn := newTestDB(t, "activity_order")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)

	// two entries landing on the same position still read back in insertion
	// order
	for _, msg := range []string{"first", "second"} {
		entry := models.ActivityEntry{
			OwnerType: models.ActivityOwnerInvoice,
			OwnerID:   inv.ID,
			Position:  1,
			Actor:     "System",
			Action:    models.ActionInvoiceSent,
			Message:   msg,
			CreatedAt: time.Now(),
		}
		if err := conn.Create(&entry).Error; err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ActivityFor(conn, models.ActivityOwnerInvoice, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Message != "first" || entries[1].Message != "second" {
		t.Fatalf("order = %q, %q", entries[0].Message, entries[1].Message)
	}
}
