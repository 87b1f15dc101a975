package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clefworks/studio-billing/internal/models"
)

func TestRenderInvoice(t *testing.T) {
	inv := &models.Invoice{
		InvoiceNumber: "INV-2026-001",
		Client:        models.Client{Name: "Ava Band"},
		ProjectName:   "EP recording",
		Subtotal:      decimal.NewFromInt(200),
		TaxRate:       decimal.NewFromInt(10),
		TaxAmount:     decimal.NewFromInt(20),
		Total:         decimal.NewFromInt(220),
		DueDate:       time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
		Items: []models.InvoiceItem{
			{Name: "Tracking", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100), Total: decimal.NewFromInt(100)},
			{Name: "Mixing", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100), Total: decimal.NewFromInt(100)},
		},
		Contractors: []models.InvoiceContractor{
			{Contractor: models.Contractor{Name: "Max Keys"}, Skills: "keys", Cost: decimal.NewFromInt(100), IncludeInTotal: true},
		},
	}
	studio := &models.User{Name: "Sam", StudioName: "Clef Works"}

	doc, err := RenderInvoice(inv, studio, decimal.NewFromInt(110))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(doc) == 0 {
		t.Fatal("empty document")
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Fatalf("not a pdf, starts with %q", doc[:8])
	}
}
