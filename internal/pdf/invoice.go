// Package pdf renders invoices into downloadable PDF documents.
package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/clefworks/studio-billing/internal/models"
)

// RenderInvoice produces the PDF for one invoice. The rendered amounts come
// from the invoice snapshot, never recomputed: the document must match what
// the client approved.
func RenderInvoice(inv *models.Invoice, studio *models.User, balance decimal.Decimal) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithRightMargin(15).
		WithTopMargin(15).
		Build()
	m := maroto.New(cfg)

	addHeader(m, inv, studio)
	addItemTable(m, inv)
	addContractorTable(m, inv)
	addTotals(m, inv, balance)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return doc.GetBytes(), nil
}

func addHeader(m core.Maroto, inv *models.Invoice, studio *models.User) {
	studioName := studio.StudioName
	if studioName == "" {
		studioName = studio.Name
	}
	m.AddRow(12,
		text.NewCol(8, studioName, props.Text{Size: 16, Style: fontstyle.Bold}),
		text.NewCol(4, "INVOICE", props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(6,
		text.NewCol(8, "Billed to: "+inv.Client.Name, props.Text{Size: 9}),
		text.NewCol(4, inv.InvoiceNumber, props.Text{Size: 10, Align: align.Right}),
	)
	m.AddRow(6,
		text.NewCol(8, inv.ProjectName, props.Text{Size: 9}),
		text.NewCol(4, "Due "+inv.DueDate.Format("January 2, 2006"), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(4, line.NewCol(12))
}

func addItemTable(m core.Maroto, inv *models.Invoice) {
	m.AddRow(8,
		text.NewCol(6, "Service", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, "Qty", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Rate", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)
	for _, it := range inv.Items {
		m.AddRow(6,
			text.NewCol(6, it.Name, props.Text{Size: 9}),
			text.NewCol(2, it.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, "$"+it.UnitPrice.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, "$"+it.Total.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
		)
	}
}

func addContractorTable(m core.Maroto, inv *models.Invoice) {
	rows := make([]models.InvoiceContractor, 0, len(inv.Contractors))
	for _, c := range inv.Contractors {
		if c.IncludeInTotal {
			rows = append(rows, c)
		}
	}
	if len(rows) == 0 {
		return
	}
	m.AddRow(8, text.NewCol(12, "Session contractors", props.Text{Size: 9, Style: fontstyle.Bold}))
	for _, c := range rows {
		label := c.Contractor.Name
		if c.Skills != "" {
			label += " (" + c.Skills + ")"
		}
		m.AddRow(6,
			text.NewCol(10, label, props.Text{Size: 9}),
			text.NewCol(2, "$"+c.Cost.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
		)
	}
}

func addTotals(m core.Maroto, inv *models.Invoice, balance decimal.Decimal) {
	m.AddRow(4, line.NewCol(12))
	m.AddRow(6,
		text.NewCol(10, "Subtotal", props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, "$"+inv.Subtotal.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(6,
		text.NewCol(10, "Tax ("+inv.TaxRate.StringFixed(2)+"%)", props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, "$"+inv.TaxAmount.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(7,
		text.NewCol(10, "Total", props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "$"+inv.Total.StringFixed(2), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(7,
		text.NewCol(10, "Balance due", props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
		text.NewCol(2, "$"+balance.StringFixed(2), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}),
	)
}
