// Package money holds the pure total-recalculation functions. Stored
// subtotal/tax/total values anywhere else in the app are caches of what these
// functions return; they are recomputed from live line items before being
// trusted for display, approval-amount validation or invoice materialization.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Line is the minimal view of a quote/invoice line item needed for totals.
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Taxable   bool
}

// Totals is the derived monetary state of a document.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// LineTotal computes one line's total, rounded to 2 decimals per line.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Round(2)
}

// Compute derives subtotal, tax and total from line items and a tax rate
// expressed in percent. Rounding is applied per line, then once on the tax
// amount. Pure: no side effects, no error path.
func Compute(lines []Line, taxRatePercent decimal.Decimal) Totals {
	subtotal := decimal.Zero
	taxableBase := decimal.Zero
	for _, l := range lines {
		lt := LineTotal(l.Quantity, l.UnitPrice)
		subtotal = subtotal.Add(lt)
		if l.Taxable {
			taxableBase = taxableBase.Add(lt)
		}
	}
	tax := taxableBase.Mul(taxRatePercent).Div(hundred).Round(2)
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}

// Deposit is the half-total deposit amount offered at quote approval.
func Deposit(total decimal.Decimal) decimal.Decimal {
	return total.Div(decimal.NewFromInt(2)).Round(2)
}
