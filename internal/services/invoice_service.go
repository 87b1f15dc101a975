package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/mailer"
	"github.com/clefworks/studio-billing/internal/models"
	"github.com/clefworks/studio-billing/internal/validation"
)

// InvoiceService owns the invoice lifecycle and the settlement ledger:
// append-only payments, balance tracking, and separately billed contractor
// fee settlement.
type InvoiceService struct {
	DB      *gorm.DB
	Mailer  mailer.Mailer
	BaseURL string
}

func NewInvoiceService(db *gorm.DB, m mailer.Mailer, baseURL string) *InvoiceService {
	return &InvoiceService{DB: db, Mailer: m, BaseURL: baseURL}
}

// BalanceDue is the invoice total minus completed payments. Manual payments
// are capped at the balance less fees still reserved for tokens, and a fee
// settlement releases exactly the slice it pays, so this never goes negative.
func BalanceDue(db *gorm.DB, inv *models.Invoice) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := db.Model(&models.Payment{}).
		Where("invoice_id = ? AND status = ?", inv.ID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&paid).Error
	if err != nil {
		return decimal.Zero, err
	}
	return inv.Total.Sub(paid), nil
}

// reservedFeeCosts sums separately billed, still unsettled contractor fees.
// That slice of the invoice total is owed through fee tokens, not manual
// payments, so the manual path must not collect it a second time.
func reservedFeeCosts(tx *gorm.DB, invoiceID uint) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.Model(&models.InvoiceContractor{}).
		Where("invoice_id = ? AND billed_separately = ? AND include_in_total = ?", invoiceID, true, true).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&sum).Error
	return sum, err
}

// lockInvoice serializes ledger writers on one invoice. The row update takes a
// write lock held until commit on postgres and sqlite alike; FOR UPDATE is not
// portable to sqlite. Balance math done after this call cannot race another
// payment writer.
func lockInvoice(tx *gorm.DB, invoiceID uint, now time.Time) error {
	return tx.Model(&models.Invoice{}).Where("id = ?", invoiceID).
		Update("updated_at", now).Error
}

// settleIfPaid flips an open invoice to paid once the ledger covers the total,
// logging it exactly once. Caller must hold the invoice row lock.
func settleIfPaid(tx *gorm.DB, inv *models.Invoice) error {
	balance, err := BalanceDue(tx, inv)
	if err != nil {
		return err
	}
	if !balance.IsZero() {
		return nil
	}
	res := tx.Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", inv.ID, []string{models.InvoiceStatusDraft, models.InvoiceStatusSent, models.InvoiceStatusOverdue}).
		Update("status", models.InvoiceStatusPaid)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	inv.Status = models.InvoiceStatusPaid
	msg := fmt.Sprintf("Invoice %s paid in full", inv.InvoiceNumber)
	return appendActivity(tx, models.ActivityOwnerInvoice, inv.ID, "System", models.ActionInvoicePaid, msg)
}

// lazyOverdue flips a sent invoice past its due date to overdue and logs it
// once. Unlike quote expiry this is informational: reads still succeed.
func lazyOverdue(tx *gorm.DB, inv *models.Invoice, now time.Time) error {
	if inv.Status != models.InvoiceStatusSent || !now.After(inv.DueDate) {
		return nil
	}
	res := tx.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", inv.ID, models.InvoiceStatusSent).
		Update("status", models.InvoiceStatusOverdue)
	if res.Error != nil {
		return res.Error
	}
	inv.Status = models.InvoiceStatusOverdue
	if res.RowsAffected == 0 {
		return nil
	}
	msg := fmt.Sprintf("Invoice %s is overdue (due %s)", inv.InvoiceNumber, inv.DueDate.Format("2006-01-02"))
	return appendActivity(tx, models.ActivityOwnerInvoice, inv.ID, "System", models.ActionInvoiceOverdue, msg)
}

func (s *InvoiceService) loadInvoice(tx *gorm.DB, invoiceID uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order asc, id asc") }).
		Preload("Contractors.Contractor").
		Preload("Client").
		First(&inv, invoiceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Get returns an owned invoice plus its outstanding balance, flipping it to
// overdue first when past due.
func (s *InvoiceService) Get(userID, invoiceID uint) (*models.Invoice, decimal.Decimal, error) {
	var inv *models.Invoice
	var balance decimal.Decimal
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.loadInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.UserID != userID {
			return ErrNotFound
		}
		if err := lazyOverdue(tx, inv, time.Now()); err != nil {
			return err
		}
		balance, err = BalanceDue(tx, inv)
		return err
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return inv, balance, nil
}

// List returns the user's invoices, newest first.
func (s *InvoiceService) List(userID uint, query string, limit, offset int) ([]models.Invoice, int64, error) {
	dbq := s.DB.Where("user_id = ?", userID)
	if query != "" {
		like := "%" + strings.ToLower(query) + "%"
		dbq = dbq.Where("lower(status) LIKE ? OR lower(project_name) LIKE ? OR lower(invoice_number) LIKE ?", like, like, like)
	}
	var total int64
	if err := dbq.Model(&models.Invoice{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var invoices []models.Invoice
	err := dbq.Preload("Client").
		Order("id desc").Limit(limit).Offset(offset).
		Find(&invoices).Error
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// Payments returns an invoice's ledger rows in entry order.
func (s *InvoiceService) Payments(userID, invoiceID uint) ([]models.Payment, error) {
	var inv models.Invoice
	if err := s.DB.Where("user_id = ?", userID).First(&inv, invoiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var payments []models.Payment
	err := s.DB.Where("invoice_id = ?", inv.ID).Order("id asc").Find(&payments).Error
	return payments, err
}

// Send moves draft -> sent and emails the client.
func (s *InvoiceService) Send(userID, invoiceID uint) (*models.Invoice, error) {
	var inv *models.Invoice
	var clientEmail string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.loadInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.UserID != userID {
			return ErrNotFound
		}
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status = ?", inv.ID, models.InvoiceStatusDraft).
			Update("status", models.InvoiceStatusSent)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		inv.Status = models.InvoiceStatusSent
		clientEmail = inv.Client.Email
		msg := fmt.Sprintf("Invoice %s sent to %s (total $%s, due %s)",
			inv.InvoiceNumber, inv.Client.Name, inv.Total.StringFixed(2), inv.DueDate.Format("2006-01-02"))
		return appendActivity(tx, models.ActivityOwnerInvoice, inv.ID, "Studio", models.ActionInvoiceSent, msg)
	})
	if err != nil {
		return nil, err
	}
	if clientEmail != "" {
		html := fmt.Sprintf("<p>Invoice %s for %q is ready.</p><p>Total $%s, due %s.</p>",
			inv.InvoiceNumber, inv.ProjectName, inv.Total.StringFixed(2), inv.DueDate.Format("January 2, 2006"))
		if err := s.Mailer.Send(clientEmail, "Invoice "+inv.InvoiceNumber, html); err != nil {
			log.Printf("[mail] invoice %s send notification failed: %v", inv.InvoiceNumber, err)
		}
	}
	return inv, nil
}

// Cancel voids an unpaid invoice. Paid and already cancelled invoices stay put.
func (s *InvoiceService) Cancel(userID, invoiceID uint) (*models.Invoice, error) {
	var inv *models.Invoice
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		inv, err = s.loadInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.UserID != userID {
			return ErrNotFound
		}
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status IN ?", inv.ID, []string{models.InvoiceStatusDraft, models.InvoiceStatusSent, models.InvoiceStatusOverdue}).
			Update("status", models.InvoiceStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		inv.Status = models.InvoiceStatusCancelled
		msg := fmt.Sprintf("Invoice %s cancelled", inv.InvoiceNumber)
		return appendActivity(tx, models.ActivityOwnerInvoice, inv.ID, "Studio", models.ActionInvoiceCancelled, msg)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// PaymentInput is a manual ledger entry recorded by the studio.
type PaymentInput struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
}

// RecordPayment appends a completed payment to the ledger. The amount must
// not exceed the balance still collectable manually, which excludes fee costs
// reserved for separately billed contractor tokens; the cap is recomputed
// under the invoice row lock so concurrent payments cannot both pass it. When
// the full ledger covers the total the invoice flips to paid.
func (s *InvoiceService) RecordPayment(userID, invoiceID uint, in PaymentInput) (*models.Payment, error) {
	v := validation.Violations{}
	validation.PositiveDecimal("amount", in.Amount, v)
	validation.Required("payment_method", in.PaymentMethod, v)
	if !v.Empty() {
		return nil, &ValidationError{Fields: v}
	}
	now := time.Now()
	var payment models.Payment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.UserID != userID {
			return ErrNotFound
		}
		if err := lockInvoice(tx, inv.ID, now); err != nil {
			return err
		}
		if err := lazyOverdue(tx, inv, now); err != nil {
			return err
		}
		switch inv.Status {
		case models.InvoiceStatusSent, models.InvoiceStatusOverdue, models.InvoiceStatusDraft:
		case models.InvoiceStatusPaid:
			return ErrAlreadySettled
		default:
			return ErrConflict
		}
		balance, err := BalanceDue(tx, inv)
		if err != nil {
			return err
		}
		reserved, err := reservedFeeCosts(tx, inv.ID)
		if err != nil {
			return err
		}
		if in.Amount.GreaterThan(balance.Sub(reserved)) {
			return validationErr("amount", "exceeds_balance")
		}
		payment = models.Payment{
			InvoiceID:        inv.ID,
			Amount:           in.Amount,
			Currency:         "USD",
			PaymentMethod:    in.PaymentMethod,
			PaymentReference: in.Reference,
			Status:           models.PaymentStatusCompleted,
			TransactionID:    "txn_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
			ProcessedAt:      now,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return settleIfPaid(tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// BillSeparately mints one shared fee payment token covering the chosen
// contractor rows (all eligible rows when none are named) and marks them as
// billed outside the invoice total flow.
func (s *InvoiceService) BillSeparately(userID, invoiceID uint, rowIDs []uint) (string, []models.InvoiceContractor, error) {
	token := NewToken()
	var rows []models.InvoiceContractor
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadInvoice(tx, invoiceID)
		if err != nil {
			return err
		}
		if inv.UserID != userID {
			return ErrNotFound
		}
		q := tx.Where("invoice_id = ? AND include_in_total = ?", inv.ID, true)
		if len(rowIDs) > 0 {
			q = q.Where("id IN ?", rowIDs)
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return validationErr("contractors", "no_eligible_rows")
		}
		ids := make([]uint, 0, len(rows))
		for i := range rows {
			ids = append(ids, rows[i].ID)
			rows[i].BilledSeparately = true
			rows[i].FeePaymentToken = token
		}
		return tx.Model(&models.InvoiceContractor{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"billed_separately": true, "fee_payment_token": token}).Error
	})
	if err != nil {
		return "", nil, err
	}
	return token, rows, nil
}

// PayContractorFee settles the contractor fees behind a fee payment token in
// one shot. Each settled row gets its own ledger entry; rows share one
// transaction id and, when more than one settles, one bulk billing group id.
// The conditional flip of include_in_total is the idempotency guard: a second
// submission matches zero still-included rows and reports ErrAlreadySettled.
// When the fee payments bring the ledger up to the invoice total the invoice
// flips to paid.
func (s *InvoiceService) PayContractorFee(invoiceID uint, token string) ([]models.Payment, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	now := time.Now()
	var payments []models.Payment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var inv models.Invoice
		if err := tx.First(&inv, invoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := lockInvoice(tx, inv.ID, now); err != nil {
			return err
		}
		var rows []models.InvoiceContractor
		err := tx.Preload("Contractor").
			Where("invoice_id = ? AND billed_separately = ? AND fee_payment_token = ?", invoiceID, true, token).
			Find(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrNotFound
		}
		eligible := make([]models.InvoiceContractor, 0, len(rows))
		for _, r := range rows {
			if r.IncludeInTotal {
				eligible = append(eligible, r)
			}
		}
		if len(eligible) == 0 {
			return ErrAlreadySettled
		}

		ids := make([]uint, 0, len(eligible))
		for _, r := range eligible {
			ids = append(ids, r.ID)
		}
		res := tx.Model(&models.InvoiceContractor{}).
			Where("id IN ? AND include_in_total = ?", ids, true).
			Update("include_in_total", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(eligible)) {
			return ErrAlreadySettled
		}

		txnID := "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		groupID := ""
		if len(eligible) > 1 {
			groupID = uuid.NewString()
		}
		names := make([]string, 0, len(eligible))
		for _, r := range eligible {
			payments = append(payments, models.Payment{
				InvoiceID:          invoiceID,
				Amount:             r.Cost,
				Currency:           "USD",
				PaymentMethod:      "contractor_fee",
				PaymentReference:   fmt.Sprintf("Contractor fee for %s", r.Contractor.Name),
				Status:             models.PaymentStatusCompleted,
				TransactionID:      txnID,
				BulkBillingGroupID: groupID,
				ProcessedAt:        now,
			})
			names = append(names, r.Contractor.Name)
		}
		for i := range payments {
			if err := tx.Create(&payments[i]).Error; err != nil {
				return err
			}
		}
		msg := fmt.Sprintf("Contractor fees settled for %s", strings.Join(names, ", "))
		if err := appendActivity(tx, models.ActivityOwnerInvoice, invoiceID, "Client", models.ActionContractorFunded, msg); err != nil {
			return err
		}
		return settleIfPaid(tx, &inv)
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// ContractorFeeRows is the unauthenticated token-gated view of the fees a
// payer is asked to settle.
func (s *InvoiceService) ContractorFeeRows(invoiceID uint, token string) ([]models.InvoiceContractor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	var rows []models.InvoiceContractor
	err := s.DB.Preload("Contractor").
		Where("invoice_id = ? AND billed_separately = ? AND fee_payment_token = ?", invoiceID, true, token).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

// MarkOverdue is the optional background sweep for sent invoices past due.
func (s *InvoiceService) MarkOverdue() (int, error) {
	now := time.Now()
	var due []models.Invoice
	if err := s.DB.Where("status = ? AND due_date < ?", models.InvoiceStatusSent, now).Find(&due).Error; err != nil {
		return 0, err
	}
	flipped := 0
	for i := range due {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			return lazyOverdue(tx, &due[i], now)
		})
		if err != nil {
			return flipped, err
		}
		flipped++
	}
	return flipped, nil
}
