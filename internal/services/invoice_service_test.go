package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/mailer"
	"github.com/clefworks/studio-billing/internal/models"
)

func newInvoiceService(conn *gorm.DB) *InvoiceService {
	return NewInvoiceService(conn, mailer.LogMailer{}, "http://test.local")
}

func seedInvoice(t *testing.T, conn *gorm.DB, userID, clientID uint, total string, status string) models.Invoice {
	t.Helper()
	inv := models.Invoice{
		UserID:        userID,
		InvoiceNumber: "INV-2026-001",
		ClientID:      clientID,
		ProjectName:   "Album mix",
		Status:        status,
		Subtotal:      mustDecimal(total),
		TaxRate:       decimal.Zero,
		TaxAmount:     decimal.Zero,
		Total:         mustDecimal(total),
		DueDate:       time.Now().Add(14 * 24 * time.Hour),
	}
	if err := conn.Create(&inv).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func seedFeeRow(t *testing.T, conn *gorm.DB, invoiceID, contractorID uint, cost string) models.InvoiceContractor {
	t.Helper()
	row := models.InvoiceContractor{
		InvoiceID:      invoiceID,
		ContractorID:   contractorID,
		RateType:       models.RateTypeFlat,
		Cost:           mustDecimal(cost),
		IncludeInTotal: true,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("seed fee row: %v", err)
	}
	return row
}

func TestBalanceTracksPayments(t *testing.T) {
	conn := newTestDB(t, "balance_tracks")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	s := newInvoiceService(conn)

	_, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("300"), PaymentMethod: "transfer"})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	_, balance, err := s.Get(user.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(mustDecimal("200")) {
		t.Fatalf("balance = %s, want 200", balance)
	}
}

func TestOverpaymentRefused(t *testing.T) {
	conn := newTestDB(t, "overpayment")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	s := newInvoiceService(conn)

	if _, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("300"), PaymentMethod: "transfer"}); err != nil {
		t.Fatal(err)
	}
	_, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("200.01"), PaymentMethod: "transfer"})
	ve, ok := AsValidation(err)
	if !ok || ve.Fields["amount"] != "exceeds_balance" {
		t.Fatalf("err = %v, want exceeds_balance", err)
	}

	// the refused attempt left no ledger row
	var n int64
	conn.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&n)
	if n != 1 {
		t.Fatalf("payments = %d, want 1", n)
	}
}

func TestZeroBalanceFlipsToPaid(t *testing.T) {
	conn := newTestDB(t, "flip_to_paid")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	s := newInvoiceService(conn)

	if _, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("300"), PaymentMethod: "transfer"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("200"), PaymentMethod: "transfer"}); err != nil {
		t.Fatal(err)
	}

	got, balance, err := s.Get(user.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.InvoiceStatusPaid || !balance.IsZero() {
		t.Fatalf("status=%s balance=%s, want paid/0", got.Status, balance)
	}
	if n := countActivity(t, conn, models.ActivityOwnerInvoice, inv.ID, models.ActionInvoicePaid); n != 1 {
		t.Fatalf("INVOICE_PAID entries = %d, want 1", n)
	}

	// paying a paid invoice is refused
	_, err = s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("1"), PaymentMethod: "transfer"})
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("err = %v, want ErrAlreadySettled", err)
	}
}

func TestLazyOverdueLogsOnce(t *testing.T) {
	conn := newTestDB(t, "lazy_overdue")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	s := newInvoiceService(conn)

	past := time.Now().Add(-48 * time.Hour)
	if err := conn.Model(&models.Invoice{}).Where("id = ?", inv.ID).Update("due_date", past).Error; err != nil {
		t.Fatal(err)
	}

	got, _, err := s.Get(user.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.InvoiceStatusOverdue {
		t.Fatalf("status = %s, want overdue", got.Status)
	}
	if _, _, err := s.Get(user.ID, inv.ID); err != nil {
		t.Fatal(err)
	}
	if n := countActivity(t, conn, models.ActivityOwnerInvoice, inv.ID, models.ActionInvoiceOverdue); n != 1 {
		t.Fatalf("INVOICE_OVERDUE entries = %d, want 1", n)
	}

	// overdue invoices still accept payment
	if _, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("500"), PaymentMethod: "transfer"}); err != nil {
		t.Fatalf("pay overdue: %v", err)
	}
}

func TestCancelLifecycle(t *testing.T) {
	conn := newTestDB(t, "cancel_lifecycle")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	s := newInvoiceService(conn)

	open := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	got, err := s.Cancel(user.ID, open.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != models.InvoiceStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}

	paid := models.Invoice{
		UserID: user.ID, InvoiceNumber: "INV-2026-002", ClientID: client.ID,
		ProjectName: "Single", Status: models.InvoiceStatusPaid,
		Total: mustDecimal("100"), DueDate: time.Now().Add(24 * time.Hour),
	}
	if err := conn.Create(&paid).Error; err != nil {
		t.Fatal(err)
	}
	if _, err := s.Cancel(user.ID, paid.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("cancel paid err = %v, want ErrConflict", err)
	}
}

func TestBillSeparatelyMintsSharedToken(t *testing.T) {
	conn := newTestDB(t, "bill_separately")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	contractor := seedContractor(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	a := seedFeeRow(t, conn, inv.ID, contractor.ID, "100")
	b := seedFeeRow(t, conn, inv.ID, contractor.ID, "150")
	s := newInvoiceService(conn)

	token, rows, err := s.BillSeparately(user.ID, inv.ID, nil)
	if err != nil {
		t.Fatalf("bill separately: %v", err)
	}
	if token == "" || len(rows) != 2 {
		t.Fatalf("token=%q rows=%d", token, len(rows))
	}
	for _, id := range []uint{a.ID, b.ID} {
		var row models.InvoiceContractor
		if err := conn.First(&row, id).Error; err != nil {
			t.Fatal(err)
		}
		if !row.BilledSeparately || row.FeePaymentToken != token {
			t.Fatalf("row %d not marked: %+v", id, row)
		}
	}
}

func TestPayContractorFeeBulk(t *testing.T) {
	conn := newTestDB(t, "pay_fee_bulk")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	contractor := seedContractor(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	seedFeeRow(t, conn, inv.ID, contractor.ID, "100")
	seedFeeRow(t, conn, inv.ID, contractor.ID, "150")
	untouched := seedFeeRow(t, conn, inv.ID, contractor.ID, "75")
	s := newInvoiceService(conn)

	token, _, err := s.BillSeparately(user.ID, inv.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	// third row gets its own token afterwards, simulating a separate batch
	if err := conn.Model(&models.InvoiceContractor{}).Where("id = ?", untouched.ID).
		Update("fee_payment_token", NewToken()).Error; err != nil {
		t.Fatal(err)
	}

	payments, err := s.PayContractorFee(inv.ID, token)
	if err != nil {
		t.Fatalf("pay fee: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2", len(payments))
	}
	if payments[0].TransactionID != payments[1].TransactionID {
		t.Fatal("bulk payments should share one transaction id")
	}
	if payments[0].BulkBillingGroupID == "" || payments[0].BulkBillingGroupID != payments[1].BulkBillingGroupID {
		t.Fatal("bulk payments should share one billing group id")
	}
	if !payments[0].Amount.Add(payments[1].Amount).Equal(mustDecimal("250")) {
		t.Fatalf("amounts = %s + %s, want 250 total", payments[0].Amount, payments[1].Amount)
	}

	// the row outside this token's batch stays included
	var other models.InvoiceContractor
	if err := conn.First(&other, untouched.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !other.IncludeInTotal {
		t.Fatal("unrelated row was flipped")
	}
	if n := countActivity(t, conn, models.ActivityOwnerInvoice, inv.ID, models.ActionContractorFunded); n != 1 {
		t.Fatalf("CONTRACTOR_FUNDED entries = %d, want 1", n)
	}
}

func TestPayContractorFeeIdempotent(t *testing.T) {
	conn := newTestDB(t, "pay_fee_idempotent")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	contractor := seedContractor(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	seedFeeRow(t, conn, inv.ID, contractor.ID, "100")
	s := newInvoiceService(conn)

	token, _, err := s.BillSeparately(user.ID, inv.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	payments, err := s.PayContractorFee(inv.ID, token)
	if err != nil {
		t.Fatal(err)
	}
	if len(payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(payments))
	}
	// single settlement carries no bulk group id
	if payments[0].BulkBillingGroupID != "" {
		t.Fatalf("group id = %q, want empty", payments[0].BulkBillingGroupID)
	}

	// replaying the same token settles nothing and adds no ledger rows
	if _, err := s.PayContractorFee(inv.ID, token); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("replay err = %v, want ErrAlreadySettled", err)
	}
	var n int64
	conn.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&n)
	if n != 1 {
		t.Fatalf("payments = %d, want 1", n)
	}
}

func TestPayContractorFeeWrongToken(t *testing.T) {
	conn := newTestDB(t, "pay_fee_wrong_token")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	contractor := seedContractor(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusSent)
	seedFeeRow(t, conn, inv.ID, contractor.ID, "100")
	s := newInvoiceService(conn)

	if _, _, err := s.BillSeparately(user.ID, inv.ID, nil); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{"", "bogus"} {
		if _, err := s.PayContractorFee(inv.ID, bad); !errors.Is(err, ErrNotFound) {
			t.Fatalf("token %q err = %v, want ErrNotFound", bad, err)
		}
	}
}

func TestFeeSettlementRespectsInvoiceTotal(t *testing.T) {
	conn := newTestDB(t, "fee_respects_total")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	contractor := seedContractor(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "320", models.InvoiceStatusSent)
	seedFeeRow(t, conn, inv.ID, contractor.ID, "100")
	s := newInvoiceService(conn)

	token, _, err := s.BillSeparately(user.ID, inv.ID, nil)
	if err != nil {
		t.Fatal(err)
	}

	// the 100 owed through the fee token is not collectable manually
	_, err = s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("320"), PaymentMethod: "transfer"})
	ve, ok := AsValidation(err)
	if !ok || ve.Fields["amount"] != "exceeds_balance" {
		t.Fatalf("err = %v, want exceeds_balance", err)
	}
	if _, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("220"), PaymentMethod: "transfer"}); err != nil {
		t.Fatalf("pay client share: %v", err)
	}

	// client share alone does not settle the invoice
	got, balance, err := s.Get(user.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.InvoiceStatusSent || !balance.Equal(mustDecimal("100")) {
		t.Fatalf("status=%s balance=%s, want sent/100", got.Status, balance)
	}

	if _, err := s.PayContractorFee(inv.ID, token); err != nil {
		t.Fatalf("pay fee: %v", err)
	}
	got, balance, err = s.Get(user.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.InvoiceStatusPaid || !balance.IsZero() {
		t.Fatalf("status=%s balance=%s, want paid/0", got.Status, balance)
	}
	var paid decimal.Decimal
	if err := conn.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).
		Select("COALESCE(SUM(amount), 0)").Scan(&paid).Error; err != nil {
		t.Fatal(err)
	}
	if !paid.Equal(inv.Total) {
		t.Fatalf("ledger sum = %s, want %s", paid, inv.Total)
	}
	if n := countActivity(t, conn, models.ActivityOwnerInvoice, inv.ID, models.ActionInvoicePaid); n != 1 {
		t.Fatalf("INVOICE_PAID entries = %d, want 1", n)
	}
}

func TestManualCapTracksFeeSettlement(t *testing.T) {
	conn := newTestDB(t, "cap_tracks_fee")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	contractor := seedContractor(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "320", models.InvoiceStatusSent)
	seedFeeRow(t, conn, inv.ID, contractor.ID, "100")
	s := newInvoiceService(conn)

	token, _, err := s.BillSeparately(user.ID, inv.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.PayContractorFee(inv.ID, token); err != nil {
		t.Fatal(err)
	}

	// once the fee is settled its reservation is released, so the cap is
	// recomputed from the ledger as it stands, not from any earlier read
	_, err = s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("220.01"), PaymentMethod: "transfer"})
	if ve, ok := AsValidation(err); !ok || ve.Fields["amount"] != "exceeds_balance" {
		t.Fatalf("err = %v, want exceeds_balance", err)
	}
	if _, err := s.RecordPayment(user.ID, inv.ID, PaymentInput{Amount: mustDecimal("220"), PaymentMethod: "transfer"}); err != nil {
		t.Fatalf("pay remainder: %v", err)
	}
	got, balance, err := s.Get(user.ID, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.InvoiceStatusPaid || !balance.IsZero() {
		t.Fatalf("status=%s balance=%s, want paid/0", got.Status, balance)
	}
}

func TestSendInvoiceLogsAndFreezes(t *testing.T) {
	conn := newTestDB(t, "send_invoice")
	user := seedUser(t, conn)
	client := seedClient(t, conn, user.ID)
	inv := seedInvoice(t, conn, user.ID, client.ID, "500", models.InvoiceStatusDraft)
	s := newInvoiceService(conn)

	got, err := s.Send(user.ID, inv.ID)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Status != models.InvoiceStatusSent {
		t.Fatalf("status = %s, want sent", got.Status)
	}
	if n := countActivity(t, conn, models.ActivityOwnerInvoice, inv.ID, models.ActionInvoiceSent); n != 1 {
		t.Fatalf("INVOICE_SENT entries = %d, want 1", n)
	}
	if _, err := s.Send(user.ID, inv.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("second send err = %v, want ErrConflict", err)
	}
}
