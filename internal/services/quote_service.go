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
	"github.com/clefworks/studio-billing/internal/money"
	"github.com/clefworks/studio-billing/internal/validation"
)

const documentValidity = 30 * 24 * time.Hour

// QuoteService owns the quote lifecycle: draft -> sent -> approved/expired/rejected,
// including token-gated public access and materialization into an invoice on
// approval.
type QuoteService struct {
	DB      *gorm.DB
	Mailer  mailer.Mailer
	BaseURL string
}

func NewQuoteService(db *gorm.DB, m mailer.Mailer, baseURL string) *QuoteService {
	return &QuoteService{DB: db, Mailer: m, BaseURL: baseURL}
}

type QuoteItemInput struct {
	ServiceTemplateID *uint           `json:"service_template_id"`
	ContractorID      *uint           `json:"contractor_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Taxable           bool            `json:"taxable"`
	SortOrder         int             `json:"sort_order"`
}

type QuoteContractorInput struct {
	ContractorID   uint            `json:"contractor_id"`
	Skills         string          `json:"skills"`
	RateType       string          `json:"rate_type"`
	Hours          decimal.Decimal `json:"hours"`
	IncludeInTotal bool            `json:"include_in_total"`
	Notes          string          `json:"notes"`
}

type QuoteInput struct {
	ClientID           uint                   `json:"client_id"`
	ProjectName        string                 `json:"project_name"`
	ProjectDescription string                 `json:"project_description"`
	TaxRate            decimal.Decimal        `json:"tax_rate"` // percent
	ValidUntil         *time.Time             `json:"valid_until"`
	Notes              string                 `json:"notes"`
	Terms              string                 `json:"terms"`
	Items              []QuoteItemInput       `json:"items"`
	Contractors        []QuoteContractorInput `json:"contractors"`
}

func validateQuoteInput(in *QuoteInput) error {
	v := validation.Violations{}
	if in.ClientID == 0 {
		v["client_id"] = "required"
	}
	validation.Required("project_name", in.ProjectName, v)
	validation.RangeDecimal("tax_rate", in.TaxRate, decimal.Zero, decimal.NewFromInt(100), v)
	for _, it := range in.Items {
		if strings.TrimSpace(it.Name) == "" {
			v["items"] = "name_required"
		}
		if it.Quantity.Sign() <= 0 {
			v["items"] = "invalid_quantity"
		}
		if it.UnitPrice.Sign() < 0 {
			v["items"] = "invalid_unit_price"
		}
	}
	for _, c := range in.Contractors {
		if c.ContractorID == 0 {
			v["contractors"] = "contractor_id_required"
		}
		if c.Hours.Sign() < 0 {
			v["contractors"] = "invalid_hours"
		}
	}
	if !v.Empty() {
		return &ValidationError{Fields: v}
	}
	return nil
}

// recalcQuote recomputes item totals and document totals from live rows.
// Stored values are never trusted.
func recalcQuote(q *models.Quote) {
	lines := make([]money.Line, 0, len(q.Items))
	for i := range q.Items {
		it := &q.Items[i]
		it.Total = money.LineTotal(it.Quantity, it.UnitPrice)
		lines = append(lines, money.Line{Quantity: it.Quantity, UnitPrice: it.UnitPrice, Taxable: it.Taxable})
	}
	t := money.Compute(lines, q.TaxRate)
	q.Subtotal = t.Subtotal
	q.TaxAmount = t.TaxAmount
	q.Total = t.Total
}

// contractorAddendum sums assignment costs flagged IncludeInTotal.
func contractorAddendum(rows []models.QuoteContractor) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range rows {
		if c.IncludeInTotal {
			sum = sum.Add(c.Cost)
		}
	}
	return sum
}

// PayableTotal is the amount the client settles at approval: recomputed quote
// total plus included contractor costs.
func PayableTotal(q *models.Quote) decimal.Decimal {
	return q.Total.Add(contractorAddendum(q.Contractors))
}

// buildAssignments resolves contractor inputs against the user's contractor
// records and computes each assignment cost server-side.
func (s *QuoteService) buildAssignments(tx *gorm.DB, userID uint, inputs []QuoteContractorInput) ([]models.QuoteContractor, error) {
	rows := make([]models.QuoteContractor, 0, len(inputs))
	for _, in := range inputs {
		var c models.Contractor
		if err := tx.Where("user_id = ?", userID).First(&c, in.ContractorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, validationErr("contractors", "unknown_contractor")
			}
			return nil, err
		}
		rateType := in.RateType
		if rateType == "" {
			rateType = c.RateType
		}
		if rateType != models.RateTypeHourly && rateType != models.RateTypeFlat {
			return nil, validationErr("contractors", "invalid_rate_type")
		}
		cost := c.FlatRate
		if rateType == models.RateTypeHourly {
			cost = in.Hours.Mul(c.HourlyRate).Round(2)
		}
		rows = append(rows, models.QuoteContractor{
			ContractorID:   c.ID,
			Skills:         in.Skills,
			RateType:       rateType,
			Hours:          in.Hours,
			Cost:           cost,
			IncludeInTotal: in.IncludeInTotal,
			Notes:          in.Notes,
		})
	}
	return rows, nil
}

func buildItems(inputs []QuoteItemInput) []models.QuoteItem {
	items := make([]models.QuoteItem, 0, len(inputs))
	for i, in := range inputs {
		sort := in.SortOrder
		if sort == 0 {
			sort = i
		}
		items = append(items, models.QuoteItem{
			ServiceTemplateID: in.ServiceTemplateID,
			ContractorID:      in.ContractorID,
			Name:              in.Name,
			Description:       in.Description,
			Quantity:          in.Quantity,
			UnitPrice:         in.UnitPrice,
			Total:             money.LineTotal(in.Quantity, in.UnitPrice),
			Taxable:           in.Taxable,
			SortOrder:         sort,
		})
	}
	return items
}

// Create makes a new draft quote with server-computed totals.
func (s *QuoteService) Create(userID uint, in QuoteInput) (*models.Quote, error) {
	if err := validateQuoteInput(&in); err != nil {
		return nil, err
	}
	var q models.Quote
	op := func() error {
		return s.DB.Transaction(func(tx *gorm.DB) error {
			var client models.Client
			if err := tx.Where("user_id = ?", userID).First(&client, in.ClientID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return validationErr("client_id", "unknown_client")
				}
				return err
			}
			var count int64
			if err := tx.Model(&models.Quote{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
				return err
			}
			contractors, err := s.buildAssignments(tx, userID, in.Contractors)
			if err != nil {
				return err
			}
			q = models.Quote{
				UserID:             userID,
				QuoteNumber:        fmt.Sprintf("QUO-%d-%03d", time.Now().Year(), count+1),
				ClientID:           client.ID,
				ProjectName:        in.ProjectName,
				ProjectDescription: in.ProjectDescription,
				Status:             models.QuoteStatusDraft,
				TaxRate:            in.TaxRate,
				ValidUntil:         in.ValidUntil,
				Notes:              in.Notes,
				Terms:              in.Terms,
				Items:              buildItems(in.Items),
				Contractors:        contractors,
			}
			recalcQuote(&q)
			return tx.Create(&q).Error
		})
	}
	if err := withNumberRetry(op); err != nil {
		return nil, err
	}
	return &q, nil
}

// UpdateDraft replaces a draft quote's content wholesale and recomputes totals.
// Sent quotes are frozen: the client must approve what they were sent.
func (s *QuoteService) UpdateDraft(userID, quoteID uint, in QuoteInput) (*models.Quote, error) {
	if err := validateQuoteInput(&in); err != nil {
		return nil, err
	}
	var q models.Quote
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).First(&q, quoteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if q.Status != models.QuoteStatusDraft {
			return ErrConflict
		}
		var client models.Client
		if err := tx.Where("user_id = ?", userID).First(&client, in.ClientID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return validationErr("client_id", "unknown_client")
			}
			return err
		}
		if err := tx.Where("quote_id = ?", q.ID).Delete(&models.QuoteItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quote_id = ?", q.ID).Delete(&models.QuoteContractor{}).Error; err != nil {
			return err
		}
		contractors, err := s.buildAssignments(tx, userID, in.Contractors)
		if err != nil {
			return err
		}
		q.ClientID = client.ID
		q.ProjectName = in.ProjectName
		q.ProjectDescription = in.ProjectDescription
		q.TaxRate = in.TaxRate
		q.ValidUntil = in.ValidUntil
		q.Notes = in.Notes
		q.Terms = in.Terms
		q.Items = buildItems(in.Items)
		q.Contractors = contractors
		recalcQuote(&q)
		return tx.Save(&q).Error
	})
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Delete removes a draft quote. Anything past draft is part of the audit trail.
func (s *QuoteService) Delete(userID, quoteID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var q models.Quote
		if err := tx.Where("user_id = ?", userID).First(&q, quoteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if q.Status != models.QuoteStatusDraft {
			return ErrConflict
		}
		if err := tx.Where("quote_id = ?", q.ID).Delete(&models.QuoteItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("quote_id = ?", q.ID).Delete(&models.QuoteContractor{}).Error; err != nil {
			return err
		}
		return tx.Delete(&q).Error
	})
}

// lazyExpire flips a sent quote past its validity window to expired and logs
// it, atomically. The conditional predicate makes a losing concurrent writer
// affect zero rows. Returns true when the quote is expired (newly or already).
func lazyExpire(tx *gorm.DB, q *models.Quote, now time.Time) (bool, error) {
	if q.Status == models.QuoteStatusExpired {
		return true, nil
	}
	if q.Status != models.QuoteStatusSent || q.ValidUntil == nil || !now.After(*q.ValidUntil) {
		return false, nil
	}
	res := tx.Model(&models.Quote{}).
		Where("id = ? AND status = ?", q.ID, models.QuoteStatusSent).
		Update("status", models.QuoteStatusExpired)
	if res.Error != nil {
		return false, res.Error
	}
	q.Status = models.QuoteStatusExpired
	if res.RowsAffected == 0 {
		// another request already flipped it and logged the entry
		return true, nil
	}
	msg := fmt.Sprintf("Quote %s expired (valid until %s)", q.QuoteNumber, q.ValidUntil.Format("2006-01-02"))
	if err := appendActivity(tx, models.ActivityOwnerQuote, q.ID, "System", models.ActionQuoteExpired, msg); err != nil {
		return false, err
	}
	return true, nil
}

func (s *QuoteService) loadQuote(tx *gorm.DB, quoteID uint) (*models.Quote, error) {
	var q models.Quote
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order asc, id asc") }).
		Preload("Contractors.Contractor").
		Preload("Client").
		First(&q, quoteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// expireIfDue runs lazy expiry in its own committed transaction. The flip and
// its log entry must survive even when the caller goes on to report an error.
func (s *QuoteService) expireIfDue(q *models.Quote, now time.Time) (bool, error) {
	expired := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		expired, err = lazyExpire(tx, q, now)
		return err
	})
	return expired, err
}

// Get returns an owned quote with live-recomputed totals. Reading a quote past
// its validity window expires it first and reports ErrExpired.
func (s *QuoteService) Get(userID, quoteID uint) (*models.Quote, error) {
	q, err := s.loadQuote(s.DB, quoteID)
	if err != nil {
		return nil, err
	}
	if q.UserID != userID {
		return nil, ErrNotFound
	}
	expired, err := s.expireIfDue(q, time.Now())
	if err != nil {
		return nil, err
	}
	if err := refreshQuoteTotals(s.DB, q); err != nil {
		return nil, err
	}
	if expired {
		return q, ErrExpired
	}
	return q, nil
}

// refreshQuoteTotals recomputes totals and persists them when the stored cache
// drifted from the live item rows.
func refreshQuoteTotals(tx *gorm.DB, q *models.Quote) error {
	storedSub, storedTax, storedTotal := q.Subtotal, q.TaxAmount, q.Total
	recalcQuote(q)
	if storedSub.Equal(q.Subtotal) && storedTax.Equal(q.TaxAmount) && storedTotal.Equal(q.Total) {
		return nil
	}
	return tx.Model(&models.Quote{}).Where("id = ?", q.ID).
		Updates(map[string]any{"subtotal": q.Subtotal, "tax_amount": q.TaxAmount, "total": q.Total}).Error
}

// List returns the user's quotes, newest first, with in-memory recomputed totals.
func (s *QuoteService) List(userID uint, query string, limit, offset int) ([]models.Quote, int64, error) {
	dbq := s.DB.Where("user_id = ?", userID)
	if query != "" {
		like := "%" + strings.ToLower(query) + "%"
		dbq = dbq.Where("lower(status) LIKE ? OR lower(project_name) LIKE ? OR lower(quote_number) LIKE ?", like, like, like)
	}
	var total int64
	if err := dbq.Model(&models.Quote{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var quotes []models.Quote
	err := dbq.Preload("Items").Preload("Client").
		Order("id desc").Limit(limit).Offset(offset).
		Find(&quotes).Error
	if err != nil {
		return nil, 0, err
	}
	for i := range quotes {
		recalcQuote(&quotes[i])
	}
	return quotes, total, nil
}

// Send mints the approval token and moves draft -> sent. The public link is
// emailed to the client; a send failure is logged, never rolled back.
func (s *QuoteService) Send(userID, quoteID uint) (*models.Quote, error) {
	now := time.Now()
	var q *models.Quote
	var clientEmail string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		q, err = s.loadQuote(tx, quoteID)
		if err != nil {
			return err
		}
		if q.UserID != userID {
			return ErrNotFound
		}
		if len(q.Items) == 0 {
			return validationErr("items", "required")
		}
		token := NewToken()
		validUntil := q.ValidUntil
		if validUntil == nil {
			vu := now.Add(documentValidity)
			validUntil = &vu
		}
		if err := refreshQuoteTotals(tx, q); err != nil {
			return err
		}
		res := tx.Model(&models.Quote{}).
			Where("id = ? AND status = ?", q.ID, models.QuoteStatusDraft).
			Updates(map[string]any{"status": models.QuoteStatusSent, "approval_token": token, "valid_until": validUntil})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		q.Status = models.QuoteStatusSent
		q.ApprovalToken = token
		q.ValidUntil = validUntil
		clientEmail = q.Client.Email
		msg := fmt.Sprintf("Quote %s sent to %s (total $%s)", q.QuoteNumber, q.Client.Name, PayableTotal(q).StringFixed(2))
		return appendActivity(tx, models.ActivityOwnerQuote, q.ID, "Studio", models.ActionQuoteSent, msg)
	})
	if err != nil {
		return nil, err
	}
	if clientEmail != "" {
		link := fmt.Sprintf("%s/public/quote?id=%d&token=%s", s.BaseURL, q.ID, q.ApprovalToken)
		html := fmt.Sprintf("<p>You have received quote %s for %q.</p><p><a href=%q>Review and approve</a></p>", q.QuoteNumber, q.ProjectName, link)
		if err := s.Mailer.Send(clientEmail, "Quote "+q.QuoteNumber, html); err != nil {
			log.Printf("[mail] quote %s send notification failed: %v", q.QuoteNumber, err)
		}
	}
	return q, nil
}

// checkPublicAccess runs lazy expiry then token validation. Failures collapse
// to ErrNotFound so an unauthenticated caller cannot distinguish wrong id,
// wrong token and wrong state; only a matching token may learn the quote
// expired or was already decided.
func (s *QuoteService) checkPublicAccess(q *models.Quote, token string, now time.Time) error {
	expired, err := s.expireIfDue(q, now)
	if err != nil {
		return err
	}
	if !tokenMatches(q.ApprovalToken, token) {
		return ErrNotFound
	}
	if expired {
		return ErrExpired
	}
	switch q.Status {
	case models.QuoteStatusSent:
		return nil
	case models.QuoteStatusApproved, models.QuoteStatusRejected:
		return ErrAlreadySettled
	default:
		return ErrNotFound
	}
}

// PublicQuote is the unauthenticated token-gated read.
func (s *QuoteService) PublicQuote(quoteID uint, token string) (*models.Quote, error) {
	q, err := s.loadQuote(s.DB, quoteID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPublicAccess(q, token, time.Now()); err != nil {
		return nil, err
	}
	if err := refreshQuoteTotals(s.DB, q); err != nil {
		return nil, err
	}
	return q, nil
}

// ApproveInput is the public approval payload.
type ApproveInput struct {
	Token         string          `json:"token"`
	TermsAgreed   bool            `json:"terms_agreed"`
	PaymentOption string          `json:"payment_option"` // deposit, full
	Amount        decimal.Decimal `json:"amount"`
}

// Approve executes sent -> approved and, inseparably, materializes the invoice
// and records the settlement payment. Everything happens in one transaction:
// a failure anywhere leaves the quote untouched.
func (s *QuoteService) Approve(quoteID uint, in ApproveInput) (*models.Invoice, error) {
	v := validation.Violations{}
	validation.Required("token", in.Token, v)
	validation.OneOf("payment_option", in.PaymentOption, []string{"deposit", "full"}, v)
	validation.PositiveDecimal("amount", in.Amount, v)
	if !v.Empty() {
		return nil, &ValidationError{Fields: v}
	}

	now := time.Now()
	var inv *models.Invoice
	var q *models.Quote
	op := func() error {
		inv = nil
		var err error
		q, err = s.loadQuote(s.DB, quoteID)
		if err != nil {
			return err
		}
		// expiry commits on its own so the flip survives a refused approval
		if err := s.checkPublicAccess(q, in.Token, now); err != nil {
			return err
		}
		if !in.TermsAgreed {
			return validationErr("terms_agreed", "required")
		}
		return s.DB.Transaction(func(tx *gorm.DB) error {
			if err := refreshQuoteTotals(tx, q); err != nil {
				return err
			}
			payable := PayableTotal(q)
			expected := payable
			if in.PaymentOption == "deposit" {
				expected = money.Deposit(payable)
			}
			if !in.Amount.Equal(expected) {
				return validationErr("amount", "amount_mismatch")
			}

			res := tx.Model(&models.Quote{}).
				Where("id = ? AND status = ?", q.ID, models.QuoteStatusSent).
				Updates(map[string]any{"status": models.QuoteStatusApproved, "approved_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrAlreadySettled
			}
			q.Status = models.QuoteStatusApproved
			q.ApprovedAt = &now

			summary := fmt.Sprintf("%s payment of $%s against total $%s", paymentOptionLabel(in.PaymentOption), in.Amount.StringFixed(2), payable.StringFixed(2))
			if err := appendActivity(tx, models.ActivityOwnerQuote, q.ID, "Client", models.ActionTermsAgreed, "Client agreed to the quoted terms; "+summary); err != nil {
				return err
			}
			if err := appendActivity(tx, models.ActivityOwnerQuote, q.ID, "Client", models.ActionQuoteApproved, "Quote approved; "+summary); err != nil {
				return err
			}

			inv, err = materialize(tx, q, payable, in, now)
			if err != nil {
				return err
			}
			return tx.Model(&models.Quote{}).Where("id = ?", q.ID).Update("invoice_id", inv.ID).Error
		})
	}
	if err := withNumberRetry(op); err != nil {
		return nil, err
	}

	if q.Client.Email != "" {
		html := fmt.Sprintf("<p>Thank you! Quote %s was approved and invoice %s was issued.</p><p>Payment of $%s received.</p>",
			q.QuoteNumber, inv.InvoiceNumber, in.Amount.StringFixed(2))
		if err := s.Mailer.Send(q.Client.Email, "Payment confirmation "+inv.InvoiceNumber, html); err != nil {
			log.Printf("[mail] invoice %s confirmation failed: %v", inv.InvoiceNumber, err)
		}
	}
	return inv, nil
}

func paymentOptionLabel(opt string) string {
	if opt == "deposit" {
		return "Deposit"
	}
	return "Full"
}

// materialize snapshots the approved quote into a new invoice: frozen item and
// contractor copies, activity history carried over verbatim, sequential
// invoice number, and the approval payment recorded against the new invoice.
func materialize(tx *gorm.DB, q *models.Quote, payable decimal.Decimal, in ApproveInput, now time.Time) (*models.Invoice, error) {
	var count int64
	if err := tx.Model(&models.Invoice{}).Where("user_id = ?", q.UserID).Count(&count).Error; err != nil {
		return nil, err
	}
	inv := models.Invoice{
		UserID:             q.UserID,
		InvoiceNumber:      fmt.Sprintf("INV-%d-%03d", now.Year(), count+1),
		ClientID:           q.ClientID,
		QuoteID:            q.ID,
		ProjectName:        q.ProjectName,
		ProjectDescription: q.ProjectDescription,
		Status:             models.InvoiceStatusDraft,
		Subtotal:           q.Subtotal,
		TaxRate:            q.TaxRate,
		TaxAmount:          q.TaxAmount,
		Total:              payable,
		DueDate:            now.Add(documentValidity),
	}
	for _, it := range q.Items {
		inv.Items = append(inv.Items, models.InvoiceItem{
			ServiceTemplateID: it.ServiceTemplateID,
			ContractorID:      it.ContractorID,
			Name:              it.Name,
			Description:       it.Description,
			Quantity:          it.Quantity,
			UnitPrice:         it.UnitPrice,
			Total:             it.Total,
			Taxable:           it.Taxable,
			SortOrder:         it.SortOrder,
		})
	}
	for _, c := range q.Contractors {
		inv.Contractors = append(inv.Contractors, models.InvoiceContractor{
			ContractorID:   c.ContractorID,
			Skills:         c.Skills,
			RateType:       c.RateType,
			Hours:          c.Hours,
			Cost:           c.Cost,
			IncludeInTotal: c.IncludeInTotal,
			Notes:          c.Notes,
		})
	}
	if err := tx.Create(&inv).Error; err != nil {
		return nil, err
	}
	if err := copyActivity(tx, q.ID, inv.ID); err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("Invoice %s created from quote %s", inv.InvoiceNumber, q.QuoteNumber)
	if err := appendActivity(tx, models.ActivityOwnerInvoice, inv.ID, "System", models.ActionInvoiceCreated, msg); err != nil {
		return nil, err
	}
	payment := models.Payment{
		InvoiceID:        inv.ID,
		Amount:           in.Amount,
		Currency:         "USD",
		PaymentMethod:    "card",
		PaymentReference: fmt.Sprintf("%s payment on approval of quote %s", paymentOptionLabel(in.PaymentOption), q.QuoteNumber),
		Status:           models.PaymentStatusCompleted,
		TransactionID:    "txn_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		ProcessedAt:      now,
	}
	if err := tx.Create(&payment).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// withNumberRetry re-runs an operation that allocates a sequential document
// number when the unique (user, number) index detects a concurrent allocation.
func withNumberRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return err
}

// FeedbackInput is the public rejection payload.
type FeedbackInput struct {
	Token   string   `json:"token"`
	Reasons []string `json:"reasons"`
	Comment string   `json:"comment"`
}

// Reject records client feedback against a sent quote and moves it to
// rejected. No monetary side effects.
func (s *QuoteService) Reject(quoteID uint, in FeedbackInput) error {
	if strings.TrimSpace(in.Token) == "" {
		return validationErr("token", "required")
	}
	now := time.Now()
	q, err := s.loadQuote(s.DB, quoteID)
	if err != nil {
		return err
	}
	if err := s.checkPublicAccess(q, in.Token, now); err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Quote{}).
			Where("id = ? AND status = ?", q.ID, models.QuoteStatusSent).
			Update("status", models.QuoteStatusRejected)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySettled
		}
		msg := "Quote rejected by client"
		if len(in.Reasons) > 0 {
			msg += ": " + strings.Join(in.Reasons, ", ")
		}
		if strings.TrimSpace(in.Comment) != "" {
			msg += " (" + strings.TrimSpace(in.Comment) + ")"
		}
		return appendActivity(tx, models.ActivityOwnerQuote, q.ID, "Client", models.ActionQuoteRejected, msg)
	})
}

// ExpireDue is the optional background sweep: expires every sent quote past
// its validity window. Lazy expire-on-read remains the guarantee; this only
// tidies up ahead of time.
func (s *QuoteService) ExpireDue() (int, error) {
	now := time.Now()
	var due []models.Quote
	if err := s.DB.Where("status = ? AND valid_until IS NOT NULL AND valid_until < ?", models.QuoteStatusSent, now).Find(&due).Error; err != nil {
		return 0, err
	}
	expired := 0
	for i := range due {
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			_, err := lazyExpire(tx, &due[i], now)
			return err
		})
		if err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}
