package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/config"
	"github.com/clefworks/studio-billing/internal/db"
	"github.com/clefworks/studio-billing/internal/models"
)

func newTestApp(t *testing.T, name string) (*httptest.Server, *http.Client, *gorm.DB) {
	t.Helper()
	conn, err := db.Connect("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	app := New(conn, config.Config{PublicBaseURL: "http://test.local"})
	ts := httptest.NewServer(app.Handler)
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return ts, &http.Client{Jar: jar}, conn
}

func postJSON(t *testing.T, c *http.Client, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := c.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func signup(t *testing.T, c *http.Client, baseURL, email string) {
	t.Helper()
	resp := postJSON(t, c, baseURL+"/signup", map[string]any{
		"email": email, "password": "correcthorse", "name": "Sam", "studio_name": "Clef Works",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	ts, _, _ := newTestApp(t, "auth_required")
	// no session cookie
	resp, err := http.Get(ts.URL + "/quotes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSignupLoginMe(t *testing.T) {
	ts, c, _ := newTestApp(t, "signup_login")
	signup(t, c, ts.URL, "sam@studio.test")

	resp, err := c.Get(ts.URL + "/me")
	if err != nil {
		t.Fatal(err)
	}
	var me map[string]any
	decodeBody(t, resp, &me)
	if me["email"] != "sam@studio.test" {
		t.Fatalf("me = %v", me)
	}

	resp = postJSON(t, c, ts.URL+"/logout", nil)
	resp.Body.Close()
	resp, err = c.Get(ts.URL + "/me")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", resp.StatusCode)
	}

	resp = postJSON(t, c, ts.URL+"/login", map[string]string{"email": "sam@studio.test", "password": "correcthorse"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
}

func TestLoginBadPassword(t *testing.T) {
	ts, c, _ := newTestApp(t, "login_bad")
	signup(t, c, ts.URL, "sam@studio.test")
	resp := postJSON(t, c, ts.URL+"/login", map[string]string{"email": "sam@studio.test", "password": "wrong"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

// Full journey: client and quote created over the API, quote sent, then
// approved through the public token link, producing an invoice with the
// approval payment on its ledger.
func TestQuoteApprovalJourney(t *testing.T) {
	ts, c, _ := newTestApp(t, "approval_journey")
	signup(t, c, ts.URL, "sam@studio.test")

	var client struct {
		ID uint `json:"ID"`
	}
	resp := postJSON(t, c, ts.URL+"/clients", map[string]string{"name": "Ava Band", "email": "ava@example.test"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create client status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &client)

	quoteBody := map[string]any{
		"client_id":    client.ID,
		"project_name": "EP recording",
		"tax_rate":     "10",
		"items": []map[string]any{
			{"name": "Tracking", "quantity": "1", "unit_price": "100", "taxable": true},
			{"name": "Mixing", "quantity": "1", "unit_price": "100", "taxable": true},
		},
	}
	var created struct {
		Quote struct {
			ID uint `json:"ID"`
		} `json:"quote"`
	}
	resp = postJSON(t, c, ts.URL+"/quotes", quoteBody)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create quote status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)

	var sent struct {
		Quote struct {
			ID            uint   `json:"ID"`
			ApprovalToken string `json:"ApprovalToken"`
		} `json:"quote"`
		PayableTotal  string `json:"payable_total"`
		DepositAmount string `json:"deposit_amount"`
	}
	resp = postJSON(t, c, fmt.Sprintf("%s/quotes/send?id=%d", ts.URL, created.Quote.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send quote status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &sent)
	if sent.Quote.ApprovalToken == "" {
		t.Fatal("no approval token in send response")
	}
	if sent.DepositAmount != "110" {
		t.Fatalf("deposit = %s, want 110", sent.DepositAmount)
	}

	// the public read needs no session
	anon := &http.Client{}
	resp, err := anon.Get(fmt.Sprintf("%s/public/quote?id=%d&token=%s", ts.URL, sent.Quote.ID, sent.Quote.ApprovalToken))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public read status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// wrong token is indistinguishable from a missing quote
	resp, err = anon.Get(fmt.Sprintf("%s/public/quote?id=%d&token=wrong", ts.URL, sent.Quote.ID))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("wrong token status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	var approved struct {
		InvoiceID     uint   `json:"invoice_id"`
		InvoiceNumber string `json:"invoice_number"`
		Total         string `json:"total"`
	}
	resp = postJSON(t, anon, fmt.Sprintf("%s/public/quote/approve?id=%d", ts.URL, sent.Quote.ID), map[string]any{
		"token": sent.Quote.ApprovalToken, "terms_agreed": true, "payment_option": "deposit", "amount": "110",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &approved)
	if approved.Total != "220" {
		t.Fatalf("invoice total = %s, want 220", approved.Total)
	}

	// the studio sees the invoice with the deposit already on its ledger
	var invView struct {
		BalanceDue string `json:"balance_due"`
	}
	resp, err = c.Get(fmt.Sprintf("%s/invoices/item?id=%d", ts.URL, approved.InvoiceID))
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &invView)
	if invView.BalanceDue != "110" {
		t.Fatalf("balance = %s, want 110", invView.BalanceDue)
	}

	// replaying the approval conflicts
	resp = postJSON(t, anon, fmt.Sprintf("%s/public/quote/approve?id=%d", ts.URL, sent.Quote.ID), map[string]any{
		"token": sent.Quote.ApprovalToken, "terms_agreed": true, "payment_option": "deposit", "amount": "110",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay status = %d, want 409", resp.StatusCode)
	}
}

func TestPublicFeedbackRejectsQuote(t *testing.T) {
	ts, c, _ := newTestApp(t, "feedback_reject")
	signup(t, c, ts.URL, "sam@studio.test")

	var client struct {
		ID uint `json:"ID"`
	}
	resp := postJSON(t, c, ts.URL+"/clients", map[string]string{"name": "Ava Band", "email": "ava@example.test"})
	decodeBody(t, resp, &client)

	var created struct {
		Quote struct {
			ID uint `json:"ID"`
		} `json:"quote"`
	}
	resp = postJSON(t, c, ts.URL+"/quotes", map[string]any{
		"client_id": client.ID, "project_name": "Demo", "tax_rate": "0",
		"items": []map[string]any{{"name": "Session", "quantity": "1", "unit_price": "50", "taxable": false}},
	})
	decodeBody(t, resp, &created)

	var sent struct {
		Quote struct {
			ApprovalToken string `json:"ApprovalToken"`
		} `json:"quote"`
	}
	resp = postJSON(t, c, fmt.Sprintf("%s/quotes/send?id=%d", ts.URL, created.Quote.ID), nil)
	decodeBody(t, resp, &sent)

	anon := &http.Client{}
	resp = postJSON(t, anon, fmt.Sprintf("%s/public/quote/feedback?id=%d", ts.URL, created.Quote.ID), map[string]any{
		"token": sent.Quote.ApprovalToken, "reasons": []string{"price"}, "comment": "too high",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("feedback status = %d", resp.StatusCode)
	}

	// quote is now terminally rejected: the link reports a conflict
	resp, err := anon.Get(fmt.Sprintf("%s/public/quote?id=%d&token=%s", ts.URL, created.Quote.ID, sent.Quote.ApprovalToken))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("read after reject status = %d, want 409", resp.StatusCode)
	}
}

func TestOwnerReadOfExpiredQuote(t *testing.T) {
	ts, c, conn := newTestApp(t, "owner_expired_read")
	signup(t, c, ts.URL, "sam@studio.test")

	var client struct {
		ID uint `json:"ID"`
	}
	resp := postJSON(t, c, ts.URL+"/clients", map[string]string{"name": "Ava Band", "email": "ava@example.test"})
	decodeBody(t, resp, &client)

	var created struct {
		Quote struct {
			ID uint `json:"ID"`
		} `json:"quote"`
	}
	resp = postJSON(t, c, ts.URL+"/quotes", map[string]any{
		"client_id": client.ID, "project_name": "Demo", "tax_rate": "0",
		"items": []map[string]any{{"name": "Session", "quantity": "1", "unit_price": "50", "taxable": false}},
	})
	decodeBody(t, resp, &created)
	resp = postJSON(t, c, fmt.Sprintf("%s/quotes/send?id=%d", ts.URL, created.Quote.ID), nil)
	resp.Body.Close()

	past := time.Now().Add(-24 * time.Hour)
	if err := conn.Model(&models.Quote{}).Where("id = ?", created.Quote.ID).
		Update("valid_until", past).Error; err != nil {
		t.Fatal(err)
	}

	// the owner still gets the document, with the expiry flagged
	resp, err := c.Get(fmt.Sprintf("%s/quotes/item?id=%d", ts.URL, created.Quote.ID))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner read status = %d, want 200", resp.StatusCode)
	}
	var view struct {
		Quote struct {
			Status string `json:"Status"`
		} `json:"quote"`
		Expired bool `json:"expired"`
	}
	decodeBody(t, resp, &view)
	if !view.Expired {
		t.Fatal("expired flag not set")
	}
	if view.Quote.Status != models.QuoteStatusExpired {
		t.Fatalf("status = %s, want expired", view.Quote.Status)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestApp(t, "health")
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
