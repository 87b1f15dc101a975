// Package server wires handlers, services and middleware into one http.Handler.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/clefworks/studio-billing/internal/auth"
	"github.com/clefworks/studio-billing/internal/config"
	"github.com/clefworks/studio-billing/internal/handlers"
	"github.com/clefworks/studio-billing/internal/httpx"
	"github.com/clefworks/studio-billing/internal/mailer"
	"github.com/clefworks/studio-billing/internal/models"
	"github.com/clefworks/studio-billing/internal/services"
)

// App bundles the wired services so cmd/server can reach the background sweeps.
type App struct {
	Handler  http.Handler
	Quotes   *services.QuoteService
	Invoices *services.InvoiceService
}

func New(db *gorm.DB, cfg config.Config) *App {
	var m mailer.Mailer = mailer.LogMailer{}
	if cfg.SMTPHost != "" {
		m = mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	quotes := services.NewQuoteService(db, m, cfg.PublicBaseURL)
	invoices := services.NewInvoiceService(db, m, cfg.PublicBaseURL)

	authH := handlers.NewAuthHandler(db)
	clientH := handlers.NewClientHandler(db)
	contractorH := handlers.NewContractorHandler(db)
	templateH := handlers.NewTemplateHandler(db)
	quoteH := handlers.NewQuoteHandler(db, quotes)
	invoiceH := handlers.NewInvoiceHandler(db, invoices)
	publicH := handlers.NewPublicHandler(quotes, invoices)
	dashH := handlers.NewDashboardHandler(db)

	auth.SetUserVerifier(func(ctx context.Context, uid uint) bool {
		var n int64
		if err := db.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Count(&n).Error; err != nil {
			return false
		}
		return n == 1
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthz)
	mux.HandleFunc("/healthz", healthz)

	mux.HandleFunc("/signup", authH.Signup)
	mux.HandleFunc("/login", authH.Login)
	mux.HandleFunc("/logout", authH.Logout)
	mux.Handle("/me", protected(http.HandlerFunc(authH.Me)))

	mux.Handle("/clients", protected(http.HandlerFunc(clientH.Collection)))
	mux.Handle("/clients/item", protected(http.HandlerFunc(clientH.Item)))
	mux.Handle("/contractors", protected(http.HandlerFunc(contractorH.Collection)))
	mux.Handle("/contractors/item", protected(http.HandlerFunc(contractorH.Item)))
	mux.Handle("/service-templates", protected(http.HandlerFunc(templateH.Collection)))
	mux.Handle("/service-templates/item", protected(http.HandlerFunc(templateH.Item)))

	mux.Handle("/quotes", protected(http.HandlerFunc(quoteH.Collection)))
	mux.Handle("/quotes/item", protected(http.HandlerFunc(quoteH.Item)))
	mux.Handle("/quotes/send", protected(http.HandlerFunc(quoteH.Send)))
	mux.Handle("/quotes/activity", protected(http.HandlerFunc(quoteH.Activity)))

	mux.Handle("/invoices", protected(http.HandlerFunc(invoiceH.Collection)))
	mux.Handle("/invoices/item", protected(http.HandlerFunc(invoiceH.Item)))
	mux.Handle("/invoices/send", protected(http.HandlerFunc(invoiceH.Send)))
	mux.Handle("/invoices/cancel", protected(http.HandlerFunc(invoiceH.Cancel)))
	mux.Handle("/invoices/payments", protected(http.HandlerFunc(invoiceH.Payments)))
	mux.Handle("/invoices/contractors/bill-separately", protected(http.HandlerFunc(invoiceH.BillSeparately)))
	mux.Handle("/invoices/activity", protected(http.HandlerFunc(invoiceH.Activity)))
	mux.Handle("/invoices/pdf", protected(http.HandlerFunc(invoiceH.PDF)))

	mux.Handle("/dashboard/summary", protected(http.HandlerFunc(dashH.Summary)))

	// token-gated, no session
	mux.HandleFunc("/public/quote", publicH.Quote)
	mux.HandleFunc("/public/quote/approve", publicH.Approve)
	mux.HandleFunc("/public/quote/feedback", publicH.Feedback)
	mux.HandleFunc("/public/contractor-fee", publicH.ContractorFee)
	mux.HandleFunc("/public/contractor-fee/pay", publicH.PayContractorFee)

	return &App{
		Handler:  withRecover(withLogging(mux)),
		Quotes:   quotes,
		Invoices: invoices,
	}
}

func protected(next http.Handler) http.Handler {
	return auth.Middleware(auth.RequireAuth(next))
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
