package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/clefworks/studio-billing/internal/config"
	"github.com/clefworks/studio-billing/internal/db"
	"github.com/clefworks/studio-billing/internal/server"
)

func main() {
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded:", err)
	}
	cfg := config.Load()

	conn, err := db.ConnectAndMigrate(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal("db init failed: ", err)
	}
	if *migrateOnly {
		log.Println("migrations complete")
		return
	}

	app := server.New(conn, cfg)

	if cfg.ExpirySweep {
		c := cron.New()
		_, err := c.AddFunc("@hourly", func() {
			if n, err := app.Quotes.ExpireDue(); err != nil {
				log.Println("[sweep] quote expiry failed:", err)
			} else if n > 0 {
				log.Printf("[sweep] expired %d quotes", n)
			}
			if n, err := app.Invoices.MarkOverdue(); err != nil {
				log.Println("[sweep] invoice overdue failed:", err)
			} else if n > 0 {
				log.Printf("[sweep] marked %d invoices overdue", n)
			}
		})
		if err != nil {
			log.Fatal("cron setup failed: ", err)
		}
		c.Start()
		defer c.Stop()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s (%s)", cfg.Port, cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("forced shutdown: ", err)
	}
	log.Println("bye")
}
