package db

import (
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// The following blank imports register the postgres driver and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clefworks/studio-billing/internal/models"
)

// Connect opens the database from the given DSN. Postgres is the production
// target; sqlite DSNs (sqlite:path, file:..., *.db) are the dev/test path.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN is empty, check environment configuration")
	}
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	// TranslateError surfaces unique index violations as gorm.ErrDuplicatedKey,
	// which the document number allocators retry on.
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel), TranslateError: true}

	if IsSQLiteDSN(dsn) {
		return gorm.Open(sqlite.Open(SQLitePath(dsn)), cfg)
	}

	var db *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		log.Println("Retrying DB connection...", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	return db, nil
}

// ConnectAndMigrate connects, migrates and optionally seeds the database.
// If MIGRATIONS=1 sql migrations run via golang-migrate; otherwise AutoMigrate
// is used (dev convenience).
func ConnectAndMigrate(rawDSN string) (*gorm.DB, error) {
	dsn := NormalizeDSN(rawDSN)
	db, err := Connect(dsn)
	if err != nil {
		return nil, err
	}

	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}

	masked := dsn
	if strings.Contains(masked, "password=") {
		re := regexp.MustCompile(`(password=)([^\s]+)`)
		masked = re.ReplaceAllString(masked, `${1}***`)
	}
	log.Println("[DB] Using DSN:", masked)

	if v := strings.ToLower(os.Getenv("MIGRATIONS")); v == "1" || v == "true" || v == "yes" {
		if err := runSQLMigrations(dsn); err != nil {
			return nil, fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	for _, table := range []string{"users", "quotes", "invoices", "payments"} {
		if !db.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}

	if v := strings.ToLower(os.Getenv("DB_SEED")); v == "1" || v == "true" || v == "yes" {
		seed(db)
	}
	return db, nil
}

// AutoMigrate runs gorm AutoMigrate for every model, in dependency order.
func AutoMigrate(db *gorm.DB) error {
	modelsToMigrate := []interface{}{
		&models.User{}, &models.Client{}, &models.Contractor{}, &models.ServiceTemplate{},
		&models.Quote{}, &models.QuoteItem{}, &models.QuoteContractor{},
		&models.Invoice{}, &models.InvoiceItem{}, &models.InvoiceContractor{},
		&models.Payment{}, &models.ActivityEntry{},
	}
	for _, m := range modelsToMigrate {
		if migErr := db.AutoMigrate(m); migErr != nil {
			return fmt.Errorf("automigrate %T: %w", m, migErr)
		}
	}
	return nil
}

func seed(db *gorm.DB) {
	// Common studio service lines
	baseTemplates := []models.ServiceTemplate{
		{Name: "Recording session", Description: "Tracking, per hour", DefaultRate: decimal.NewFromInt(85), Taxable: true},
		{Name: "Mixing", Description: "Per song", DefaultRate: decimal.NewFromInt(400), Taxable: true},
		{Name: "Mastering", Description: "Per song", DefaultRate: decimal.NewFromInt(120), Taxable: true},
		{Name: "Production", Description: "Per song", DefaultRate: decimal.NewFromInt(600), Taxable: true},
	}
	for _, st := range baseTemplates {
		var existing models.ServiceTemplate
		if err := db.Where("name = ? AND user_id = 0", st.Name).First(&existing).Error; err == gorm.ErrRecordNotFound {
			db.Create(&st)
		}
	}
}

// runSQLMigrations executes migrations in ./migrations using golang-migrate file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
