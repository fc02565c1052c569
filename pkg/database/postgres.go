package database

import (
	"time"

	"github.com/Eursukkul/ticketing-service/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		logrus.Fatalf("failed to auto-migrate: %v", err)
	}
	return db
}

// Migrate creates the schema plus the constraints gorm tags cannot express.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Event{},
		&models.TicketType{},
		&models.Reservation{},
		&models.Checkout{},
		&models.Purchase{},
		&models.Ticket{},
	); err != nil {
		return err
	}

	stmts := []string{
		// At most one active ticket type per event.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ticket_type_one_active
		ON ticket_types (event_id)
		WHERE status = 'active'`,
		`DO $$ BEGIN
			ALTER TABLE ticket_types ADD CONSTRAINT chk_ticket_type_available
			CHECK (available_tickets >= 0 AND available_tickets <= max_quantity);
		EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
