package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/ems-booking/config"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"host": cfg.Host,
		"db":   cfg.DBName,
	}).Info("Successfully connected to PostgreSQL")
	return db, nil
}

// Migrations is the schema the booking repositories expect. Events, categories
// and promo codes are owned by the catalogue; they are created here so a fresh
// database can serve bookings on its own.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id VARCHAR(64) PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		organizer_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS ticket_categories (
		id VARCHAR(64) NOT NULL,
		event_id VARCHAR(64) NOT NULL REFERENCES events(id),
		name VARCHAR(100) NOT NULL,
		price NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
		total INTEGER NOT NULL CHECK (total >= 0),
		sold INTEGER NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (event_id, id),
		CONSTRAINT sold_within_total CHECK (sold >= 0 AND sold <= total)
	)`,

	`CREATE TABLE IF NOT EXISTS promo_codes (
		event_id VARCHAR(64) NOT NULL REFERENCES events(id),
		code VARCHAR(64) NOT NULL,
		discount_percentage INTEGER NOT NULL CHECK (discount_percentage BETWEEN 0 AND 100),
		expiry_date TIMESTAMPTZ NOT NULL,
		max_usage INTEGER NOT NULL CHECK (max_usage >= 0),
		used_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (event_id, code),
		CONSTRAINT used_within_max CHECK (used_count >= 0 AND used_count <= max_usage)
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id VARCHAR(64) PRIMARY KEY,
		event_id VARCHAR(64) NOT NULL REFERENCES events(id),
		user_id VARCHAR(64) NOT NULL,
		ticket_category_id VARCHAR(64) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price_per_ticket NUMERIC(12, 2) NOT NULL,
		total_price NUMERIC(12, 2) NOT NULL,
		discount_applied INTEGER NOT NULL DEFAULT 0,
		promo_code_used VARCHAR(64),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		qr_code TEXT NOT NULL,
		selected_seats TEXT[] NOT NULL DEFAULT '{}',
		checked_in BOOLEAN NOT NULL DEFAULT FALSE,
		checked_in_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		cancellation_reason TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (event_id, ticket_category_id) REFERENCES ticket_categories(event_id, id)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		order_id VARCHAR(128) PRIMARY KEY,
		booking_id VARCHAR(64) NOT NULL UNIQUE REFERENCES bookings(id),
		transaction_status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_type VARCHAR(50),
		gross_amount NUMERIC(12, 2) NOT NULL,
		email_sent BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS waitlist_entries (
		id VARCHAR(64) PRIMARY KEY,
		event_id VARCHAR(64) NOT NULL REFERENCES events(id),
		user_id VARCHAR(64) NOT NULL,
		ticket_category_id VARCHAR(64) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity BETWEEN 1 AND 10),
		status VARCHAR(20) NOT NULL DEFAULT 'waiting',
		registered_at TIMESTAMPTZ NOT NULL,
		notified_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT waitlist_unique_key UNIQUE (event_id, user_id, ticket_category_id)
	)`,

	// Indexes
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_stale ON bookings(status, payment_status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_waitlist_queue ON waitlist_entries(event_id, ticket_category_id, status, registered_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_waitlist_notified ON waitlist_entries(status, expires_at)`,
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, migration := range Migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}
