package config

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	// Create users table
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			password VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create spending_groups table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS spending_groups (
			id VARCHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			currency VARCHAR(3) NOT NULL DEFAULT 'USD',
			created_by VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create group_members table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS group_members (
			group_id VARCHAR(36) NOT NULL REFERENCES spending_groups(id) ON DELETE CASCADE,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role VARCHAR(10) NOT NULL DEFAULT 'member'
				CHECK (role IN ('owner', 'admin', 'member', 'viewer')),
			joined_at TIMESTAMP NOT NULL,
			PRIMARY KEY (group_id, user_id)
		)
	`)
	if err != nil {
		return err
	}

	// Create transactions table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			group_id VARCHAR(36) REFERENCES spending_groups(id) ON DELETE CASCADE,
			amount NUMERIC(19, 4) NOT NULL,
			currency VARCHAR(3) NOT NULL,
			type VARCHAR(10) NOT NULL DEFAULT 'expense',
			description TEXT,
			date TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create transaction_splits table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS transaction_splits (
			id VARCHAR(36) PRIMARY KEY,
			transaction_id VARCHAR(36) NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount NUMERIC(19, 4) NOT NULL CHECK (amount >= 0),
			currency VARCHAR(3) NOT NULL,
			is_paid BOOLEAN NOT NULL DEFAULT FALSE,
			paid_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (transaction_id, user_id)
		)
	`)
	if err != nil {
		return err
	}

	// Create settlements table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS settlements (
			id VARCHAR(36) PRIMARY KEY,
			group_id VARCHAR(36) NOT NULL REFERENCES spending_groups(id) ON DELETE CASCADE,
			from_user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			to_user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount NUMERIC(19, 4) NOT NULL CHECK (amount > 0),
			currency VARCHAR(3) NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'paid', 'cancelled')),
			paid_at TIMESTAMP,
			notes TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create notifications table
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type VARCHAR(30) NOT NULL,
			title VARCHAR(255) NOT NULL,
			message TEXT NOT NULL,
			data TEXT,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Create indexes for better performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_group_members_user_id ON group_members(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_group_id ON transactions(group_id)",
		"CREATE INDEX IF NOT EXISTS idx_transaction_splits_transaction_id ON transaction_splits(transaction_id)",
		"CREATE INDEX IF NOT EXISTS idx_settlements_group_id ON settlements(group_id)",
		"CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id)",
	}

	for _, idx := range indexes {
		_, err = db.Exec(idx)
		if err != nil {
			slog.Warn("Failed to create index", "error", err)
			// Don't return error here, indexes are not critical
		}
	}

	return nil
}
