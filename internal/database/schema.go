package database

import (
	"database/sql"
	"fmt"
)

// Schema statements are idempotent so they can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		date DATE NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		type TEXT NOT NULL,
		payment_method TEXT,
		used_credit_card TEXT,
		paid_to TEXT,
		category TEXT,
		subcategory TEXT,
		is_splitwise BOOLEAN NOT NULL DEFAULT FALSE,
		splitwise_person TEXT,
		description TEXT,
		reconciled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS checking_accounts (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		current_balance NUMERIC(14,2) NOT NULL DEFAULT 0,
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS credit_cards (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		total_limit NUMERIC(14,2) NOT NULL DEFAULT 0,
		used_limit NUMERIC(14,2) NOT NULL DEFAULT 0,
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS splitwise_people (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		net_balance NUMERIC(14,2) NOT NULL DEFAULT 0,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		UNIQUE (user_id, name, type)
	)`,
	`CREATE TABLE IF NOT EXISTS subcategories (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		category_name TEXT NOT NULL,
		sub_category_name TEXT NOT NULL,
		UNIQUE (user_id, category_name, sub_category_name)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		UNIQUE (user_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_id ON expenses(user_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_expenses_user_type_date ON expenses(user_id, type, date)`,
}

// InitSchema creates all tables if they do not exist.
func InitSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("error applying schema: %w", err)
		}
	}
	return nil
}
