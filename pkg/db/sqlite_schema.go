package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors pkg/migrate/migrations for the embedded sqlite driver.
// Enum columns become TEXT and money columns keep their decimal text form.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  paypal_receiver TEXT,
  balance TEXT NOT NULL DEFAULT '0',
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS licenses (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  mp3 INTEGER NOT NULL DEFAULT 0,
  wav INTEGER NOT NULL DEFAULT 0,
  trackout INTEGER NOT NULL DEFAULT 0,
  discounts INTEGER NOT NULL DEFAULT 0,
  enabled INTEGER NOT NULL DEFAULT 1,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS beats (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS beat_prices (
  beat_id TEXT NOT NULL,
  license_id TEXT NOT NULL,
  price TEXT NOT NULL,
  PRIMARY KEY (beat_id, license_id)
)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  cart_token TEXT,
  beat_id TEXT NOT NULL,
  license_id TEXT NOT NULL,
  created_at DATETIME,
  CHECK ((user_id IS NULL) <> (cart_token IS NULL))
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_items_user_beat ON cart_items (user_id, beat_id) WHERE cart_token IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_cart_items_token_beat ON cart_items (cart_token, beat_id) WHERE user_id IS NULL`,
	`CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'wait',
  user_id TEXT NOT NULL,
  gateway_token TEXT UNIQUE,
  correlation_id TEXT,
  parent_id TEXT,
  payee_id TEXT,
  receiver TEXT,
  gateway_transaction_id TEXT,
  source_transaction_id TEXT UNIQUE,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS transaction_items (
  id TEXT PRIMARY KEY,
  transaction_id TEXT NOT NULL,
  beat_id TEXT NOT NULL,
  license_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price TEXT NOT NULL,
  amount TEXT NOT NULL,
  created_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS ledger_events (
  id TEXT PRIMARY KEY,
  transaction_id TEXT NOT NULL,
  account_id TEXT,
  actor_user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate ON outbox_events (event_type, aggregate_type, aggregate_id)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
)`,
}

// ApplySQLiteSchema creates the tables on an sqlite connection. Postgres
// deployments go through the goose migrations instead.
func ApplySQLiteSchema(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("connection required")
	}
	if conn.Dialector.Name() != DriverSQLite {
		return fmt.Errorf("sqlite schema cannot be applied to %s", conn.Dialector.Name())
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
