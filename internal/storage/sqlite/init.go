package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	folder TEXT NOT NULL DEFAULT '',
	requires_payment INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS product_files (
	product_id INTEGER NOT NULL REFERENCES products(id),
	position INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	size TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (product_id, position)
);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_orders_order_id ON orders(order_id);
CREATE INDEX IF NOT EXISTS idx_orders_session_id ON orders(session_id);

CREATE TABLE IF NOT EXISTS order_items (
	order_ref TEXT NOT NULL REFERENCES orders(id),
	product_id INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_ref ON order_items(order_ref);
`

// InitDB opens the SQLite database at dbFile and creates the storefront tables if they don't exist.
func InitDB(dbFile string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
