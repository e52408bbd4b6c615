package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl1809/stock-manager/internal/core/domain"
)

const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id BIGINT UNSIGNED PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		price DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock (
		id BIGINT UNSIGNED PRIMARY KEY,
		item_id BIGINT UNSIGNED NOT NULL,
		quantity INT UNSIGNED NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id BIGINT UNSIGNED PRIMARY KEY,
		stock_id BIGINT UNSIGNED NOT NULL,
		transaction_type VARCHAR(16) NOT NULL,
		quantity INT UNSIGNED NOT NULL
	)`,
}

type upsertStatements struct {
	item, stock, transaction string
}

var upserts = map[string]upsertStatements{
	DialectMySQL: {
		item: `INSERT INTO items (id, name, description, price) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), description = VALUES(description), price = VALUES(price)`,
		stock: `INSERT INTO stock (id, item_id, quantity) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE item_id = VALUES(item_id), quantity = VALUES(quantity)`,
		transaction: `INSERT INTO transactions (id, stock_id, transaction_type, quantity) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE stock_id = VALUES(stock_id), transaction_type = VALUES(transaction_type), quantity = VALUES(quantity)`,
	},
	DialectSQLite: {
		item: `INSERT INTO items (id, name, description, price) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, price = excluded.price`,
		stock: `INSERT INTO stock (id, item_id, quantity) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET item_id = excluded.item_id, quantity = excluded.quantity`,
		transaction: `INSERT INTO transactions (id, stock_id, transaction_type, quantity) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET stock_id = excluded.stock_id, transaction_type = excluded.transaction_type, quantity = excluded.quantity`,
	},
}

var tables = map[domain.Kind]string{
	domain.KindItem:        "items",
	domain.KindStock:       "stock",
	domain.KindTransaction: "transactions",
}

// SQLMirror keeps a relational read replica of the ledger.
type SQLMirror struct {
	db      *sql.DB
	upserts upsertStatements
}

func NewSQLMirror(db *sql.DB, dialect string) (*SQLMirror, error) {
	stmts, ok := upserts[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	return &SQLMirror{db: db, upserts: stmts}, nil
}

func (m *SQLMirror) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (m *SQLMirror) Apply(ctx context.Context, change domain.Change) error {
	if change.Op == domain.ChangeDelete {
		table, ok := tables[change.Kind]
		if !ok {
			return fmt.Errorf("unknown kind %q", change.Kind)
		}
		if _, err := m.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, change.ID); err != nil {
			return fmt.Errorf("delete %s %d: %w", change.Kind, change.ID, err)
		}
		return nil
	}

	var err error
	switch rec := change.Record.(type) {
	case domain.Item:
		_, err = m.db.ExecContext(ctx, m.upserts.item, rec.ID, rec.Name, rec.Description, rec.Price)
	case domain.Stock:
		_, err = m.db.ExecContext(ctx, m.upserts.stock, rec.ID, rec.ItemID, rec.Quantity)
	case domain.Transaction:
		_, err = m.db.ExecContext(ctx, m.upserts.transaction, rec.ID, rec.StockID, string(rec.TransactionType), rec.Quantity)
	default:
		return fmt.Errorf("unexpected record %T for %s %d", change.Record, change.Kind, change.ID)
	}
	if err != nil {
		return fmt.Errorf("upsert %s %d: %w", change.Kind, change.ID, err)
	}
	return nil
}
