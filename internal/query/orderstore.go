package query

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLiteOrderLookup is a minimal concrete OrderLookup backed by the order
// lifecycle's own table. The order/project lifecycle is an external
// collaborator per the specification; this is the thinnest adapter that
// lets the CLI and HTTP server run against a real database instead of a
// stub.
type SQLiteOrderLookup struct {
	db *sql.DB
}

// NewSQLiteOrderLookup wraps an existing *sql.DB. It does not own the
// connection and does not create the orders table: that lifecycle belongs
// to the external order-management system.
func NewSQLiteOrderLookup(db *sql.DB) *SQLiteOrderLookup {
	return &SQLiteOrderLookup{db: db}
}

// ProjectName implements OrderLookup.
func (l *SQLiteOrderLookup) ProjectName(ctx context.Context, orderID int64) (string, bool, error) {
	var name string
	err := l.db.QueryRowContext(ctx, `SELECT project_name FROM code_orders WHERE id = ?`, orderID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup order project name: %w", err)
	}
	return name, true, nil
}
