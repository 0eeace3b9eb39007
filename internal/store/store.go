package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/alecsharpie/ey-frog-challenge/internal/dataset"
)

var fixedColumns = []struct{ name, typ string }{
	{"id", "TEXT"},
	{"species", "TEXT"},
	{"latitude", "DOUBLE PRECISION"},
	{"longitude", "DOUBLE PRECISION"},
	{"event_date", "TEXT"},
	{"label", "SMALLINT"},
	{"col", "INTEGER"},
	{"row", "INTEGER"},
}

func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func columns(t *dataset.Table) []string {
	names := make([]string, 0, len(fixedColumns)+len(t.Features))
	for _, c := range fixedColumns {
		names = append(names, c.name)
	}
	return append(names, t.Features...)
}

func createTableSQL(table string, t *dataset.Table) string {
	defs := make([]string, 0, len(fixedColumns)+len(t.Features))
	for _, c := range fixedColumns {
		defs = append(defs, pq.QuoteIdentifier(c.name)+" "+c.typ)
	}
	for _, f := range t.Features {
		defs = append(defs, pq.QuoteIdentifier(f)+" DOUBLE PRECISION")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", pq.QuoteIdentifier(table), strings.Join(defs, ", "))
}

// Export replaces the contents of table with t using COPY inside one
// transaction. The table is created when missing.
func Export(ctx context.Context, db *sql.DB, table string, t *dataset.Table) (int, error) {
	if len(t.Rows) == 0 {
		return 0, dataset.ErrEmptyDataset
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, createTableSQL(table, t)); err != nil {
		return 0, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, "TRUNCATE "+pq.QuoteIdentifier(table)); err != nil {
		return 0, fmt.Errorf("failed to truncate table %s: %w", table, err)
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns(t)...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}
	for _, r := range t.Rows {
		args := []interface{}{r.ID, r.Species, r.Latitude, r.Longitude, r.EventDate, r.Label, r.Col, r.Row}
		for _, v := range r.Features {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy row %s: %w", r.ID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return len(t.Rows), nil
}
