package sheet

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// ErrSheetNotFound is returned when a named sheet does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Workbook is a named collection of sheets.
//
// A Workbook returned by Open runs each call in its own implicit
// transaction. Inside InTx the callback receives a Workbook bound to the
// transaction; it must not use the outer Workbook, since the database may
// allow only one open connection.
type Workbook struct {
	root *sql.DB
	db   dbtx
	name string
	inTx bool
}

// Open returns the workbook called name, creating the tables on first use.
func Open(ctx context.Context, db *sql.DB, name string) (*Workbook, error) {
	if name == "" {
		return nil, fmt.Errorf("open workbook: name is required")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("open workbook %s: apply schema: %w", name, err)
	}
	return &Workbook{root: db, db: db, name: name}, nil
}

// Name returns the workbook name.
func (w *Workbook) Name() string {
	return w.name
}

// InTx runs fn inside one transaction. fn's error rolls the transaction
// back and is returned unchanged. Nested calls reuse the outer transaction.
func (w *Workbook) InTx(ctx context.Context, fn func(tx *Workbook) error) error {
	if w.inTx {
		return fn(w)
	}

	tx, err := w.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("workbook %s: begin tx: %w", w.name, err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&Workbook{root: w.root, db: tx, name: w.name, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("workbook %s: commit: %w", w.name, err)
	}
	return nil
}

// Sheet returns the named sheet, or an error wrapping ErrSheetNotFound.
func (w *Workbook) Sheet(ctx context.Context, name string) (*Sheet, error) {
	var found string
	err := w.db.QueryRowContext(ctx,
		`SELECT name FROM sheets WHERE book = ? AND name = ?`, w.name, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", w.name, name, ErrSheetNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup sheet %s/%s: %w", w.name, name, err)
	}
	return &Sheet{wb: w, name: name}, nil
}

// CreateSheet creates an empty sheet. Creating an existing sheet returns it
// unchanged.
func (w *Workbook) CreateSheet(ctx context.Context, name string) (*Sheet, error) {
	if name == "" {
		return nil, fmt.Errorf("create sheet in %s: name is required", w.name)
	}
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO sheets (book, name) VALUES (?, ?) ON CONFLICT(book, name) DO NOTHING`,
		w.name, name,
	)
	if err != nil {
		return nil, fmt.Errorf("create sheet %s/%s: %w", w.name, name, err)
	}
	return &Sheet{wb: w, name: name}, nil
}

// CopySheet creates dst as a copy of every cell of src.
// Fails if src is missing or dst already exists.
func (w *Workbook) CopySheet(ctx context.Context, src, dst string) (*Sheet, error) {
	err := w.InTx(ctx, func(tx *Workbook) error {
		if _, err := tx.Sheet(ctx, src); err != nil {
			return err
		}
		result, err := tx.db.ExecContext(ctx,
			`INSERT INTO sheets (book, name) VALUES (?, ?) ON CONFLICT(book, name) DO NOTHING`,
			tx.name, dst,
		)
		if err != nil {
			return fmt.Errorf("copy sheet %s to %s: %w", src, dst, err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("copy sheet %s to %s: %w", src, dst, err)
		} else if n == 0 {
			return fmt.Errorf("copy sheet %s to %s: destination exists", src, dst)
		}
		_, err = tx.db.ExecContext(ctx, `
			INSERT INTO cells (book, sheet, row, col, value)
			SELECT book, ?, row, col, value FROM cells
			WHERE book = ? AND sheet = ?
		`, dst, tx.name, src)
		if err != nil {
			return fmt.Errorf("copy cells %s to %s: %w", src, dst, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Sheet{wb: w, name: dst}, nil
}

// Sheets lists sheet names in name order.
func (w *Workbook) Sheets(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT name FROM sheets WHERE book = ? ORDER BY name`, w.name)
	if err != nil {
		return nil, fmt.Errorf("list sheets of %s: %w", w.name, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("list sheets of %s: %w", w.name, err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
