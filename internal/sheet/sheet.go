package sheet

import (
	"context"
	"fmt"
)

// Sheet is one named grid of cells.
type Sheet struct {
	wb   *Workbook
	name string
}

// Name returns the sheet name.
func (s *Sheet) Name() string {
	return s.name
}

// LastRow returns the highest row holding a value, or 0 if empty.
func (s *Sheet) LastRow(ctx context.Context) (int, error) {
	return s.max(ctx, "row")
}

// LastColumn returns the highest column holding a value, or 0 if empty.
func (s *Sheet) LastColumn(ctx context.Context) (int, error) {
	return s.max(ctx, "col")
}

func (s *Sheet) max(ctx context.Context, field string) (int, error) {
	var n int
	err := s.wb.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) FROM cells WHERE book = ? AND sheet = ?`, field),
		s.wb.name, s.name,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s/%s: max %s: %w", s.wb.name, s.name, field, err)
	}
	return n, nil
}

// Get reads one cell.
func (s *Sheet) Get(ctx context.Context, row, col int) (string, error) {
	values, err := s.Range(ctx, row, col, 1, 1)
	if err != nil {
		return "", err
	}
	return values[0][0], nil
}

// Set writes one cell. An empty value clears it.
func (s *Sheet) Set(ctx context.Context, row, col int, value string) error {
	if row < 1 || col < 1 {
		return fmt.Errorf("%s/%s: cell (%d,%d) out of range", s.wb.name, s.name, row, col)
	}
	var err error
	if value == "" {
		_, err = s.wb.db.ExecContext(ctx,
			`DELETE FROM cells WHERE book = ? AND sheet = ? AND row = ? AND col = ?`,
			s.wb.name, s.name, row, col,
		)
	} else {
		_, err = s.wb.db.ExecContext(ctx, `
			INSERT INTO cells (book, sheet, row, col, value) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(book, sheet, row, col) DO UPDATE SET value = excluded.value
		`, s.wb.name, s.name, row, col, value)
	}
	if err != nil {
		return fmt.Errorf("%s/%s: set (%d,%d): %w", s.wb.name, s.name, row, col, err)
	}
	return nil
}

// Row reads row r from column 1 to LastColumn.
func (s *Sheet) Row(ctx context.Context, r int) ([]string, error) {
	last, err := s.LastColumn(ctx)
	if err != nil {
		return nil, err
	}
	if last == 0 {
		return []string{}, nil
	}
	values, err := s.Range(ctx, r, 1, 1, last)
	if err != nil {
		return nil, err
	}
	return values[0], nil
}

// Column reads column c from row `from` to LastRow.
func (s *Sheet) Column(ctx context.Context, c, from int) ([]string, error) {
	last, err := s.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	if last < from {
		return []string{}, nil
	}
	values, err := s.Range(ctx, from, c, last-from+1, 1)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v[0]
	}
	return out, nil
}

// Range reads an nrows x ncols block whose top-left cell is (row, col).
// Missing cells read as "".
func (s *Sheet) Range(ctx context.Context, row, col, nrows, ncols int) ([][]string, error) {
	if row < 1 || col < 1 || nrows < 1 || ncols < 1 {
		return nil, fmt.Errorf("%s/%s: range (%d,%d)+%dx%d out of bounds", s.wb.name, s.name, row, col, nrows, ncols)
	}

	out := make([][]string, nrows)
	for i := range out {
		out[i] = make([]string, ncols)
	}

	rows, err := s.wb.db.QueryContext(ctx, `
		SELECT row, col, value FROM cells
		WHERE book = ? AND sheet = ?
		  AND row BETWEEN ? AND ?
		  AND col BETWEEN ? AND ?
	`, s.wb.name, s.name, row, row+nrows-1, col, col+ncols-1)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: read range: %w", s.wb.name, s.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r, c int
		var v string
		if err := rows.Scan(&r, &c, &v); err != nil {
			return nil, fmt.Errorf("%s/%s: read range: %w", s.wb.name, s.name, err)
		}
		out[r-row][c-col] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s/%s: read range: %w", s.wb.name, s.name, err)
	}
	return out, nil
}

// SetRange writes values with its top-left cell at (row, col).
// Runs in one transaction.
func (s *Sheet) SetRange(ctx context.Context, row, col int, values [][]string) error {
	return s.wb.InTx(ctx, func(tx *Workbook) error {
		sh := &Sheet{wb: tx, name: s.name}
		for i, line := range values {
			for j, v := range line {
				if err := sh.Set(ctx, row+i, col+j, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// ClearRange clears an nrows x ncols block whose top-left cell is (row, col).
func (s *Sheet) ClearRange(ctx context.Context, row, col, nrows, ncols int) error {
	_, err := s.wb.db.ExecContext(ctx, `
		DELETE FROM cells
		WHERE book = ? AND sheet = ?
		  AND row BETWEEN ? AND ?
		  AND col BETWEEN ? AND ?
	`, s.wb.name, s.name, row, row+nrows-1, col, col+ncols-1)
	if err != nil {
		return fmt.Errorf("%s/%s: clear range: %w", s.wb.name, s.name, err)
	}
	return nil
}

// AppendRow writes values into the row after LastRow and returns its index.
func (s *Sheet) AppendRow(ctx context.Context, values []string) (int, error) {
	var r int
	err := s.wb.InTx(ctx, func(tx *Workbook) error {
		sh := &Sheet{wb: tx, name: s.name}
		last, err := sh.LastRow(ctx)
		if err != nil {
			return err
		}
		r = last + 1
		return sh.SetRange(ctx, r, 1, [][]string{values})
	})
	return r, err
}

// DeleteRow removes row r and shifts every row below it up by one.
func (s *Sheet) DeleteRow(ctx context.Context, r int) error {
	return s.wb.InTx(ctx, func(tx *Workbook) error {
		book, name := tx.name, s.name
		if _, err := tx.db.ExecContext(ctx,
			`DELETE FROM cells WHERE book = ? AND sheet = ? AND row = ?`, book, name, r,
		); err != nil {
			return fmt.Errorf("%s/%s: delete row %d: %w", book, name, r, err)
		}
		// Shift through negative rows so the primary key never collides
		// mid-update.
		if _, err := tx.db.ExecContext(ctx,
			`UPDATE cells SET row = -(row - 1) WHERE book = ? AND sheet = ? AND row > ?`, book, name, r,
		); err != nil {
			return fmt.Errorf("%s/%s: shift rows: %w", book, name, err)
		}
		if _, err := tx.db.ExecContext(ctx,
			`UPDATE cells SET row = -row WHERE book = ? AND sheet = ? AND row < 0`, book, name,
		); err != nil {
			return fmt.Errorf("%s/%s: shift rows: %w", book, name, err)
		}
		return nil
	})
}

// FindInColumn returns the first row at or below `from` whose column c
// equals value, or 0 if none does.
func (s *Sheet) FindInColumn(ctx context.Context, c, from int, value string) (int, error) {
	var r int
	err := s.wb.db.QueryRowContext(ctx, `
		SELECT COALESCE(MIN(row), 0) FROM cells
		WHERE book = ? AND sheet = ? AND col = ? AND row >= ? AND TRIM(value) = ?
	`, s.wb.name, s.name, c, from, value).Scan(&r)
	if err != nil {
		return 0, fmt.Errorf("%s/%s: find %q in column %d: %w", s.wb.name, s.name, value, c, err)
	}
	return r, nil
}
