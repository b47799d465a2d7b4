package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// pageSize bounds how many submissions one query reads.
const pageSize = 64

// Pending returns the queued submissions in insertion order.
// An empty planID matches every plan.
//
// The sequence is lazy and restartable: each range starts a fresh read of
// the live table, one page at a time. Each page's result set is closed
// before its rows are yielded, so the loop body may write to the store.
// A read error is yielded once and ends the sequence.
func (s *Store) Pending(ctx context.Context, planID string) iter.Seq2[attendance.Submission, error] {
	return func(yield func(attendance.Submission, error) bool) {
		var after int64
		for {
			page, last, err := s.readPage(ctx, planID, after)
			if err != nil {
				yield(attendance.Submission{}, err)
				return
			}
			for _, sub := range page {
				if !yield(sub, nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			after = last
		}
	}
}

// List collects Pending into a slice.
func (s *Store) List(ctx context.Context, planID string) ([]attendance.Submission, error) {
	subs := []attendance.Submission{}
	for sub, err := range s.Pending(ctx, planID) {
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// PendingCount returns the number of queued submissions.
// An empty planID counts every plan.
func (s *Store) PendingCount(ctx context.Context, planID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM submissions
		WHERE (? = '' OR plan_id = ?)
	`, planID, planID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// Get returns one queued submission by id.
// Returns (Submission{}, false, nil) if it is not queued.
func (s *Store) Get(ctx context.Context, id string) (attendance.Submission, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, plan_id, lot_id, names, financial, proxy_holder_lot, company_rep, created_at
		FROM submissions
		WHERE id = ?
	`, id)

	sub, _, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Submission{}, false, nil
	}
	if err != nil {
		return attendance.Submission{}, false, fmt.Errorf("get submission: %w", err)
	}
	return sub, true, nil
}

// readPage reads up to pageSize submissions with seq greater than after.
// Returns the page and the seq of its last row.
func (s *Store) readPage(ctx context.Context, planID string, after int64) ([]attendance.Submission, int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, plan_id, lot_id, names, financial, proxy_holder_lot, company_rep, created_at
		FROM submissions
		WHERE seq > ? AND (? = '' OR plan_id = ?)
		ORDER BY seq ASC
		LIMIT ?
	`, after, planID, planID, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("read pending: %w", err)
	}
	defer rows.Close()

	var page []attendance.Submission
	last := after
	for rows.Next() {
		sub, seq, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("read pending: %w", err)
		}
		page = append(page, sub)
		last = seq
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read pending: %w", err)
	}
	return page, last, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(r rowScanner) (attendance.Submission, int64, error) {
	var (
		sub       attendance.Submission
		seq       int64
		namesJSON string
		financial int
		createdAt int64
	)
	err := r.Scan(
		&seq,
		&sub.ID,
		&sub.PlanID,
		&sub.LotID,
		&namesJSON,
		&financial,
		&sub.ProxyHolderLot,
		&sub.CompanyRep,
		&createdAt,
	)
	if err != nil {
		return attendance.Submission{}, 0, err
	}

	sub.Names, err = unmarshalNames(namesJSON)
	if err != nil {
		return attendance.Submission{}, 0, err
	}
	sub.Financial = financial != 0
	sub.CreatedAt = time.UnixMilli(createdAt)
	sub.Status = attendance.StatusQueued
	return sub, seq, nil
}
