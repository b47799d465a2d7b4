package store

import (
	"context"
	"fmt"

	"github.com/BigJazzz/mosaic/internal/attendance"
)

// Enqueue appends a submission to the end of the queue.
//
// An empty ID is assigned from the store's generator before the row is
// persisted; CreatedAt is stamped when zero. Uses ON CONFLICT(id) DO NOTHING
// for idempotency - enqueuing an id that is already queued leaves the
// original row and its position untouched.
//
// Returns the submission as stored, with ID, CreatedAt and Status set.
func (s *Store) Enqueue(ctx context.Context, sub attendance.Submission) (attendance.Submission, error) {
	if sub.ID == "" {
		sub.ID = s.ids.Generate()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	sub.Status = attendance.StatusQueued

	namesJSON, err := marshalNames(sub.Names)
	if err != nil {
		return attendance.Submission{}, fmt.Errorf("enqueue: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions
		(id, plan_id, lot_id, names, financial, proxy_holder_lot, company_rep, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sub.ID,
		sub.PlanID,
		sub.LotID,
		namesJSON,
		boolToInt(sub.Financial),
		sub.ProxyHolderLot,
		sub.CompanyRep,
		sub.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return attendance.Submission{}, fmt.Errorf("enqueue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return attendance.Submission{}, fmt.Errorf("enqueue: %w", err)
	}
	if n > 0 {
		return sub, nil
	}

	// Duplicate id: report the row that kept its place, not the caller's copy.
	stored, ok, err := s.Get(ctx, sub.ID)
	if err != nil {
		return attendance.Submission{}, fmt.Errorf("enqueue: %w", err)
	}
	if !ok {
		return attendance.Submission{}, fmt.Errorf("enqueue: %s vanished after conflict", sub.ID)
	}
	return stored, nil
}

// RemoveConfirmed deletes exactly the queued submissions whose id is in ids.
//
// CRITICAL: Deletion runs against the live table inside one transaction, never
// against a list captured earlier. Submissions enqueued after the caller took
// its snapshot are not in ids and therefore survive. Ids that are no longer
// queued are ignored.
//
// Returns the number of rows removed.
func (s *Store) RemoveConfirmed(ctx context.Context, ids map[string]struct{}) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("remove confirmed: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM submissions WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("remove confirmed: prepare: %w", err)
	}
	defer stmt.Close()

	removed := 0
	for id := range ids {
		result, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("remove confirmed: delete %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("remove confirmed: rows affected: %w", err)
		}
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("remove confirmed: commit: %w", err)
	}

	return removed, nil
}

// DeleteQueued removes one queued submission by id.
// Returns false if no submission with that id was queued.
func (s *Store) DeleteQueued(ctx context.Context, id string) (bool, error) {
	n, err := s.RemoveConfirmed(ctx, map[string]struct{}{id: {}})
	if err != nil {
		return false, fmt.Errorf("delete queued: %w", err)
	}
	return n > 0, nil
}

// ClearQueue removes every queued submission.
// Returns the number of submissions discarded.
func (s *Store) ClearQueue(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM submissions`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear queue: rows affected: %w", err)
	}
	return int(n), nil
}
