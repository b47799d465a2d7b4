package schema

import (
	"context"
	"fmt"
)

// Roster tab layout in the source workbook.
const (
	sourceLotCol  = 3 // C
	sourceUnitCol = 4 // D
)

// provision copies lot ids and unit numbers from the plan's roster tab into
// columns A and B of the plan sheet. Failures are logged, never returned.
func (m *Manager) provision(ctx context.Context, planID string) {
	n, err := m.copyIdentity(ctx, planID)
	if err != nil {
		m.logger.Warn("provisioning failed; meeting setup continues",
			"plan", planID,
			"error", err,
		)
		return
	}
	m.logger.Debug("provisioned plan sheet", "plan", planID, "rows", n)
}

func (m *Manager) copyIdentity(ctx context.Context, planID string) (int, error) {
	src, err := m.source.Sheet(ctx, planID)
	if err != nil {
		return 0, fmt.Errorf("roster tab: %w", err)
	}
	last, err := src.LastRow(ctx)
	if err != nil {
		return 0, err
	}
	if last < 2 {
		return 0, nil
	}
	values, err := src.Range(ctx, 2, sourceLotCol, last-1, sourceUnitCol-sourceLotCol+1)
	if err != nil {
		return 0, err
	}

	dst, err := m.dest.Sheet(ctx, planID)
	if err != nil {
		return 0, err
	}
	if err := dst.SetRange(ctx, 2, 1, values); err != nil {
		return 0, fmt.Errorf("write identity columns: %w", err)
	}
	return len(values), nil
}
