package backend

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSeed_RejectsUnknownFields(t *testing.T) {
	_, err := LoadSeed(strings.NewReader("plans:\n  - id: SP1\n    colour: red\n"))
	assert.Error(t, err)
}

func TestLoadSeed_RequiresIDs(t *testing.T) {
	_, err := LoadSeed(strings.NewReader("plans:\n  - suburb: Sydney\n"))
	assert.ErrorContains(t, err, "id is required")

	_, err = LoadSeed(strings.NewReader("plans:\n  - id: SP1\n    roster:\n      - {unit: '1'}\n"))
	assert.ErrorContains(t, err, "lot is required")
}

func TestLoadSeed_Empty(t *testing.T) {
	seed, err := LoadSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, seed.Plans)
}

func TestApply_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed, err := LoadSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	res, err := f.svc.Apply(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Plans: 2, Lots: 4, UsersCreated: 0, UsersSkipped: 2}, res)

	plans, err := f.svc.GetPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	roster, err := f.svc.GetRoster(ctx, "SP1")
	require.NoError(t, err)
	assert.Len(t, roster, 3)
}

func TestApply_ReplacesRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed, err := LoadSeed(strings.NewReader(`
plans:
  - id: SP1
    suburb: Newtown
    roster:
      - {lot: "9", unit: "9", main_contact: "Zed Zee", full_name: "Zed Zee"}
`))
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, seed)
	require.NoError(t, err)

	roster, err := f.svc.GetRoster(ctx, "SP1")
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, roster.Lots())

	plans, err := f.svc.GetPlans(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Newtown", plans[0].Suburb)
}
