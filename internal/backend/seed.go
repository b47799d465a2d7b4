package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BigJazzz/mosaic/internal/schema"
	"github.com/BigJazzz/mosaic/internal/sheet"
)

// Seed is reference data loaded from YAML.
//
//	plans:
//	  - id: SP1
//	    suburb: Sydney
//	    roster:
//	      - {lot: "1", unit: "101", main_contact: "John Smith", full_name: "John Smith"}
//	users:
//	  - {username: admin, password: changeme, role: Admin}
type Seed struct {
	Plans []SeedPlan `yaml:"plans"`
	Users []SeedUser `yaml:"users"`
}

// SeedPlan is one plan and its roster.
type SeedPlan struct {
	ID     string      `yaml:"id"`
	Suburb string      `yaml:"suburb"`
	Roster []SeedEntry `yaml:"roster"`
}

// SeedEntry is one roster row.
type SeedEntry struct {
	Lot         string `yaml:"lot"`
	Unit        string `yaml:"unit"`
	MainContact string `yaml:"main_contact"`
	FullName    string `yaml:"full_name"`
}

// SeedUser is one account.
type SeedUser struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Role     string   `yaml:"role"`
	Plans    []string `yaml:"plans"`
}

// SeedResult counts what Apply wrote.
type SeedResult struct {
	Plans        int `json:"plans"`
	Lots         int `json:"lots"`
	UsersCreated int `json:"users_created"`
	UsersSkipped int `json:"users_skipped"`
}

var (
	planListHeader = []string{"Plan", "Suburb"}
	rosterHeader   = []string{"Plan", "Suburb", "Lot", "Unit", "Entitlement", "Full Name on Title", "Main Contact"}
	templateHeader = []string{"Lot", "Unit"}
)

// LoadSeed decodes seed YAML. Unknown fields are rejected.
func LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return Seed{}, nil
		}
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	for i, p := range seed.Plans {
		if strings.TrimSpace(p.ID) == "" {
			return Seed{}, fmt.Errorf("seed plan %d: id is required", i)
		}
		for j, e := range p.Roster {
			if strings.TrimSpace(e.Lot) == "" {
				return Seed{}, fmt.Errorf("seed plan %s roster row %d: lot is required", p.ID, j)
			}
		}
	}
	return seed, nil
}

// Apply writes seed data. Plans and rosters are replaced; existing users
// are left untouched. The attendance template is created when missing.
// Running Apply twice with the same seed yields the same workbooks.
func (s *Service) Apply(ctx context.Context, seed Seed) (SeedResult, error) {
	var res SeedResult

	if err := s.ensureTemplate(ctx); err != nil {
		return res, err
	}

	err := s.source.InTx(ctx, func(tx *sheet.Workbook) error {
		list, err := tx.CreateSheet(ctx, PlanListSheet)
		if err != nil {
			return err
		}
		if err := list.Set(ctx, 1, 1, planListHeader[0]); err != nil {
			return err
		}
		if err := list.Set(ctx, 1, 2, planListHeader[1]); err != nil {
			return err
		}
		for _, p := range seed.Plans {
			if err := seedPlan(ctx, tx, list, p); err != nil {
				return fmt.Errorf("seed plan %s: %w", p.ID, err)
			}
			res.Plans++
			res.Lots += len(p.Roster)
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	for _, u := range seed.Users {
		_, err := s.CreateUser(ctx, u.Username, u.Password, u.Role, u.Plans)
		switch {
		case errors.Is(err, ErrUserExists):
			res.UsersSkipped++
		case err != nil:
			return res, fmt.Errorf("seed user %s: %w", u.Username, err)
		default:
			res.UsersCreated++
		}
	}

	s.logger.Info("seed applied",
		"plans", res.Plans,
		"lots", res.Lots,
		"users_created", res.UsersCreated,
		"users_skipped", res.UsersSkipped,
	)
	return res, nil
}

func (s *Service) ensureTemplate(ctx context.Context) error {
	_, err := s.dest.Sheet(ctx, schema.TemplateSheet)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sheet.ErrSheetNotFound) {
		return err
	}
	tpl, err := s.dest.CreateSheet(ctx, schema.TemplateSheet)
	if err != nil {
		return err
	}
	return tpl.SetRange(ctx, 1, 1, [][]string{templateHeader})
}

func seedPlan(ctx context.Context, tx *sheet.Workbook, list *sheet.Sheet, p SeedPlan) error {
	id := strings.TrimSpace(p.ID)
	row, err := list.FindInColumn(ctx, 1, 2, id)
	if err != nil {
		return err
	}
	if row == 0 {
		if _, err := list.AppendRow(ctx, []string{id, p.Suburb}); err != nil {
			return err
		}
	} else if err := list.Set(ctx, row, 2, p.Suburb); err != nil {
		return err
	}

	tab, err := tx.CreateSheet(ctx, id)
	if err != nil {
		return err
	}
	last, err := tab.LastRow(ctx)
	if err != nil {
		return err
	}
	lastCol, err := tab.LastColumn(ctx)
	if err != nil {
		return err
	}
	if last > 0 && lastCol > 0 {
		if err := tab.ClearRange(ctx, 1, 1, last, lastCol); err != nil {
			return err
		}
	}

	values := [][]string{rosterHeader}
	for _, e := range p.Roster {
		values = append(values, []string{id, p.Suburb, strings.TrimSpace(e.Lot), e.Unit, "", e.FullName, e.MainContact})
	}
	return tab.SetRange(ctx, 1, 1, values)
}
