package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/BigJazzz/mosaic/internal/attendance"
	"github.com/BigJazzz/mosaic/internal/sheet"
)

// Roles.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// Users sheet columns.
const (
	userNameCol  = 1
	userHashCol  = 2
	userRoleCol  = 3
	userPlansCol = 4
)

var usersHeader = []string{"Username", "Password", "Role", "Plans"}

// User is an account. Plans restricts a non-admin to the listed plans;
// empty means every plan.
type User struct {
	Username string
	Role     string
	Plans    []string
	hash     string
}

// IsAdmin reports whether the user has the Admin role.
func (u User) IsAdmin() bool {
	return strings.EqualFold(u.Role, RoleAdmin)
}

// CanAccess reports whether the user may read and write planID.
func (u User) CanAccess(planID string) bool {
	return u.IsAdmin() || len(u.Plans) == 0 || slices.Contains(u.Plans, planID)
}

func normalizeRole(role string) (string, error) {
	switch {
	case role == "", strings.EqualFold(role, RoleUser):
		return RoleUser, nil
	case strings.EqualFold(role, RoleAdmin):
		return RoleAdmin, nil
	default:
		return "", attendance.NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}
}

func splitPlans(s string) []string {
	var plans []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			plans = append(plans, p)
		}
	}
	return plans
}

// ListUsers returns every account in sheet order.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	sh, err := s.source.Sheet(ctx, UsersSheet)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		return []User{}, nil
	}
	if err != nil {
		return nil, err
	}
	last, err := sh.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	users := []User{}
	if last < 2 {
		return users, nil
	}
	rows, err := sh.Range(ctx, 2, 1, last-1, len(usersHeader))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, row := range rows {
		if name := strings.TrimSpace(row[userNameCol-1]); name != "" {
			users = append(users, userFromRow(row))
		}
	}
	return users, nil
}

func userFromRow(row []string) User {
	return User{
		Username: strings.TrimSpace(row[userNameCol-1]),
		hash:     row[userHashCol-1],
		Role:     row[userRoleCol-1],
		Plans:    splitPlans(row[userPlansCol-1]),
	}
}

// findUser returns the user and their sheet row, or ErrUserNotFound.
func (s *Service) findUser(ctx context.Context, sh *sheet.Sheet, username string) (User, int, error) {
	row, err := sh.FindInColumn(ctx, userNameCol, 2, strings.TrimSpace(username))
	if err != nil {
		return User{}, 0, err
	}
	if row == 0 {
		return User{}, 0, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	values, err := sh.Range(ctx, row, 1, 1, len(usersHeader))
	if err != nil {
		return User{}, 0, err
	}
	return userFromRow(values[0]), row, nil
}

// User returns one account.
func (s *Service) User(ctx context.Context, username string) (User, error) {
	sh, err := s.source.Sheet(ctx, UsersSheet)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return User{}, err
	}
	u, _, err := s.findUser(ctx, sh, username)
	return u, err
}

// CreateUser adds an account. The Users sheet is created on first use.
func (s *Service) CreateUser(ctx context.Context, username, password, role string, plans []string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, attendance.NewValidationError("username", "a username is required")
	}
	if password == "" {
		return User{}, attendance.NewValidationError("password", "a password is required")
	}
	role, err := normalizeRole(role)
	if err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{Username: username, Role: role, Plans: splitPlans(strings.Join(plans, ","))}

	err = s.source.InTx(ctx, func(tx *sheet.Workbook) error {
		sh, err := usersSheet(ctx, tx)
		if err != nil {
			return err
		}
		if _, _, err := s.findUser(ctx, sh, username); err == nil {
			return fmt.Errorf("%w: %s", ErrUserExists, username)
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		_, err = sh.AppendRow(ctx, []string{username, string(hash), role, strings.Join(u.Plans, ",")})
		return err
	})
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created", "username", username, "role", role)
	return u, nil
}

// usersSheet returns the Users sheet, creating it with a header row.
func usersSheet(ctx context.Context, wb *sheet.Workbook) (*sheet.Sheet, error) {
	sh, err := wb.CreateSheet(ctx, UsersSheet)
	if err != nil {
		return nil, err
	}
	last, err := sh.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	if last == 0 {
		if err := sh.SetRange(ctx, 1, 1, [][]string{usersHeader}); err != nil {
			return nil, err
		}
	}
	return sh, nil
}

// DeleteUser removes an account.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	err := s.source.InTx(ctx, func(tx *sheet.Workbook) error {
		sh, err := tx.Sheet(ctx, UsersSheet)
		if errors.Is(err, sheet.ErrSheetNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		if err != nil {
			return err
		}
		_, row, err := s.findUser(ctx, sh, username)
		if err != nil {
			return err
		}
		return sh.DeleteRow(ctx, row)
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", "username", username)
	return nil
}

// ChangePassword replaces a user's password hash.
func (s *Service) ChangePassword(ctx context.Context, username, newPassword string) error {
	if newPassword == "" {
		return attendance.NewValidationError("password", "a password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.source.InTx(ctx, func(tx *sheet.Workbook) error {
		sh, err := tx.Sheet(ctx, UsersSheet)
		if errors.Is(err, sheet.ErrSheetNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		if err != nil {
			return err
		}
		_, row, err := s.findUser(ctx, sh, username)
		if err != nil {
			return err
		}
		return sh.Set(ctx, row, userHashCol, string(hash))
	})
}

// Authenticate checks a username and password. Every failure is
// ErrInvalidCredentials so callers cannot probe for usernames.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.User(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.hash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
