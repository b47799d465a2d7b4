package backend

import "errors"

var (
	// ErrPlanNotFound is returned for a plan missing from the plan list.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrLotNotFound is returned when a lot has no row on the plan sheet.
	ErrLotNotFound = errors.New("lot not found")

	// ErrUserExists is returned when creating a username already taken.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound is returned for an unknown username.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials covers both an unknown user and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
