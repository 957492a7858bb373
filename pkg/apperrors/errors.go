package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrCrossTenant     = errors.New("resource belongs to a different org")
	ErrSelfMerge       = errors.New("cannot merge an actor into itself")
	ErrNotConnected    = errors.New("integration not connected")
	ErrInvalidSource   = errors.New("invalid source")
	ErrNoLatestVersion = errors.New("skill has no latest version")
)
