package models

import "errors"

// Store errors. Implementations wrap these so callers can use errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyDeleted   = errors.New("already deleted")
	ErrVersionMismatch  = errors.New("record was modified concurrently")
	ErrDuplicate        = errors.New("duplicate record")
	ErrInvalidReference = errors.New("referenced record does not exist")
	ErrOwnerMissing     = errors.New("owning user does not exist")
)
