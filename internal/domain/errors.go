package domain

import "errors"

// Store-level errors. The usecase layer translates these into the
// caller-facing taxonomy.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	ErrConflict  = errors.New("conditional update did not match")
)
