package models

import "errors"

// Repository sentinels shared by the mongo store and in-memory fakes.
var (
	ErrNotFound  = errors.New("document not found")
	ErrDuplicate = errors.New("duplicate key")
)
