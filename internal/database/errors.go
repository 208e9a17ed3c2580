package database

import "errors"

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a domain with the same name and extension already exists.
	ErrDuplicate = errors.New("record already exists")

	// ErrStaleWrite is returned when the record changed since it was read.
	ErrStaleWrite = errors.New("record was modified concurrently")

	// ErrChainBroken is returned when the sync log hash chain does not verify.
	ErrChainBroken = errors.New("sync log chain broken")
)
