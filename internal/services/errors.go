package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrStoreUnavailable is returned by ListAll when the store cannot be read
// and the demo fallback is disabled.
var ErrStoreUnavailable = errors.New("user profile store unavailable")

// ErrSubmitInFlight is returned when a form is submitted while its previous submit is still running.
var ErrSubmitInFlight = errors.New("submission already in progress")

// StoreWriteError wraps a failed create, update or delete.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to %s user profile: %v", e.Op, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// ValidationErrors maps a field path (for example "email" or "experience.years")
// to a human readable message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for field := range v {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	parts := make([]string, 0, len(v))
	for _, field := range fields {
		parts = append(parts, field+": "+v[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Banner messages shown by the console.
const (
	BannerLoadFailed   = "Failed to load users"
	BannerCreateFailed = "Failed to create user"
	BannerUpdateFailed = "Failed to update user"
	BannerDeleteFailed = "Failed to delete user"
)
