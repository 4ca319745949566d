// Package repository persists workflow records.
//
// Writes are compare-and-swap on (id, status, version): at most one
// transition commits per expected state, the loser gets ErrConflict.
package repository

import (
	"context"
	"errors"
	"time"

	"hseptw.io/ptw/internal/domain"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("repository: record not found")
	// ErrConflict is returned when the stored status or version differs from the expected one.
	ErrConflict = errors.New("repository: concurrent modification")
	// ErrDuplicate is returned for an id or reference number already in use.
	ErrDuplicate = errors.New("repository: duplicate record")
)

// Precondition is the state a writer loaded and expects to replace.
type Precondition struct {
	Status  domain.Status
	Version int64
}

// Expect returns the precondition matching rec as loaded.
func Expect(rec domain.Record) Precondition {
	h := rec.Header()
	return Precondition{Status: h.Status, Version: h.Version}
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Kind      domain.Kind
	Status    domain.Status
	CreatedBy string
	Limit     int
	Offset    int
}

// DefaultListLimit applies when Filter.Limit is not positive. A negative
// Filter.Offset reads from the start.
const DefaultListLimit = 50

// Repository stores records. Implementations return deep copies, so callers
// may hold and modify what they load.
type Repository interface {
	// Create inserts rec with version 1.
	Create(ctx context.Context, rec domain.Record) error
	Load(ctx context.Context, id string) (domain.Record, error)
	// Save replaces the stored record if it still matches expect and sets
	// rec's version to the stored one.
	Save(ctx context.Context, rec domain.Record, expect Precondition) error
	// List returns one page of records, newest first, and the total match count.
	List(ctx context.Context, f Filter) ([]domain.Record, int, error)
	// ListExpirable returns ids of validated or in-progress records whose
	// planned end is before cutoff.
	ListExpirable(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

func expirable(s domain.Status) bool {
	return s == domain.StatusValidated || s == domain.StatusInProgress
}
