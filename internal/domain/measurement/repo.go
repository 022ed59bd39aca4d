package measurement

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a measurement does not exist or belongs to
// another user; callers cannot tell the two apart.
var ErrNotFound = errors.New("measurement not found")

type Repository interface {
	Create(ctx context.Context, m *Measurement) error
	// ListByUser returns the user's measurements, newest timestamp first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Measurement, error)
	DeleteForUser(ctx context.Context, id, userID uuid.UUID) error
}
