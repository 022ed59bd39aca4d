package measurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Measurement is one blood pressure reading owned by a single user.
type Measurement struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Systolic  int       `json:"systolic"`
	Diastolic int       `json:"diastolic"`
	Pulse     int       `json:"pulse"`
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"-"`
}

// Fields carries the caller supplied values of a new measurement. A zero
// Timestamp is replaced by the creation time.
type Fields struct {
	Systolic  int
	Diastolic int
	Pulse     int
	Timestamp time.Time
	Tags      []string
	Notes     *string
}

// ValidationError reports a field that failed validation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Validate checks that every reading is a positive integer.
func (f Fields) Validate() error {
	switch {
	case f.Systolic <= 0:
		return &ValidationError{Field: "systolic", Msg: "Input should be greater than 0"}
	case f.Diastolic <= 0:
		return &ValidationError{Field: "diastolic", Msg: "Input should be greater than 0"}
	case f.Pulse <= 0:
		return &ValidationError{Field: "pulse", Msg: "Input should be greater than 0"}
	}
	return nil
}

// CreateRequest is the body of POST /measurements/bp. Pointers distinguish
// absent fields from zero values.
type CreateRequest struct {
	Systolic  *int     `json:"systolic"`
	Diastolic *int     `json:"diastolic"`
	Pulse     *int     `json:"pulse"`
	Timestamp *string  `json:"timestamp"`
	Tags      []string `json:"tags"`
	Notes     *string  `json:"notes"`
}

// MutationResponse acknowledges a create or delete.
type MutationResponse struct {
	OK bool   `json:"ok"`
	ID string `json:"id"`
}
