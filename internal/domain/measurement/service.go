package measurement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, logger: zerolog.Nop()}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "measurement").Logger()
}

// Create stores a new measurement for userID. Timestamps are kept in UTC at
// microsecond precision.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, f Fields) (*Measurement, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ts := f.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}

	m := &Measurement{
		ID:        uuid.New(),
		UserID:    userID,
		Systolic:  f.Systolic,
		Diastolic: f.Diastolic,
		Pulse:     f.Pulse,
		Timestamp: ts.UTC().Truncate(time.Microsecond),
		Tags:      tags,
		Notes:     f.Notes,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Debug().Str("measurement_id", m.ID.String()).Str("user_id", userID.String()).Msg("measurement created")
	return m, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Measurement, error) {
	return s.repo.ListByUser(ctx, userID)
}

// DeleteForUser removes a measurement owned by userID. Measurements of other
// users report ErrNotFound.
func (s *Service) DeleteForUser(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.DeleteForUser(ctx, id, userID)
}

// CreateFromFHIR parses a FHIR Observation or Bundle and stores the reading
// it describes. Translator errors are returned unwrapped.
func (s *Service) CreateFromFHIR(ctx context.Context, userID uuid.UUID, payload []byte) (*Measurement, error) {
	fields, err := ParseFHIRPayload(payload, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, userID, fields)
}
