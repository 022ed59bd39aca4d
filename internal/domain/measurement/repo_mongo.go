package measurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bptrack/bptrack/internal/platform/docdb"
)

// measurementDoc stores the reading time twice: as a BSON date for queries
// from the shell, and as Unix microseconds because BSON dates stop at
// milliseconds.
type measurementDoc struct {
	ID              string    `bson:"_id"`
	UserID          string    `bson:"user_id"`
	Systolic        int       `bson:"systolic"`
	Diastolic       int       `bson:"diastolic"`
	Pulse           int       `bson:"pulse"`
	Timestamp       time.Time `bson:"timestamp"`
	TimestampMicros int64     `bson:"timestamp_us"`
	Tags            []string  `bson:"tags"`
	Notes           *string   `bson:"notes"`
	CreatedAt       time.Time `bson:"created_at"`
}

func (d measurementDoc) toMeasurement() (*Measurement, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode measurement id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("decode user id %q: %w", d.UserID, err)
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	ts := d.Timestamp
	if d.TimestampMicros != 0 {
		ts = time.UnixMicro(d.TimestampMicros)
	}
	return &Measurement{
		ID:        id,
		UserID:    userID,
		Systolic:  d.Systolic,
		Diastolic: d.Diastolic,
		Pulse:     d.Pulse,
		Timestamp: ts.UTC(),
		Tags:      tags,
		Notes:     d.Notes,
		CreatedAt: d.CreatedAt.UTC(),
	}, nil
}

type measurementRepoMongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewRepoMongo(database *mongo.Database) Repository {
	return &measurementRepoMongo{
		coll: database.Collection(docdb.MeasurementsCollection),
		now:  time.Now,
	}
}

func (r *measurementRepoMongo) Create(ctx context.Context, m *Measurement) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	m.CreatedAt = r.now().UTC().Truncate(time.Millisecond)
	m.Timestamp = m.Timestamp.UTC().Truncate(time.Microsecond)
	doc := measurementDoc{
		ID:              m.ID.String(),
		UserID:          m.UserID.String(),
		Systolic:        m.Systolic,
		Diastolic:       m.Diastolic,
		Pulse:           m.Pulse,
		Timestamp:       m.Timestamp,
		TimestampMicros: m.Timestamp.UnixMicro(),
		Tags:            m.Tags,
		Notes:           m.Notes,
		CreatedAt:       m.CreatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func (r *measurementRepoMongo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Measurement, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "timestamp", Value: -1},
		{Key: "timestamp_us", Value: -1},
		{Key: "created_at", Value: -1},
	})
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID.String()}, opts)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer cur.Close(ctx)

	items := []*Measurement{}
	for cur.Next(ctx) {
		var d measurementDoc
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("decode measurement: %w", err)
		}
		m, err := d.toMeasurement()
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, cur.Err()
}

func (r *measurementRepoMongo) DeleteForUser(ctx context.Context, id, userID uuid.UUID) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id.String(), "user_id": userID.String()})
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
