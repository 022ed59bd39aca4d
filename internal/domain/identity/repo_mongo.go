package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/bptrack/bptrack/internal/platform/docdb"
)

// userDoc is the stored shape of a User. Ids are kept as canonical uuid
// strings so documents stay readable from the mongo shell.
type userDoc struct {
	ID             string     `bson:"_id"`
	Email          string     `bson:"email"`
	HashedPassword string     `bson:"hashed_password"`
	IsActive       bool       `bson:"is_active"`
	IsSuperuser    bool       `bson:"is_superuser"`
	IsVerified     bool       `bson:"is_verified"`
	OTP            *string    `bson:"otp"`
	OTPExpiration  *time.Time `bson:"otp_expiration"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func toUserDoc(u *User) userDoc {
	return userDoc{
		ID:             u.ID.String(),
		Email:          u.Email,
		HashedPassword: u.HashedPassword,
		IsActive:       u.IsActive,
		IsSuperuser:    u.IsSuperuser,
		IsVerified:     u.IsVerified,
		OTP:            u.OTP,
		OTPExpiration:  u.OTPExpiration,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (d userDoc) toUser() (*User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode user id %q: %w", d.ID, err)
	}
	u := &User{
		ID:             id,
		Email:          d.Email,
		HashedPassword: d.HashedPassword,
		IsActive:       d.IsActive,
		IsSuperuser:    d.IsSuperuser,
		IsVerified:     d.IsVerified,
		OTP:            d.OTP,
		OTPExpiration:  d.OTPExpiration,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if u.OTPExpiration != nil {
		t := u.OTPExpiration.UTC()
		u.OTPExpiration = &t
	}
	return u, nil
}

type userRepoMongo struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewUserRepoMongo(database *mongo.Database) UserRepository {
	return &userRepoMongo{
		coll: database.Collection(docdb.UsersCollection),
		now:  time.Now,
	}
}

func (r *userRepoMongo) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	u.CreatedAt = now
	u.UpdatedAt = now
	if _, err := r.coll.InsertOne(ctx, toUserDoc(u)); err != nil {
		if docdb.IsDuplicateKey(err) {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepoMongo) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var d userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return d.toUser()
}

func (r *userRepoMongo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *userRepoMongo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *userRepoMongo) update(ctx context.Context, id uuid.UUID, set bson.M) error {
	set["updated_at"] = r.now().UTC().Truncate(time.Millisecond)
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepoMongo) SetOTP(ctx context.Context, id uuid.UUID, otp string, expiresAt time.Time) error {
	if err := r.update(ctx, id, bson.M{"otp": otp, "otp_expiration": expiresAt.UTC()}); err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	return nil
}

func (r *userRepoMongo) ConsumeOTP(ctx context.Context, id uuid.UUID, otp string, now time.Time) error {
	filter := bson.M{
		"_id":            id.String(),
		"otp":            otp,
		"otp_expiration": bson.M{"$gte": now.UTC()},
	}
	set := bson.M{"is_verified": true, "otp": nil, "otp_expiration": nil, "updated_at": r.now().UTC().Truncate(time.Millisecond)}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrInvalidOTP
	}
	return nil
}

func (r *userRepoMongo) MarkVerified(ctx context.Context, id uuid.UUID) error {
	if err := r.update(ctx, id, bson.M{"is_verified": true, "otp": nil, "otp_expiration": nil}); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (r *userRepoMongo) Update(ctx context.Context, u *User) error {
	set := bson.M{
		"email":           u.Email,
		"hashed_password": u.HashedPassword,
		"is_verified":     u.IsVerified,
		"otp":             u.OTP,
		"otp_expiration":  u.OTPExpiration,
	}
	if err := r.update(ctx, u.ID, set); err != nil {
		if docdb.IsDuplicateKey(err) {
			return ErrUserExists
		}
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("update user: %w", err)
	}
	u.UpdatedAt = set["updated_at"].(time.Time)
	return nil
}
