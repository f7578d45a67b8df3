package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

const usersCollection = "users"

// Connect opens a client, verifies it with a ping and returns the users collection.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Collection, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, client.Database(database).Collection(usersCollection), nil
}

type UserRepo struct {
	coll *mongo.Collection
}

func NewUserRepo(coll *mongo.Collection) *UserRepo {
	return &UserRepo{coll: coll}
}

// EnsureIndexes creates the unique email index the duplicate check relies on.
func (r *UserRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_key"),
		},
		{
			Keys: bson.D{{Key: "reset_token_hash", Value: 1}},
			Options: options.Index().
				SetName("users_reset_token_hash_key").
				SetPartialFilterExpression(bson.M{"reset_token_hash": bson.M{"$exists": true}}),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}},
			Options: options.Index().SetName("users_role_idx"),
		},
	})
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return doc.toDomain(), nil
}

func (r *UserRepo) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound()
	}
	return nil
}

// ---------- auth.UserRepo ----------

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = domain.NormalizeEmail(u.Email)
	if u.ID == "" || u.Email == "" || u.PasswordHash == "" {
		return domain.User{}, domain.ErrInternal(fmt.Errorf("create user: id, email and password hash are required"))
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	if _, err := r.coll.InsertOne(ctx, fromDomain(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	defer cur.Close(ctx)

	out := make([]domain.User, 0)
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, domain.ErrDBUnavailable(err)
		}
		out = append(out, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	return out, nil
}

func (r *UserRepo) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"role": string(role)})
	if err != nil {
		return 0, domain.ErrDBUnavailable(err)
	}
	return int(n), nil
}

// UpdateProfile applies the non-nil fields of the patch. Without multi
// document transactions, a demotion is checked after the write: if no admin
// is left the role is put back and ErrLastAdminProtected is returned.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, p domain.ProfilePatch) (domain.User, error) {
	set := bson.M{}
	if p.Name != nil {
		set["name"] = *p.Name
	}
	if p.Email != nil {
		set["email"] = domain.NormalizeEmail(*p.Email)
	}
	if p.Role != nil {
		set["role"] = string(*p.Role)
	}
	if len(set) == 0 {
		return r.GetByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var before userDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		if mongo.IsDuplicateKeyError(err) {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}

	u := before.toDomain()
	if u.Role == domain.RoleAdmin && p.Role != nil && *p.Role != domain.RoleAdmin {
		if err := r.keepOneAdmin(ctx, func(ctx context.Context) error {
			_, err := r.coll.UpdateOne(ctx,
				bson.M{"_id": id, "role": string(*p.Role)},
				bson.M{"$set": bson.M{"role": string(domain.RoleAdmin)}},
			)
			return err
		}); err != nil {
			return domain.User{}, err
		}
	}

	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = domain.NormalizeEmail(*p.Email)
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	return u, nil
}

// keepOneAdmin runs undo when the previous write left no admin behind.
func (r *UserRepo) keepOneAdmin(ctx context.Context, undo func(ctx context.Context) error) error {
	n, err := r.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := undo(ctx); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return domain.ErrLastAdminProtected()
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"password_hash": hash},
		"$inc": bson.M{"token_version": 1},
	})
}

func (r *UserRepo) UpdateAvatar(ctx context.Context, id string, a domain.Avatar) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"avatar": avatarDoc{PublicID: a.PublicID, URL: a.URL},
	}})
}

// Delete removes the document; deleting the last admin is undone by
// reinserting it.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	var doc userDoc
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrUserNotFound()
		}
		return domain.ErrDBUnavailable(err)
	}
	if domain.Role(doc.Role) != domain.RoleAdmin {
		return nil
	}
	return r.keepOneAdmin(ctx, func(ctx context.Context) error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})
}

func (r *UserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": expiry,
	}})
}

func (r *UserRepo) ClearResetToken(ctx context.Context, id string) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": bson.M{
		"reset_token_hash":       "",
		"reset_token_expires_at": "",
	}})
}

func (r *UserRepo) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	if tokenHash == "" {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.findOne(ctx, bson.M{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": bson.M{"$gt": now},
	})
}

// ConsumeResetToken matches on the token as well as the id; a single document
// update is atomic, so a token can only be used once.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, id, tokenHash, newHash string, now time.Time) error {
	return r.updateOne(ctx,
		bson.M{
			"_id":                    id,
			"reset_token_hash":       tokenHash,
			"reset_token_expires_at": bson.M{"$gt": now},
		},
		bson.M{
			"$set":   bson.M{"password_hash": newHash},
			"$inc":   bson.M{"token_version": 1},
			"$unset": bson.M{"reset_token_hash": "", "reset_token_expires_at": ""},
		},
	)
}

func (r *UserRepo) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, nil); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}
