package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/taskmanager/task-api/internal/core/domain"
	"github.com/taskmanager/task-api/internal/core/ports"
)

const collectionAccounts = "users"

var _ ports.AccountRepository = (*AccountRepository)(nil)

// AccountRepository stores accounts with their sessions embedded in the
// account document, so every session change is a single atomic update.
type AccountRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewAccountRepository(db *mongo.Database) *AccountRepository {
	return &AccountRepository{col: db.Collection(collectionAccounts), now: time.Now}
}

type sessionDocument struct {
	Token string `bson:"token"`
}

type accountDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Email     string             `bson:"email"`
	Age       int                `bson:"age"`
	Password  string             `bson:"password"`
	Tokens    []sessionDocument  `bson:"tokens"`
	Avatar    []byte             `bson:"avatar,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// withoutAvatar keeps the image blob out of every lookup that does not need it.
var withoutAvatar = bson.M{"avatar": 0}

func (d *accountDocument) toDomain() *domain.Account {
	sessions := make([]string, 0, len(d.Tokens))
	for _, t := range d.Tokens {
		sessions = append(sessions, t.Token)
	}
	return &domain.Account{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		Age:          d.Age,
		PasswordHash: d.Password,
		Sessions:     sessions,
		Avatar:       d.Avatar,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// writeError maps a unique email violation to a validation error and wraps
// everything else with op.
func writeError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return domain.NewValidationError("email", "is already registered")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sessionFilter(id primitive.ObjectID, token string) bson.M {
	return bson.M{"_id": id, "tokens.token": token}
}

func addSessionUpdate(token string, now time.Time) bson.M {
	return bson.M{
		"$push": bson.M{"tokens": sessionDocument{Token: token}},
		"$set":  bson.M{"updatedAt": now},
	}
}

func removeSessionUpdate(token string, now time.Time) bson.M {
	return bson.M{
		"$pull": bson.M{"tokens": bson.M{"token": token}},
		"$set":  bson.M{"updatedAt": now},
	}
}

func clearSessionsUpdate(now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{"tokens": []sessionDocument{}, "updatedAt": now},
	}
}

// Create inserts a new account document and returns it with its assigned id.
func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := accountDocument{
		Name:      account.Name,
		Email:     account.Email,
		Age:       account.Age,
		Password:  account.PasswordHash,
		Tokens:    []sessionDocument{},
		CreatedAt: account.CreatedAt,
		UpdatedAt: account.UpdatedAt,
	}
	for _, t := range account.Sessions {
		doc.Tokens = append(doc.Tokens, sessionDocument{Token: t})
	}

	res, err := r.col.InsertOne(ctx, doc)
	if err != nil {
		return nil, writeError("insert account", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("insert account: unexpected id type %T", res.InsertedID)
	}
	doc.ID = oid
	return doc.toDomain(), nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

// FindBySessionToken matches the account id and a live token in one query.
func (r *AccountRepository) FindBySessionToken(ctx context.Context, id, token string) (*domain.Account, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return r.findOne(ctx, sessionFilter(oid, token))
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc accountDocument
	err := r.col.FindOne(ctx, filter, options.FindOne().SetProjection(withoutAvatar)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

// Update sets only the changed fields, leaving sessions and avatar untouched.
func (r *AccountRepository) Update(ctx context.Context, id string, changes domain.AccountChanges) (*domain.Account, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	set := bson.M{"updatedAt": r.now().UTC()}
	if changes.Name != nil {
		set["name"] = *changes.Name
	}
	if changes.Email != nil {
		set["email"] = *changes.Email
	}
	if changes.Age != nil {
		set["age"] = *changes.Age
	}
	if changes.PasswordHash != nil {
		set["password"] = *changes.PasswordHash
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutAvatar)

	var doc accountDocument
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, writeError("update account", err)
	}
	return doc.toDomain(), nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// AddSession appends token with $push so concurrent logins never overwrite
// each other.
func (r *AccountRepository) AddSession(ctx context.Context, id, token string) error {
	return r.updateOne(ctx, id, addSessionUpdate(token, r.now().UTC()))
}

// RemoveSession pulls exactly the matching token; pulling an absent token
// matches the account and changes nothing.
func (r *AccountRepository) RemoveSession(ctx context.Context, id, token string) error {
	return r.updateOne(ctx, id, removeSessionUpdate(token, r.now().UTC()))
}

func (r *AccountRepository) ClearSessions(ctx context.Context, id string) error {
	return r.updateOne(ctx, id, clearSessionsUpdate(r.now().UTC()))
}

func (r *AccountRepository) SetAvatar(ctx context.Context, id string, png []byte) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"avatar": png, "updatedAt": r.now().UTC()},
	})
}

func (r *AccountRepository) ClearAvatar(ctx context.Context, id string) error {
	return r.updateOne(ctx, id, bson.M{
		"$unset": bson.M{"avatar": ""},
		"$set":   bson.M{"updatedAt": r.now().UTC()},
	})
}

func (r *AccountRepository) FindAvatar(ctx context.Context, id string) ([]byte, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc struct {
		Avatar []byte `bson:"avatar"`
	}
	opts := options.FindOne().SetProjection(bson.M{"avatar": 1})
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find avatar: %w", err)
	}
	return doc.Avatar, nil
}

func (r *AccountRepository) updateOne(ctx context.Context, id string, update bson.M) error {
	oid, ok := objectID(id)
	if !ok {
		return domain.ErrAccountNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// EnsureIndexes creates the unique email index and the session lookup index.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "tokens.token", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
