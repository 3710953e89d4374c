package store

import (
	"context"
	"errors"
	"time"

	"github.com/adfyer/apiserver/types"
	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	emailIndexName      = "email_unique"
	resetTokenIndexName = "reset_token_unique"
)

// accountDocument is the stored shape of an account. Field names stay
// compatible with the existing "users" collection.
type accountDocument struct {
	ID               bson.ObjectID `bson:"_id,omitempty"`
	Email            string        `bson:"email"`
	Password         string        `bson:"password"`
	ResetToken       string        `bson:"resetToken,omitempty"`
	ResetTokenExpiry *time.Time    `bson:"resetTokenExpiry,omitempty"`
	Date             time.Time     `bson:"date"`
}

func toDocument(account types.Account) (accountDocument, error) {
	doc := accountDocument{
		Email:    account.Email,
		Password: account.PasswordHash,
		Date:     account.CreatedAt,
	}
	if account.ID != "" {
		id, err := bson.ObjectIDFromHex(account.ID)
		if err != nil {
			return accountDocument{}, oops.Code("STORE_INVALID_ID").With("id", account.ID).Wrap(err)
		}
		doc.ID = id
	}
	if account.HasPendingReset() {
		expiry := *account.ResetTokenExpiry
		doc.ResetToken = account.ResetToken
		doc.ResetTokenExpiry = &expiry
	}
	return doc, nil
}

func (d accountDocument) toAccount() types.Account {
	account := types.Account{
		ID:           d.ID.Hex(),
		Email:        d.Email,
		PasswordHash: d.Password,
		CreatedAt:    d.Date,
	}
	if d.ResetToken != "" && d.ResetTokenExpiry != nil {
		expiry := *d.ResetTokenExpiry
		account.ResetToken = d.ResetToken
		account.ResetTokenExpiry = &expiry
	}
	return account
}

// MongoAccountRepository handles persistence for accounts in a MongoDB collection.
type MongoAccountRepository struct {
	coll *mongo.Collection
}

func NewMongoAccountRepository(coll *mongo.Collection) *MongoAccountRepository {
	return &MongoAccountRepository{coll: coll}
}

// EnsureIndexes creates the unique indexes that enforce one account per email
// and one account per pending reset token.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(emailIndexName).SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "resetToken", Value: 1}},
			Options: options.Index().
				SetName(resetTokenIndexName).
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "resetToken", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, models); err != nil {
		return oops.Code("STORE_INDEX_FAILED").With("collection", r.coll.Name()).Wrap(err)
	}
	return nil
}

func (r *MongoAccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return types.Account{}, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *MongoAccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoAccountRepository) GetByResetToken(ctx context.Context, digest string) (types.Account, error) {
	if digest == "" {
		return types.Account{}, ErrNotFound
	}
	return r.findOne(ctx, bson.D{{Key: "resetToken", Value: digest}})
}

func (r *MongoAccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	account.ID = bson.NewObjectID().Hex()
	account.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	account.ResetToken = ""
	account.ResetTokenExpiry = nil

	doc, err := toDocument(account)
	if err != nil {
		return types.Account{}, err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return types.Account{}, translateMongoError(err)
	}
	return account, nil
}

func (r *MongoAccountRepository) SetResetToken(ctx context.Context, id, digest string, expiry time.Time) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "resetToken", Value: digest},
		{Key: "resetTokenExpiry", Value: expiry.UTC()},
	}}}
	return r.updateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
}

func (r *MongoAccountRepository) ClearResetToken(ctx context.Context, id, digest string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	filter := bson.D{{Key: "_id", Value: oid}, {Key: "resetToken", Value: digest}}
	return r.updateOne(ctx, filter, unsetResetToken(nil))
}

// UpdatePassword replaces the password hash and consumes the reset token in a
// single conditional update. It returns ErrNotFound if the token was already consumed.
func (r *MongoAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash, digest string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	filter := bson.D{{Key: "_id", Value: oid}, {Key: "resetToken", Value: digest}}
	set := bson.D{{Key: "password", Value: passwordHash}}
	return r.updateOne(ctx, filter, unsetResetToken(set))
}

func unsetResetToken(set bson.D) bson.D {
	update := bson.D{{Key: "$unset", Value: bson.D{
		{Key: "resetToken", Value: ""},
		{Key: "resetTokenExpiry", Value: ""},
	}}}
	if len(set) > 0 {
		update = append(bson.D{{Key: "$set", Value: set}}, update...)
	}
	return update
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.D) (types.Account, error) {
	var doc accountDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, oops.Code("STORE_READ_FAILED").Wrap(err)
	}
	return doc.toAccount(), nil
}

func (r *MongoAccountRepository) updateOne(ctx context.Context, filter, update bson.D) error {
	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return translateMongoError(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func translateMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return oops.Code("STORE_DUPLICATE").Wrap(errors.Join(ErrDuplicate, err))
	}
	return oops.Code("STORE_WRITE_FAILED").Wrap(err)
}
