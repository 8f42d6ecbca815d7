package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/usersearch/go-services/internal/models"
	"github.com/usersearch/go-services/internal/users"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoTokensIndex = "username_tokens"

// mongoUser is the stored shape. Tokens holds the lowercased letter/digit
// runs of the username so prefix lookups can use an anchored regex on an index.
type mongoUser struct {
	Username string   `bson:"_id"`
	Email    string   `bson:"email"`
	Tokens   []string `bson:"tokens"`
}

func (d mongoUser) user() models.User {
	return models.User{Username: d.Username, Email: d.Email}
}

// Mongo implements users.Store on a MongoDB collection.
type Mongo struct {
	col *mongo.Collection
}

var _ users.Store = (*Mongo)(nil)

func NewMongo(col *mongo.Collection) *Mongo {
	return &Mongo{col: col}
}

// EnsureIndex creates the multikey index on tokens. An existing index with the
// same name but different keys or options is reported as misconfigured.
func (m *Mongo) EnsureIndex(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "tokens", Value: 1}},
		Options: options.Index().SetName(mongoTokensIndex),
	}
	if _, err := m.col.Indexes().CreateOne(ctx, idx); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && (cmdErr.Code == 85 || cmdErr.Code == 86) {
			return fmt.Errorf("%w: %v", users.ErrIndexMisconfigured, err)
		}
		return fmt.Errorf("mongo create index: %w", err)
	}
	return nil
}

func (m *Mongo) Put(ctx context.Context, u *models.User) error {
	doc := mongoUser{Username: u.Username, Email: u.Email, Tokens: tokens(u.Username)}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.col.ReplaceOne(ctx, bson.M{"_id": u.Username}, doc, opts); err != nil {
		return fmt.Errorf("mongo put: %w", err)
	}
	return nil
}

func (m *Mongo) Get(ctx context.Context, username string) (*models.User, error) {
	var d mongoUser
	if err := m.col.FindOne(ctx, bson.M{"_id": username}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("mongo get: %w", err)
	}
	u := d.user()
	return &u, nil
}

func (m *Mongo) UpdateEmail(ctx context.Context, username, email string) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": username}, bson.M{"$set": bson.M{"email": email}})
	if err != nil {
		return fmt.Errorf("mongo update: %w", err)
	}
	if res.MatchedCount == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, username string) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": username})
	if err != nil {
		return fmt.Errorf("mongo delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (m *Mongo) find(ctx context.Context, filter interface{}, limit int) ([]mongoUser, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []mongoUser{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) List(ctx context.Context, limit int) ([]models.Hit, error) {
	docs, err := m.find(ctx, bson.M{}, limit)
	if err != nil {
		return nil, fmt.Errorf("mongo list: %w", err)
	}
	out := make([]models.Hit, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.Hit{ID: d.Username, Details: d.user()})
	}
	return out, nil
}

// Suggest matches any query token as a prefix of any username token, then
// ranks in process the same way Memory does.
func (m *Mongo) Suggest(ctx context.Context, text string, limit int) ([]string, error) {
	q := queryTokens(text)
	if len(q) == 0 {
		return nil, nil
	}
	patterns := make([]interface{}, 0, len(q))
	for _, tok := range q {
		patterns = append(patterns, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(tok)})
	}
	docs, err := m.find(ctx, bson.M{"tokens": bson.M{"$in": patterns}}, 0)
	if err != nil {
		return nil, fmt.Errorf("mongo suggest: %w", err)
	}
	cands := make([]scored, 0, len(docs))
	for _, d := range docs {
		cands = append(cands, scored{name: d.Username, score: score(d.Username, q)})
	}
	return rank(cands, limit), nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.col.Database().Client().Ping(ctx, nil)
}
