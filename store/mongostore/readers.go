package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

func (q *queries) CreateReader(ctx context.Context, r *models.Reader) error {
	return insert(q.ctx(ctx), q.Readers(), r)
}

func (q *queries) UpdateReader(ctx context.Context, r *models.Reader) error {
	ok, err := updateMatched(q.ctx(ctx), q.Readers(), bson.M{"_id": r.ID}, bson.M{"$set": bson.M{
		"cardId":    r.CardID,
		"name":      r.Name,
		"faculty":   r.Faculty,
		"email":     r.Email,
		"phone":     r.Phone,
		"status":    r.Status,
		"updatedAt": r.UpdatedAt,
	}})
	if err == nil && !ok {
		return store.ErrNotFound
	}
	return err
}

func (q *queries) DeleteReader(ctx context.Context, id string) error {
	res, err := q.Readers().DeleteOne(q.ctx(ctx), bson.M{"_id": id})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) ReaderByID(ctx context.Context, id string) (*models.Reader, error) {
	var r models.Reader
	if err := findOne(q.ctx(ctx), q.Readers(), bson.M{"_id": id}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) ListReaders(ctx context.Context, f store.ReaderFilter) ([]models.Reader, error) {
	filter := bson.M{}
	if f.Search != "" {
		re := contains(f.Search)
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"cardId": re}, bson.M{"email": re}}
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	return findAll[models.Reader](q.ctx(ctx), q.Readers(), filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}))
}

func (q *queries) CountReaders(ctx context.Context) (int, error) {
	return count(q.ctx(ctx), q.Readers(), bson.M{})
}

// LockReader writes the reader document; concurrent transactions touching
// the same reader hit a write conflict and are retried by the driver.
func (q *queries) LockReader(ctx context.Context, id string) error {
	ok, err := updateMatched(q.ctx(ctx), q.Readers(), bson.M{"_id": id},
		bson.M{"$set": bson.M{"updatedAt": time.Now()}})
	if err == nil && !ok {
		return store.ErrNotFound
	}
	return err
}
