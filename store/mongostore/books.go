package mongostore

import (
	"context"
	"regexp"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

func contains(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func (q *queries) CreateBook(ctx context.Context, b *models.Book) error {
	return insert(q.ctx(ctx), q.Books(), b)
}

// UpdateBook refuses to drop totalQty below the copies currently out.
func (q *queries) UpdateBook(ctx context.Context, b *models.Book) error {
	ctx = q.ctx(ctx)
	set := bson.M{
		"isbn":        b.ISBN,
		"title":       b.Title,
		"author":      b.Author,
		"category":    b.Category,
		"publisher":   b.Publisher,
		"publishYear": b.PublishYear,
		"description": b.Description,
		"coverUrl":    b.CoverURL,
		"coverS3Key":  b.CoverS3Key,
		"totalQty":    b.TotalQty,
		"updatedAt":   b.UpdatedAt,
	}
	ok, err := updateMatched(ctx, q.Books(),
		bson.M{"_id": b.ID, "borrowedQty": bson.M{"$lte": b.TotalQty}},
		bson.M{"$set": set})
	if err != nil || ok {
		return err
	}
	if _, err := q.BookByID(ctx, b.ID); err != nil {
		return err
	}
	return store.ErrConflict
}

// DeleteBook removes the book only while no copy is out; otherwise it
// reports store.ErrConflict so the caller re-reads and decides again.
func (q *queries) DeleteBook(ctx context.Context, id string) error {
	res, err := q.Books().DeleteOne(q.ctx(ctx), bson.M{"_id": id, "borrowedQty": 0})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 1 {
		return nil
	}
	if _, err := q.BookByID(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func (q *queries) BookByID(ctx context.Context, id string) (*models.Book, error) {
	var b models.Book
	if err := findOne(q.ctx(ctx), q.Books(), bson.M{"_id": id}, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (q *queries) ListBooks(ctx context.Context, f store.BookFilter) ([]models.Book, error) {
	filter := bson.M{}
	if f.Search != "" {
		re := contains(f.Search)
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"author": re}, bson.M{"isbn": re}}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	return findAll[models.Book](q.ctx(ctx), q.Books(), filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}))
}

func (q *queries) Categories(ctx context.Context) ([]string, error) {
	vals, err := q.Books().Distinct(q.ctx(ctx), "category", bson.M{"category": bson.M{"$ne": ""}})
	if err != nil {
		return nil, mapError(err)
	}
	cats := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			cats = append(cats, s)
		}
	}
	sort.Strings(cats)
	return cats, nil
}

func (q *queries) CountBooks(ctx context.Context) (int, error) {
	return count(q.ctx(ctx), q.Books(), bson.M{})
}

func (q *queries) BooksByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	ctx = q.ctx(ctx)
	pipeline := bson.A{
		bson.M{"$group": bson.M{
			"_id":    "$category",
			"titles": bson.M{"$sum": 1},
			"copies": bson.M{"$sum": "$totalQty"},
		}},
		bson.M{"$sort": bson.M{"_id": 1}},
	}
	cur, err := q.Books().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapError(err)
	}
	defer cur.Close(ctx)
	out := []models.CategoryCount{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

func (q *queries) IncrementBorrowed(ctx context.Context, bookID string) (bool, error) {
	return updateMatched(q.ctx(ctx), q.Books(),
		bson.M{"_id": bookID, "$expr": bson.M{"$lt": bson.A{"$borrowedQty", "$totalQty"}}},
		bson.M{"$inc": bson.M{"borrowedQty": 1}, "$set": bson.M{"updatedAt": time.Now()}})
}

func (q *queries) DecrementBorrowed(ctx context.Context, bookID string) (bool, error) {
	return updateMatched(q.ctx(ctx), q.Books(),
		bson.M{"_id": bookID, "borrowedQty": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"borrowedQty": -1}, "$set": bson.M{"updatedAt": time.Now()}})
}
