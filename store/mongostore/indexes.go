package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the unique and lookup indexes the library relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.Books(): {
			{
				Keys:    bson.D{{Key: "isbn", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"isbn": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		s.Readers(): {
			{Keys: bson.D{{Key: "cardId", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.Loans(): {
			{Keys: bson.D{{Key: "readerId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "bookId", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "dueDate", Value: 1}}},
		},
		s.Reservations(): {
			{
				Keys:    bson.D{{Key: "readerId", Value: 1}, {Key: "bookId", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"status": "pending"}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expiresAt", Value: 1}}},
		},
		s.Fines(): {
			{Keys: bson.D{{Key: "loanId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "readerId", Value: 1}}},
		},
		s.Notifications(): {
			{Keys: bson.D{{Key: "readerId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		s.Users(): {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
