package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	return insert(q.ctx(ctx), q.Users(), u)
}

func (q *queries) UpdateUser(ctx context.Context, u *models.User) error {
	set := bson.M{
		"username": u.Username,
		"password": u.PasswordHash,
		"fullName": u.FullName,
		"role":     u.Role,
	}
	update := bson.M{"$set": set}
	if u.ReaderID != nil {
		set["readerId"] = *u.ReaderID
	} else {
		update["$unset"] = bson.M{"readerId": ""}
	}
	ok, err := updateMatched(q.ctx(ctx), q.Users(), bson.M{"_id": u.ID}, update)
	if err == nil && !ok {
		return store.ErrNotFound
	}
	return err
}

func (q *queries) DeleteUser(ctx context.Context, id string) error {
	res, err := q.Users().DeleteOne(q.ctx(ctx), bson.M{"_id": id})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (q *queries) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := findOne(q.ctx(ctx), q.Users(), bson.M{"_id": id}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := findOne(q.ctx(ctx), q.Users(), bson.M{"username": username}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) ListUsers(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](q.ctx(ctx), q.Users(), bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
}

func (q *queries) AdminsCount(ctx context.Context) (int, error) {
	return count(q.ctx(ctx), q.Users(), bson.M{"role": models.RoleAdmin})
}
