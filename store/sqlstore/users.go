package sqlstore

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/kevinaaaquil/library/backend/models"
)

const usersTable = "users"

var userColumns = []any{"id", "username", "password_hash", "full_name", "role", "reader_id", "created_at"}

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	_, err := q.exec(ctx, q.insert(usersTable).Rows(goqu.Record{
		"id":            u.ID,
		"username":      u.Username,
		"password_hash": u.PasswordHash,
		"full_name":     u.FullName,
		"role":          u.Role,
		"reader_id":     nullString(u.ReaderID),
		"created_at":    utc(u.CreatedAt),
	}))
	return err
}

func (q *queries) UpdateUser(ctx context.Context, u *models.User) error {
	return q.execOne(ctx, q.update(usersTable).Set(goqu.Record{
		"username":      u.Username,
		"password_hash": u.PasswordHash,
		"full_name":     u.FullName,
		"role":          u.Role,
		"reader_id":     nullString(u.ReaderID),
	}).Where(goqu.C("id").Eq(u.ID)))
}

func (q *queries) DeleteUser(ctx context.Context, id string) error {
	return q.execOne(ctx, q.delete(usersTable).Where(goqu.C("id").Eq(id)))
}

func (q *queries) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := q.get(ctx, &u, q.from(usersTable).Select(userColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := q.get(ctx, &u, q.from(usersTable).Select(userColumns...).Where(goqu.C("username").Eq(username))); err != nil {
		return nil, err
	}
	return &u, nil
}

func (q *queries) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := q.selectAll(ctx, &users, q.from(usersTable).Select(userColumns...).Order(goqu.C("created_at").Asc(), goqu.C("id").Asc())); err != nil {
		return nil, err
	}
	return users, nil
}

func (q *queries) AdminsCount(ctx context.Context) (int, error) {
	return q.count(ctx, q.from(usersTable).Where(goqu.C("role").Eq(models.RoleAdmin)))
}
