package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const readersTable = "readers"

var readerColumns = []any{
	"id", "card_id", "name", "faculty", "email", "phone", "status", "created_at", "updated_at",
}

func (q *queries) CreateReader(ctx context.Context, r *models.Reader) error {
	_, err := q.exec(ctx, q.insert(readersTable).Rows(goqu.Record{
		"id":         r.ID,
		"card_id":    r.CardID,
		"name":       r.Name,
		"faculty":    r.Faculty,
		"email":      r.Email,
		"phone":      r.Phone,
		"status":     string(r.Status),
		"created_at": utc(r.CreatedAt),
		"updated_at": utc(r.UpdatedAt),
	}))
	return err
}

func (q *queries) UpdateReader(ctx context.Context, r *models.Reader) error {
	return q.execOne(ctx, q.update(readersTable).Set(goqu.Record{
		"card_id":    r.CardID,
		"name":       r.Name,
		"faculty":    r.Faculty,
		"email":      r.Email,
		"phone":      r.Phone,
		"status":     string(r.Status),
		"updated_at": utc(r.UpdatedAt),
	}).Where(goqu.C("id").Eq(r.ID)))
}

func (q *queries) DeleteReader(ctx context.Context, id string) error {
	return q.execOne(ctx, q.delete(readersTable).Where(goqu.C("id").Eq(id)))
}

func (q *queries) ReaderByID(ctx context.Context, id string) (*models.Reader, error) {
	var r models.Reader
	if err := q.get(ctx, &r, q.from(readersTable).Select(readerColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) ListReaders(ctx context.Context, f store.ReaderFilter) ([]models.Reader, error) {
	ds := q.from(readersTable).Select(readerColumns...)
	if f.Search != "" {
		p := likePattern(f.Search)
		ds = ds.Where(goqu.Or(
			goqu.Func("LOWER", goqu.C("name")).Like(p),
			goqu.Func("LOWER", goqu.C("card_id")).Like(p),
			goqu.Func("LOWER", goqu.C("email")).Like(p),
		))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	readers := []models.Reader{}
	if err := q.selectAll(ctx, &readers, ds.Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())); err != nil {
		return nil, err
	}
	return readers, nil
}

func (q *queries) CountReaders(ctx context.Context) (int, error) {
	return q.count(ctx, q.from(readersTable))
}

func (q *queries) LockReader(ctx context.Context, id string) error {
	return q.execOne(ctx, q.update(readersTable).
		Set(goqu.Record{"updated_at": utc(time.Now())}).
		Where(goqu.C("id").Eq(id)))
}
