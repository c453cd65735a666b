package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const notificationsTable = "notifications"

var notificationColumns = []any{"id", "title", "message", "type", "is_read", "reader_id", "created_at"}

func (q *queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := q.exec(ctx, q.insert(notificationsTable).Rows(goqu.Record{
		"id":         n.ID,
		"title":      n.Title,
		"message":    n.Message,
		"type":       string(n.Type),
		"is_read":    n.IsRead,
		"reader_id":  nullString(n.ReaderID),
		"created_at": utc(n.CreatedAt),
	}))
	return err
}

func scopeExpr(scope store.NotificationScope) exp.Expression {
	if !scope.Restrict {
		return nil
	}
	return goqu.Or(goqu.C("reader_id").Eq(scope.ReaderID), goqu.C("reader_id").IsNull())
}

// ownExpr narrows a restricted scope to the reader's own rows.
func ownExpr(scope store.NotificationScope) exp.Expression {
	if !scope.Restrict {
		return nil
	}
	return goqu.C("reader_id").Eq(scope.ReaderID)
}

func (q *queries) scoped(ds *goqu.SelectDataset, scope store.NotificationScope) *goqu.SelectDataset {
	if e := scopeExpr(scope); e != nil {
		ds = ds.Where(e)
	}
	return ds
}

func (q *queries) ListNotifications(ctx context.Context, scope store.NotificationScope, p store.Page) ([]models.Notification, error) {
	ds := q.scoped(q.from(notificationsTable), scope).
		Select(notificationColumns...).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	if p.Limit > 0 {
		ds = ds.Limit(uint(p.Limit))
	}
	if p.Offset > 0 {
		ds = ds.Offset(uint(p.Offset))
	}
	out := []models.Notification{}
	if err := q.selectAll(ctx, &out, ds); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *queries) CountNotifications(ctx context.Context, scope store.NotificationScope, unreadOnly bool) (int, error) {
	if !unreadOnly {
		return q.count(ctx, q.scoped(q.from(notificationsTable), scope))
	}
	ds := q.from(notificationsTable).Where(goqu.C("is_read").Eq(false))
	if e := ownExpr(scope); e != nil {
		ds = ds.Where(e)
	}
	return q.count(ctx, ds)
}

func (q *queries) MarkNotificationRead(ctx context.Context, id string, scope store.NotificationScope) (bool, error) {
	ds := q.update(notificationsTable).Set(goqu.Record{"is_read": true}).Where(goqu.C("id").Eq(id))
	if e := ownExpr(scope); e != nil {
		ds = ds.Where(e)
	}
	n, err := q.exec(ctx, ds)
	if err != nil || n == 1 || !scope.Restrict {
		return n == 1, err
	}
	// a visible broadcast is found but left as is
	shared, err := q.count(ctx, q.from(notificationsTable).Where(goqu.C("id").Eq(id), goqu.C("reader_id").IsNull()))
	return shared == 1, err
}

func (q *queries) MarkAllNotificationsRead(ctx context.Context, scope store.NotificationScope) (int, error) {
	ds := q.update(notificationsTable).Set(goqu.Record{"is_read": true}).Where(goqu.C("is_read").Eq(false))
	if e := ownExpr(scope); e != nil {
		ds = ds.Where(e)
	}
	n, err := q.exec(ctx, ds)
	return int(n), err
}

func (q *queries) DeleteReadNotificationsBefore(ctx context.Context, before time.Time) (int, error) {
	n, err := q.exec(ctx, q.delete(notificationsTable).Where(
		goqu.C("is_read").Eq(true),
		goqu.C("created_at").Lt(utc(before)),
	))
	return int(n), err
}
