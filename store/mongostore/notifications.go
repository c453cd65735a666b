package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

// scopeFilter matches the reader's own notifications and broadcasts.
// A missing readerId field matches nil.
func scopeFilter(scope store.NotificationScope) bson.M {
	if !scope.Restrict {
		return bson.M{}
	}
	return bson.M{"$or": bson.A{
		bson.M{"readerId": scope.ReaderID},
		bson.M{"readerId": nil},
	}}
}

// ownFilter narrows a restricted scope to the reader's own notifications.
func ownFilter(scope store.NotificationScope) bson.M {
	if !scope.Restrict {
		return bson.M{}
	}
	return bson.M{"readerId": scope.ReaderID}
}

func (q *queries) CreateNotification(ctx context.Context, n *models.Notification) error {
	return insert(q.ctx(ctx), q.Notifications(), n)
}

func (q *queries) ListNotifications(ctx context.Context, scope store.NotificationScope, p store.Page) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit))
	}
	if p.Offset > 0 {
		opts.SetSkip(int64(p.Offset))
	}
	return findAll[models.Notification](q.ctx(ctx), q.Notifications(), scopeFilter(scope), opts)
}

func (q *queries) CountNotifications(ctx context.Context, scope store.NotificationScope, unreadOnly bool) (int, error) {
	filter := scopeFilter(scope)
	if unreadOnly {
		filter = ownFilter(scope)
		filter["isRead"] = false
	}
	return count(q.ctx(ctx), q.Notifications(), filter)
}

func (q *queries) MarkNotificationRead(ctx context.Context, id string, scope store.NotificationScope) (bool, error) {
	filter := ownFilter(scope)
	filter["_id"] = id
	ok, err := updateMatched(q.ctx(ctx), q.Notifications(), filter, bson.M{"$set": bson.M{"isRead": true}})
	if err != nil || ok || !scope.Restrict {
		return ok, err
	}
	shared, err := count(q.ctx(ctx), q.Notifications(), bson.M{"_id": id, "readerId": nil})
	return shared == 1, err
}

func (q *queries) MarkAllNotificationsRead(ctx context.Context, scope store.NotificationScope) (int, error) {
	filter := ownFilter(scope)
	filter["isRead"] = false
	res, err := q.Notifications().UpdateMany(q.ctx(ctx), filter, bson.M{"$set": bson.M{"isRead": true}})
	if err != nil {
		return 0, mapError(err)
	}
	return int(res.ModifiedCount), nil
}

func (q *queries) DeleteReadNotificationsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := q.Notifications().DeleteMany(q.ctx(ctx),
		bson.M{"isRead": true, "createdAt": bson.M{"$lt": before}})
	if err != nil {
		return 0, mapError(err)
	}
	return int(res.DeletedCount), nil
}
