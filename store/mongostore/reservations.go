package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

func (q *queries) CreateReservation(ctx context.Context, r *models.Reservation) error {
	return insert(q.ctx(ctx), q.Reservations(), r)
}

func (q *queries) ReservationByID(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := findOne(q.ctx(ctx), q.Reservations(), bson.M{"_id": id}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) PendingReservation(ctx context.Context, readerID, bookID string) (*models.Reservation, error) {
	var r models.Reservation
	filter := bson.M{"readerId": readerID, "bookId": bookID, "status": models.ReservationPending}
	if err := findOne(q.ctx(ctx), q.Reservations(), filter, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func reservationFilter(f store.ReservationFilter) bson.M {
	filter := bson.M{}
	if f.ReaderID != "" {
		filter["readerId"] = f.ReaderID
	}
	if f.BookID != "" {
		filter["bookId"] = f.BookID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.ExpiresBefore != nil {
		filter["expiresAt"] = bson.M{"$lt": *f.ExpiresBefore}
	}
	return filter
}

func (q *queries) ListReservations(ctx context.Context, f store.ReservationFilter) ([]models.Reservation, error) {
	return findAll[models.Reservation](q.ctx(ctx), q.Reservations(), reservationFilter(f),
		options.Find().SetSort(bson.D{{Key: "reservedAt", Value: -1}, {Key: "_id", Value: 1}}))
}

func (q *queries) CountReservations(ctx context.Context, f store.ReservationFilter) (int, error) {
	return count(q.ctx(ctx), q.Reservations(), reservationFilter(f))
}

func (q *queries) TransitionReservation(ctx context.Context, id string, from, to models.ReservationStatus, at time.Time) (bool, error) {
	return updateMatched(q.ctx(ctx), q.Reservations(),
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "closedAt": at, "updatedAt": at}})
}
