package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const reservationsTable = "reservations"

var reservationColumns = []any{
	"id", "book_id", "reader_id", "reserved_at", "expires_at", "status", "closed_at", "updated_at",
}

func (q *queries) CreateReservation(ctx context.Context, r *models.Reservation) error {
	_, err := q.exec(ctx, q.insert(reservationsTable).Rows(goqu.Record{
		"id":          r.ID,
		"book_id":     r.BookID,
		"reader_id":   r.ReaderID,
		"reserved_at": utc(r.ReservedAt),
		"expires_at":  utc(r.ExpiresAt),
		"status":      string(r.Status),
		"closed_at":   nullTime(r.ClosedAt),
		"updated_at":  utc(r.UpdatedAt),
	}))
	return err
}

func (q *queries) ReservationByID(ctx context.Context, id string) (*models.Reservation, error) {
	var r models.Reservation
	if err := q.get(ctx, &r, q.from(reservationsTable).Select(reservationColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) PendingReservation(ctx context.Context, readerID, bookID string) (*models.Reservation, error) {
	var r models.Reservation
	err := q.get(ctx, &r, q.from(reservationsTable).Select(reservationColumns...).Where(
		goqu.C("reader_id").Eq(readerID),
		goqu.C("book_id").Eq(bookID),
		goqu.C("status").Eq(string(models.ReservationPending)),
	))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) reservationFilter(f store.ReservationFilter) *goqu.SelectDataset {
	ds := q.from(reservationsTable)
	if f.ReaderID != "" {
		ds = ds.Where(goqu.C("reader_id").Eq(f.ReaderID))
	}
	if f.BookID != "" {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if f.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(f.Status)))
	}
	if f.ExpiresBefore != nil {
		ds = ds.Where(goqu.C("expires_at").Lt(utc(*f.ExpiresBefore)))
	}
	return ds
}

func (q *queries) ListReservations(ctx context.Context, f store.ReservationFilter) ([]models.Reservation, error) {
	out := []models.Reservation{}
	ds := q.reservationFilter(f).Select(reservationColumns...).Order(goqu.C("reserved_at").Desc(), goqu.C("id").Asc())
	if err := q.selectAll(ctx, &out, ds); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *queries) CountReservations(ctx context.Context, f store.ReservationFilter) (int, error) {
	return q.count(ctx, q.reservationFilter(f))
}

func (q *queries) TransitionReservation(ctx context.Context, id string, from, to models.ReservationStatus, at time.Time) (bool, error) {
	n, err := q.exec(ctx, q.update(reservationsTable).
		Set(goqu.Record{"status": string(to), "closed_at": utc(at), "updated_at": utc(at)}).
		Where(goqu.C("id").Eq(id), goqu.C("status").Eq(string(from))))
	return n == 1, err
}
