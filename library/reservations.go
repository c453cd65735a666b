package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/policy"
	"github.com/kevinaaaquil/library/backend/store"
)

type ReservationQuery struct {
	ReaderID string
	BookID   string
	Status   models.ReservationStatus
}

func reservationNotFound() error {
	return apperror.NotFound(apperror.CodeReservationMissing, "Reservation not found")
}

// ListReservations lists reservations newest first with lapsed pending
// reservations reported as expired.
func (s *Service) ListReservations(ctx context.Context, a Actor, q ReservationQuery) ([]ReservationView, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperror.Validationf("unknown reservation status %q", q.Status)
	}
	if !a.IsStaff() {
		if a.ReaderID == "" || (q.ReaderID != "" && q.ReaderID != a.ReaderID) {
			return nil, apperror.Forbidden("You can only view your own reservations")
		}
		q.ReaderID = a.ReaderID
	}
	f := store.ReservationFilter{ReaderID: q.ReaderID, BookID: q.BookID}
	if q.Status != "" && q.Status != models.ReservationExpired {
		f.Status = q.Status
	}
	list, err := s.store.ListReservations(ctx, f)
	if err != nil {
		return nil, s.read("list_reservations", err)
	}
	now := s.clock()
	out := list[:0]
	for _, r := range list {
		if q.Status == "" || r.EffectiveStatus(now) == q.Status {
			out = append(out, r)
		}
	}
	views, err := newRelated(s.store, now).reservations(ctx, out)
	return views, s.read("list_reservations", err)
}

// Reserve places a hold on a title for a reader. Readers reserve for themselves.
func (s *Service) Reserve(ctx context.Context, a Actor, readerID, bookID string) (*models.Reservation, error) {
	if !a.IsStaff() {
		if a.ReaderID == "" {
			return nil, apperror.Forbidden("Your account is not linked to a reader")
		}
		if readerID == "" {
			readerID = a.ReaderID
		}
		if readerID != a.ReaderID {
			return nil, apperror.Forbidden("You can only reserve for yourself")
		}
	}
	if readerID == "" || bookID == "" {
		return nil, apperror.Validation("readerId and bookId are required")
	}

	var res *models.Reservation
	err := s.update(ctx, "reserve", func(ctx context.Context, t *tx) error {
		book, err := found(t.BookByID(ctx, bookID))
		if err != nil {
			return err
		}
		reader, err := found(t.ReaderByID(ctx, readerID))
		if err != nil {
			return err
		}
		var pending *models.Reservation
		if book != nil && reader != nil {
			if pending, err = found(t.PendingReservation(ctx, readerID, bookID)); err != nil {
				return err
			}
		}
		if err := s.policy.CheckReserve(policy.ReserveState{Book: book, Reader: reader, Pending: pending, Now: t.now}); err != nil {
			return err
		}
		if pending != nil {
			// lapsed hold; close it so the pair is free again
			ok, err := t.TransitionReservation(ctx, pending.ID, models.ReservationPending, models.ReservationExpired, t.now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: reservation %s changed", store.ErrConflict, pending.ID)
			}
		}
		res = &models.Reservation{
			ID:         newID(),
			BookID:     book.ID,
			ReaderID:   reader.ID,
			ReservedAt: t.now,
			ExpiresAt:  s.policy.ReservationExpiry(t.now),
			Status:     models.ReservationPending,
			UpdatedAt:  t.now,
		}
		if err := t.CreateReservation(ctx, res); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperror.Policy(apperror.CodeAlreadyReserved, "Already reserved")
			}
			return err
		}
		return t.notify(ctx, reader, models.NotifyInfo, "Reservation received",
			fmt.Sprintf("Your reservation for %q is held until %s.", book.Title, res.ExpiresAt.Format(dateLayout)))
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("reservation_id", res.ID).WithField("book_id", bookID).Info("book reserved")
	return res, nil
}

// CancelReservation closes a pending reservation. Readers cancel their own.
func (s *Service) CancelReservation(ctx context.Context, a Actor, id string) (*models.Reservation, error) {
	return s.transition(ctx, a, "cancel_reservation", id, models.ReservationCancelled)
}

// ApproveReservation marks a pending reservation fulfilled. It does not lend
// the book; the desk records the loan separately.
func (s *Service) ApproveReservation(ctx context.Context, a Actor, id string) (*models.Reservation, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	return s.transition(ctx, a, "approve_reservation", id, models.ReservationFulfilled)
}

func (s *Service) transition(ctx context.Context, a Actor, op, id string, to models.ReservationStatus) (*models.Reservation, error) {
	var res *models.Reservation
	err := s.update(ctx, op, func(ctx context.Context, t *tx) error {
		r, err := found(t.ReservationByID(ctx, id))
		if err != nil {
			return err
		}
		if r != nil && !a.owns(r.ReaderID) {
			return reservationNotFound()
		}
		if err := policy.CheckReservationTransition(r, to, t.now); err != nil {
			return err
		}
		ok, err := t.TransitionReservation(ctx, r.ID, r.Status, to, t.now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: reservation %s changed", store.ErrConflict, r.ID)
		}
		closed := t.now
		r.Status, r.ClosedAt, r.UpdatedAt = to, &closed, t.now
		res = r

		if to != models.ReservationFulfilled {
			return nil
		}
		reader, err := found(t.ReaderByID(ctx, r.ReaderID))
		if err != nil {
			return err
		}
		title := "your book"
		if book, err := found(t.BookByID(ctx, r.BookID)); err != nil {
			return err
		} else if book != nil {
			title = fmt.Sprintf("%q", book.Title)
		}
		return t.notify(ctx, reader, models.NotifySuccess, "Reservation approved",
			fmt.Sprintf("Your reservation for %s has been approved. Please collect it at the desk.", title))
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("reservation_id", id).WithField("status", to).Info("reservation closed")
	return res, nil
}
