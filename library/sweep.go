package library

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/metrics"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

// SweepResult counts what one sweep changed.
type SweepResult struct {
	Overdue int `json:"overdue"`
	Expired int `json:"expired"`
	Pruned  int `json:"pruned"`
}

// Sweep persists the time-driven transitions as of now: active loans past due
// become OVERDUE and their readers are warned once, lapsed pending
// reservations become expired, and read notifications older than the
// retention window are deleted. Each record changes in its own transaction
// so one failure does not undo the rest.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	now = now.UTC()
	var res SweepResult
	err := s.sweep(ctx, now, &res)
	metrics.RecordSweep(err == nil, res.Overdue, res.Expired, res.Pruned)
	entry := s.log.WithFields(logrus.Fields{"overdue": res.Overdue, "expired": res.Expired, "pruned": res.Pruned})
	if err != nil {
		entry.WithError(err).Error("sweep failed")
		return res, err
	}
	entry.Info("sweep finished")
	return res, nil
}

func (s *Service) sweep(ctx context.Context, now time.Time, res *SweepResult) error {
	loans, err := s.store.ListLoans(ctx, store.LoanFilter{
		Statuses:  []models.LoanStatus{models.LoanBorrowed, models.LoanExtended},
		DueBefore: &now,
	})
	if err != nil {
		return s.read("sweep", err)
	}
	for _, l := range loans {
		marked := false
		err := s.update(ctx, "mark_overdue", func(ctx context.Context, t *tx) error {
			ok, err := t.MarkLoanOverdue(ctx, l.ID, now)
			marked = ok
			if err != nil || !ok {
				return err
			}
			reader, err := found(t.ReaderByID(ctx, l.ReaderID))
			if err != nil {
				return err
			}
			title := "A book"
			if book, err := found(t.BookByID(ctx, l.BookID)); err != nil {
				return err
			} else if book != nil {
				title = fmt.Sprintf("%q", book.Title)
			}
			return t.notify(ctx, reader, models.NotifyWarning, "Book overdue",
				fmt.Sprintf("%s was due on %s. Please return it; late fees accrue daily.", title, l.DueDate.Format(dateLayout)))
		})
		if err != nil {
			return err
		}
		if marked {
			res.Overdue++
		}
	}

	lapsed, err := s.store.ListReservations(ctx, store.ReservationFilter{
		Status:        models.ReservationPending,
		ExpiresBefore: &now,
	})
	if err != nil {
		return s.read("sweep", err)
	}
	for _, r := range lapsed {
		expired := false
		err := s.update(ctx, "expire_reservation", func(ctx context.Context, t *tx) error {
			ok, err := t.TransitionReservation(ctx, r.ID, models.ReservationPending, models.ReservationExpired, now)
			expired = ok
			if err != nil || !ok {
				return err
			}
			reader, err := found(t.ReaderByID(ctx, r.ReaderID))
			if err != nil {
				return err
			}
			return t.notify(ctx, reader, models.NotifyInfo, "Reservation expired",
				fmt.Sprintf("Your reservation made on %s was not collected in time.", r.ReservedAt.Format(dateLayout)))
		})
		if err != nil {
			return err
		}
		if expired {
			res.Expired++
		}
	}

	pruned, err := s.store.DeleteReadNotificationsBefore(ctx, s.policy.RetentionCutoff(now))
	if err != nil {
		return s.read("sweep", err)
	}
	res.Pruned = pruned
	return nil
}
