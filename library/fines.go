package library

import (
	"context"
	"fmt"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

func fineNotFound() error {
	return apperror.NotFound(apperror.CodeFineNotFound, "Fine not found")
}

// ListFines lists fines newest first. Readers only see their own.
func (s *Service) ListFines(ctx context.Context, a Actor, f store.FineFilter) ([]FineView, error) {
	if !a.IsStaff() {
		if a.ReaderID == "" || (f.ReaderID != "" && f.ReaderID != a.ReaderID) {
			return nil, apperror.Forbidden("You can only view your own fines")
		}
		f.ReaderID = a.ReaderID
	}
	fines, err := s.store.ListFines(ctx, f)
	if err != nil {
		return nil, s.read("list_fines", err)
	}
	views, err := newRelated(s.store, s.clock()).fines(ctx, fines)
	return views, s.read("list_fines", err)
}

// PayFine settles a fine. Paying an already paid fine returns it unchanged.
func (s *Service) PayFine(ctx context.Context, a Actor, id string) (*models.Fine, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	var fine *models.Fine
	err := s.update(ctx, "pay_fine", func(ctx context.Context, t *tx) error {
		f, err := found(t.FineByID(ctx, id))
		if err != nil {
			return err
		}
		if f == nil {
			return fineNotFound()
		}
		fine = f
		if f.Paid {
			return nil
		}
		ok, err := t.MarkFinePaid(ctx, f.ID, t.now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: fine %s changed", store.ErrConflict, f.ID)
		}
		paidAt := t.now
		f.Paid, f.PaidAt = true, &paidAt

		reader, err := found(t.ReaderByID(ctx, f.ReaderID))
		if err != nil {
			return err
		}
		return t.notify(ctx, reader, models.NotifySuccess, "Fine paid",
			fmt.Sprintf("Payment of %s received (%s).", f.Amount.String(), f.Reason))
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}
