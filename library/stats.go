package library

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

type Stats struct {
	TotalBooks          int                    `json:"totalBooks"`
	TotalReaders        int                    `json:"totalReaders"`
	ActiveBorrows       int                    `json:"activeBorrows"`
	OverdueCount        int                    `json:"overdueCount"`
	PendingReservations int                    `json:"pendingReservations"`
	UnpaidFines         decimal.Decimal        `json:"unpaidFines"`
	BooksByCategory     []models.CategoryCount `json:"booksByCategory"`
	RecentLoans         []LoanView             `json:"recentTransactions"`
	BorrowsThisMonth    int                    `json:"borrowsThisMonth"`
	ReturnsThisMonth    int                    `json:"returnsThisMonth"`
}

const recentLoans = 10

// Stats is the dashboard summary. Overdue and pending counts are derived
// from due and expiry dates, not from stored statuses.
func (s *Service) Stats(ctx context.Context, a Actor) (*Stats, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	now := s.clock()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	st := &Stats{}

	var err error
	steps := []func() error{
		func() (err error) { st.TotalBooks, err = s.store.CountBooks(ctx); return },
		func() (err error) { st.TotalReaders, err = s.store.CountReaders(ctx); return },
		func() (err error) {
			st.ActiveBorrows, err = s.store.CountLoans(ctx, store.LoanFilter{Statuses: models.ActiveLoanStatuses})
			return
		},
		func() (err error) {
			st.OverdueCount, err = s.store.CountLoans(ctx, store.LoanFilter{Statuses: models.ActiveLoanStatuses, DueBefore: &now})
			return
		},
		func() error {
			pending, err := s.store.CountReservations(ctx, store.ReservationFilter{Status: models.ReservationPending})
			if err != nil {
				return err
			}
			lapsed, err := s.store.CountReservations(ctx, store.ReservationFilter{Status: models.ReservationPending, ExpiresBefore: &now})
			st.PendingReservations = pending - lapsed
			return err
		},
		func() (err error) { st.UnpaidFines, err = s.store.SumUnpaidFines(ctx); return },
		func() (err error) { st.BooksByCategory, err = s.store.BooksByCategory(ctx); return },
		func() error {
			recent, err := s.store.ListLoans(ctx, store.LoanFilter{Limit: recentLoans})
			if err != nil {
				return err
			}
			st.RecentLoans, err = newRelated(s.store, now).loans(ctx, recent)
			return err
		},
		func() (err error) {
			st.BorrowsThisMonth, err = s.store.CountLoans(ctx, store.LoanFilter{BorrowedSince: &monthStart})
			return
		},
		func() (err error) {
			st.ReturnsThisMonth, err = s.store.CountLoans(ctx, store.LoanFilter{ReturnedSince: &monthStart})
			return
		},
	}
	for _, step := range steps {
		if err = step(); err != nil {
			return nil, s.read("stats", err)
		}
	}
	return st, nil
}
