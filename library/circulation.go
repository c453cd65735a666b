package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/policy"
	"github.com/kevinaaaquil/library/backend/store"
)

const dateLayout = "2006-01-02"

type BorrowRequest struct {
	ReaderID string    `json:"readerId"`
	BookID   string    `json:"bookId"`
	DueDate  time.Time `json:"dueDate"`
	Notes    string    `json:"notes"`
}

// ReturnResult is the returned loan and the fine it produced, if any.
type ReturnResult struct {
	Loan models.Loan  `json:"loan"`
	Fine *models.Fine `json:"fine,omitempty"`
}

// LoanQuery filters loans. Status matches the effective status.
type LoanQuery struct {
	ReaderID string
	BookID   string
	Status   models.LoanStatus
}

func loanNotFound() error {
	return apperror.NotFound(apperror.CodeLoanNotFound, "Loan not found")
}

// ListLoans lists loans newest first. Readers only see their own.
func (s *Service) ListLoans(ctx context.Context, a Actor, q LoanQuery) ([]LoanView, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, apperror.Validationf("unknown loan status %q", q.Status)
	}
	if !a.IsStaff() {
		if a.ReaderID == "" || (q.ReaderID != "" && q.ReaderID != a.ReaderID) {
			return nil, apperror.Forbidden("You can only view your own loans")
		}
		q.ReaderID = a.ReaderID
	}
	f := store.LoanFilter{ReaderID: q.ReaderID, BookID: q.BookID}
	switch q.Status {
	case "":
	case models.LoanReturned:
		f.Statuses = []models.LoanStatus{models.LoanReturned}
	default:
		f.Statuses = models.ActiveLoanStatuses
	}
	loans, err := s.store.ListLoans(ctx, f)
	if err != nil {
		return nil, s.read("list_loans", err)
	}
	now := s.clock()
	out := loans[:0]
	for _, l := range loans {
		if q.Status == "" || l.EffectiveStatus(now) == q.Status {
			out = append(out, l)
		}
	}
	views, err := newRelated(s.store, now).loans(ctx, out)
	return views, s.read("list_loans", err)
}

func (s *Service) GetLoan(ctx context.Context, a Actor, id string) (*LoanView, error) {
	l, err := s.store.LoanByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, loanNotFound()
	}
	if err != nil {
		return nil, s.read("get_loan", err)
	}
	if !a.owns(l.ReaderID) {
		return nil, loanNotFound()
	}
	v, err := newRelated(s.store, s.clock()).loan(ctx, *l)
	if err != nil {
		return nil, s.read("get_loan", err)
	}
	return &v, nil
}

// Borrow lends one copy of a book to a reader until req.DueDate.
//
// The reader row is written first so concurrent borrows by the same reader
// serialize before the loan cap is counted; the copy is taken with a
// conditional increment so the last copy cannot be lent twice.
func (s *Service) Borrow(ctx context.Context, a Actor, req BorrowRequest) (*models.Loan, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	if req.ReaderID == "" || req.BookID == "" {
		return nil, apperror.Validation("readerId and bookId are required")
	}
	if err := policy.CheckDueDate(req.DueDate, s.clock()); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := s.update(ctx, "borrow", func(ctx context.Context, t *tx) error {
		reader, err := found(t.ReaderByID(ctx, req.ReaderID))
		if err != nil {
			return err
		}
		var active []models.Loan
		if reader != nil {
			if err := t.LockReader(ctx, reader.ID); err != nil {
				return err
			}
			active, err = t.ListLoans(ctx, store.LoanFilter{ReaderID: reader.ID, Statuses: models.ActiveLoanStatuses})
			if err != nil {
				return err
			}
		}
		book, err := found(t.BookByID(ctx, req.BookID))
		if err != nil {
			return err
		}
		if err := s.policy.CheckBorrow(policy.BorrowState{Book: book, Reader: reader, ActiveLoans: active, Now: t.now}); err != nil {
			return err
		}

		ok, err := t.IncrementBorrowed(ctx, book.ID)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Policy(apperror.CodeBookNotAvailable, "Book not available")
		}
		loan = &models.Loan{
			ID:         newID(),
			BookID:     book.ID,
			ReaderID:   reader.ID,
			BorrowDate: t.now,
			DueDate:    req.DueDate.UTC(),
			Status:     models.LoanBorrowed,
			Notes:      req.Notes,
			CreatedAt:  t.now,
			UpdatedAt:  t.now,
		}
		if err := t.CreateLoan(ctx, loan); err != nil {
			return err
		}
		return t.notify(ctx, reader, models.NotifySuccess, "Book borrowed",
			fmt.Sprintf("Reader %s borrowed %q. Due date: %s.", reader.Name, book.Title, loan.DueDate.Format(dateLayout)))
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"loan_id":   loan.ID,
		"reader_id": loan.ReaderID,
		"book_id":   loan.BookID,
	}).Info("book borrowed")
	return loan, nil
}

// Return closes a loan, puts the copy back and fines a late return. A loan
// can be returned once; the second call is rejected without side effects.
func (s *Service) Return(ctx context.Context, a Actor, loanID string) (*ReturnResult, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	var res *ReturnResult
	err := s.update(ctx, "return", func(ctx context.Context, t *tx) error {
		loan, err := found(t.LoanByID(ctx, loanID))
		if err != nil {
			return err
		}
		if err := policy.CheckReturn(loan); err != nil {
			return err
		}
		ok, err := t.MarkLoanReturned(ctx, loan.ID, t.now)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Policy(apperror.CodeLoanReturned, "Loan already returned")
		}
		if ok, err = t.DecrementBorrowed(ctx, loan.BookID); err != nil {
			return err
		}
		if !ok {
			return apperror.Internal(fmt.Errorf("book %s has no borrowed copies to return", loan.BookID))
		}

		returned := t.now
		loan.Status, loan.ReturnDate, loan.UpdatedAt = models.LoanReturned, &returned, t.now
		res = &ReturnResult{Loan: *loan}

		title := "the book"
		if book, err := found(t.BookByID(ctx, loan.BookID)); err != nil {
			return err
		} else if book != nil {
			title = fmt.Sprintf("%q", book.Title)
		}
		reader, err := found(t.ReaderByID(ctx, loan.ReaderID))
		if err != nil {
			return err
		}

		daysLate, amount, late := s.policy.ComputeFine(loan.DueDate, returned)
		if !late {
			return t.notify(ctx, reader, models.NotifySuccess, "Book returned",
				fmt.Sprintf("Returned %s on time.", title))
		}
		fine := &models.Fine{
			ID:        newID(),
			LoanID:    loan.ID,
			ReaderID:  loan.ReaderID,
			Amount:    amount,
			DaysLate:  daysLate,
			Reason:    policy.FineReason(daysLate),
			CreatedAt: t.now,
		}
		if err := t.CreateFine(ctx, fine); err != nil {
			return err
		}
		res.Fine = fine
		return t.notify(ctx, reader, models.NotifyWarning, "Book returned late",
			fmt.Sprintf("Returned %s %s late. A fine of %s was issued.", title, pluralDays(daysLate), amount.String()))
	})
	if err != nil {
		return nil, err
	}
	entry := s.log.WithFields(logrus.Fields{"loan_id": res.Loan.ID, "book_id": res.Loan.BookID})
	if res.Fine != nil {
		entry = entry.WithField("fine", res.Fine.Amount.String())
	}
	entry.Info("book returned")
	return res, nil
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// Extend moves the due date of an active loan forward. Readers may extend
// their own loans.
func (s *Service) Extend(ctx context.Context, a Actor, loanID string, newDue time.Time) (*models.Loan, error) {
	var loan *models.Loan
	err := s.update(ctx, "extend", func(ctx context.Context, t *tx) error {
		l, err := found(t.LoanByID(ctx, loanID))
		if err != nil {
			return err
		}
		if l != nil && !a.owns(l.ReaderID) {
			return loanNotFound()
		}
		if err := s.policy.CheckExtend(l, newDue, t.now); err != nil {
			return err
		}
		ok, err := t.ExtendLoan(ctx, l.ID, newDue.UTC(), l.ExtensionCount, t.now)
		if err != nil {
			return err
		}
		if !ok {
			// extended or returned since it was read
			return fmt.Errorf("%w: loan %s changed", store.ErrConflict, l.ID)
		}
		l.DueDate, l.Status, l.UpdatedAt = newDue.UTC(), models.LoanExtended, t.now
		l.ExtensionCount++
		loan = l

		reader, err := found(t.ReaderByID(ctx, l.ReaderID))
		if err != nil {
			return err
		}
		return t.notify(ctx, reader, models.NotifyInfo, "Loan extended",
			fmt.Sprintf("New due date: %s (extension %d of %d).", l.DueDate.Format(dateLayout), l.ExtensionCount, s.policy.MaxExtensions))
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("loan_id", loan.ID).WithField("extensions", loan.ExtensionCount).Info("loan extended")
	return loan, nil
}
