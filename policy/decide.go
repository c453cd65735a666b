package policy

import (
	"fmt"
	"time"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
)

// BorrowState is what the borrow decision needs to see.
type BorrowState struct {
	Book        *models.Book
	Reader      *models.Reader
	ActiveLoans []models.Loan // the reader's loans that are not RETURNED
	Now         time.Time
}

// CheckBorrow applies the borrow preconditions in order; the first failure wins.
func (p Policy) CheckBorrow(s BorrowState) error {
	if s.Book == nil {
		return apperror.NotFound(apperror.CodeBookNotFound, "Book not found")
	}
	if s.Book.Available() < 1 {
		return apperror.Policy(apperror.CodeBookNotAvailable, "Book not available")
	}
	if s.Reader == nil {
		return apperror.NotFound(apperror.CodeReaderNotFound, "Reader not found")
	}
	if s.Reader.Status != models.ReaderActive {
		return apperror.Policy(apperror.CodeReaderNotActive,
			fmt.Sprintf("Reader is %s. Cannot borrow books.", s.Reader.Status))
	}
	for i := range s.ActiveLoans {
		if s.ActiveLoans[i].IsOverdue(s.Now) {
			return apperror.Policy(apperror.CodeReaderHasOverdue, "Reader has overdue books. Please return them first.")
		}
	}
	if len(s.ActiveLoans) >= p.MaxActiveLoans {
		return apperror.Policy(apperror.CodeLoanLimitReached,
			fmt.Sprintf("Maximum borrowing limit (%d books) reached.", p.MaxActiveLoans))
	}
	return nil
}

// CheckDueDate rejects due dates that are not in the future.
func CheckDueDate(due, now time.Time) error {
	if due.IsZero() {
		return apperror.Validation("dueDate is required")
	}
	if !due.After(now) {
		return apperror.Validation("dueDate must be in the future")
	}
	return nil
}

// CheckReturn rejects unknown and already returned loans.
func CheckReturn(loan *models.Loan) error {
	if loan == nil {
		return apperror.NotFound(apperror.CodeLoanNotFound, "Loan not found")
	}
	if loan.Status == models.LoanReturned {
		return apperror.Policy(apperror.CodeLoanReturned, "Loan already returned")
	}
	return nil
}

// CheckExtend decides whether loan may move its due date to newDue.
func (p Policy) CheckExtend(loan *models.Loan, newDue, now time.Time) error {
	if loan == nil {
		return apperror.NotFound(apperror.CodeLoanNotFound, "Loan not found")
	}
	if !loan.IsActive() {
		return apperror.Policy(apperror.CodeLoanNotExtendable, "Can only extend active loans")
	}
	if loan.IsOverdue(now) {
		return apperror.Policy(apperror.CodeLoanOverdue, "Loan is overdue and cannot be extended")
	}
	if loan.Status != models.LoanBorrowed && loan.Status != models.LoanExtended {
		return apperror.Policy(apperror.CodeLoanNotExtendable, "Can only extend active loans")
	}
	if loan.ExtensionCount >= p.MaxExtensions {
		return apperror.Policy(apperror.CodeExtensionLimit,
			fmt.Sprintf("Maximum extensions reached (%d)", p.MaxExtensions))
	}
	if newDue.IsZero() {
		return apperror.Validation("newDueDate is required")
	}
	if !newDue.After(loan.DueDate) {
		return apperror.Validation("newDueDate must be after the current due date")
	}
	return nil
}

// ReserveState is what the reserve decision needs to see.
type ReserveState struct {
	Book    *models.Book
	Reader  *models.Reader
	Pending *models.Reservation // the reader's pending reservation for the book, if any
	Now     time.Time
}

func (p Policy) CheckReserve(s ReserveState) error {
	if s.Book == nil {
		return apperror.NotFound(apperror.CodeBookNotFound, "Book not found")
	}
	if s.Reader == nil {
		return apperror.NotFound(apperror.CodeReaderNotFound, "Reader not found")
	}
	if p.ReserveRequiresActiveReader && s.Reader.Status != models.ReaderActive {
		return apperror.Policy(apperror.CodeReaderNotActive,
			fmt.Sprintf("Reader is %s. Cannot reserve books.", s.Reader.Status))
	}
	if s.Pending != nil && !s.Pending.IsExpired(s.Now) {
		return apperror.Policy(apperror.CodeAlreadyReserved, "Already reserved")
	}
	if p.ReserveOnlyWhenUnavailable && s.Book.Available() > 0 {
		return apperror.Policy(apperror.CodeBookAvailable, "Book is available; borrow it instead of reserving")
	}
	return nil
}

// CheckReservationTransition validates moving res to status to at time now.
func CheckReservationTransition(res *models.Reservation, to models.ReservationStatus, now time.Time) error {
	if res == nil {
		return apperror.NotFound(apperror.CodeReservationMissing, "Reservation not found")
	}
	from := res.EffectiveStatus(now)
	if models.CanTransition(from, to) {
		return nil
	}
	if from == models.ReservationExpired && to == models.ReservationFulfilled {
		return apperror.Policy(apperror.CodeReservationExpired, "Reservation has expired")
	}
	return apperror.Policy(apperror.CodeInvalidTransition,
		fmt.Sprintf("Reservation is %s and cannot become %s", from, to))
}

// FineReason is the reason recorded on a late-return fine.
func FineReason(daysLate int) string {
	if daysLate == 1 {
		return "late 1 day"
	}
	return fmt.Sprintf("late %d days", daysLate)
}
