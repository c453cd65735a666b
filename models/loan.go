package models

import "time"

// LoanStatus is the stored status of a loan. OVERDUE is written by the
// sweep; reads derive it from the due date through EffectiveStatus.
type LoanStatus string

const (
	LoanBorrowed LoanStatus = "BORROWED"
	LoanExtended LoanStatus = "EXTENDED"
	LoanOverdue  LoanStatus = "OVERDUE"
	LoanReturned LoanStatus = "RETURNED"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanBorrowed, LoanExtended, LoanOverdue, LoanReturned:
		return true
	}
	return false
}

// ActiveLoanStatuses are the stored statuses of a loan that is still out.
var ActiveLoanStatuses = []LoanStatus{LoanBorrowed, LoanExtended, LoanOverdue}

// Loan is one borrow-to-return cycle of one copy.
type Loan struct {
	ID             string     `bson:"_id" db:"id" json:"id"`
	BookID         string     `bson:"bookId" db:"book_id" json:"bookId"`
	ReaderID       string     `bson:"readerId" db:"reader_id" json:"readerId"`
	BorrowDate     time.Time  `bson:"borrowDate" db:"borrow_date" json:"borrowDate"`
	DueDate        time.Time  `bson:"dueDate" db:"due_date" json:"dueDate"`
	ReturnDate     *time.Time `bson:"returnDate,omitempty" db:"return_date" json:"returnDate"`
	Status         LoanStatus `bson:"status" db:"status" json:"status"`
	ExtensionCount int        `bson:"extensionCount" db:"extension_count" json:"extensionCount"`
	Notes          string     `bson:"notes,omitempty" db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}

func (l *Loan) IsActive() bool {
	return l.Status != LoanReturned
}

// IsOverdue is the single overdue predicate: still out and past its due date.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.IsActive() && l.DueDate.Before(now)
}

// EffectiveStatus is the status reported to clients at time now.
func (l *Loan) EffectiveStatus(now time.Time) LoanStatus {
	if l.IsOverdue(now) {
		return LoanOverdue
	}
	if l.Status == LoanOverdue {
		// due date moved past now after the sweep ran
		if l.ExtensionCount > 0 {
			return LoanExtended
		}
		return LoanBorrowed
	}
	return l.Status
}
