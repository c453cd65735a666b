package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fine is a late-return penalty. At most one exists per loan.
type Fine struct {
	ID        string          `bson:"_id" db:"id" json:"id"`
	LoanID    string          `bson:"loanId" db:"loan_id" json:"loanId"`
	ReaderID  string          `bson:"readerId" db:"reader_id" json:"readerId"`
	Amount    decimal.Decimal `bson:"-" db:"amount" json:"amount"`
	DaysLate  int             `bson:"daysLate" db:"days_late" json:"daysLate"`
	Reason    string          `bson:"reason" db:"reason" json:"reason"`
	Paid      bool            `bson:"paid" db:"paid" json:"paid"`
	PaidAt    *time.Time      `bson:"paidAt,omitempty" db:"paid_at" json:"paidAt"`
	CreatedAt time.Time       `bson:"createdAt" db:"created_at" json:"createdAt"`
}
