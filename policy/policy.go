// Package policy holds the circulation rules: the configurable limits and the
// pure decisions made over a projected view of the catalog, member and ledgers.
package policy

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Policy is the set of numbers that gate borrow, extend, reserve and fines.
type Policy struct {
	MaxActiveLoans             int             `json:"maxActiveLoans"`
	MaxExtensions              int             `json:"maxExtensions"`
	ReservationValidityDays    int             `json:"reservationValidityDays"`
	LateFeePerDay              decimal.Decimal `json:"lateFeePerDay"`
	NotificationRetentionDays  int             `json:"notificationRetentionDays"`
	ReserveOnlyWhenUnavailable bool            `json:"reserveOnlyWhenUnavailable"`
	// ReserveRequiresActiveReader extends the borrow-side status check to
	// reservations. Off by default: suspended and expired readers may reserve.
	ReserveRequiresActiveReader bool `json:"reserveRequiresActiveReader"`
}

// Default returns the stock policy: 5 loans, 2 extensions, 3-day holds, 5000 per day late.
func Default() Policy {
	return Policy{
		MaxActiveLoans:            5,
		MaxExtensions:             2,
		ReservationValidityDays:   3,
		LateFeePerDay:             decimal.NewFromInt(5000),
		NotificationRetentionDays: 90,
	}
}

func (p Policy) Validate() error {
	var errs []error
	if p.MaxActiveLoans < 1 {
		errs = append(errs, errors.New("maxActiveLoans must be at least 1"))
	}
	if p.MaxExtensions < 0 {
		errs = append(errs, errors.New("maxExtensions must not be negative"))
	}
	if p.ReservationValidityDays < 1 {
		errs = append(errs, errors.New("reservationValidityDays must be at least 1"))
	}
	if p.LateFeePerDay.IsNegative() {
		errs = append(errs, errors.New("lateFeePerDay must not be negative"))
	}
	if p.NotificationRetentionDays < 1 {
		errs = append(errs, errors.New("notificationRetentionDays must be at least 1"))
	}
	return errors.Join(errs...)
}

// ReservationExpiry is the end of the hold window for a reservation made at now.
func (p Policy) ReservationExpiry(now time.Time) time.Time {
	return now.AddDate(0, 0, p.ReservationValidityDays)
}

// RetentionCutoff is the instant before which read notifications may be pruned.
func (p Policy) RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -p.NotificationRetentionDays)
}

// ComputeFine returns the days late and the amount owed for a loan due at due
// and returned at returned. ok is false when the return was on time.
func (p Policy) ComputeFine(due, returned time.Time) (daysLate int, amount decimal.Decimal, ok bool) {
	if !returned.After(due) {
		return 0, decimal.Zero, false
	}
	late := returned.Sub(due)
	daysLate = int(late / day)
	if late%day != 0 {
		daysLate++
	}
	return daysLate, p.LateFeePerDay.Mul(decimal.NewFromInt(int64(daysLate))), true
}
