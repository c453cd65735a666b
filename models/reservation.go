package models

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationFulfilled, ReservationCancelled, ReservationExpired:
		return true
	}
	return false
}

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending: {ReservationFulfilled, ReservationCancelled, ReservationExpired},
}

// CanTransition reports whether a reservation may move from one status to another.
// Every status other than pending is terminal.
func CanTransition(from, to ReservationStatus) bool {
	for _, s := range reservationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reservation is a hold on a title, not on a particular copy.
type Reservation struct {
	ID         string            `bson:"_id" db:"id" json:"id"`
	BookID     string            `bson:"bookId" db:"book_id" json:"bookId"`
	ReaderID   string            `bson:"readerId" db:"reader_id" json:"readerId"`
	ReservedAt time.Time         `bson:"reservedAt" db:"reserved_at" json:"reservedAt"`
	ExpiresAt  time.Time         `bson:"expiresAt" db:"expires_at" json:"expiresAt"`
	Status     ReservationStatus `bson:"status" db:"status" json:"status"`
	ClosedAt   *time.Time        `bson:"closedAt,omitempty" db:"closed_at" json:"closedAt,omitempty"`
	UpdatedAt  time.Time         `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}

// IsExpired reports a pending reservation whose window has lapsed.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationPending && r.ExpiresAt.Before(now)
}

func (r *Reservation) EffectiveStatus(now time.Time) ReservationStatus {
	if r.IsExpired(now) {
		return ReservationExpired
	}
	return r.Status
}
