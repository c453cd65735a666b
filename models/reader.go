package models

import "time"

type ReaderStatus string

const (
	ReaderActive    ReaderStatus = "active"
	ReaderSuspended ReaderStatus = "suspended"
	ReaderExpired   ReaderStatus = "expired"
)

func (s ReaderStatus) Valid() bool {
	switch s {
	case ReaderActive, ReaderSuspended, ReaderExpired:
		return true
	}
	return false
}

type Reader struct {
	ID        string       `bson:"_id" db:"id" json:"id"`
	CardID    string       `bson:"cardId" db:"card_id" json:"cardId"`
	Name      string       `bson:"name" db:"name" json:"name"`
	Faculty   string       `bson:"faculty,omitempty" db:"faculty" json:"faculty,omitempty"`
	Email     string       `bson:"email,omitempty" db:"email" json:"email,omitempty"`
	Phone     string       `bson:"phone,omitempty" db:"phone" json:"phone,omitempty"`
	Status    ReaderStatus `bson:"status" db:"status" json:"status"`
	CreatedAt time.Time    `bson:"createdAt" db:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}
