package models

import "time"

// Role constants for user authorization.
const (
	RoleAdmin     = "admin"
	RoleLibrarian = "librarian"
	RoleReader    = "reader"
)

var ValidRoles = []string{RoleAdmin, RoleLibrarian, RoleReader}

func RoleValid(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports roles allowed to run the desk: admin and librarian.
func IsStaff(role string) bool {
	return role == RoleAdmin || role == RoleLibrarian
}

type User struct {
	ID           string    `bson:"_id" db:"id" json:"id"`
	Username     string    `bson:"username" db:"username" json:"username"`
	PasswordHash string    `bson:"password" db:"password_hash" json:"-"` // bcrypt hash
	FullName     string    `bson:"fullName,omitempty" db:"full_name" json:"fullName,omitempty"`
	Role         string    `bson:"role" db:"role" json:"role"`
	ReaderID     *string   `bson:"readerId,omitempty" db:"reader_id" json:"readerId,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" db:"created_at" json:"createdAt"`
}
