// Package store defines persistence for the library. Backends live in
// sqlstore (SQLite, Postgres) and mongostore (MongoDB).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevinaaaquil/library/backend/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
	// ErrConflict marks a transient failure from concurrent writers; the
	// whole transaction may be retried.
	ErrConflict = errors.New("store: concurrent update conflict")
)

type BookFilter struct {
	Search   string // matches title, author or isbn
	Category string
}

type ReaderFilter struct {
	Search string // matches name, card id or email
	Status models.ReaderStatus
}

type LoanFilter struct {
	ReaderID      string
	BookID        string
	Statuses      []models.LoanStatus
	DueBefore     *time.Time
	BorrowedSince *time.Time
	ReturnedSince *time.Time
	Limit         int
}

type ReservationFilter struct {
	ReaderID      string
	BookID        string
	Status        models.ReservationStatus
	ExpiresBefore *time.Time
}

type FineFilter struct {
	ReaderID string
	Paid     *bool
}

// NotificationScope limits notifications to one reader's feed plus
// broadcasts. The zero value sees every notification. A broadcast has one
// shared read flag: restricted scopes see it but never set it, and their
// unread counts cover only the reader's own notifications.
type NotificationScope struct {
	ReaderID string
	Restrict bool
}

type Page struct {
	Limit  int
	Offset int
}

// Queries is every read and write the library performs. Inside WithTx the
// same methods run in one transaction.
type Queries interface {
	CreateBook(ctx context.Context, b *models.Book) error
	UpdateBook(ctx context.Context, b *models.Book) error
	DeleteBook(ctx context.Context, id string) error
	BookByID(ctx context.Context, id string) (*models.Book, error)
	ListBooks(ctx context.Context, f BookFilter) ([]models.Book, error)
	Categories(ctx context.Context) ([]string, error)
	CountBooks(ctx context.Context) (int, error)
	BooksByCategory(ctx context.Context) ([]models.CategoryCount, error)
	// IncrementBorrowed takes one copy only while borrowed_qty < total_qty.
	IncrementBorrowed(ctx context.Context, bookID string) (bool, error)
	// DecrementBorrowed puts one copy back only while borrowed_qty > 0.
	DecrementBorrowed(ctx context.Context, bookID string) (bool, error)

	CreateReader(ctx context.Context, r *models.Reader) error
	UpdateReader(ctx context.Context, r *models.Reader) error
	DeleteReader(ctx context.Context, id string) error
	ReaderByID(ctx context.Context, id string) (*models.Reader, error)
	ListReaders(ctx context.Context, f ReaderFilter) ([]models.Reader, error)
	CountReaders(ctx context.Context) (int, error)
	// LockReader writes the reader row so concurrent borrows by the same
	// reader serialize on it.
	LockReader(ctx context.Context, id string) error

	CreateLoan(ctx context.Context, l *models.Loan) error
	LoanByID(ctx context.Context, id string) (*models.Loan, error)
	ListLoans(ctx context.Context, f LoanFilter) ([]models.Loan, error)
	CountLoans(ctx context.Context, f LoanFilter) (int, error)
	MarkLoanReturned(ctx context.Context, id string, at time.Time) (bool, error)
	ExtendLoan(ctx context.Context, id string, newDue time.Time, expectedCount int, at time.Time) (bool, error)
	MarkLoanOverdue(ctx context.Context, id string, at time.Time) (bool, error)

	CreateReservation(ctx context.Context, r *models.Reservation) error
	ReservationByID(ctx context.Context, id string) (*models.Reservation, error)
	PendingReservation(ctx context.Context, readerID, bookID string) (*models.Reservation, error)
	ListReservations(ctx context.Context, f ReservationFilter) ([]models.Reservation, error)
	CountReservations(ctx context.Context, f ReservationFilter) (int, error)
	TransitionReservation(ctx context.Context, id string, from, to models.ReservationStatus, at time.Time) (bool, error)

	CreateFine(ctx context.Context, f *models.Fine) error
	FineByID(ctx context.Context, id string) (*models.Fine, error)
	FineByLoan(ctx context.Context, loanID string) (*models.Fine, error)
	ListFines(ctx context.Context, f FineFilter) ([]models.Fine, error)
	MarkFinePaid(ctx context.Context, id string, at time.Time) (bool, error)
	SumUnpaidFines(ctx context.Context) (decimal.Decimal, error)

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, scope NotificationScope, p Page) ([]models.Notification, error)
	CountNotifications(ctx context.Context, scope NotificationScope, unreadOnly bool) (int, error)
	MarkNotificationRead(ctx context.Context, id string, scope NotificationScope) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, scope NotificationScope) (int, error)
	DeleteReadNotificationsBefore(ctx context.Context, before time.Time) (int, error)

	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	AdminsCount(ctx context.Context) (int, error)
}

// Store is a Queries backed by a database that can run transactions.
type Store interface {
	Queries
	// WithTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}
