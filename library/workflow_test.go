package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/policy"
	"github.com/kevinaaaquil/library/backend/store"
)

func TestReserve_OnePendingPerPair(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	self := library.Actor{Role: models.RoleReader, ReaderID: ann.ID}

	res, err := f.svc.Reserve(ctx, self, "", book.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, res.Status)
	assert.True(t, res.ExpiresAt.Equal(jan1.AddDate(0, 0, 3)))

	_, err = f.svc.Reserve(ctx, staff, ann.ID, book.ID)
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeAlreadyReserved)

	_, err = f.svc.Reserve(ctx, self, "other-reader", book.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
}

func TestReserve_RejectedWhileOnShelfWhenConfigured(t *testing.T) {
	p := policy.Default()
	p.ReserveOnlyWhenUnavailable = true
	f := newFixture(t, p)
	book := f.book(t, 1)
	ann, bob := f.reader(t, "ann"), f.reader(t, "bob")

	_, err := f.svc.Reserve(context.Background(), staff, ann.ID, book.ID)
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeBookAvailable)

	f.borrow(t, bob.ID, book.ID, jan1.AddDate(0, 0, 7))
	_, err = f.svc.Reserve(context.Background(), staff, ann.ID, book.ID)
	assert.NoError(t, err)
}

func TestReserve_AgainAfterLapse(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	first, err := f.svc.Reserve(ctx, staff, ann.ID, book.ID)
	require.NoError(t, err)

	f.clock.Set(jan1.AddDate(0, 0, 4))
	second, err := f.svc.Reserve(ctx, staff, ann.ID, book.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	old, err := f.store.ReservationByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationExpired, old.Status)
}

func TestReservationTransitions(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	self := library.Actor{Role: models.RoleReader, ReaderID: ann.ID}
	res, err := f.svc.Reserve(ctx, self, ann.ID, book.ID)
	require.NoError(t, err)

	_, err = f.svc.ApproveReservation(ctx, self, res.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))

	approved, err := f.svc.ApproveReservation(ctx, staff, res.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationFulfilled, approved.Status)
	assert.NotNil(t, approved.ClosedAt)
	assert.Equal(t, 0, f.bookQty(t, book.ID), "approval does not lend the book")

	_, err = f.svc.CancelReservation(ctx, self, res.ID)
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeInvalidTransition)
}

func TestApprove_ExpiredReservationRejected(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	res, err := f.svc.Reserve(ctx, staff, ann.ID, book.ID)
	require.NoError(t, err)

	f.clock.Set(jan1.AddDate(0, 0, 5))
	_, err = f.svc.ApproveReservation(ctx, staff, res.ID)

	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeReservationExpired)
	list, err := f.svc.ListReservations(ctx, staff, library.ReservationQuery{Status: models.ReservationExpired})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPayFine_IsIdempotent(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 1))
	f.clock.Set(jan1.AddDate(0, 0, 2))
	res, err := f.svc.Return(ctx, staff, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Fine)

	f.clock.Set(jan1.AddDate(0, 0, 3))
	paid, err := f.svc.PayFine(ctx, staff, res.Fine.ID)
	require.NoError(t, err)
	require.NotNil(t, paid.PaidAt)
	firstPaidAt := *paid.PaidAt

	f.clock.Set(jan1.AddDate(0, 0, 4))
	again, err := f.svc.PayFine(ctx, staff, res.Fine.ID)
	require.NoError(t, err)
	assert.True(t, again.Paid)
	assert.True(t, again.PaidAt.Equal(firstPaidAt))

	_, err = f.svc.PayFine(ctx, staff, "missing")
	assertCode(t, err, apperror.KindNotFound, apperror.CodeFineNotFound)

	unpaid := false
	open, err := f.svc.ListFines(ctx, library.Actor{Role: models.RoleReader, ReaderID: ann.ID}, store.FineFilter{Paid: &unpaid})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSweep_MarksOverdueOnceAndExpiresHolds(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	b1, b2 := f.book(t, 1), f.book(t, 1)
	ann := f.reader(t, "ann")
	loan := f.borrow(t, ann.ID, b1.ID, jan1.AddDate(0, 0, 2))
	_, err := f.svc.Reserve(ctx, staff, ann.ID, b2.ID)
	require.NoError(t, err)

	now := jan1.AddDate(0, 0, 5)
	f.clock.Set(now)
	res, err := f.svc.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, library.SweepResult{Overdue: 1, Expired: 1}, res)

	stored, err := f.store.LoanByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanOverdue, stored.Status)

	res, err = f.svc.Sweep(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, library.SweepResult{}, res)

	warnings := 0
	page, err := f.svc.ListNotifications(ctx, library.Actor{Role: models.RoleReader, ReaderID: ann.ID}, store.Page{})
	require.NoError(t, err)
	for _, n := range page.Notifications {
		if n.Title == "Book overdue" {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)

	// an overdue loan can still be returned and is fined from its due date
	ret, err := f.svc.Return(ctx, staff, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, ret.Fine)
	assert.Equal(t, 3, ret.Fine.DaysLate)
}

func TestSweep_PrunesOldReadNotifications(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 1, 0))
	_, err := f.svc.MarkAllNotificationsRead(ctx, staff)
	require.NoError(t, err)

	later := jan1.AddDate(0, 0, 91)
	f.clock.Set(later)
	res, err := f.svc.Sweep(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)
	assert.Equal(t, 1, res.Overdue, "the overdue warning is unread and kept")
}

func TestNotifications_ScopeAndPaging(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 5)
	ann, bob := f.reader(t, "ann"), f.reader(t, "bob")
	f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 7))
	f.borrow(t, bob.ID, book.ID, jan1.AddDate(0, 0, 7))
	annActor := library.Actor{Role: models.RoleReader, ReaderID: ann.ID}

	all, err := f.svc.ListNotifications(ctx, staff, store.Page{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, all.Notifications, 1)
	assert.Equal(t, 2, all.Total)

	mine, err := f.svc.ListNotifications(ctx, annActor, store.Page{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, library.MaxNotificationLimit, mine.Limit)
	require.Len(t, mine.Notifications, 1)

	bobs, err := f.svc.ListNotifications(ctx, library.Actor{Role: models.RoleReader, ReaderID: bob.ID}, store.Page{})
	require.NoError(t, err)
	err = f.svc.MarkNotificationRead(ctx, annActor, bobs.Notifications[0].ID)
	assertCode(t, err, apperror.KindNotFound, apperror.CodeNotificationAbsent)

	require.NoError(t, f.svc.MarkNotificationRead(ctx, annActor, mine.Notifications[0].ID))
	n, err := f.svc.MarkAllNotificationsRead(ctx, staff)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStats(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	b1, b2 := f.book(t, 2), f.book(t, 1)
	ann := f.reader(t, "ann")
	late := f.borrow(t, ann.ID, b1.ID, jan1.AddDate(0, 0, 1))
	f.borrow(t, ann.ID, b2.ID, jan1.AddDate(0, 0, 10))
	_, err := f.svc.Reserve(ctx, staff, ann.ID, b1.ID)
	require.NoError(t, err)
	f.clock.Set(jan1.AddDate(0, 0, 2))
	_, err = f.svc.Return(ctx, staff, late.ID)
	require.NoError(t, err)

	f.clock.Set(jan1.AddDate(0, 0, 12))
	st, err := f.svc.Stats(ctx, staff)
	require.NoError(t, err)

	assert.Equal(t, 2, st.TotalBooks)
	assert.Equal(t, 1, st.TotalReaders)
	assert.Equal(t, 1, st.ActiveBorrows)
	assert.Equal(t, 1, st.OverdueCount)
	assert.Equal(t, 0, st.PendingReservations, "the hold lapsed on day 4")
	assert.Equal(t, "5000", st.UnpaidFines.String())
	assert.Equal(t, 2, st.BorrowsThisMonth)
	assert.Equal(t, 1, st.ReturnsThisMonth)
	require.Len(t, st.BooksByCategory, 1)
	assert.Equal(t, models.CategoryCount{Category: "Fiction", Titles: 2, Copies: 3}, st.BooksByCategory[0])
	require.Len(t, st.RecentLoans, 2)

	_, err = f.svc.Stats(ctx, library.Actor{Role: models.RoleReader, ReaderID: ann.ID})
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
}

func TestCatalog_UpdateAndDeleteGuards(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 2)
	ann := f.reader(t, "ann")
	f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 7))

	zero := 0
	_, err := f.svc.UpdateBook(ctx, staff, book.ID, library.BookPatch{TotalQty: &zero})
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeBookInUse)

	one, title := 1, "Dune Messiah"
	updated, err := f.svc.UpdateBook(ctx, staff, book.ID, library.BookPatch{TotalQty: &one, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Available())
	assert.Equal(t, "Dune Messiah", updated.Title)

	_, err = f.svc.DeleteBook(ctx, staff, book.ID)
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeBookInUse)

	err = f.svc.DeleteReader(ctx, staff, ann.ID)
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeReaderHasLoans)
}

func TestCatalog_DuplicateISBNAndImport(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	_, err := f.svc.CreateBook(ctx, staff, library.BookInput{ISBN: "978-0-441-17271-9", Title: "Dune", Author: "Herbert", TotalQty: 1})
	require.NoError(t, err)

	_, err = f.svc.CreateBook(ctx, staff, library.BookInput{ISBN: "9780441172719", Title: "Dune", Author: "Herbert", TotalQty: 1})
	assertCode(t, err, apperror.KindConflict, apperror.CodeDuplicateISBN)

	results, err := f.svc.ImportBooks(ctx, staff, []library.BookInput{
		{Title: "Emma", Author: "Austen", TotalQty: 2},
		{Title: "", Author: "Nobody"},
		{ISBN: "9780441172719", Title: "Dune", Author: "Herbert"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NotEmpty(t, results[0].ID)
	assert.Equal(t, apperror.CodeInvalidInput, results[1].Code)
	assert.Equal(t, apperror.CodeDuplicateISBN, results[2].Code)

	books, err := f.svc.ListBooks(ctx, store.BookFilter{Search: "emm"})
	require.NoError(t, err)
	assert.Len(t, books, 1)
}

func TestReaders_GeneratedCardAndOwnProfile(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	ann := f.reader(t, "ann")
	assert.Regexp(t, `^R\d{6}$`, ann.CardID)

	d, err := f.svc.GetReader(ctx, library.Actor{Role: models.RoleReader, ReaderID: ann.ID}, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, ann.ID, d.ID)
	assert.Empty(t, d.Loans)

	_, err = f.svc.GetReader(ctx, library.Actor{Role: models.RoleReader, ReaderID: "x"}, ann.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))

	_, err = f.svc.CreateReader(ctx, staff, library.ReaderInput{Name: "Dup", CardID: ann.CardID})
	assertCode(t, err, apperror.KindConflict, apperror.CodeDuplicateCardID)
}

func TestUsers_RegisterAuthenticateAndAdminGuards(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()

	u, err := f.svc.Register(ctx, library.RegisterInput{Username: " Ann@Example.com ", Password: "secret1", FullName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", u.Username)
	assert.Equal(t, models.RoleReader, u.Role)
	require.NotNil(t, u.ReaderID)
	reader, err := f.store.ReaderByID(ctx, *u.ReaderID)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", reader.Email)

	_, err = f.svc.Register(ctx, library.RegisterInput{Username: "ann@example.com", Password: "secret1"})
	assertCode(t, err, apperror.KindConflict, apperror.CodeDuplicateUsername)
	readers, err := f.store.CountReaders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, readers, "failed registration leaves no reader behind")

	got, err := f.svc.Authenticate(ctx, "ANN@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = f.svc.Authenticate(ctx, "ann@example.com", "wrong")
	assertCode(t, err, apperror.KindUnauthorized, apperror.CodeInvalidCredentials)

	created, err := f.svc.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = f.svc.EnsureAdmin(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.False(t, created)

	adminUser, err := f.svc.Authenticate(ctx, "admin", "admin123")
	require.NoError(t, err)
	err = f.svc.DeleteUser(ctx, admin, adminUser.ID)
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeLastAdmin)

	librarian := models.RoleLibrarian
	_, err = f.svc.UpdateUser(ctx, admin, adminUser.ID, library.UserPatch{Role: &librarian})
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeLastAdmin)

	_, err = f.svc.ListUsers(ctx, staff)
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
	users, err := f.svc.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

// staleFirstAttempt serves the first transaction a book read taken before a
// concurrent borrow committed: no copies out and no active loans.
type staleFirstAttempt struct {
	store.Store
	attempts int
}

func (s *staleFirstAttempt) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	s.attempts++
	stale := s.attempts == 1
	return s.Store.WithTx(ctx, func(q store.Queries) error {
		if stale {
			q = staleQueries{q}
		}
		return fn(q)
	})
}

type staleQueries struct{ store.Queries }

func (q staleQueries) BookByID(ctx context.Context, id string) (*models.Book, error) {
	b, err := q.Queries.BookByID(ctx, id)
	if b != nil {
		b.BorrowedQty = 0
	}
	return b, err
}

func (q staleQueries) CountLoans(context.Context, store.LoanFilter) (int, error) {
	return 0, nil
}

func TestDeleteBook_BorrowedSinceReadIsKept(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 7))

	st := &staleFirstAttempt{Store: f.store}
	svc := library.New(st, policy.Default(),
		library.WithClock(f.clock.Now),
		library.WithRetryOptions(library.WithBaseDelay(time.Millisecond)),
	)
	_, err := svc.DeleteBook(ctx, staff, book.ID)

	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeBookInUse)
	assert.Equal(t, 2, st.attempts)
	_, err = f.svc.Return(ctx, staff, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.bookQty(t, book.ID))
}

// callOrder records the order of reader locks and loan counts.
type callOrder struct {
	store.Store
	calls []string
}

func (s *callOrder) WithTx(ctx context.Context, fn func(q store.Queries) error) error {
	return s.Store.WithTx(ctx, func(q store.Queries) error {
		return fn(orderedQueries{Queries: q, calls: &s.calls})
	})
}

type orderedQueries struct {
	store.Queries
	calls *[]string
}

func (q orderedQueries) LockReader(ctx context.Context, id string) error {
	*q.calls = append(*q.calls, "lock")
	return q.Queries.LockReader(ctx, id)
}

func (q orderedQueries) CountLoans(ctx context.Context, f store.LoanFilter) (int, error) {
	*q.calls = append(*q.calls, "count")
	return q.Queries.CountLoans(ctx, f)
}

func TestDeleteReader_LocksBeforeCountingLoans(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	ann := f.reader(t, "ann")

	st := &callOrder{Store: f.store}
	svc := library.New(st, policy.Default(), library.WithClock(f.clock.Now))
	require.NoError(t, svc.DeleteReader(ctx, staff, ann.ID))

	assert.Equal(t, []string{"lock", "count"}, st.calls)
	_, err := f.store.ReaderByID(ctx, ann.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListings_IncludeBookAndReader(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 2)
	ann, bob := f.reader(t, "ann"), f.reader(t, "bob")
	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 1))
	f.borrow(t, bob.ID, book.ID, jan1.AddDate(0, 0, 7))
	_, err := f.svc.Reserve(ctx, staff, ann.ID, book.ID)
	require.NoError(t, err)

	f.clock.Set(jan1.AddDate(0, 0, 3))
	_, err = f.svc.Return(ctx, staff, loan.ID)
	require.NoError(t, err)

	loans, err := f.svc.ListLoans(ctx, staff, library.LoanQuery{ReaderID: ann.ID})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	require.NotNil(t, loans[0].Book)
	require.NotNil(t, loans[0].Reader)
	assert.Equal(t, "Dune", loans[0].Book.Title)
	assert.Equal(t, "ann", loans[0].Reader.Name)

	holds, err := f.svc.ListReservations(ctx, staff, library.ReservationQuery{})
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, "Dune", holds[0].Book.Title)
	assert.Equal(t, "ann", holds[0].Reader.Name)

	fines, err := f.svc.ListFines(ctx, staff, store.FineFilter{})
	require.NoError(t, err)
	require.Len(t, fines, 1)
	require.NotNil(t, fines[0].Loan)
	assert.Equal(t, loan.ID, fines[0].Loan.ID)
	assert.Equal(t, models.LoanReturned, fines[0].Loan.Status)
	assert.Equal(t, "Dune", fines[0].Loan.Book.Title)
	assert.Equal(t, "ann", fines[0].Loan.Reader.Name)

	st, err := f.svc.Stats(ctx, staff)
	require.NoError(t, err)
	for _, l := range st.RecentLoans {
		assert.NotNil(t, l.Book)
		assert.NotNil(t, l.Reader)
	}

	d, err := f.svc.GetBookDetail(ctx, staff, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", d.Title)
	assert.Len(t, d.Loans, 2)

	own, err := f.svc.GetBookDetail(ctx, library.Actor{Role: models.RoleReader, ReaderID: bob.ID}, book.ID)
	require.NoError(t, err)
	require.Len(t, own.Loans, 1)
	assert.Equal(t, bob.ID, own.Loans[0].ReaderID)

	r, err := f.svc.GetReader(ctx, staff, ann.ID)
	require.NoError(t, err)
	require.Len(t, r.Fines, 1)
	assert.Equal(t, "Dune", r.Loans[0].Book.Title)
}

func TestReserve_AllowedForSuspendedReader(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	suspended := models.ReaderSuspended
	_, err := f.svc.UpdateReader(ctx, staff, ann.ID, library.ReaderPatch{Status: &suspended})
	require.NoError(t, err)

	res, err := f.svc.Reserve(ctx, staff, ann.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, res.Status)

	p := policy.Default()
	p.ReserveRequiresActiveReader = true
	strict := library.New(f.store, p, library.WithClock(f.clock.Now))
	_, err = strict.Reserve(ctx, staff, ann.ID, book.ID)
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeReaderNotActive)
}
