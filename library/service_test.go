package library_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/library"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/policy"
	"github.com/kevinaaaquil/library/backend/store"
	"github.com/kevinaaaquil/library/backend/store/sqlstore"
)

var (
	staff = library.Actor{UserID: "u-staff", Role: models.RoleLibrarian}
	admin = library.Actor{UserID: "u-admin", Role: models.RoleAdmin}
	jan1  = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type sentMail struct{ to, subject string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to, subject})
	return nil
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type fixture struct {
	svc    *library.Service
	store  *sqlstore.Store
	clock  *fakeClock
	mailer *fakeMailer
	logs   *test.Hook
}

func newFixture(t *testing.T, p policy.Policy) *fixture {
	t.Helper()
	st, err := sqlstore.Open(context.Background(), sqlstore.Options{
		Driver:      sqlstore.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "library.db"),
		AutoMigrate: true,
		Logger:      logrus.New(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log, hook := test.NewNullLogger()
	f := &fixture{store: st, clock: &fakeClock{t: jan1}, mailer: &fakeMailer{}, logs: hook}
	f.svc = library.New(st, p,
		library.WithClock(f.clock.Now),
		library.WithLogger(log),
		library.WithMailer(f.mailer),
		library.WithRetryOptions(library.WithBaseDelay(time.Millisecond)),
	)
	return f
}

func (f *fixture) book(t *testing.T, total int) *models.Book {
	t.Helper()
	b, err := f.svc.CreateBook(context.Background(), staff, library.BookInput{Title: "Dune", Author: "Frank Herbert", Category: "Fiction", TotalQty: total})
	require.NoError(t, err)
	return b
}

func (f *fixture) reader(t *testing.T, name string) *models.Reader {
	t.Helper()
	r, err := f.svc.CreateReader(context.Background(), staff, library.ReaderInput{Name: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return r
}

func (f *fixture) borrow(t *testing.T, readerID, bookID string, due time.Time) *models.Loan {
	t.Helper()
	l, err := f.svc.Borrow(context.Background(), staff, library.BorrowRequest{ReaderID: readerID, BookID: bookID, DueDate: due})
	require.NoError(t, err)
	return l
}

func (f *fixture) bookQty(t *testing.T, id string) int {
	t.Helper()
	b, err := f.store.BookByID(context.Background(), id)
	require.NoError(t, err)
	return b.BorrowedQty
}

func assertCode(t *testing.T, err error, kind apperror.Kind, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperror.KindOf(err), "kind of %v", err)
	assert.True(t, apperror.HasCode(err, code), "want %s, got %v", code, err)
}

func TestBorrow_TakesCopyAndNotifies(t *testing.T) {
	f := newFixture(t, policy.Default())
	ctx := context.Background()
	book := f.book(t, 1)
	ann := f.reader(t, "ann")

	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 14))

	assert.Equal(t, models.LoanBorrowed, loan.Status)
	assert.Equal(t, 1, f.bookQty(t, book.ID))

	page, err := f.svc.ListNotifications(ctx, library.Actor{Role: models.RoleReader, ReaderID: ann.ID}, store.Page{})
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, models.NotifySuccess, page.Notifications[0].Type)
	assert.Equal(t, 1, page.UnreadCount)
	assert.Equal(t, []sentMail{{"ann@example.com", "Book borrowed"}}, f.mailer.Sent())
}

func TestBorrow_SecondReaderRejectedWhenNoCopyLeft(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 1)
	a, b := f.reader(t, "ann"), f.reader(t, "bob")
	f.borrow(t, a.ID, book.ID, jan1.AddDate(0, 0, 14))

	_, err := f.svc.Borrow(context.Background(), staff, library.BorrowRequest{ReaderID: b.ID, BookID: book.ID, DueDate: jan1.AddDate(0, 0, 14)})

	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeBookNotAvailable)
	assert.EqualError(t, err, "Book not available")
	assert.Equal(t, 1, f.bookQty(t, book.ID))
}

func TestBorrow_ConcurrentRequestsForLastCopy(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 1)
	const n = 8
	readers := make([]*models.Reader, n)
	for i := range readers {
		readers[i] = f.reader(t, "reader"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Borrow(context.Background(), staff, library.BorrowRequest{
				ReaderID: readers[i].ID, BookID: book.ID, DueDate: jan1.AddDate(0, 0, 7),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeBookNotAvailable)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.bookQty(t, book.ID))
	loans, err := f.store.CountLoans(context.Background(), store.LoanFilter{BookID: book.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, loans)
}

func TestBorrow_SuspendedReaderRejected(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 3)
	ann := f.reader(t, "ann")
	suspended := models.ReaderSuspended
	_, err := f.svc.UpdateReader(context.Background(), staff, ann.ID, library.ReaderPatch{Status: &suspended})
	require.NoError(t, err)

	_, err = f.svc.Borrow(context.Background(), staff, library.BorrowRequest{ReaderID: ann.ID, BookID: book.ID, DueDate: jan1.AddDate(0, 0, 7)})

	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeReaderNotActive)
	assert.EqualError(t, err, "Reader is suspended. Cannot borrow books.")
	assert.Equal(t, 0, f.bookQty(t, book.ID))
}

func TestBorrow_LoanCapAndOverdueBlock(t *testing.T) {
	p := policy.Default()
	p.MaxActiveLoans = 2
	f := newFixture(t, p)
	ann := f.reader(t, "ann")
	b1, b2, b3 := f.book(t, 1), f.book(t, 1), f.book(t, 1)
	f.borrow(t, ann.ID, b1.ID, jan1.AddDate(0, 0, 3))
	f.borrow(t, ann.ID, b2.ID, jan1.AddDate(0, 0, 30))

	_, err := f.svc.Borrow(context.Background(), staff, library.BorrowRequest{ReaderID: ann.ID, BookID: b3.ID, DueDate: jan1.AddDate(0, 0, 7)})
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeLoanLimitReached)
	assert.EqualError(t, err, "Maximum borrowing limit (2 books) reached.")

	f.clock.Set(jan1.AddDate(0, 0, 5))
	_, err = f.svc.Borrow(context.Background(), staff, library.BorrowRequest{ReaderID: ann.ID, BookID: b3.ID, DueDate: jan1.AddDate(0, 0, 20)})
	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeReaderHasOverdue)
}

func TestBorrow_RequiresStaffAndFutureDueDate(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 1)
	ann := f.reader(t, "ann")

	_, err := f.svc.Borrow(context.Background(), library.Actor{Role: models.RoleReader, ReaderID: ann.ID},
		library.BorrowRequest{ReaderID: ann.ID, BookID: book.ID, DueDate: jan1.AddDate(0, 0, 7)})
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))

	_, err = f.svc.Borrow(context.Background(), staff, library.BorrowRequest{ReaderID: ann.ID, BookID: book.ID, DueDate: jan1.Add(-time.Hour)})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	_, err = f.svc.Borrow(context.Background(), staff, library.BorrowRequest{ReaderID: ann.ID, BookID: "missing", DueDate: jan1.AddDate(0, 0, 7)})
	assertCode(t, err, apperror.KindNotFound, apperror.CodeBookNotFound)
}

func TestReturn_LateCreatesFine(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	loan := f.borrow(t, ann.ID, book.ID, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	f.clock.Set(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	res, err := f.svc.Return(context.Background(), staff, loan.ID)

	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, res.Loan.Status)
	require.NotNil(t, res.Loan.ReturnDate)
	require.NotNil(t, res.Fine)
	assert.Equal(t, "25000", res.Fine.Amount.String())
	assert.Equal(t, 5, res.Fine.DaysLate)
	assert.False(t, res.Fine.Paid)
	assert.Equal(t, 0, f.bookQty(t, book.ID))
}

func TestReturn_OnTimeHasNoFine(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 7))

	f.clock.Set(jan1.AddDate(0, 0, 3))
	res, err := f.svc.Return(context.Background(), staff, loan.ID)

	require.NoError(t, err)
	assert.Nil(t, res.Fine)
	fines, err := f.svc.ListFines(context.Background(), staff, store.FineFilter{})
	require.NoError(t, err)
	assert.Empty(t, fines)
}

func TestReturn_TwiceIsRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 2)
	ann, bob := f.reader(t, "ann"), f.reader(t, "bob")
	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 1))
	f.borrow(t, bob.ID, book.ID, jan1.AddDate(0, 0, 7))

	f.clock.Set(jan1.AddDate(0, 0, 3))
	_, err := f.svc.Return(context.Background(), staff, loan.ID)
	require.NoError(t, err)

	_, err = f.svc.Return(context.Background(), staff, loan.ID)

	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeLoanReturned)
	assert.Equal(t, 1, f.bookQty(t, book.ID))
	fines, err := f.svc.ListFines(context.Background(), staff, store.FineFilter{})
	require.NoError(t, err)
	assert.Len(t, fines, 1)
}

func TestExtend_TwiceThenCapped(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 1)
	ann := f.reader(t, "ann")
	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 7))
	self := library.Actor{Role: models.RoleReader, ReaderID: ann.ID}

	l, err := f.svc.Extend(context.Background(), self, loan.ID, jan1.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.Equal(t, models.LoanExtended, l.Status)
	l, err = f.svc.Extend(context.Background(), staff, loan.ID, jan1.AddDate(0, 0, 21))
	require.NoError(t, err)
	assert.Equal(t, 2, l.ExtensionCount)

	_, err = f.svc.Extend(context.Background(), staff, loan.ID, jan1.AddDate(0, 0, 28))

	assertCode(t, err, apperror.KindPolicyViolation, apperror.CodeExtensionLimit)
	assert.EqualError(t, err, "Maximum extensions reached (2)")
	stored, err := f.store.LoanByID(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ExtensionCount)
	assert.True(t, stored.DueDate.Equal(jan1.AddDate(0, 0, 21)))
}

func TestExtend_OtherReadersLoanIsHidden(t *testing.T) {
	f := newFixture(t, policy.Default())
	book := f.book(t, 1)
	ann, bob := f.reader(t, "ann"), f.reader(t, "bob")
	loan := f.borrow(t, ann.ID, book.ID, jan1.AddDate(0, 0, 7))

	_, err := f.svc.Extend(context.Background(), library.Actor{Role: models.RoleReader, ReaderID: bob.ID}, loan.ID, jan1.AddDate(0, 0, 14))

	assertCode(t, err, apperror.KindNotFound, apperror.CodeLoanNotFound)
}

func TestListLoans_FiltersOnEffectiveStatus(t *testing.T) {
	f := newFixture(t, policy.Default())
	ann := f.reader(t, "ann")
	b1, b2 := f.book(t, 1), f.book(t, 1)
	late := f.borrow(t, ann.ID, b1.ID, jan1.AddDate(0, 0, 2))
	f.borrow(t, ann.ID, b2.ID, jan1.AddDate(0, 0, 30))
	f.clock.Set(jan1.AddDate(0, 0, 5))

	overdue, err := f.svc.ListLoans(context.Background(), staff, library.LoanQuery{Status: models.LoanOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)

	borrowed, err := f.svc.ListLoans(context.Background(), library.Actor{Role: models.RoleReader, ReaderID: ann.ID}, library.LoanQuery{Status: models.LoanBorrowed})
	require.NoError(t, err)
	assert.Len(t, borrowed, 1)

	_, err = f.svc.ListLoans(context.Background(), library.Actor{Role: models.RoleReader, ReaderID: "someone"}, library.LoanQuery{ReaderID: ann.ID})
	assert.True(t, apperror.IsKind(err, apperror.KindForbidden))
}
