package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const loansTable = "loans"

var loanColumns = []any{
	"id", "book_id", "reader_id", "borrow_date", "due_date", "return_date",
	"status", "extension_count", "notes", "created_at", "updated_at",
}

func activeStatuses() []any {
	out := make([]any, 0, len(models.ActiveLoanStatuses))
	for _, s := range models.ActiveLoanStatuses {
		out = append(out, string(s))
	}
	return out
}

func (q *queries) CreateLoan(ctx context.Context, l *models.Loan) error {
	_, err := q.exec(ctx, q.insert(loansTable).Rows(goqu.Record{
		"id":              l.ID,
		"book_id":         l.BookID,
		"reader_id":       l.ReaderID,
		"borrow_date":     utc(l.BorrowDate),
		"due_date":        utc(l.DueDate),
		"return_date":     nullTime(l.ReturnDate),
		"status":          string(l.Status),
		"extension_count": l.ExtensionCount,
		"notes":           l.Notes,
		"created_at":      utc(l.CreatedAt),
		"updated_at":      utc(l.UpdatedAt),
	}))
	return err
}

func (q *queries) LoanByID(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := q.get(ctx, &l, q.from(loansTable).Select(loanColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	return &l, nil
}

func (q *queries) loanFilter(f store.LoanFilter) *goqu.SelectDataset {
	ds := q.from(loansTable)
	if f.ReaderID != "" {
		ds = ds.Where(goqu.C("reader_id").Eq(f.ReaderID))
	}
	if f.BookID != "" {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]any, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		ds = ds.Where(goqu.C("status").In(statuses...))
	}
	if f.DueBefore != nil {
		ds = ds.Where(goqu.C("due_date").Lt(utc(*f.DueBefore)))
	}
	if f.BorrowedSince != nil {
		ds = ds.Where(goqu.C("borrow_date").Gte(utc(*f.BorrowedSince)))
	}
	if f.ReturnedSince != nil {
		ds = ds.Where(goqu.C("return_date").Gte(utc(*f.ReturnedSince)))
	}
	return ds
}

func (q *queries) ListLoans(ctx context.Context, f store.LoanFilter) ([]models.Loan, error) {
	ds := q.loanFilter(f).Select(loanColumns...).Order(goqu.C("borrow_date").Desc(), goqu.C("id").Asc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	loans := []models.Loan{}
	if err := q.selectAll(ctx, &loans, ds); err != nil {
		return nil, err
	}
	return loans, nil
}

func (q *queries) CountLoans(ctx context.Context, f store.LoanFilter) (int, error) {
	return q.count(ctx, q.loanFilter(f))
}

func (q *queries) MarkLoanReturned(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := q.exec(ctx, q.update(loansTable).
		Set(goqu.Record{"status": string(models.LoanReturned), "return_date": utc(at), "updated_at": utc(at)}).
		Where(goqu.C("id").Eq(id), goqu.C("status").Neq(string(models.LoanReturned))))
	return n == 1, err
}

func (q *queries) ExtendLoan(ctx context.Context, id string, newDue time.Time, expectedCount int, at time.Time) (bool, error) {
	n, err := q.exec(ctx, q.update(loansTable).
		Set(goqu.Record{
			"due_date":        utc(newDue),
			"extension_count": expectedCount + 1,
			"status":          string(models.LoanExtended),
			"updated_at":      utc(at),
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("extension_count").Eq(expectedCount),
			goqu.C("status").In(string(models.LoanBorrowed), string(models.LoanExtended)),
		))
	return n == 1, err
}

func (q *queries) MarkLoanOverdue(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := q.exec(ctx, q.update(loansTable).
		Set(goqu.Record{"status": string(models.LoanOverdue), "updated_at": utc(at)}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("status").In(string(models.LoanBorrowed), string(models.LoanExtended)),
			goqu.C("due_date").Lt(utc(at)),
		))
	return n == 1, err
}
