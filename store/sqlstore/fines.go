package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/shopspring/decimal"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const finesTable = "fines"

var fineColumns = []any{
	"id", "loan_id", "reader_id", "amount", "days_late", "reason", "paid", "paid_at", "created_at",
}

func (q *queries) CreateFine(ctx context.Context, f *models.Fine) error {
	_, err := q.exec(ctx, q.insert(finesTable).Rows(goqu.Record{
		"id":         f.ID,
		"loan_id":    f.LoanID,
		"reader_id":  f.ReaderID,
		"amount":     f.Amount.String(),
		"days_late":  f.DaysLate,
		"reason":     f.Reason,
		"paid":       f.Paid,
		"paid_at":    nullTime(f.PaidAt),
		"created_at": utc(f.CreatedAt),
	}))
	return err
}

func (q *queries) FineByID(ctx context.Context, id string) (*models.Fine, error) {
	var f models.Fine
	if err := q.get(ctx, &f, q.from(finesTable).Select(fineColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	return &f, nil
}

func (q *queries) FineByLoan(ctx context.Context, loanID string) (*models.Fine, error) {
	var f models.Fine
	if err := q.get(ctx, &f, q.from(finesTable).Select(fineColumns...).Where(goqu.C("loan_id").Eq(loanID))); err != nil {
		return nil, err
	}
	return &f, nil
}

func (q *queries) ListFines(ctx context.Context, f store.FineFilter) ([]models.Fine, error) {
	ds := q.from(finesTable).Select(fineColumns...)
	if f.ReaderID != "" {
		ds = ds.Where(goqu.C("reader_id").Eq(f.ReaderID))
	}
	if f.Paid != nil {
		ds = ds.Where(goqu.C("paid").Eq(*f.Paid))
	}
	fines := []models.Fine{}
	if err := q.selectAll(ctx, &fines, ds.Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())); err != nil {
		return nil, err
	}
	return fines, nil
}

func (q *queries) MarkFinePaid(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := q.exec(ctx, q.update(finesTable).
		Set(goqu.Record{"paid": true, "paid_at": utc(at)}).
		Where(goqu.C("id").Eq(id), goqu.C("paid").Eq(false)))
	return n == 1, err
}

// SumUnpaidFines adds amounts in Go so SQLite text amounts stay exact.
func (q *queries) SumUnpaidFines(ctx context.Context) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	ds := q.from(finesTable).Select("amount").Where(goqu.C("paid").Eq(false))
	if err := q.selectAll(ctx, &amounts, ds); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}
