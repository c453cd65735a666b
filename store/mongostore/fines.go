package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

// fineDoc stores the amount as its decimal string so no precision is lost.
type fineDoc struct {
	models.Fine `bson:",inline"`
	Amount      string `bson:"amount"`
}

func (d fineDoc) fine() (models.Fine, error) {
	f := d.Fine
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return f, fmt.Errorf("fine %s amount %q: %w", f.ID, d.Amount, err)
	}
	f.Amount = amount
	return f, nil
}

func (q *queries) CreateFine(ctx context.Context, f *models.Fine) error {
	return insert(q.ctx(ctx), q.Fines(), fineDoc{Fine: *f, Amount: f.Amount.String()})
}

func (q *queries) fineBy(ctx context.Context, filter bson.M) (*models.Fine, error) {
	var d fineDoc
	if err := findOne(q.ctx(ctx), q.Fines(), filter, &d); err != nil {
		return nil, err
	}
	f, err := d.fine()
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (q *queries) FineByID(ctx context.Context, id string) (*models.Fine, error) {
	return q.fineBy(ctx, bson.M{"_id": id})
}

func (q *queries) FineByLoan(ctx context.Context, loanID string) (*models.Fine, error) {
	return q.fineBy(ctx, bson.M{"loanId": loanID})
}

func (q *queries) ListFines(ctx context.Context, ff store.FineFilter) ([]models.Fine, error) {
	filter := bson.M{}
	if ff.ReaderID != "" {
		filter["readerId"] = ff.ReaderID
	}
	if ff.Paid != nil {
		filter["paid"] = *ff.Paid
	}
	docs, err := findAll[fineDoc](q.ctx(ctx), q.Fines(), filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := make([]models.Fine, 0, len(docs))
	for _, d := range docs {
		f, err := d.fine()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (q *queries) MarkFinePaid(ctx context.Context, id string, at time.Time) (bool, error) {
	return updateMatched(q.ctx(ctx), q.Fines(),
		bson.M{"_id": id, "paid": false},
		bson.M{"$set": bson.M{"paid": true, "paidAt": at}})
}

func (q *queries) SumUnpaidFines(ctx context.Context) (decimal.Decimal, error) {
	paid := false
	fines, err := q.ListFines(ctx, store.FineFilter{Paid: &paid})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, f := range fines {
		total = total.Add(f.Amount)
	}
	return total, nil
}
