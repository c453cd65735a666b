package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

func (q *queries) CreateLoan(ctx context.Context, l *models.Loan) error {
	return insert(q.ctx(ctx), q.Loans(), l)
}

func (q *queries) LoanByID(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := findOne(q.ctx(ctx), q.Loans(), bson.M{"_id": id}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func loanFilter(f store.LoanFilter) bson.M {
	filter := bson.M{}
	if f.ReaderID != "" {
		filter["readerId"] = f.ReaderID
	}
	if f.BookID != "" {
		filter["bookId"] = f.BookID
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.DueBefore != nil {
		filter["dueDate"] = bson.M{"$lt": *f.DueBefore}
	}
	if f.BorrowedSince != nil {
		filter["borrowDate"] = bson.M{"$gte": *f.BorrowedSince}
	}
	if f.ReturnedSince != nil {
		filter["returnDate"] = bson.M{"$gte": *f.ReturnedSince}
	}
	return filter
}

func (q *queries) ListLoans(ctx context.Context, f store.LoanFilter) ([]models.Loan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "borrowDate", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	return findAll[models.Loan](q.ctx(ctx), q.Loans(), loanFilter(f), opts)
}

func (q *queries) CountLoans(ctx context.Context, f store.LoanFilter) (int, error) {
	return count(q.ctx(ctx), q.Loans(), loanFilter(f))
}

func (q *queries) MarkLoanReturned(ctx context.Context, id string, at time.Time) (bool, error) {
	return updateMatched(q.ctx(ctx), q.Loans(),
		bson.M{"_id": id, "status": bson.M{"$ne": models.LoanReturned}},
		bson.M{"$set": bson.M{"status": models.LoanReturned, "returnDate": at, "updatedAt": at}})
}

func (q *queries) ExtendLoan(ctx context.Context, id string, newDue time.Time, expectedCount int, at time.Time) (bool, error) {
	return updateMatched(q.ctx(ctx), q.Loans(),
		bson.M{
			"_id":            id,
			"extensionCount": expectedCount,
			"status":         bson.M{"$in": bson.A{models.LoanBorrowed, models.LoanExtended}},
		},
		bson.M{
			"$set": bson.M{"dueDate": newDue, "status": models.LoanExtended, "updatedAt": at},
			"$inc": bson.M{"extensionCount": 1},
		})
}

func (q *queries) MarkLoanOverdue(ctx context.Context, id string, at time.Time) (bool, error) {
	return updateMatched(q.ctx(ctx), q.Loans(),
		bson.M{
			"_id":     id,
			"status":  bson.M{"$in": bson.A{models.LoanBorrowed, models.LoanExtended}},
			"dueDate": bson.M{"$lt": at},
		},
		bson.M{"$set": bson.M{"status": models.LoanOverdue, "updatedAt": at}})
}
