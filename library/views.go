package library

import (
	"context"
	"time"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

// LoanView is a loan with the book and reader it references. Either is nil
// when the record no longer exists.
type LoanView struct {
	models.Loan
	Book   *models.Book   `json:"book"`
	Reader *models.Reader `json:"reader"`
}

type ReservationView struct {
	models.Reservation
	Book   *models.Book   `json:"book"`
	Reader *models.Reader `json:"reader"`
}

// FineView is a fine with the loan it was charged for.
type FineView struct {
	models.Fine
	Loan *LoanView `json:"transaction"`
}

// BookDetail is a book with the loans that reference it.
type BookDetail struct {
	models.Book
	Loans []LoanView `json:"transactions"`
}

// related attaches referenced books and readers to listed records, loading
// each id at most once.
type related struct {
	q       store.Queries
	now     time.Time
	books   map[string]*models.Book
	readers map[string]*models.Reader
}

func newRelated(q store.Queries, now time.Time) *related {
	return &related{
		q:       q,
		now:     now,
		books:   map[string]*models.Book{},
		readers: map[string]*models.Reader{},
	}
}

func (r *related) book(ctx context.Context, id string) (*models.Book, error) {
	if b, ok := r.books[id]; ok {
		return b, nil
	}
	b, err := found(r.q.BookByID(ctx, id))
	if err != nil {
		return nil, err
	}
	r.books[id] = b
	return b, nil
}

func (r *related) reader(ctx context.Context, id string) (*models.Reader, error) {
	if rd, ok := r.readers[id]; ok {
		return rd, nil
	}
	rd, err := found(r.q.ReaderByID(ctx, id))
	if err != nil {
		return nil, err
	}
	r.readers[id] = rd
	return rd, nil
}

// loan reports l with its effective status at r.now.
func (r *related) loan(ctx context.Context, l models.Loan) (LoanView, error) {
	l.Status = l.EffectiveStatus(r.now)
	v := LoanView{Loan: l}
	var err error
	if v.Book, err = r.book(ctx, l.BookID); err != nil {
		return LoanView{}, err
	}
	if v.Reader, err = r.reader(ctx, l.ReaderID); err != nil {
		return LoanView{}, err
	}
	return v, nil
}

func (r *related) loans(ctx context.Context, loans []models.Loan) ([]LoanView, error) {
	out := make([]LoanView, 0, len(loans))
	for _, l := range loans {
		v, err := r.loan(ctx, l)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *related) reservations(ctx context.Context, list []models.Reservation) ([]ReservationView, error) {
	out := make([]ReservationView, 0, len(list))
	for _, res := range list {
		res.Status = res.EffectiveStatus(r.now)
		v := ReservationView{Reservation: res}
		var err error
		if v.Book, err = r.book(ctx, res.BookID); err != nil {
			return nil, err
		}
		if v.Reader, err = r.reader(ctx, res.ReaderID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *related) fines(ctx context.Context, fines []models.Fine) ([]FineView, error) {
	out := make([]FineView, 0, len(fines))
	for _, f := range fines {
		v := FineView{Fine: f}
		l, err := found(r.q.LoanByID(ctx, f.LoanID))
		if err != nil {
			return nil, err
		}
		if l != nil {
			lv, err := r.loan(ctx, *l)
			if err != nil {
				return nil, err
			}
			v.Loan = &lv
		}
		out = append(out, v)
	}
	return out, nil
}
