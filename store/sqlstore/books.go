package sqlstore

import (
	"context"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

const booksTable = "books"

var bookColumns = []any{
	"id", "isbn", "title", "author", "category", "publisher", "publish_year",
	"description", "cover_url", "cover_s3_key", "total_qty", "borrowed_qty",
	"created_at", "updated_at",
}

func bookRecord(b *models.Book) goqu.Record {
	return goqu.Record{
		"isbn":         b.ISBN,
		"title":        b.Title,
		"author":       b.Author,
		"category":     b.Category,
		"publisher":    b.Publisher,
		"publish_year": b.PublishYear,
		"description":  b.Description,
		"cover_url":    b.CoverURL,
		"cover_s3_key": b.CoverS3Key,
		"total_qty":    b.TotalQty,
		"updated_at":   utc(b.UpdatedAt),
	}
}

func (q *queries) CreateBook(ctx context.Context, b *models.Book) error {
	rec := bookRecord(b)
	rec["id"] = b.ID
	rec["borrowed_qty"] = b.BorrowedQty
	rec["created_at"] = utc(b.CreatedAt)
	_, err := q.exec(ctx, q.insert(booksTable).Rows(rec))
	return err
}

// UpdateBook writes descriptive fields and total_qty. borrowed_qty only
// moves through IncrementBorrowed and DecrementBorrowed.
func (q *queries) UpdateBook(ctx context.Context, b *models.Book) error {
	return q.execOne(ctx, q.update(booksTable).Set(bookRecord(b)).Where(goqu.C("id").Eq(b.ID)))
}

// DeleteBook removes the book only while no copy is out. A book that gained
// a borrower since the caller read it yields store.ErrConflict.
func (q *queries) DeleteBook(ctx context.Context, id string) error {
	n, err := q.exec(ctx, q.delete(booksTable).Where(goqu.C("id").Eq(id), goqu.C("borrowed_qty").Eq(0)))
	if err != nil || n == 1 {
		return err
	}
	if _, err := q.BookByID(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

func (q *queries) BookByID(ctx context.Context, id string) (*models.Book, error) {
	var b models.Book
	if err := q.get(ctx, &b, q.from(booksTable).Select(bookColumns...).Where(goqu.C("id").Eq(id))); err != nil {
		return nil, err
	}
	return &b, nil
}

func (q *queries) bookFilter(f store.BookFilter) *goqu.SelectDataset {
	ds := q.from(booksTable)
	if f.Search != "" {
		p := likePattern(f.Search)
		ds = ds.Where(goqu.Or(
			goqu.Func("LOWER", goqu.C("title")).Like(p),
			goqu.Func("LOWER", goqu.C("author")).Like(p),
			goqu.Func("LOWER", goqu.C("isbn")).Like(p),
		))
	}
	if f.Category != "" {
		ds = ds.Where(goqu.C("category").Eq(f.Category))
	}
	return ds
}

func (q *queries) ListBooks(ctx context.Context, f store.BookFilter) ([]models.Book, error) {
	books := []models.Book{}
	ds := q.bookFilter(f).Select(bookColumns...).Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())
	if err := q.selectAll(ctx, &books, ds); err != nil {
		return nil, err
	}
	return books, nil
}

func (q *queries) Categories(ctx context.Context) ([]string, error) {
	cats := []string{}
	ds := q.from(booksTable).Select(goqu.C("category")).Distinct().
		Where(goqu.C("category").Neq("")).Order(goqu.C("category").Asc())
	if err := q.selectAll(ctx, &cats, ds); err != nil {
		return nil, err
	}
	return cats, nil
}

func (q *queries) CountBooks(ctx context.Context) (int, error) {
	return q.count(ctx, q.from(booksTable))
}

func (q *queries) BooksByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	rows := []models.CategoryCount{}
	ds := q.from(booksTable).
		Select(
			goqu.C("category"),
			goqu.COUNT(goqu.Star()).As("titles"),
			goqu.COALESCE(goqu.SUM("total_qty"), 0).As("copies"),
		).
		GroupBy("category").
		Order(goqu.C("category").Asc())
	if err := q.selectAll(ctx, &rows, ds); err != nil {
		return nil, err
	}
	return rows, nil
}

func (q *queries) IncrementBorrowed(ctx context.Context, bookID string) (bool, error) {
	n, err := q.exec(ctx, q.update(booksTable).
		Set(goqu.Record{"borrowed_qty": goqu.L("borrowed_qty + 1"), "updated_at": utc(time.Now())}).
		Where(goqu.C("id").Eq(bookID), goqu.C("borrowed_qty").Lt(goqu.C("total_qty"))))
	return n == 1, err
}

func (q *queries) DecrementBorrowed(ctx context.Context, bookID string) (bool, error) {
	n, err := q.exec(ctx, q.update(booksTable).
		Set(goqu.Record{"borrowed_qty": goqu.L("borrowed_qty - 1"), "updated_at": utc(time.Now())}).
		Where(goqu.C("id").Eq(bookID), goqu.C("borrowed_qty").Gt(0)))
	return n == 1, err
}
