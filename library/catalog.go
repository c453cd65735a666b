package library

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

func newID() string { return uuid.NewString() }

// BookInput is the writable part of a book.
type BookInput struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	Publisher   string `json:"publisher"`
	PublishYear int    `json:"publishYear"`
	Description string `json:"description"`
	CoverURL    string `json:"coverUrl"`
	TotalQty    int    `json:"totalQty"`
}

func (in *BookInput) normalize() error {
	in.ISBN = normalizeISBN(in.ISBN)
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Category = strings.TrimSpace(in.Category)
	if in.Title == "" {
		return apperror.Validation("title is required")
	}
	if in.Author == "" {
		return apperror.Validation("author is required")
	}
	if in.TotalQty < 0 {
		return apperror.Validation("totalQty must not be negative")
	}
	if in.PublishYear < 0 {
		return apperror.Validation("publishYear must not be negative")
	}
	return nil
}

// BookPatch updates only the fields that are set.
type BookPatch struct {
	ISBN        *string `json:"isbn"`
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Category    *string `json:"category"`
	Publisher   *string `json:"publisher"`
	PublishYear *int    `json:"publishYear"`
	Description *string `json:"description"`
	CoverURL    *string `json:"coverUrl"`
	TotalQty    *int    `json:"totalQty"`
}

func (p BookPatch) apply(b *models.Book) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	if p.ISBN != nil {
		b.ISBN = normalizeISBN(*p.ISBN)
	}
	set(&b.Title, p.Title)
	set(&b.Author, p.Author)
	set(&b.Category, p.Category)
	set(&b.Publisher, p.Publisher)
	set(&b.Description, p.Description)
	set(&b.CoverURL, p.CoverURL)
	if p.PublishYear != nil {
		b.PublishYear = *p.PublishYear
	}
	if p.TotalQty != nil {
		b.TotalQty = *p.TotalQty
	}
}

// normalizeISBN strips hyphens and spaces so lookups and the unique index agree.
func normalizeISBN(isbn string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(isbn)))
}

func bookNotFound() error {
	return apperror.NotFound(apperror.CodeBookNotFound, "Book not found")
}

func duplicateISBN(isbn string) error {
	return apperror.Conflict(apperror.CodeDuplicateISBN, fmt.Sprintf("A book with ISBN %s already exists", isbn))
}

func (s *Service) ListBooks(ctx context.Context, f store.BookFilter) ([]models.Book, error) {
	books, err := s.store.ListBooks(ctx, f)
	return books, s.read("list_books", err)
}

func (s *Service) GetBook(ctx context.Context, id string) (*models.Book, error) {
	b, err := s.store.BookByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, bookNotFound()
	}
	return b, s.read("get_book", err)
}

// GetBookDetail returns the book with its loans. Readers only see their own.
func (s *Service) GetBookDetail(ctx context.Context, a Actor, id string) (*BookDetail, error) {
	b, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	f := store.LoanFilter{BookID: id}
	if !a.IsStaff() {
		if a.ReaderID == "" {
			return &BookDetail{Book: *b, Loans: []LoanView{}}, nil
		}
		f.ReaderID = a.ReaderID
	}
	loans, err := s.store.ListLoans(ctx, f)
	if err != nil {
		return nil, s.read("book_detail", err)
	}
	rel := newRelated(s.store, s.clock())
	rel.books[id] = b
	d := &BookDetail{Book: *b}
	if d.Loans, err = rel.loans(ctx, loans); err != nil {
		return nil, s.read("book_detail", err)
	}
	return d, nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.store.Categories(ctx)
	return cats, s.read("categories", err)
}

func (s *Service) CreateBook(ctx context.Context, a Actor, in BookInput) (*models.Book, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	var book *models.Book
	err := s.update(ctx, "create_book", func(ctx context.Context, t *tx) error {
		book = &models.Book{
			ID:          newID(),
			ISBN:        in.ISBN,
			Title:       in.Title,
			Author:      in.Author,
			Category:    in.Category,
			Publisher:   strings.TrimSpace(in.Publisher),
			PublishYear: in.PublishYear,
			Description: strings.TrimSpace(in.Description),
			CoverURL:    strings.TrimSpace(in.CoverURL),
			TotalQty:    in.TotalQty,
			CreatedAt:   t.now,
			UpdatedAt:   t.now,
		}
		err := t.CreateBook(ctx, book)
		if errors.Is(err, store.ErrDuplicate) {
			return duplicateISBN(in.ISBN)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("book_id", book.ID).Info("book created")
	return book, nil
}

// UpdateBook applies patch. totalQty may not drop below the copies on loan.
func (s *Service) UpdateBook(ctx context.Context, a Actor, id string, patch BookPatch) (*models.Book, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	var book *models.Book
	err := s.update(ctx, "update_book", func(ctx context.Context, t *tx) error {
		b, err := found(t.BookByID(ctx, id))
		if err != nil {
			return err
		}
		if b == nil {
			return bookNotFound()
		}
		patch.apply(b)
		in := BookInput{Title: b.Title, Author: b.Author, TotalQty: b.TotalQty, PublishYear: b.PublishYear}
		if err := in.normalize(); err != nil {
			return err
		}
		if b.TotalQty < b.BorrowedQty {
			return apperror.Policy(apperror.CodeBookInUse,
				fmt.Sprintf("totalQty cannot be less than the %d copies currently borrowed", b.BorrowedQty))
		}
		b.UpdatedAt = t.now
		switch err := t.UpdateBook(ctx, b); {
		case errors.Is(err, store.ErrDuplicate):
			return duplicateISBN(b.ISBN)
		case err != nil:
			return err
		}
		book = b
		return nil
	})
	return book, err
}

// DeleteBook removes a book nobody holds a copy of and returns it, so the
// caller can clean up its cover.
func (s *Service) DeleteBook(ctx context.Context, a Actor, id string) (*models.Book, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	var book *models.Book
	err := s.update(ctx, "delete_book", func(ctx context.Context, t *tx) error {
		b, err := found(t.BookByID(ctx, id))
		if err != nil {
			return err
		}
		if b == nil {
			return bookNotFound()
		}
		if b.BorrowedQty > 0 {
			return apperror.Policy(apperror.CodeBookInUse, "Cannot delete book. Some copies are currently borrowed.")
		}
		active, err := t.CountLoans(ctx, store.LoanFilter{BookID: id, Statuses: models.ActiveLoanStatuses})
		if err != nil {
			return err
		}
		if active > 0 {
			return apperror.Policy(apperror.CodeBookInUse, "Cannot delete book. It is currently involved in an active transaction.")
		}
		book = b
		return t.DeleteBook(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("book_id", id).Info("book deleted")
	return book, nil
}

// SetBookCover records a new cover and returns the object key it replaced.
func (s *Service) SetBookCover(ctx context.Context, a Actor, id, url, key string) (previousKey string, err error) {
	if err := requireStaff(a); err != nil {
		return "", err
	}
	err = s.update(ctx, "set_book_cover", func(ctx context.Context, t *tx) error {
		b, err := found(t.BookByID(ctx, id))
		if err != nil {
			return err
		}
		if b == nil {
			return bookNotFound()
		}
		previousKey = b.CoverS3Key
		b.CoverURL = url
		b.CoverS3Key = key
		b.UpdatedAt = t.now
		return t.UpdateBook(ctx, b)
	})
	return previousKey, err
}

// ImportResult reports the outcome of one row of a bulk import.
type ImportResult struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// ImportBooks creates each row independently; one bad row does not stop the rest.
func (s *Service) ImportBooks(ctx context.Context, a Actor, rows []BookInput) ([]ImportResult, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	results := make([]ImportResult, 0, len(rows))
	for i, row := range rows {
		res := ImportResult{Index: i, Title: row.Title}
		b, err := s.CreateBook(ctx, a, row)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			appErr := apperror.As(err)
			res.Error, res.Code = appErr.Message, appErr.Code
		} else {
			res.ID = b.ID
		}
		results = append(results, res)
	}
	return results, nil
}
