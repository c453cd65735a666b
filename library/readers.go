package library

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/store"
)

type ReaderInput struct {
	CardID  string              `json:"cardId"`
	Name    string              `json:"name"`
	Faculty string              `json:"faculty"`
	Email   string              `json:"email"`
	Phone   string              `json:"phone"`
	Status  models.ReaderStatus `json:"status"`
}

type ReaderPatch struct {
	CardID  *string              `json:"cardId"`
	Name    *string              `json:"name"`
	Faculty *string              `json:"faculty"`
	Email   *string              `json:"email"`
	Phone   *string              `json:"phone"`
	Status  *models.ReaderStatus `json:"status"`
}

// ReaderDetail is a reader with its loans, reservations and fines.
type ReaderDetail struct {
	models.Reader
	Loans        []LoanView        `json:"loans"`
	Reservations []ReservationView `json:"reservations"`
	Fines        []FineView        `json:"fines"`
}

func readerNotFound() error {
	return apperror.NotFound(apperror.CodeReaderNotFound, "Reader not found")
}

func validateReader(r *models.Reader) error {
	if r.Name == "" {
		return apperror.Validation("name is required")
	}
	if !r.Status.Valid() {
		return apperror.Validationf("status must be one of active, suspended, expired")
	}
	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return apperror.Validationf("email %q is not a valid address", r.Email)
		}
	}
	return nil
}

// generateCardID returns "R" followed by six random digits.
func generateCardID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("R%06d", n.Int64())
}

// createReader inserts r inside t, generating a card id when none is given.
// A generated id that collides retries the whole transaction with a new one;
// Postgres aborts the transaction on the failed insert.
func createReader(ctx context.Context, t *tx, r *models.Reader) error {
	if err := validateReader(r); err != nil {
		return err
	}
	generated := r.CardID == ""
	if generated {
		r.CardID = generateCardID()
	}
	err := t.CreateReader(ctx, r)
	if errors.Is(err, store.ErrDuplicate) {
		if generated {
			return fmt.Errorf("%w: card id %s taken", store.ErrConflict, r.CardID)
		}
		return apperror.Conflict(apperror.CodeDuplicateCardID, fmt.Sprintf("Card id %s is already in use", r.CardID))
	}
	return err
}

func (s *Service) ListReaders(ctx context.Context, a Actor, f store.ReaderFilter) ([]models.Reader, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	readers, err := s.store.ListReaders(ctx, f)
	return readers, s.read("list_readers", err)
}

// GetReader returns the reader with its history. Readers may only see themselves.
func (s *Service) GetReader(ctx context.Context, a Actor, id string) (*ReaderDetail, error) {
	if !a.owns(id) {
		return nil, apperror.Forbidden("You can only view your own profile")
	}
	r, err := s.store.ReaderByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, readerNotFound()
	}
	if err != nil {
		return nil, s.read("get_reader", err)
	}
	d := &ReaderDetail{Reader: *r}
	rel := newRelated(s.store, s.clock())
	rel.readers[id] = r
	loans, err := s.store.ListLoans(ctx, store.LoanFilter{ReaderID: id})
	if err == nil {
		d.Loans, err = rel.loans(ctx, loans)
	}
	if err != nil {
		return nil, s.read("get_reader", err)
	}
	reservations, err := s.store.ListReservations(ctx, store.ReservationFilter{ReaderID: id})
	if err == nil {
		d.Reservations, err = rel.reservations(ctx, reservations)
	}
	if err != nil {
		return nil, s.read("get_reader", err)
	}
	fines, err := s.store.ListFines(ctx, store.FineFilter{ReaderID: id})
	if err == nil {
		d.Fines, err = rel.fines(ctx, fines)
	}
	if err != nil {
		return nil, s.read("get_reader", err)
	}
	return d, nil
}

func (s *Service) CreateReader(ctx context.Context, a Actor, in ReaderInput) (*models.Reader, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = models.ReaderActive
	}
	var reader *models.Reader
	err := s.update(ctx, "create_reader", func(ctx context.Context, t *tx) error {
		reader = &models.Reader{
			ID:        newID(),
			CardID:    strings.TrimSpace(in.CardID),
			Name:      strings.TrimSpace(in.Name),
			Faculty:   strings.TrimSpace(in.Faculty),
			Email:     strings.TrimSpace(in.Email),
			Phone:     strings.TrimSpace(in.Phone),
			Status:    in.Status,
			CreatedAt: t.now,
			UpdatedAt: t.now,
		}
		return createReader(ctx, t, reader)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("reader_id", reader.ID).Info("reader created")
	return reader, nil
}

func (s *Service) UpdateReader(ctx context.Context, a Actor, id string, patch ReaderPatch) (*models.Reader, error) {
	if err := requireStaff(a); err != nil {
		return nil, err
	}
	var reader *models.Reader
	err := s.update(ctx, "update_reader", func(ctx context.Context, t *tx) error {
		r, err := found(t.ReaderByID(ctx, id))
		if err != nil {
			return err
		}
		if r == nil {
			return readerNotFound()
		}
		previous := r.Status
		set := func(dst *string, src *string) {
			if src != nil {
				*dst = strings.TrimSpace(*src)
			}
		}
		set(&r.CardID, patch.CardID)
		set(&r.Name, patch.Name)
		set(&r.Faculty, patch.Faculty)
		set(&r.Email, patch.Email)
		set(&r.Phone, patch.Phone)
		if patch.Status != nil {
			r.Status = *patch.Status
		}
		if r.CardID == "" {
			return apperror.Validation("cardId must not be empty")
		}
		if err := validateReader(r); err != nil {
			return err
		}
		r.UpdatedAt = t.now
		switch err := t.UpdateReader(ctx, r); {
		case errors.Is(err, store.ErrDuplicate):
			return apperror.Conflict(apperror.CodeDuplicateCardID, fmt.Sprintf("Card id %s is already in use", r.CardID))
		case err != nil:
			return err
		}
		if r.Status != previous {
			typ := models.NotifyWarning
			if r.Status == models.ReaderActive {
				typ = models.NotifySuccess
			}
			if err := t.notify(ctx, r, typ, "Membership status changed",
				fmt.Sprintf("Your library membership is now %s.", r.Status)); err != nil {
				return err
			}
		}
		reader = r
		return nil
	})
	return reader, err
}

// DeleteReader removes a reader with no books out.
func (s *Service) DeleteReader(ctx context.Context, a Actor, id string) error {
	if err := requireStaff(a); err != nil {
		return err
	}
	return s.update(ctx, "delete_reader", func(ctx context.Context, t *tx) error {
		r, err := found(t.ReaderByID(ctx, id))
		if err != nil {
			return err
		}
		if r == nil {
			return readerNotFound()
		}
		// Borrow locks the reader before counting too, so a loan cannot
		// commit between this count and the delete.
		if err := t.LockReader(ctx, id); err != nil {
			return err
		}
		active, err := t.CountLoans(ctx, store.LoanFilter{ReaderID: id, Statuses: models.ActiveLoanStatuses})
		if err != nil {
			return err
		}
		if active > 0 {
			return apperror.Policy(apperror.CodeReaderHasLoans, "Cannot delete reader. They still have unreturned books.")
		}
		return t.DeleteReader(ctx, id)
	})
}
