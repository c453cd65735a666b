// Package library implements the circulation operations over a store.Store.
// Every mutating operation runs in one transaction, is retried on concurrent
// update conflicts and records its notification in the same transaction.
package library

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/apperror"
	"github.com/kevinaaaquil/library/backend/metrics"
	"github.com/kevinaaaquil/library/backend/models"
	"github.com/kevinaaaquil/library/backend/policy"
	"github.com/kevinaaaquil/library/backend/store"
)

// Mailer delivers notification emails. Failures are logged, never returned.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID   string
	Role     string
	ReaderID string
}

func (a Actor) IsStaff() bool { return models.IsStaff(a.Role) }

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// owns reports whether a may act on records of readerID.
func (a Actor) owns(readerID string) bool {
	return a.IsStaff() || (a.ReaderID != "" && a.ReaderID == readerID)
}

var errStaffOnly = apperror.Forbidden("Only library staff can do this")

func requireStaff(a Actor) error {
	if !a.IsStaff() {
		return errStaffOnly
	}
	return nil
}

func requireAdmin(a Actor) error {
	if !a.IsAdmin() {
		return apperror.Forbidden("Only administrators can do this")
	}
	return nil
}

type Service struct {
	store   store.Store
	policy  policy.Policy
	now     func() time.Time
	log     logrus.FieldLogger
	mailer  Mailer
	retries []RetryOption
}

type Option func(*Service)

// WithClock replaces time.Now; tests use it to pin the current instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) { s.log = log }
}

func WithMailer(m Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

func WithRetryOptions(opts ...RetryOption) Option {
	return func(s *Service) { s.retries = opts }
}

func New(st store.Store, p policy.Policy, opts ...Option) *Service {
	s := &Service{
		store:  st,
		policy: p,
		now:    time.Now,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() policy.Policy { return s.policy }

func (s *Service) clock() time.Time { return s.now().UTC() }

// Ping checks the store; used by the health endpoint.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }

type email struct {
	to, subject, body string
}

// tx is one attempt of a transactional operation.
type tx struct {
	store.Queries
	now    time.Time
	emails []email
	mailer bool
}

// notify appends a notification for reader (nil broadcasts) and queues an
// email when the reader has an address.
func (t *tx) notify(ctx context.Context, reader *models.Reader, typ models.NotificationType, title, message string) error {
	n := &models.Notification{
		ID:        newID(),
		Title:     title,
		Message:   message,
		Type:      typ,
		CreatedAt: t.now,
	}
	if reader != nil {
		n.ReaderID = &reader.ID
		if t.mailer && reader.Email != "" {
			t.emails = append(t.emails, email{to: reader.Email, subject: title, body: message})
		}
	}
	return t.CreateNotification(ctx, n)
}

// update runs fn in a transaction, retrying the whole attempt on
// store.ErrConflict. Queued emails are sent once the transaction commits.
func (s *Service) update(ctx context.Context, op string, fn func(ctx context.Context, t *tx) error) error {
	start := time.Now()
	var sent []email
	err := RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		sent = nil
		return s.store.WithTx(ctx, func(q store.Queries) error {
			t := &tx{Queries: q, now: s.clock(), mailer: s.mailer != nil}
			if err := fn(ctx, t); err != nil {
				return err
			}
			sent = t.emails
			return nil
		})
	}, s.retries...)
	err = s.translate(op, err)
	metrics.RecordOperation(op, outcome(err), time.Since(start))
	if err == nil {
		s.deliver(ctx, sent)
	}
	return err
}

// read runs a non-transactional query and translates its error.
func (s *Service) read(op string, err error) error {
	return s.translate(op, err)
}

func (s *Service) deliver(ctx context.Context, emails []email) {
	for _, e := range emails {
		if err := s.mailer.Send(ctx, e.to, e.subject, e.body); err != nil {
			s.log.WithError(err).WithField("to", e.to).Warn("notification email not sent")
		}
	}
}

// translate turns store sentinels into apperror kinds and logs internal
// failures with the operation name.
func (s *Service) translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		if appErr.Kind == apperror.KindInternal {
			s.log.WithError(appErr.Err).WithField("op", op).Error("operation failed")
		}
		return appErr
	case errors.Is(err, store.ErrConflict):
		s.log.WithError(err).WithField("op", op).Warn("gave up after concurrent update conflicts")
		return apperror.Conflict(apperror.CodeConcurrentUpdate, "The record was changed by another request; please retry")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperror.Internal(err)
	default:
		s.log.WithError(err).WithField("op", op).Error("operation failed")
		return apperror.Internal(err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperror.As(err).Code
}

// found maps store.ErrNotFound to a nil result so decisions can see absence.
func found[T any](v *T, err error) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
