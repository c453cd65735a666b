// Package sqlstore implements store.Store on SQLite or Postgres using sqlx
// for execution and goqu for building statements.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/kevinaaaquil/library/backend/store"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver      string
	DSN         string
	AutoMigrate bool
	Logger      logrus.FieldLogger
}

type Store struct {
	*queries
	db     *sqlx.DB
	driver string
	log    logrus.FieldLogger
}

var _ store.Store = (*Store)(nil)

// Open connects, verifies the connection and optionally migrates to the
// latest schema. For SQLite a bare path becomes a file DSN with a busy
// timeout and foreign keys enabled.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	dsn := opts.DSN
	switch opts.Driver {
	case DriverSQLite:
		if !strings.HasPrefix(dsn, "file:") {
			dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dsn)
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", opts.Driver)
	}

	db, err := sqlx.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}
	if opts.Driver == DriverSQLite {
		// one writer; transactions serialize on the single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}
	if opts.Driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if opts.AutoMigrate {
		if err := Migrate(db.DB, opts.Driver, false); err != nil {
			db.Close()
			return nil, err
		}
	}
	opts.Logger.WithField("driver", opts.Driver).Info("connected to database")
	return New(db, opts.Driver, opts.Logger), nil
}

// New wraps an already opened handle.
func New(db *sqlx.DB, driver string, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		queries: &queries{ext: db, dialect: goqu.Dialect(driver)},
		db:      db,
		driver:  driver,
		log:     log,
	}
}

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB { return s.db.DB }

func (s *Store) Driver() string { return s.driver }

func (s *Store) WithTx(ctx context.Context, fn func(q store.Queries) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.WithError(rbErr).Warn("rollback failed")
			}
		}
	}()

	if err = fn(&queries{ext: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// queries runs statements against either the pool or an open transaction.
type queries struct {
	ext     sqlx.ExtContext
	dialect goqu.DialectWrapper
}

type builder interface {
	ToSQL() (string, []interface{}, error)
}

func (q *queries) from(table string) *goqu.SelectDataset {
	return q.dialect.From(table).Prepared(true)
}

func (q *queries) insert(table string) *goqu.InsertDataset {
	return q.dialect.Insert(table).Prepared(true)
}

func (q *queries) update(table string) *goqu.UpdateDataset {
	return q.dialect.Update(table).Prepared(true)
}

func (q *queries) delete(table string) *goqu.DeleteDataset {
	return q.dialect.Delete(table).Prepared(true)
}

func (q *queries) get(ctx context.Context, dest any, b builder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := sqlx.GetContext(ctx, q.ext, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return mapError(err)
	}
	return nil
}

func (q *queries) selectAll(ctx context.Context, dest any, b builder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return mapError(sqlx.SelectContext(ctx, q.ext, dest, query, args...))
}

func (q *queries) count(ctx context.Context, ds *goqu.SelectDataset) (int, error) {
	var n int
	if err := q.get(ctx, &n, ds.Select(goqu.COUNT(goqu.Star()))); err != nil {
		return 0, err
	}
	return n, nil
}

// exec runs a write and returns the number of affected rows.
func (q *queries) exec(ctx context.Context, b builder) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

// execOne is exec for statements addressed by primary key.
func (q *queries) execOne(ctx context.Context, b builder) error {
	n, err := q.exec(ctx, b)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case liteErr.ExtendedCode == sqlite3.ErrConstraintCheck,
			liteErr.Code == sqlite3.ErrBusy,
			liteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return err
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case "23514", "40001", "40P01": // check_violation, serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
	}
	return err
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func likePattern(s string) string {
	return "%" + strings.ToLower(strings.TrimSpace(s)) + "%"
}
