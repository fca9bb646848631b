package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DataSource hands out connections from a pool. *sql.DB satisfies it.
type DataSource interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Resolver resolves a resource name to a DataSource. Closing it releases
// whatever the resolver itself opened.
type Resolver interface {
	Lookup(ctx context.Context, name string) (DataSource, error)
	Close() error
}

// DriverConfig identifies a direct driver connection.
type DriverConfig struct {
	Driver   string
	URL      string
	Username string
	Password string
}

// Session is one exclusive database connection plus at most one open cursor
// from the most recent SELECT.
type Session struct {
	conn     *sql.Conn
	db       *sql.DB
	resolver Resolver
	cursor   *sql.Rows
	log      logrus.FieldLogger
}

// OpenDriver opens a dedicated connection through a registered driver.
func OpenDriver(ctx context.Context, cfg DriverConfig, log logrus.FieldLogger) (*Session, error) {
	driver, err := ResolveDriver(cfg.Driver)
	if err != nil {
		return nil, NewConnectionError("Failed to load driver", err)
	}

	dsn, err := BuildDataSourceName(driver, cfg.URL, cfg.Username, cfg.Password)
	if err != nil {
		return nil, NewConnectionError("Failed to build connection string", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, NewConnectionError("Failed to open database connection", err)
	}

	// The session only ever uses one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, NewConnectionError("Failed to acquire connection", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, NewConnectionError("Failed to ping database", err)
	}

	log = logger(log).WithField("driver", driver)
	log.Debug("Session opened")

	return &Session{conn: conn, db: db, log: log}, nil
}

// OpenResource resolves name through resolver and takes a connection from
// the pool it returns. The session owns resolver from here on; on failure it
// is closed before returning.
func OpenResource(ctx context.Context, resolver Resolver, name string, log logrus.FieldLogger) (*Session, error) {
	ds, err := resolver.Lookup(ctx, name)
	if err != nil {
		_ = resolver.Close()
		return nil, NewConnectionError(fmt.Sprintf("Failed to resolve datasource %q", name), err)
	}

	conn, err := ds.Conn(ctx)
	if err != nil {
		_ = resolver.Close()
		return nil, NewConnectionError(fmt.Sprintf("Failed to acquire connection from datasource %q", name), err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = resolver.Close()
		return nil, NewConnectionError(fmt.Sprintf("Failed to ping datasource %q", name), err)
	}

	log = logger(log).WithField("datasource", name)
	log.Debug("Session opened")

	return &Session{conn: conn, resolver: resolver, log: log}, nil
}

// Query runs a SELECT and attaches the cursor to the session. Only one
// cursor may be open at a time.
func (s *Session) Query(ctx context.Context, query string) (*sql.Rows, error) {
	if s.cursor != nil {
		return nil, NewError(ErrorCodeQuery, "A cursor is already open on this session", "")
	}

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, TranslateError(err)
	}

	s.cursor = rows
	return rows, nil
}

// Cursor returns the cursor currently attached to the session, if any.
func (s *Session) Cursor() *sql.Rows {
	return s.cursor
}

// CloseCursor closes and detaches the open cursor. It is a no-op without one.
func (s *Session) CloseCursor() error {
	if s.cursor == nil {
		return nil
	}

	err := s.cursor.Close()
	s.cursor = nil
	return err
}

// Exec runs a statement that does not return rows.
func (s *Session) Exec(ctx context.Context, statement string) (int64, error) {
	result, err := s.conn.ExecContext(ctx, statement)
	if err != nil {
		return 0, TranslateError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		// Not every driver reports it.
		return 0, nil
	}

	return affected, nil
}

// ExecBatch runs statements in order inside one transaction. Nothing is
// committed unless every statement succeeds.
func (s *Session) ExecBatch(ctx context.Context, statements []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return TranslateError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	for i, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			s.rollback(tx, err)

			queryErr := TranslateError(err)
			queryErr.Detail = fmt.Sprintf("statement %d of %d: %s", i+1, len(statements), queryErr.Detail)
			return queryErr
		}
	}

	err = tx.Commit()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return TranslateError(fmt.Errorf("failed to commit batch: %w", err))
	}

	s.log.WithField("statements", len(statements)).Debug("Batch committed")
	return nil
}

func (s *Session) rollback(tx *sql.Tx, reason error) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.log.Warnf("Failed to rollback batch after error (%v): %v", reason, err)
	}
}

// Close releases the cursor, the connection, the owned pool and the
// resolver, in that order. Every step is attempted; the first failure is
// returned. Closing a nil or already closed session is a no-op.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	var first error
	record := func(step string, err error) {
		if err == nil {
			return
		}
		if first == nil {
			first = NewConnectionError(fmt.Sprintf("Failed to close %s", step), err)
			return
		}
		s.log.Warnf("Failed to close %s: %v", step, err)
	}

	record("cursor", s.CloseCursor())

	if s.conn != nil {
		err := s.conn.Close()
		if errors.Is(err, sql.ErrConnDone) {
			err = nil
		}
		record("connection", err)
		s.conn = nil
	}

	if s.db != nil {
		record("connection pool", s.db.Close())
		s.db = nil
	}

	if s.resolver != nil {
		record("naming context", s.resolver.Close())
		s.resolver = nil
	}

	s.log.Debug("Session closed")
	return first
}

func logger(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.New()
	}
	return log
}
