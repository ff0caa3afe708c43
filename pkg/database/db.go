package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"

	"github.com/crewline/atlas/pkg/metrics"
)

// DB is the subset of sqlx.DB behavior the repositories depend on, plus
// context-scoped transaction support via GetTx.
type DB interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	Close() error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	PingContext(ctx context.Context) error
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	Rebind(query string) string
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	SetConnMaxLifetime(d time.Duration)
	SetMaxIdleConns(n int)
	SetMaxOpenConns(n int)
	Stats() sql.DBStats
	Unsafe() *sqlx.DB
	GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error)
}

type DatabaseInstance struct {
	*sqlx.DB
	logger ectologger.Logger
}

func NewDatabaseInstance(db *sqlx.DB, logger ectologger.Logger) DB {
	return &DatabaseInstance{
		DB:     db,
		logger: logger,
	}
}

func (db *DatabaseInstance) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, Tx, error) {
	return GetTx(ctx, db.logger, db, opts)
}

func (db *DatabaseInstance) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := db.DB.ExecContext(ctx, query, args...)
	metrics.RecordDatabaseQuery(queryOperation(query), time.Since(start).Seconds())
	return res, err
}

func (db *DatabaseInstance) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	start := time.Now()
	err := db.DB.GetContext(ctx, dest, query, args...)
	metrics.RecordDatabaseQuery(queryOperation(query), time.Since(start).Seconds())
	return err
}

func (db *DatabaseInstance) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	start := time.Now()
	err := db.DB.SelectContext(ctx, dest, query, args...)
	metrics.RecordDatabaseQuery(queryOperation(query), time.Since(start).Seconds())
	return err
}

// queryOperation extracts the leading SQL verb for the duration metric label
func queryOperation(query string) string {
	q := strings.TrimSpace(query)
	if i := strings.IndexByte(q, ' '); i > 0 {
		q = q[:i]
	}
	return strings.ToUpper(q)
}
