package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PgxPool is the subset of *pgxpool.Pool used by the ledger.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	createUploadLimitsSQL = `CREATE TABLE IF NOT EXISTS upload_limits (
	ip_address   TEXT    NOT NULL,
	upload_date  DATE    NOT NULL,
	upload_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (ip_address, upload_date)
)`

	selectUploadCountSQL = `SELECT upload_count FROM upload_limits WHERE ip_address = $1 AND upload_date = $2::date`

	incrementUploadCountSQL = `INSERT INTO upload_limits (ip_address, upload_date, upload_count)
VALUES ($1, $2::date, 1)
ON CONFLICT (ip_address, upload_date)
DO UPDATE SET upload_count = upload_limits.upload_count + 1
RETURNING upload_count`
)

type PostgresQuotaRepository struct {
	pool PgxPool
	log  *zap.Logger
}

func NewPostgresQuotaRepository(pool PgxPool, log *zap.Logger) *PostgresQuotaRepository {
	return &PostgresQuotaRepository{pool: pool, log: log}
}

// ConnectPostgres opens a pgx pool and verifies connectivity.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (r *PostgresQuotaRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createUploadLimitsSQL); err != nil {
		return fmt.Errorf("create upload_limits: %w", err)
	}
	return nil
}

func (r *PostgresQuotaRepository) Count(ctx context.Context, identity, day string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, selectUploadCountSQL, identity, day).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select upload count: %w", err)
	}
	return count, nil
}

// Increment adds one upload in a single statement, so concurrent uploads by
// the same identity never lose an update.
func (r *PostgresQuotaRepository) Increment(ctx context.Context, identity, day string) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, incrementUploadCountSQL, identity, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("increment upload count: %w", err)
	}

	r.log.Debug("Upload count incremented",
		zap.String("identity", identity),
		zap.String("day", day),
		zap.Int("count", count))

	return count, nil
}

func (r *PostgresQuotaRepository) Close() {
	r.pool.Close()
}
