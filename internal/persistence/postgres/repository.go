// Package postgres stores filings in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

//go:embed migrations/0001_filings.up.sql
var schemaSQL string

const undefinedTable = "42P01"

// Repository implements domain.Store on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository over an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect opens a pool, verifies it and applies the schema. Failures wrap domain.ErrStorageUnavailable.
func Connect(ctx context.Context, url string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStorageUnavailable, err)
	}
	r := NewRepository(pool)
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return r, nil
}

// Migrate creates the filings table when absent.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

// Upsert implements domain.Store. seq is assigned once so export order is first-insert order.
func (r *Repository) Upsert(ctx context.Context, f domain.Filing) error {
	const stmt = `INSERT INTO filings (filing_uuid, filing_period, filing_year, registrant_name, client_name, income, expenses,
            lobbying_descriptions, lobbyist_names, filing_document_url, posted_at, relevant)
        VALUES ($1,$2,$3,$4,$5,$6::text::numeric,$7::text::numeric,$8,$9,$10,$11,$12)
        ON CONFLICT (filing_uuid) DO UPDATE SET
            filing_period=EXCLUDED.filing_period,
            filing_year=EXCLUDED.filing_year,
            registrant_name=EXCLUDED.registrant_name,
            client_name=EXCLUDED.client_name,
            income=EXCLUDED.income,
            expenses=EXCLUDED.expenses,
            lobbying_descriptions=EXCLUDED.lobbying_descriptions,
            lobbyist_names=EXCLUDED.lobbyist_names,
            filing_document_url=EXCLUDED.filing_document_url,
            posted_at=EXCLUDED.posted_at,
            relevant=EXCLUDED.relevant,
            updated_at=now()`

	_, err := r.pool.Exec(ctx, stmt,
		f.ID,
		string(f.Period),
		f.Year,
		f.RegistrantName,
		f.ClientName,
		decimalText(f.Income),
		decimalText(f.Expenses),
		f.Descriptions,
		f.LobbyistNames,
		nullIfEmpty(f.DocumentURL),
		f.PostedAt,
		f.Relevant,
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrStorageWrite, f.ID, err)
	}
	return nil
}

// ListKnownIDs implements domain.Store.
func (r *Repository) ListKnownIDs(ctx context.Context) (domain.IDSet, error) {
	rows, err := r.pool.Query(ctx, `SELECT filing_uuid FROM filings`)
	if err != nil {
		if isUndefinedTable(err) {
			return domain.IDSet{}, nil
		}
		return nil, fmt.Errorf("list filing ids: %w", err)
	}
	defer rows.Close()

	ids := domain.IDSet{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids.Add(id)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return domain.IDSet{}, nil
		}
		return nil, err
	}
	return ids, nil
}

// QueryByPeriod implements domain.Store.
func (r *Repository) QueryByPeriod(ctx context.Context, period domain.Period, year int, relevantOnly bool) ([]domain.Filing, error) {
	const query = `SELECT filing_uuid, filing_period, filing_year, registrant_name, client_name, income::text, expenses::text,
            lobbying_descriptions, lobbyist_names, filing_document_url, posted_at, relevant
        FROM filings
        WHERE filing_period=$1 AND filing_year=$2 AND ($3 = false OR relevant)
        ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, string(period), year, relevantOnly)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query filings: %w", err)
	}
	defer rows.Close()

	var out []domain.Filing
	for rows.Next() {
		var (
			f                domain.Filing
			periodS          string
			income, expenses *string
			docURL           *string
			postedAt         *time.Time
		)
		if err := rows.Scan(&f.ID, &periodS, &f.Year, &f.RegistrantName, &f.ClientName, &income, &expenses,
			&f.Descriptions, &f.LobbyistNames, &docURL, &postedAt, &f.Relevant); err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		f.Period = domain.Period(periodS)
		f.Income = parseDecimal(income)
		f.Expenses = parseDecimal(expenses)
		if docURL != nil {
			f.DocumentURL = *docURL
		}
		if postedAt != nil {
			t := postedAt.UTC()
			f.PostedAt = &t
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close implements domain.Store.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

func decimalText(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

var _ domain.Store = (*Repository)(nil)

// runLockKey is the pg_advisory_lock key shared by every ldabot process.
const runLockKey int64 = 0x6c6461626f74 // "ldabot"

// LockRuns implements domain.RunLocker with a session advisory lock held on a
// dedicated pool connection until unlock is called.
func (r *Repository) LockRuns(ctx context.Context) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire: %v", domain.ErrRunLocked, err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, runLockKey); err != nil {
		conn.Release()
		return nil, fmt.Errorf("%w: %v", domain.ErrRunLocked, err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, runLockKey); err != nil {
			// The lock dies with the session; drop the connection rather than pool it.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}
