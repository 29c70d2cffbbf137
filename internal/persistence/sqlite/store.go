// Package sqlite is the default filing store, a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ellenzeng3/lda-filing-bot/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const columns = `filing_uuid, filing_period, filing_year, registrant_name, client_name, income, expenses,
    lobbying_descriptions, lobbyist_names, filing_document_url, posted_at, relevant`

// Store implements domain.Store on SQLite. Writes go through one connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
// The parent directory must already exist; a missing volume is reported as domain.ErrStorageUnavailable.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: database directory %s not present", domain.ErrStorageUnavailable, dir)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", domain.ErrStorageUnavailable, err)
	}
	return &Store{db: db, path: path}, nil
}

// Upsert implements domain.Store. The statement is atomic and keeps the row's original rowid.
func (s *Store) Upsert(ctx context.Context, f domain.Filing) error {
	const stmt = `INSERT INTO filings (` + columns + `)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(filing_uuid) DO UPDATE SET
            filing_period=excluded.filing_period,
            filing_year=excluded.filing_year,
            registrant_name=excluded.registrant_name,
            client_name=excluded.client_name,
            income=excluded.income,
            expenses=excluded.expenses,
            lobbying_descriptions=excluded.lobbying_descriptions,
            lobbyist_names=excluded.lobbyist_names,
            filing_document_url=excluded.filing_document_url,
            posted_at=excluded.posted_at,
            relevant=excluded.relevant`

	_, err := s.db.ExecContext(ctx, stmt,
		f.ID,
		string(f.Period),
		f.Year,
		f.RegistrantName,
		f.ClientName,
		f.Income,
		f.Expenses,
		f.Descriptions,
		f.LobbyistNames,
		nullIfEmpty(f.DocumentURL),
		formatTime(f.PostedAt),
		f.Relevant,
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrStorageWrite, f.ID, err)
	}
	return nil
}

// ListKnownIDs implements domain.Store.
func (s *Store) ListKnownIDs(ctx context.Context) (domain.IDSet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT filing_uuid FROM filings`)
	if err != nil {
		if isMissingTable(err) {
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
	return ids, rows.Err()
}

// QueryByPeriod implements domain.Store.
func (s *Store) QueryByPeriod(ctx context.Context, period domain.Period, year int, relevantOnly bool) ([]domain.Filing, error) {
	query := `SELECT ` + columns + ` FROM filings WHERE filing_period = ? AND filing_year = ?`
	if relevantOnly {
		query += ` AND relevant = 1`
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, string(period), year)
	if err != nil {
		if isMissingTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query filings: %w", err)
	}
	defer rows.Close()

	var out []domain.Filing
	for rows.Next() {
		var (
			f        domain.Filing
			periodS  string
			docURL   sql.NullString
			postedAt sql.NullString
		)
		if err := rows.Scan(&f.ID, &periodS, &f.Year, &f.RegistrantName, &f.ClientName, &f.Income, &f.Expenses,
			&f.Descriptions, &f.LobbyistNames, &docURL, &postedAt, &f.Relevant); err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		f.Period = domain.Period(periodS)
		f.DocumentURL = docURL.String
		f.PostedAt = parseTime(postedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close implements domain.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

var _ domain.Store = (*Store)(nil)
