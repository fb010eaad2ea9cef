// Package sqlstore keeps document term vectors in a SQL database. The same
// schema serves PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/termexpand/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/termexpand/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termexpand/pkg/postgres"
)

type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS doc_lengths (
		doc_id INTEGER PRIMARY KEY,
		tokens INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS doc_term_frequencies (
		doc_id     INTEGER NOT NULL,
		term_index INTEGER NOT NULL,
		frequency  INTEGER NOT NULL,
		PRIMARY KEY (doc_id, term_index)
	)`,
	`CREATE TABLE IF NOT EXISTS store_meta (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

const fingerprintKey = "segment_fingerprint"

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating term-vector schema: %w", err)
		}
	}
	return nil
}

// Put replaces the stored vector of doc.
func (s *Store) Put(ctx context.Context, doc int, vec index.DocVector) error {
	return postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM doc_term_frequencies WHERE doc_id = ?`), doc); err != nil {
			return fmt.Errorf("clearing vector of document %d: %w", doc, err)
		}
		stmt, err := tx.PrepareContext(ctx, s.rebind(
			`INSERT INTO doc_term_frequencies (doc_id, term_index, frequency) VALUES (?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("preparing vector insert: %w", err)
		}
		defer stmt.Close()
		for _, tc := range vec.Terms {
			if _, err := stmt.ExecContext(ctx, doc, tc.Term, tc.Count); err != nil {
				return fmt.Errorf("inserting term %d of document %d: %w", tc.Term, doc, err)
			}
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO doc_lengths (doc_id, tokens) VALUES (?, ?)
			 ON CONFLICT (doc_id) DO UPDATE SET tokens = excluded.tokens`),
			doc, vec.Length)
		if err != nil {
			return fmt.Errorf("upserting length of document %d: %w", doc, err)
		}
		return nil
	})
}

func (s *Store) Vector(ctx context.Context, doc int) (index.DocVector, error) {
	var vec index.DocVector
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT tokens FROM doc_lengths WHERE doc_id = ?`), doc).Scan(&vec.Length)
	if errors.Is(err, sql.ErrNoRows) {
		return index.DocVector{}, fmt.Errorf("document %d: %w", doc, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return index.DocVector{}, fmt.Errorf("reading length of document %d: %w", doc, err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT term_index, frequency FROM doc_term_frequencies WHERE doc_id = ? ORDER BY term_index`), doc)
	if err != nil {
		return index.DocVector{}, fmt.Errorf("reading vector of document %d: %w", doc, err)
	}
	defer rows.Close()
	for rows.Next() {
		var tc index.TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return index.DocVector{}, fmt.Errorf("scanning vector of document %d: %w", doc, err)
		}
		vec.Terms = append(vec.Terms, tc)
	}
	if err := rows.Err(); err != nil {
		return index.DocVector{}, fmt.Errorf("iterating vector of document %d: %w", doc, err)
	}
	return vec, nil
}

func (s *Store) ReadTermFrequencies(ctx context.Context, doc int, freqs []int, docCounter []int) (int, error) {
	vec, err := s.Vector(ctx, doc)
	if err != nil {
		return 0, err
	}
	space := len(freqs)
	if docCounter != nil {
		space = min(space, len(docCounter))
	}
	if err := vec.CheckTerms(space); err != nil {
		return 0, fmt.Errorf("document %d: %w", doc, err)
	}
	return vec.Accumulate(freqs, docCounter), nil
}

// Fingerprint returns the fingerprint of the segment the vectors were
// exported from, or "" when none was recorded.
func (s *Store) Fingerprint(ctx context.Context) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM store_meta WHERE name = ?`), fingerprintKey).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading store fingerprint: %w", err)
	}
	return fp, nil
}

func (s *Store) SetFingerprint(ctx context.Context, fp string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO store_meta (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`), fingerprintKey, fp)
	if err != nil {
		return fmt.Errorf("writing store fingerprint: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_lengths`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
