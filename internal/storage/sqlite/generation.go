package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	airlock "github.com/reodash/airlock/internal"
)

// EnsureGeneration creates the generation record if it does not exist.
// Entries and the complete flag of an existing generation are untouched.
func (s *Store) EnsureGeneration(ctx context.Context, name, version string) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO generations (name, version, complete, created_at)
		 VALUES (?, ?, 0, ?)
		 ON CONFLICT(name) DO NOTHING`,
		name, version, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// CompleteGeneration marks a generation as fully populated.
func (s *Store) CompleteGeneration(ctx context.Context, name string) error {
	result, err := s.write.ExecContext(ctx,
		`UPDATE generations SET complete=1 WHERE name=?`, name,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(result, "generation", airlock.ErrGenerationMissing)
}

// GetGeneration retrieves a generation's metadata record.
func (s *Store) GetGeneration(ctx context.Context, name string) (*airlock.Generation, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT name, version, complete, created_at FROM generations WHERE name=?`, name,
	)
	return scanGeneration(row)
}

// ListGenerations returns all generations, oldest first.
func (s *Store) ListGenerations(ctx context.Context) ([]*airlock.Generation, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT name, version, complete, created_at FROM generations ORDER BY created_at, name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []*airlock.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// DeleteGenerationsExcept removes every generation other than keep.
// Entries go with their generation via ON DELETE CASCADE.
func (s *Store) DeleteGenerationsExcept(ctx context.Context, keep string) (int, error) {
	result, err := s.write.ExecContext(ctx,
		`DELETE FROM generations WHERE name != ?`, keep,
	)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// GetEntry retrieves the stored response under key.
func (s *Store) GetEntry(ctx context.Context, generation, key string) (*airlock.StoredResponse, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM entries WHERE generation=? AND key=?`,
		generation, key,
	)
	return scanEntry(row)
}

// PutEntry stores or replaces the response under key.
func (s *Store) PutEntry(ctx context.Context, generation, key string, resp *airlock.StoredResponse) error {
	header, err := encodeHeader(resp.Header)
	if err != nil {
		return err
	}
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO entries (generation, key, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(generation, key) DO UPDATE SET
		 status = excluded.status,
		 header = excluded.header,
		 body = excluded.body,
		 stored_at = excluded.stored_at`,
		generation, key, resp.Status, header, resp.Body,
		resp.StoredAt.UTC().Format(time.RFC3339),
	)
	return err
}

// PutEntries stores a batch of responses in a single transaction with a
// prepared statement, so a partially failed batch leaves nothing behind.
func (s *Store) PutEntries(ctx context.Context, generation string, entries map[string]*airlock.StoredResponse) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (generation, key, status, header, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(generation, key) DO UPDATE SET
		 status = excluded.status,
		 header = excluded.header,
		 body = excluded.body,
		 stored_at = excluded.stored_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for key, resp := range entries {
		header, err := encodeHeader(resp.Header)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			generation, key, resp.Status, header, resp.Body,
			resp.StoredAt.UTC().Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountEntries returns the number of responses stored in the generation.
func (s *Store) CountEntries(ctx context.Context, generation string) (int, error) {
	var n int
	err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE generation=?`, generation,
	).Scan(&n)
	return n, err
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(s scanner) (*airlock.Generation, error) {
	var g airlock.Generation
	var complete int
	var createdAt string
	if err := s.Scan(&g.Name, &g.Version, &complete, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, airlock.ErrGenerationMissing
		}
		return nil, err
	}
	g.Complete = complete != 0
	if t, e := time.Parse(time.RFC3339, createdAt); e == nil {
		g.CreatedAt = t
	}
	return &g, nil
}

func scanEntry(s scanner) (*airlock.StoredResponse, error) {
	var r airlock.StoredResponse
	var header string
	var storedAt string
	if err := s.Scan(&r.Status, &header, &r.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, airlock.ErrNotFound
		}
		return nil, err
	}
	if header != "" && header != "{}" {
		if err := json.Unmarshal([]byte(header), &r.Header); err != nil {
			return nil, fmt.Errorf("decode header: %w", err)
		}
	}
	if t, e := time.Parse(time.RFC3339, storedAt); e == nil {
		r.StoredAt = t
	}
	return &r, nil
}

func encodeHeader(h http.Header) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	return string(b), nil
}

func checkRowsAffected(result sql.Result, entity string, absent error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, absent)
	}
	return nil
}
