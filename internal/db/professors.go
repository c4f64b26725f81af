package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lueurxax/faculty-harvest/internal/apperrors"
)

const uniqueViolationCode = "23505"

// GetOrCreateProfessor inserts a new professor row, or returns the existing
// one keyed by profile_url if it already exists.
//
// Postgres' unique constraint is the source of truth for idempotency: we
// attempt the insert optimistically and fall back to a read only on a
// constraint violation, rather than checking existence first and racing
// another worker's insert in between.
func (db *DB) GetOrCreateProfessor(ctx context.Context, p Professor) (Professor, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO professors (university, name, title, email, profile_url, department_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, university, name, title, email, profile_url, department_url, created_at
	`, p.University, p.Name, p.Title, p.Email, p.ProfileURL, p.DepartmentURL)

	created, err := scanProfessor(row)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return Professor{}, fmt.Errorf("insert professor: %w", err)
	}

	existing, err := db.findProfessorByProfileURL(ctx, p.ProfileURL)
	if err != nil {
		return Professor{}, fmt.Errorf("re-read professor after conflict: %w", err)
	}

	return existing, nil
}

func (db *DB) findProfessorByProfileURL(ctx context.Context, profileURL string) (Professor, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, university, name, title, email, profile_url, department_url, created_at
		FROM professors
		WHERE profile_url = $1
	`, profileURL)

	return scanProfessor(row)
}

// GetProfessor loads a professor by ID, returning apperrors.ErrNotFound if
// it no longer exists (e.g. deleted between the roster scan and its
// per-professor task running).
func (db *DB) GetProfessor(ctx context.Context, id string) (Professor, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, university, name, title, email, profile_url, department_url, created_at
		FROM professors
		WHERE id = $1
	`, id)

	p, err := scanProfessor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Professor{}, fmt.Errorf("get professor %s: %w", id, apperrors.ErrNotFound)
		}

		return Professor{}, fmt.Errorf("get professor %s: %w", id, err)
	}

	return p, nil
}

// UpdateProfessorEmail sets a professor's email when it was discovered after
// the initial upsert (deep email scrape fallback).
func (db *DB) UpdateProfessorEmail(ctx context.Context, professorID, email string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE professors SET email = $2 WHERE id = $1`, professorID, email)
	if err != nil {
		return fmt.Errorf("update professor email: %w", err)
	}

	return nil
}

func scanProfessor(row pgx.Row) (Professor, error) {
	var p Professor

	err := row.Scan(&p.ID, &p.University, &p.Name, &p.Title, &p.Email, &p.ProfileURL, &p.DepartmentURL, &p.CreatedAt)
	if err != nil {
		return Professor{}, err
	}

	return p, nil
}
