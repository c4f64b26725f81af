package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// GetOrCreateAuthor upserts the bibliographic-API identity for a professor,
// keyed by (professor_id, external_id).
func (db *DB) GetOrCreateAuthor(ctx context.Context, a Author) (Author, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO authors (professor_id, external_id, name)
		VALUES ($1, $2, $3)
		RETURNING id, professor_id, external_id, name, created_at
	`, a.ProfessorID, a.ExternalID, a.Name)

	created, err := scanAuthor(row)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return Author{}, fmt.Errorf("insert author: %w", err)
	}

	row = db.Pool.QueryRow(ctx, `
		SELECT id, professor_id, external_id, name, created_at
		FROM authors
		WHERE professor_id = $1 AND external_id = $2
	`, a.ProfessorID, a.ExternalID)

	existing, err := scanAuthor(row)
	if err != nil {
		return Author{}, fmt.Errorf("re-read author after conflict: %w", err)
	}

	return existing, nil
}

func scanAuthor(row pgx.Row) (Author, error) {
	var a Author

	err := row.Scan(&a.ID, &a.ProfessorID, &a.ExternalID, &a.Name, &a.CreatedAt)
	if err != nil {
		return Author{}, err
	}

	return a, nil
}
