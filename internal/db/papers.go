package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/lueurxax/faculty-harvest/internal/apperrors"
)

// GetOrCreatePaper upserts a paper keyed by its bibliographic-API external
// ID when the API assigned one, falling back to (title, year) for papers it
// didn't. A paper with no external ID must never collide with another
// paper that also lacks one, so the external-ID conflict path is only
// attempted when an external ID is actually present.
func (db *DB) GetOrCreatePaper(ctx context.Context, p Paper) (Paper, error) {
	if p.ExternalID != "" {
		return db.getOrCreatePaperByExternalID(ctx, p)
	}

	return db.getOrCreatePaperByTitleYear(ctx, p)
}

func (db *DB) getOrCreatePaperByExternalID(ctx context.Context, p Paper) (Paper, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO papers (external_id, title, abstract, year, citation_count, url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, external_id, title, abstract, year, citation_count, url, created_at
	`, p.ExternalID, p.Title, p.Abstract, p.Year, p.CitationCount, p.URL)

	created, err := scanPaper(row)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return Paper{}, fmt.Errorf("insert paper: %w", err)
	}

	row = db.Pool.QueryRow(ctx, `
		SELECT id, external_id, title, abstract, year, citation_count, url, created_at
		FROM papers
		WHERE external_id = $1
	`, p.ExternalID)

	existing, err := scanPaper(row)
	if err != nil {
		return Paper{}, fmt.Errorf("re-read paper after conflict: %w", err)
	}

	return existing, nil
}

func (db *DB) getOrCreatePaperByTitleYear(ctx context.Context, p Paper) (Paper, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO papers (external_id, title, abstract, year, citation_count, url)
		VALUES (NULL, $1, $2, $3, $4, $5)
		RETURNING id, external_id, title, abstract, year, citation_count, url, created_at
	`, p.Title, p.Abstract, p.Year, p.CitationCount, p.URL)

	created, err := scanPaper(row)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolationCode {
		return Paper{}, fmt.Errorf("insert paper: %w", err)
	}

	row = db.Pool.QueryRow(ctx, `
		SELECT id, external_id, title, abstract, year, citation_count, url, created_at
		FROM papers
		WHERE title = $1 AND year = $2
	`, p.Title, p.Year)

	existing, err := scanPaper(row)
	if err != nil {
		return Paper{}, fmt.Errorf("re-read paper after conflict: %w", err)
	}

	return existing, nil
}

// GetPaper loads a paper by ID, returning apperrors.ErrNotFound if it no
// longer exists.
func (db *DB) GetPaper(ctx context.Context, id string) (Paper, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, external_id, title, abstract, year, citation_count, url, created_at
		FROM papers
		WHERE id = $1
	`, id)

	p, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Paper{}, fmt.Errorf("get paper %s: %w", id, apperrors.ErrNotFound)
		}

		return Paper{}, fmt.Errorf("get paper %s: %w", id, err)
	}

	return p, nil
}

// LinkAuthorship records that an author wrote a paper, ignoring the call if
// the mapping already exists.
func (db *DB) LinkAuthorship(ctx context.Context, paperID, authorID string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO paper_authorships (paper_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT (paper_id, author_id) DO NOTHING
	`, paperID, authorID)
	if err != nil {
		return fmt.Errorf("link authorship: %w", err)
	}

	return nil
}

// HasEmbedding reports whether a paper already has a stored embedding, so
// the embedding stage can be skipped idempotently on retry.
func (db *DB) HasEmbedding(ctx context.Context, paperID string) (bool, error) {
	var exists bool

	err := db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM paper_embeddings WHERE paper_id = $1)`, paperID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embedding existence: %w", err)
	}

	return exists, nil
}

// SaveEmbedding stores a paper's vector representation. A paper's
// embedding is never updated in place once written, so a conflict here
// means another worker already embedded the same paper and this call is a
// no-op, not a refresh.
func (db *DB) SaveEmbedding(ctx context.Context, e PaperEmbedding) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO paper_embeddings (paper_id, vector, provider, dimensions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (paper_id) DO NOTHING
	`, e.PaperID, pgvector.NewVector(e.Vector), e.Provider, e.Dimensions)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}

	return nil
}

func scanPaper(row pgx.Row) (Paper, error) {
	var (
		p          Paper
		externalID *string
		year       *int
	)

	err := row.Scan(&p.ID, &externalID, &p.Title, &p.Abstract, &year, &p.CitationCount, &p.URL, &p.CreatedAt)
	if err != nil {
		return Paper{}, err
	}

	if externalID != nil {
		p.ExternalID = *externalID
	}

	if year != nil {
		p.Year = *year
	}

	return p, nil
}
