// Package orchestrator drives the two-level ingestion fan-out: a roster job
// harvests a faculty directory and spawns one paper-fetch task per
// professor, and each paper-fetch task spawns one embedding task per
// selected paper. It owns progress accounting, idempotent upserts, and the
// job terminal-state transitions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/faculty-harvest/internal/apperrors"
	"github.com/lueurxax/faculty-harvest/internal/biblio"
	"github.com/lueurxax/faculty-harvest/internal/db"
	"github.com/lueurxax/faculty-harvest/internal/embeddings"
	"github.com/lueurxax/faculty-harvest/internal/harvester"
	"github.com/lueurxax/faculty-harvest/internal/observability"
	"github.com/lueurxax/faculty-harvest/internal/retry"
	"github.com/lueurxax/faculty-harvest/internal/worker"
)

const (
	defaultWorkerCount = 5
	enqueueDelay       = 100 * time.Millisecond

	topCitedLimit     = 30
	recentYearsWindow = 5

	// biblioRetryAttempts backs the bibliographic client's own 2-attempt
	// budget with a higher-level retry around the whole call, so a
	// transient failure that outlasts that budget still gets backed off
	// before a professor is given up on.
	biblioRetryAttempts = 5
)

// Store is the subset of *db.DB the orchestrator depends on, narrowed to an
// interface so it can be exercised against a fake in tests without a
// database.
type Store interface {
	CreateJob(ctx context.Context, university, directoryURL string) (db.IngestionJob, error)
	SetTotalFaculty(ctx context.Context, jobID string, total int) error
	IncrementProgress(ctx context.Context, jobID string) (bool, error)
	FailJob(ctx context.Context, jobID string, cause error) error
	GetOrCreateProfessor(ctx context.Context, p db.Professor) (db.Professor, error)
	GetProfessor(ctx context.Context, id string) (db.Professor, error)
	UpdateProfessorEmail(ctx context.Context, professorID, email string) error
	GetOrCreateAuthor(ctx context.Context, a db.Author) (db.Author, error)
	GetOrCreatePaper(ctx context.Context, p db.Paper) (db.Paper, error)
	GetPaper(ctx context.Context, id string) (db.Paper, error)
	LinkAuthorship(ctx context.Context, paperID, authorID string) error
	HasEmbedding(ctx context.Context, paperID string) (bool, error)
	SaveEmbedding(ctx context.Context, e db.PaperEmbedding) error
}

// Embedder is the subset of embeddings.Client the orchestrator depends on.
// It asks for the metadata-carrying call so the stored embedding row can
// record which provider actually served it (OpenAI may have been down and
// Cohere may have served the fallback).
type Embedder interface {
	GetEmbeddingWithMetadata(ctx context.Context, text string) (embeddings.EmbeddingResult, error)
}

// Harvester is the subset of *harvester.Harvester the orchestrator depends
// on, narrowed so tests can supply a fake directory harvest.
type Harvester interface {
	Harvest(ctx context.Context, directoryURL string) (harvester.Result, error)
	FetchProfileEmail(ctx context.Context, profileURL string) (string, error)
}

// BiblioClient is the subset of *biblio.Client the orchestrator depends on.
type BiblioClient interface {
	PapersFor(ctx context.Context, name, affiliation string) (biblio.AuthorMatch, error)
}

// Config configures an Orchestrator.
type Config struct {
	// WorkerCount bounds how many per-professor tasks and how many
	// per-paper embedding tasks may run concurrently, each pool sized
	// independently so a saturated professor pool can never deadlock
	// waiting for an embedding slot held by one of its own tasks.
	WorkerCount int

	// DeepEmailScrape enables an extra profile-page fetch to recover an
	// email address when the harvester's card extraction found none.
	DeepEmailScrape bool

	// RetryMaxAttempts/RetryInitialWait configure the backoff applied
	// around the directory harvest itself; the bibliographic lookup uses
	// its own separate retry configuration.
	RetryMaxAttempts int
	RetryInitialWait time.Duration
}

// Orchestrator wires the harvester, bibliographic client, and embedding
// provider together behind the job lifecycle and progress accounting.
type Orchestrator struct {
	db        Store
	harvester Harvester
	biblio    BiblioClient
	embedder  Embedder
	logger    *zerolog.Logger

	deepEmailScrape bool
	retryConfig     retry.Config
	biblioRetry     retry.Config

	professorPool *errgroup.Group
	embedPool     *errgroup.Group
}

// New builds an Orchestrator over already-constructed collaborators.
func New(database Store, h Harvester, b BiblioClient, embedder Embedder, cfg Config, logger *zerolog.Logger) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}

	professorPool := &errgroup.Group{}
	professorPool.SetLimit(cfg.WorkerCount)

	embedPool := &errgroup.Group{}
	embedPool.SetLimit(cfg.WorkerCount)

	return &Orchestrator{
		db:              database,
		harvester:       h,
		biblio:          b,
		embedder:        embedder,
		logger:          logger,
		deepEmailScrape: cfg.DeepEmailScrape,
		retryConfig: retry.Config{
			MaxRetries:   cfg.RetryMaxAttempts,
			InitialDelay: cfg.RetryInitialWait,
		},
		biblioRetry: retry.Config{
			MaxRetries:   biblioRetryAttempts,
			InitialDelay: retry.DefaultConfig().InitialDelay,
			IsRetryable: func(err error) bool {
				return errors.Is(err, apperrors.ErrTransientNetwork)
			},
		},
		professorPool: professorPool,
		embedPool:     embedPool,
	}
}

// Wait blocks until every dispatched professor task and every embedding
// task it spawned have finished. IngestRoster itself never calls this —
// per §5, dispatch completing is what "done" means for the job — but
// tests and graceful shutdown need a way to know the background work has
// actually drained.
func (o *Orchestrator) Wait() {
	_ = o.professorPool.Wait()
	_ = o.embedPool.Wait()
}

// EnqueueIngest inserts a new queued job. A poller (see cmd/ingestor) claims
// it later and calls IngestRoster; this split keeps the job's row the
// single source of truth for what's in flight, surviving a process
// restart mid-job.
func (o *Orchestrator) EnqueueIngest(ctx context.Context, university, directoryURL string) (string, error) {
	job, err := o.db.CreateJob(ctx, university, directoryURL)
	if err != nil {
		return "", fmt.Errorf("enqueue ingest: %w", err)
	}

	return job.ID, nil
}

// IngestRoster implements the top-level roster task: harvest the directory,
// upsert every professor found, and dispatch a bounded per-professor
// paper-fetch task for each. It blocks until every professor has been
// dispatched (not until every paper-fetch task has finished); per
// component design, the job reaches "completed" once all dispatched work
// has run, which may lag dispatch by the size of the worker pool.
func (o *Orchestrator) IngestRoster(ctx context.Context, university, directoryURL, jobID string) error {
	observability.JobsStarted.Inc()

	var result harvester.Result

	err := retry.Do(ctx, o.retryConfig, func(ctx context.Context) error {
		r, harvestErr := o.harvester.Harvest(ctx, directoryURL)
		result = r

		return harvestErr
	})
	if err != nil {
		o.failJob(ctx, jobID, fmt.Errorf("harvest directory: %w", err))
		return fmt.Errorf("harvest %s: %w", directoryURL, err)
	}

	for _, yield := range result.Yields {
		observability.HarvesterStrategyYield.WithLabelValues(string(yield.Strategy)).Add(float64(yield.Count))
	}

	if len(result.Profiles) == 0 {
		cause := fmt.Errorf("roster at %s yielded zero faculty", directoryURL)
		o.failJob(ctx, jobID, cause)

		return cause
	}

	if err := o.db.SetTotalFaculty(ctx, jobID, len(result.Profiles)); err != nil {
		o.failJob(ctx, jobID, err)
		return fmt.Errorf("set total faculty: %w", err)
	}

	for _, profile := range result.Profiles {
		o.dispatchProfessor(ctx, university, jobID, profile)

		if err := worker.Wait(ctx, enqueueDelay); err != nil {
			return fmt.Errorf("ingest roster %s: %w", jobID, err)
		}
	}

	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, jobID string, cause error) {
	if err := o.db.FailJob(ctx, jobID, cause); err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to mark job failed")
	}

	observability.JobsCompleted.WithLabelValues(db.JobStatusFailed).Inc()
}

// dispatchProfessor upserts one harvested profile and, on success, enqueues
// its paper-fetch task. Per §4.5.2, a professor-upsert failure still
// increments progress directly rather than silently dropping the count.
func (o *Orchestrator) dispatchProfessor(ctx context.Context, university, jobID string, profile harvester.Profile) {
	prof, err := o.db.GetOrCreateProfessor(ctx, db.Professor{
		University: university,
		Name:       profile.Name,
		Email:      profile.Email,
		ProfileURL: profile.URL,
	})
	if err != nil {
		o.logger.Error().Err(err).Str("profile_url", profile.URL).Msg("upsert professor failed")
		o.finishProfessor(ctx, jobID)

		return
	}

	if profile.Email != "" && prof.Email == "" {
		if err := o.db.UpdateProfessorEmail(ctx, prof.ID, profile.Email); err != nil {
			o.logger.Warn().Err(err).Str("professor_id", prof.ID).Msg("backfill email failed")
		}
	} else if prof.Email == "" && o.deepEmailScrape {
		o.tryDeepEmailScrape(ctx, prof)
	}

	professorID := prof.ID

	o.professorPool.Go(func() error {
		o.fetchPapers(ctx, professorID, jobID)
		return nil
	})
}

func (o *Orchestrator) tryDeepEmailScrape(ctx context.Context, prof db.Professor) {
	email, err := o.harvester.FetchProfileEmail(ctx, prof.ProfileURL)
	if err != nil || email == "" {
		return
	}

	if err := o.db.UpdateProfessorEmail(ctx, prof.ID, email); err != nil {
		o.logger.Warn().Err(err).Str("professor_id", prof.ID).Msg("deep email scrape backfill failed")
	}
}

// finishProfessor increments job progress exactly once per professor,
// whichever path got them there, and flips the completed-job metric when
// the increment brings the job to its terminal state.
func (o *Orchestrator) finishProfessor(ctx context.Context, jobID string) {
	done, err := o.db.IncrementProgress(ctx, jobID)
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("increment progress failed")
		return
	}

	if done {
		observability.JobsCompleted.WithLabelValues(db.JobStatusCompleted).Inc()
	}
}

// fetchPapers implements the per-professor task: query the bibliographic
// client, upsert the author identity, select papers, and upsert each one
// along with its authorship link before enqueueing its embedding task.
func (o *Orchestrator) fetchPapers(ctx context.Context, professorID, jobID string) {
	defer o.finishProfessor(ctx, jobID)

	prof, err := o.db.GetProfessor(ctx, professorID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			observability.ProfessorsProcessed.WithLabelValues("missing").Inc()
			return
		}

		o.logger.Error().Err(err).Str("professor_id", professorID).Msg("load professor failed")
		observability.ProfessorsProcessed.WithLabelValues("db_error").Inc()

		return
	}

	var match biblio.AuthorMatch

	err = retry.Do(ctx, o.biblioRetry, func(ctx context.Context) error {
		m, lookupErr := o.biblio.PapersFor(ctx, prof.Name, prof.University)
		match = m

		return lookupErr
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNoResults) {
			observability.ProfessorsProcessed.WithLabelValues("no_papers").Inc()
		} else {
			o.logger.Warn().Err(err).Str("professor_id", professorID).Msg("bibliographic lookup failed")
			observability.ProfessorsProcessed.WithLabelValues("biblio_error").Inc()
		}

		return
	}

	papers := match.Papers

	author, err := o.db.GetOrCreateAuthor(ctx, db.Author{ProfessorID: professorID, ExternalID: match.ExternalID, Name: prof.Name})
	if err != nil {
		o.logger.Error().Err(err).Str("professor_id", professorID).Msg("author upsert failed")
		observability.ProfessorsProcessed.WithLabelValues("author_error").Inc()

		return
	}

	for _, p := range selectPapers(papers) {
		o.persistAndEmbed(ctx, p, author.ID)
	}

	observability.ProfessorsProcessed.WithLabelValues("success").Inc()
}

func (o *Orchestrator) persistAndEmbed(ctx context.Context, p biblio.Paper, authorID string) {
	paperRow, err := o.db.GetOrCreatePaper(ctx, db.Paper{
		ExternalID:    p.ExternalID,
		Title:         p.Title,
		Abstract:      p.Abstract,
		Year:          p.Year,
		CitationCount: p.CitationCount,
		URL:           p.URL,
	})
	if err != nil {
		o.logger.Error().Err(err).Str("external_id", p.ExternalID).Msg("paper upsert failed")
		return
	}

	if err := o.db.LinkAuthorship(ctx, paperRow.ID, authorID); err != nil {
		o.logger.Error().Err(err).Str("paper_id", paperRow.ID).Msg("authorship link failed")
		return
	}

	paperID := paperRow.ID

	o.embedPool.Go(func() error {
		o.embedPaper(ctx, paperID)
		return nil
	})
}

// selectPapers implements §4.5.4's selection rule: the top-cited papers
// union every paper from the last few years, deduplicated by external ID
// (falling back to title+year for papers the bibliographic API didn't
// assign an ID).
func selectPapers(papers []biblio.Paper) []biblio.Paper {
	byCitations := make([]biblio.Paper, len(papers))
	copy(byCitations, papers)
	sort.Slice(byCitations, func(i, j int) bool {
		return byCitations[i].CitationCount > byCitations[j].CitationCount
	})

	cutoffYear := time.Now().Year() - recentYearsWindow

	seen := make(map[string]bool, len(papers))
	selected := make([]biblio.Paper, 0, len(papers))

	add := func(p biblio.Paper) {
		key := paperKey(p)
		if seen[key] {
			return
		}

		seen[key] = true
		selected = append(selected, p)
	}

	for i, p := range byCitations {
		if i >= topCitedLimit {
			break
		}

		add(p)
	}

	for _, p := range papers {
		if p.Year >= cutoffYear {
			add(p)
		}
	}

	return selected
}

func paperKey(p biblio.Paper) string {
	if p.ExternalID != "" {
		return p.ExternalID
	}

	return fmt.Sprintf("%s|%d", strings.ToLower(p.Title), p.Year)
}

// embedPaper implements the per-paper task: skip papers with no text to
// embed, skip papers that already carry an embedding, and otherwise
// compute and persist one.
func (o *Orchestrator) embedPaper(ctx context.Context, paperID string) {
	paper, err := o.db.GetPaper(ctx, paperID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			o.logger.Error().Err(err).Str("paper_id", paperID).Msg("load paper failed")
		}

		return
	}

	if paper.Title == "" && paper.Abstract == "" {
		return
	}

	has, err := o.db.HasEmbedding(ctx, paperID)
	if err != nil {
		o.logger.Error().Err(err).Str("paper_id", paperID).Msg("check embedding existence failed")
		return
	}

	if has {
		return
	}

	text := strings.TrimSpace(fmt.Sprintf("%s. %s", paper.Title, paper.Abstract))

	result, err := o.embedder.GetEmbeddingWithMetadata(ctx, text)
	if err != nil {
		o.logger.Warn().Err(err).Str("paper_id", paperID).Msg("embedding generation failed")
		return
	}

	err = o.db.SaveEmbedding(ctx, db.PaperEmbedding{
		PaperID:    paperID,
		Vector:     result.Vector,
		Provider:   string(result.Provider),
		Dimensions: result.Dimensions,
	})
	if err != nil {
		o.logger.Error().Err(err).Str("paper_id", paperID).Msg("save embedding failed")
	}
}
