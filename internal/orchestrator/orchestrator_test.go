package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/faculty-harvest/internal/apperrors"
	"github.com/lueurxax/faculty-harvest/internal/biblio"
	"github.com/lueurxax/faculty-harvest/internal/db"
	"github.com/lueurxax/faculty-harvest/internal/embeddings"
	"github.com/lueurxax/faculty-harvest/internal/harvester"
)

func fmtInt(n int) string {
	return strconv.Itoa(n)
}

// fakeStore is an in-memory Store used to exercise the orchestrator without
// a database. All methods lock a single mutex; this is a test double, not
// a production concurrency pattern.
type fakeStore struct {
	mu sync.Mutex

	jobs            map[string]*db.IngestionJob
	professors      map[string]db.Professor
	profByURL       map[string]string
	authors         map[string]db.Author
	papers          map[string]db.Paper
	papersByExt     map[string]string
	papersByTitleYr map[string]string
	authorships     map[string]bool
	embeddings      map[string]db.PaperEmbedding

	nextID int

	failJobCause error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:            map[string]*db.IngestionJob{},
		professors:      map[string]db.Professor{},
		profByURL:       map[string]string{},
		authors:         map[string]db.Author{},
		papers:          map[string]db.Paper{},
		papersByExt:     map[string]string{},
		papersByTitleYr: map[string]string{},
		authorships:     map[string]bool{},
		embeddings:      map[string]db.PaperEmbedding{},
	}
}

func (f *fakeStore) id() string {
	f.nextID++
	return "id-" + string(rune('a'+f.nextID))
}

func (f *fakeStore) CreateJob(_ context.Context, university, directoryURL string) (db.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j := &db.IngestionJob{ID: f.id(), University: university, DirectoryURL: directoryURL, Status: db.JobStatusQueued}
	f.jobs[j.ID] = j

	return *j, nil
}

func (f *fakeStore) SetTotalFaculty(_ context.Context, jobID string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs[jobID].TotalFaculty = total
	f.jobs[jobID].Status = db.JobStatusProcessing

	return nil
}

func (f *fakeStore) IncrementProgress(_ context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j := f.jobs[jobID]
	j.ProcessedFaculty++
	done := j.ProcessedFaculty >= j.TotalFaculty

	if done {
		j.Status = db.JobStatusCompleted
	}

	return done, nil
}

func (f *fakeStore) FailJob(_ context.Context, jobID string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs[jobID].Status = db.JobStatusFailed
	f.jobs[jobID].Error = cause.Error()
	f.failJobCause = cause

	return nil
}

func (f *fakeStore) GetOrCreateProfessor(_ context.Context, p db.Professor) (db.Professor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.profByURL[p.ProfileURL]; ok {
		return f.professors[id], nil
	}

	p.ID = f.id()
	f.professors[p.ID] = p
	f.profByURL[p.ProfileURL] = p.ID

	return p, nil
}

func (f *fakeStore) GetProfessor(_ context.Context, id string) (db.Professor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.professors[id]
	if !ok {
		return db.Professor{}, apperrors.ErrNotFound
	}

	return p, nil
}

func (f *fakeStore) UpdateProfessorEmail(_ context.Context, professorID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := f.professors[professorID]
	p.Email = email
	f.professors[professorID] = p

	return nil
}

func (f *fakeStore) GetOrCreateAuthor(_ context.Context, a db.Author) (db.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.authors[a.ProfessorID]; ok {
		return existing, nil
	}

	a.ID = f.id()
	f.authors[a.ProfessorID] = a

	return a, nil
}

func (f *fakeStore) GetOrCreatePaper(_ context.Context, p db.Paper) (db.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.ExternalID != "" {
		if id, ok := f.papersByExt[p.ExternalID]; ok {
			return f.papers[id], nil
		}
	} else {
		key := p.Title + "|" + fmtInt(p.Year)
		if id, ok := f.papersByTitleYr[key]; ok {
			return f.papers[id], nil
		}
	}

	p.ID = f.id()
	f.papers[p.ID] = p

	if p.ExternalID != "" {
		f.papersByExt[p.ExternalID] = p.ID
	} else {
		f.papersByTitleYr[p.Title+"|"+fmtInt(p.Year)] = p.ID
	}

	return p, nil
}

func (f *fakeStore) GetPaper(_ context.Context, id string) (db.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.papers[id]
	if !ok {
		return db.Paper{}, apperrors.ErrNotFound
	}

	return p, nil
}

func (f *fakeStore) LinkAuthorship(_ context.Context, paperID, authorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authorships[paperID+"|"+authorID] = true

	return nil
}

func (f *fakeStore) HasEmbedding(_ context.Context, paperID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.embeddings[paperID]

	return ok, nil
}

func (f *fakeStore) SaveEmbedding(_ context.Context, e db.PaperEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.embeddings[e.PaperID] = e

	return nil
}

type fakeHarvester struct {
	result harvester.Result
	err    error
	email  string
}

func (f *fakeHarvester) Harvest(_ context.Context, _ string) (harvester.Result, error) {
	return f.result, f.err
}

func (f *fakeHarvester) FetchProfileEmail(_ context.Context, _ string) (string, error) {
	return f.email, nil
}

type fakeBiblio struct {
	matches map[string]biblio.AuthorMatch
}

func (f *fakeBiblio) PapersFor(_ context.Context, name, _ string) (biblio.AuthorMatch, error) {
	match, ok := f.matches[name]
	if !ok {
		return biblio.AuthorMatch{}, apperrors.ErrNoResults
	}

	return match, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) GetEmbeddingWithMetadata(_ context.Context, text string) (embeddings.EmbeddingResult, error) {
	return embeddings.EmbeddingResult{
		Vector:     []float32{0.1, 0.2, 0.3},
		Dimensions: 3,
		Provider:   embeddings.ProviderMock,
	}, nil
}

func newOrchestrator(store Store, h Harvester, b BiblioClient) *Orchestrator {
	logger := zerolog.Nop()
	return New(store, h, b, fakeEmbedder{}, Config{WorkerCount: 2}, &logger)
}

func TestIngestRosterFailsJobWhenRosterIsEmpty(t *testing.T) {
	store := newFakeStore()
	job, err := store.CreateJob(t.Context(), "Example University", "https://example.edu/faculty")
	require.NoError(t, err)

	h := &fakeHarvester{result: harvester.Result{}}
	o := newOrchestrator(store, h, &fakeBiblio{})

	err = o.IngestRoster(t.Context(), "Example University", "https://example.edu/faculty", job.ID)
	require.Error(t, err)

	assert.Equal(t, db.JobStatusFailed, store.jobs[job.ID].Status)
}

func TestIngestRosterProcessesEveryProfessorExactlyOnce(t *testing.T) {
	store := newFakeStore()
	job, err := store.CreateJob(t.Context(), "Example University", "https://example.edu/faculty")
	require.NoError(t, err)

	h := &fakeHarvester{result: harvester.Result{
		Profiles: []harvester.Profile{
			{Name: "Jane Smith", URL: "https://example.edu/jane"},
			{Name: "Bob Jones", URL: "https://example.edu/bob"},
		},
	}}

	b := &fakeBiblio{matches: map[string]biblio.AuthorMatch{
		"Jane Smith": {
			ExternalID: "author-1",
			Papers:     []biblio.Paper{{ExternalID: "p1", Title: "A Paper", Abstract: "abs", CitationCount: 10, Year: 2024}},
		},
	}}

	o := newOrchestrator(store, h, b)

	err = o.IngestRoster(t.Context(), "Example University", "https://example.edu/faculty", job.ID)
	require.NoError(t, err)

	o.Wait()

	assert.Equal(t, 2, store.jobs[job.ID].ProcessedFaculty)
	assert.Equal(t, db.JobStatusCompleted, store.jobs[job.ID].Status)
	assert.Len(t, store.professors, 2)
	assert.Len(t, store.papers, 1)
	assert.Len(t, store.embeddings, 1)

	var janeAuthor db.Author

	for _, a := range store.authors {
		if a.Name == "Jane Smith" {
			janeAuthor = a
		}
	}

	assert.Equal(t, "author-1", janeAuthor.ExternalID)
}

func TestIngestRosterCountsProfessorWithNoPapersAsProcessed(t *testing.T) {
	store := newFakeStore()
	job, err := store.CreateJob(t.Context(), "Example University", "https://example.edu/faculty")
	require.NoError(t, err)

	h := &fakeHarvester{result: harvester.Result{
		Profiles: []harvester.Profile{{Name: "Nobody Famous", URL: "https://example.edu/nobody"}},
	}}

	o := newOrchestrator(store, h, &fakeBiblio{})

	err = o.IngestRoster(t.Context(), "Example University", "https://example.edu/faculty", job.ID)
	require.NoError(t, err)

	o.Wait()

	assert.Equal(t, 1, store.jobs[job.ID].ProcessedFaculty)
	assert.Equal(t, db.JobStatusCompleted, store.jobs[job.ID].Status)
	assert.Empty(t, store.papers)
}

func TestDispatchProfessorIncrementsProgressOnUpsertFailure(t *testing.T) {
	store := newFakeStore()
	job, err := store.CreateJob(t.Context(), "Example University", "https://example.edu/faculty")
	require.NoError(t, err)
	require.NoError(t, store.SetTotalFaculty(t.Context(), job.ID, 1))

	o := newOrchestrator(&failingUpsertStore{fakeStore: store}, &fakeHarvester{}, &fakeBiblio{})

	o.dispatchProfessor(t.Context(), "Example University", job.ID, harvester.Profile{Name: "X", URL: "https://x"})

	assert.Equal(t, 1, store.jobs[job.ID].ProcessedFaculty)
}

type failingUpsertStore struct {
	*fakeStore
}

func (f *failingUpsertStore) GetOrCreateProfessor(_ context.Context, _ db.Professor) (db.Professor, error) {
	return db.Professor{}, assert.AnError
}

func TestSelectPapersCombinesTopCitedAndRecentWithoutDuplicates(t *testing.T) {
	recentYear := 2024
	papers := []biblio.Paper{
		{ExternalID: "old-high", CitationCount: 100, Year: 2010},
		{ExternalID: "recent-low", CitationCount: 1, Year: recentYear},
		{ExternalID: "recent-high", CitationCount: 100, Year: recentYear},
	}

	selected := selectPapers(papers)

	ids := make([]string, len(selected))
	for i, p := range selected {
		ids[i] = p.ExternalID
	}

	assert.ElementsMatch(t, []string{"old-high", "recent-low", "recent-high"}, ids)
}

func TestSelectPapersCapsTopCitedAtThirty(t *testing.T) {
	papers := make([]biblio.Paper, 40)
	for i := range papers {
		papers[i] = biblio.Paper{ExternalID: string(rune('a' + i)), CitationCount: 40 - i, Year: 1990}
	}

	selected := selectPapers(papers)
	assert.Len(t, selected, topCitedLimit)
}

func TestEmbedPaperSkipsWhenNoTextAvailable(t *testing.T) {
	store := newFakeStore()
	paper, err := store.GetOrCreatePaper(t.Context(), db.Paper{ExternalID: "p1"})
	require.NoError(t, err)

	o := newOrchestrator(store, &fakeHarvester{}, &fakeBiblio{})
	o.embedPaper(t.Context(), paper.ID)

	assert.Empty(t, store.embeddings)
}

func TestEmbedPaperIsIdempotent(t *testing.T) {
	store := newFakeStore()
	paper, err := store.GetOrCreatePaper(t.Context(), db.Paper{ExternalID: "p1", Title: "T", Abstract: "A"})
	require.NoError(t, err)
	require.NoError(t, store.SaveEmbedding(t.Context(), db.PaperEmbedding{PaperID: paper.ID, Vector: []float32{9}}))

	o := newOrchestrator(store, &fakeHarvester{}, &fakeBiblio{})
	o.embedPaper(t.Context(), paper.ID)

	assert.Equal(t, []float32{9}, store.embeddings[paper.ID].Vector)
}
