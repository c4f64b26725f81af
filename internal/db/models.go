package db

import "time"

// Professor is a faculty member harvested from a university directory page.
type Professor struct {
	ID            string
	University    string
	Name          string
	Title         string
	Email         string
	ProfileURL    string
	DepartmentURL string
	CreatedAt     time.Time
}

// Author links a Professor to their identity in the bibliographic API.
type Author struct {
	ID          string
	ProfessorID string
	ExternalID  string
	Name        string
	CreatedAt   time.Time
}

// Paper is a publication returned by the bibliographic API for an Author.
type Paper struct {
	ID            string
	ExternalID    string
	Title         string
	Abstract      string
	Year          int
	CitationCount int
	URL           string
	CreatedAt     time.Time
}

// PaperEmbedding is the vector representation of a Paper's text.
type PaperEmbedding struct {
	PaperID    string
	Vector     []float32
	Provider   string
	Dimensions int
	CreatedAt  time.Time
}

// Job lifecycle states, matching the queued -> processing -> {completed,
// failed} state machine.
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IngestionJob tracks progress of harvesting and enriching one university's
// faculty roster.
type IngestionJob struct {
	ID               string
	University       string
	DirectoryURL     string
	Status           string
	TotalFaculty     int
	ProcessedFaculty int
	Error            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
