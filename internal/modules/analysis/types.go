package analysis

import (
	"time"

	"github.com/codeverdict/core/internal/models"
)

// Where a payload was served from.
const (
	SourceCache    = "cache"
	SourceDatabase = "database"
	SourceFresh    = "fresh"
)

// Confidence labels.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// SourceFile is one decoded text file of a repository snapshot.
type SourceFile struct {
	Path    string
	Content string
}

// Batch is a size-bounded concatenation of whole files.
type Batch struct {
	Index   int
	Paths   []string
	Content string
	Tokens  int
}

// Verdict is a single backend judgment for one batch.
type Verdict struct {
	AuthenticityScore float64 `json:"authenticity_score"`
	Reasoning         string  `json:"reasoning"`
	WritingStyle      string  `json:"writing_style"`
	ConfidenceLevel   string  `json:"confidence_level"`
}

// BatchOutcome carries either a verdict or the reason there is none.
type BatchOutcome struct {
	Index   int
	Verdict *Verdict
	Err     error
}

// AnalysisResult is the wire form of a stored AnalysisRecord.
type AnalysisResult struct {
	ID                string    `json:"id"`
	RepoID            string    `json:"repoId"`
	AuthenticityScore float64   `json:"authenticityScore"`
	ConfidenceLevel   string    `json:"confidenceLevel"`
	Reasoning         string    `json:"reasoning"`
	BatchCount        int       `json:"batchCount"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toAnalysisResult(r *models.AnalysisRecord) AnalysisResult {
	return AnalysisResult{
		ID:                r.ID,
		RepoID:            r.RepoID,
		AuthenticityScore: r.AuthenticityScore,
		ConfidenceLevel:   r.ConfidenceLevel,
		Reasoning:         r.Reasoning,
		BatchCount:        r.BatchCount,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}

// analysisPayload is what gets cached per (user, locator).
type analysisPayload struct {
	AnalysisResults AnalysisResult `json:"analysisResults"`
	BatchCount      int            `json:"batchCount"`
	RepositoryID    string         `json:"repositoryId"`
}

// AnalyzeResult is returned by Service.AnalyzeRepository.
type AnalyzeResult struct {
	Status          string         `json:"status"`
	Source          string         `json:"source"`
	BatchCount      int            `json:"batchCount"`
	AnalysisResults AnalysisResult `json:"analysisResults"`
	RepositoryID    string         `json:"repositoryId"`
}

// RepositoryResult is the wire form of a stored Repository.
type RepositoryResult struct {
	ID            string     `json:"id"`
	RepoName      string     `json:"repoName"`
	RepoURL       string     `json:"repoUrl"`
	UserID        string     `json:"userId"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastScannedAt *time.Time `json:"lastScannedAt"`
}

func toRepositoryResult(r *models.Repository) RepositoryResult {
	out := RepositoryResult{
		ID:        r.ID,
		RepoName:  r.RepoName,
		RepoURL:   r.RepoURL,
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.LastScannedAt != nil {
		t := r.LastScannedAt.UTC()
		out.LastScannedAt = &t
	}
	return out
}

// ListResult is returned by Service.ListRepositories.
type ListResult struct {
	Status       string             `json:"status"`
	Source       string             `json:"source"`
	Repositories []RepositoryResult `json:"repositories"`
}

// HistoryResult is returned by Service.GetAnalysis.
type HistoryResult struct {
	Status       string           `json:"status"`
	RepositoryID string           `json:"repositoryId"`
	Analyses     []AnalysisResult `json:"analyses"`
}
