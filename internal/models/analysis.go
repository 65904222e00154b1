package models

import "time"

// AnalysisRecord is one aggregated analysis run. Records are append-only; the
// newest CreatedAt per repository is the current one.
type AnalysisRecord struct {
	ID                string    `json:"id"                gorm:"type:char(36);primaryKey"`
	RepoID            string    `json:"repoId"            gorm:"type:char(36);index:idx_analysis_repo_created;not null"`
	AuthenticityScore float64   `json:"authenticityScore"`
	ConfidenceLevel   string    `json:"confidenceLevel"   gorm:"size:16"`
	Reasoning         string    `json:"reasoning"         gorm:"type:text"`
	BatchCount        int       `json:"batchCount"`
	CreatedAt         time.Time `json:"createdAt"         gorm:"index:idx_analysis_repo_created"`
}

func (AnalysisRecord) TableName() string { return "analysis_records" }
