package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is a hosted repository the user has seen in a listing or analyzed.
// (UserID, RepoURL) is unique; rows are never deleted.
type Repository struct {
	ID            string     `json:"id"            gorm:"type:char(36);primaryKey"`
	RepoName      string     `json:"repoName"      gorm:"not null"`
	RepoURL       string     `json:"repoUrl"       gorm:"size:512;uniqueIndex:idx_repo_user_url;not null"`
	UserID        string     `json:"userId"        gorm:"type:char(36);uniqueIndex:idx_repo_user_url;not null"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastScannedAt *time.Time `json:"lastScannedAt"`
}

func (Repository) TableName() string { return "repositories" }

func (r *Repository) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
