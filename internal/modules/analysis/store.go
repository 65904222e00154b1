package analysis

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/codeverdict/core/internal/models"
)

// Store is the durable side of the pipeline.
type Store interface {
	ListRepositories(ctx context.Context, userID string) ([]models.Repository, error)
	InsertRepositories(ctx context.Context, repos []models.Repository) error
	FindRepositoryByURL(ctx context.Context, userID, repoURL string) (*models.Repository, error)
	FindRepositoryByID(ctx context.Context, userID, id string) (*models.Repository, error)
	LatestAnalysis(ctx context.Context, repoID string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, repoID string) ([]models.AnalysisRecord, error)
	// SaveAnalysis upserts repo by (UserID, RepoURL), sets rec.RepoID and inserts rec.
	// An existing row keeps its id and created_at.
	SaveAnalysis(ctx context.Context, repo *models.Repository, rec *models.AnalysisRecord) error
}

type gormStore struct{ db *gorm.DB }

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) ListRepositories(ctx context.Context, userID string) ([]models.Repository, error) {
	var repos []models.Repository
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&repos).Error
	return repos, err
}

// InsertRepositories skips rows whose (user_id, repo_url) already exists.
func (s *gormStore) InsertRepositories(ctx context.Context, repos []models.Repository) error {
	if len(repos) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&repos).Error
}

func (s *gormStore) FindRepositoryByURL(ctx context.Context, userID, repoURL string) (*models.Repository, error) {
	return findRepository(s.db.WithContext(ctx), "user_id = ? AND repo_url = ?", userID, repoURL)
}

func (s *gormStore) FindRepositoryByID(ctx context.Context, userID, id string) (*models.Repository, error) {
	return findRepository(s.db.WithContext(ctx), "user_id = ? AND id = ?", userID, id)
}

func findRepository(tx *gorm.DB, query string, args ...interface{}) (*models.Repository, error) {
	var repo models.Repository
	if err := tx.Where(query, args...).Take(&repo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &repo, nil
}

func (s *gormStore) LatestAnalysis(ctx context.Context, repoID string) (*models.AnalysisRecord, error) {
	var rec models.AnalysisRecord
	err := s.db.WithContext(ctx).
		Where("repo_id = ?", repoID).
		Order("created_at DESC").
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) ListAnalyses(ctx context.Context, repoID string) ([]models.AnalysisRecord, error) {
	var recs []models.AnalysisRecord
	err := s.db.WithContext(ctx).
		Where("repo_id = ?", repoID).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}

func (s *gormStore) SaveAnalysis(ctx context.Context, repo *models.Repository, rec *models.AnalysisRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(repo)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			existing, err := findRepository(tx, "user_id = ? AND repo_url = ?", repo.UserID, repo.RepoURL)
			if err != nil {
				return err
			}
			if existing == nil {
				return gorm.ErrRecordNotFound
			}
			updates := map[string]interface{}{"last_scanned_at": repo.LastScannedAt}
			if repo.RepoName != "" {
				updates["repo_name"] = repo.RepoName
			}
			if err := tx.Model(&models.Repository{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return err
			}
			repo.ID = existing.ID
			repo.CreatedAt = existing.CreatedAt
		}
		rec.RepoID = repo.ID
		return tx.Create(rec).Error
	})
}
