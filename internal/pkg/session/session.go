package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/codeverdict/core/internal/models"
	jwtpkg "github.com/codeverdict/core/internal/pkg/jwt"
	"gorm.io/gorm"
)

const DefaultTTL = 30 * 24 * time.Hour

var ErrNotFound = errors.New("session not found")

// Manager binds signed tokens to rows in user_sessions so they can be revoked.
type Manager struct {
	db     *gorm.DB
	signer *jwtpkg.Signer
	ttl    time.Duration
}

func NewManager(db *gorm.DB, signer *jwtpkg.Signer, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{db: db, signer: signer, ttl: ttl}
}

func (m *Manager) Signer() *jwtpkg.Signer { return m.signer }

// Issue creates a DB session and signs a JWT bound to that session.
func (m *Manager) Issue(ctx context.Context, userID, ip, ua string) (string, *models.UserSession, error) {
	s := &models.UserSession{
		UserID:    userID,
		IP:        strings.TrimSpace(ip),
		UA:        strings.TrimSpace(ua),
		ExpiresAt: time.Now().Add(m.ttl),
	}
	db := m.db.WithContext(ctx)
	if err := db.Create(s).Error; err != nil {
		return "", nil, err
	}

	token, err := m.signer.Sign(userID, s.ID, m.ttl)
	if err != nil {
		_ = db.Delete(s).Error
		return "", nil, err
	}
	return token, s, nil
}

func (m *Manager) IsActive(ctx context.Context, userID, sessionID string) (bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, nil
	}

	var count int64
	err := m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (m *Manager) Touch(ctx context.Context, userID, sessionID string) {
	_ = m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL AND expires_at > ?", sessionID, userID, time.Now()).
		Update("updated_at", time.Now()).Error
}

func (m *Manager) Revoke(ctx context.Context, userID, sessionID string) error {
	now := time.Now()
	res := m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND revoked_at IS NULL", sessionID, userID).
		Update("revoked_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpired hard-deletes sessions that expired or were revoked before cutoff.
func (m *Manager) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := m.db.WithContext(ctx).Unscoped().
		Where("expires_at < ? OR revoked_at < ?", cutoff, cutoff).
		Delete(&models.UserSession{})
	return res.RowsAffected, res.Error
}
