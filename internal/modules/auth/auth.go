package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/codeverdict/core/internal/models"
	"github.com/codeverdict/core/internal/modules/github"
)

var (
	ErrNoCredential = fmt.Errorf("no linked github account: %w", github.ErrMissingToken)
	ErrUserNotFound = errors.New("user not found")
)

// Service owns users and their linked provider credentials.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service { return &Service{db: db, now: time.Now} }

// UpsertGitHubUser links a GitHub identity to a local user, creating the user
// on first login and refreshing profile and token afterwards.
func (s *Service) UpsertGitHubUser(ctx context.Context, u *github.User, accessToken, scope string) (*models.UserModel, error) {
	providerUID := strconv.FormatInt(u.ID, 10)
	now := s.now()
	var user models.UserModel

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc models.Account
		err := tx.Where("provider = ? AND provider_account_id = ?", models.ProviderGitHub, providerUID).Take(&acc).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.UserModel{Name: displayName(u), Email: u.Email, Image: u.AvatarURL, Login: u.Login}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			return tx.Create(&models.Account{
				UserID:            user.ID,
				Provider:          models.ProviderGitHub,
				ProviderAccountID: providerUID,
				AccessToken:       accessToken,
				Scope:             scope,
				LastUsed:          &now,
			}).Error
		case err != nil:
			return err
		}

		if err := tx.Take(&user, "id = ?", acc.UserID).Error; err != nil {
			return err
		}
		profile := map[string]interface{}{"name": displayName(u), "image": u.AvatarURL, "login": u.Login}
		if u.Email != "" {
			profile["email"] = u.Email
		}
		if err := tx.Model(&user).Updates(profile).Error; err != nil {
			return err
		}
		return tx.Model(&acc).Updates(map[string]interface{}{
			"access_token": accessToken,
			"scope":        scope,
			"last_used":    now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AccessToken returns the stored GitHub token of userID.
func (s *Service) AccessToken(ctx context.Context, userID string) (string, error) {
	var acc models.Account
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, models.ProviderGitHub).
		Take(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoCredential
		}
		return "", err
	}
	if strings.TrimSpace(acc.AccessToken) == "" {
		return "", ErrNoCredential
	}
	return acc.AccessToken, nil
}

func (s *Service) User(ctx context.Context, userID string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).Take(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func displayName(u *github.User) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Login
}
