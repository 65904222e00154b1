package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codeverdict/core/internal/database"
	"github.com/codeverdict/core/internal/models"
	"github.com/codeverdict/core/internal/modules/github"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return NewService(db), db
}

func TestAccessTokenWithoutLinkedAccount(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.AccessToken(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.True(t, errors.Is(err, github.ErrMissingToken))
}

func TestUpsertGitHubUser(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	gh := &github.User{ID: 42, Login: "octo", Email: "octo@example.com", AvatarURL: "https://avatars/octo"}

	user, err := svc.UpsertGitHubUser(ctx, gh, "tok-1", "repo")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	assert.Equal(t, "octo", user.Name)

	token, err := svc.AccessToken(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	gh.Name = "Octo Cat"
	gh.Email = ""
	again, err := svc.UpsertGitHubUser(ctx, gh, "tok-2", "repo read:user")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	token, err = svc.AccessToken(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)

	stored, err := svc.User(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Octo Cat", stored.Name)
	assert.Equal(t, "octo@example.com", stored.Email)

	var users, accounts int64
	require.NoError(t, db.Model(&models.UserModel{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Account{}).Count(&accounts).Error)
	assert.Equal(t, int64(1), users)
	assert.Equal(t, int64(1), accounts)

	_, err = svc.User(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
