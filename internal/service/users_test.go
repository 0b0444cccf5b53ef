package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/compliance_api/internal/events"
	"github.com/Skotchmaster/compliance_api/internal/models"
	"github.com/Skotchmaster/compliance_api/internal/testdb"
)

func strPtr(s string) *string { return &s }

func TestMe(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	reg := e.register(t, "user@example.com", "secret123")

	u, err := e.svc.Me(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", u.Email)

	_, err = e.svc.Me(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	reg := e.register(t, "user@example.com", "secret123")
	e.register(t, "other@example.com", "secret123")

	_, err := e.svc.Repo.UpdateUser(ctx, reg.User.ID, map[string]any{"is_verified": true})
	require.NoError(t, err)

	u, err := e.svc.UpdateProfile(ctx, reg.User.ID, UpdateProfileInput{
		FullName: strPtr("  Jane Doe "),
		Plan:     strPtr(models.PlanProfessional),
	}, noMeta)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", u.FullName)
	assert.Equal(t, models.PlanProfessional, u.Plan)
	assert.True(t, u.IsVerified, "verification survives non-email changes")

	u, err = e.svc.UpdateProfile(ctx, reg.User.ID, UpdateProfileInput{Email: strPtr("New@Example.com")}, noMeta)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.False(t, u.IsVerified)

	_, err = e.svc.UpdateProfile(ctx, reg.User.ID, UpdateProfileInput{Email: strPtr("OTHER@example.com")}, noMeta)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = e.svc.UpdateProfile(ctx, reg.User.ID, UpdateProfileInput{Plan: strPtr("enterprise")}, noMeta)
	assert.ErrorIs(t, err, ErrValidation)

	same, err := e.svc.UpdateProfile(ctx, reg.User.ID, UpdateProfileInput{}, noMeta)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", same.Email)

	assert.Contains(t, e.events.Types(), events.ProfileUpdated)
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	reg := e.register(t, "user@example.com", "secret123")
	other, err := e.svc.Login(ctx, "user@example.com", "secret123", noMeta)
	require.NoError(t, err)

	err = e.svc.ChangePassword(ctx, reg.User.ID, "wrong-one", "newsecret456", noMeta)
	assert.ErrorIs(t, err, ErrValidation)

	err = e.svc.ChangePassword(ctx, reg.User.ID, "secret123", "short", noMeta)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, e.svc.ChangePassword(ctx, reg.User.ID, "secret123", "newsecret456", noMeta))

	_, err = e.svc.Login(ctx, "user@example.com", "secret123", noMeta)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = e.svc.Login(ctx, "user@example.com", "newsecret456", noMeta)
	assert.NoError(t, err)

	for _, tok := range []string{reg.RefreshToken, other.RefreshToken} {
		_, err = e.svc.Refresh(ctx, tok, noMeta)
		assert.ErrorIs(t, err, ErrUnauthorized, "sessions are revoked on password change")
	}
}

func TestChangePassword_RevokeFailureKeepsOldPassword(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	reg := e.register(t, "atomic@example.com", "secret123")

	testdb.BeforeFirstUpdate(t, e.db, "refresh_tokens", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("revoke failed"))
	})

	err := e.svc.ChangePassword(ctx, reg.User.ID, "secret123", "newsecret456", noMeta)
	require.Error(t, err)

	_, err = e.svc.Login(ctx, "atomic@example.com", "secret123", noMeta)
	assert.NoError(t, err, "password change rolled back")
	_, err = e.svc.Login(ctx, "atomic@example.com", "newsecret456", noMeta)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	sessions, err := e.svc.Sessions(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestChangePassword_OAuthUserSetsFirstPassword(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.svc.GoogleCallback(ctx, "good-code", "", noMeta)
	require.NoError(t, err)

	require.NoError(t, e.svc.ChangePassword(ctx, res.User.ID, "", "firstpass1", noMeta))
	_, err = e.svc.Login(ctx, "google@example.com", "firstpass1", noMeta)
	assert.NoError(t, err)
}

func TestSessionsAndLogOutAll(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	reg := e.register(t, "user@example.com", "secret123")
	_, err := e.svc.Login(ctx, "user@example.com", "secret123", ClientMeta{IP: "10.0.0.2", UserAgent: "browser"})
	require.NoError(t, err)

	sessions, err := e.svc.Sessions(ctx, reg.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	n, err := e.svc.LogOutAll(ctx, reg.User.ID, noMeta)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	sessions, err = e.svc.Sessions(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = e.svc.Refresh(ctx, reg.RefreshToken, noMeta)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, e.events.Types(), events.UserLoggedOutAll)
}

func TestPruneExpired(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	reg := e.register(t, "user@example.com", "secret123")

	stale := &models.RefreshToken{
		JTI:       uuid.NewString(),
		TokenHash: "stale-hash",
		UserID:    reg.User.ID,
		ExpiresAt: time.Now().UTC().Add(-72 * time.Hour),
	}
	require.NoError(t, e.svc.Repo.CreateRefresh(ctx, stale))

	n, err := e.svc.PruneExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	sessions, err := e.svc.Sessions(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "live sessions are kept")
}

func TestRunPruner_StopsWithContext(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.svc.RunPruner(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}
