package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/compliance_api/internal/events"
	"github.com/Skotchmaster/compliance_api/internal/models"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
)

// DefaultPruneRetention is how long expired refresh rows outlive their
// expiry before PruneExpired deletes them.
const DefaultPruneRetention = 24 * time.Hour

func (s *AuthService) Sessions(ctx context.Context, userID uuid.UUID) ([]models.RefreshToken, error) {
	return s.Repo.ListActiveSessions(ctx, userID, s.now())
}

// LogOutAll revokes every active refresh token of the user and returns how
// many were revoked.
func (s *AuthService) LogOutAll(ctx context.Context, userID uuid.UUID, meta ClientMeta) (int64, error) {
	n, err := s.Repo.RevokeAllForUser(ctx, userID, s.now())
	if err != nil {
		logging.FromContext(ctx).Error("logout_all_failed", "status", 500, "user_id", userID, "error", err)
		return 0, err
	}
	logging.FromContext(ctx).Info("logout_all", "user_id", userID, "revoked", n)
	s.Metrics.Operation("logout_all", "ok")
	s.publishRaw(ctx, events.UserLoggedOutAll, userID.String(), "", meta)
	return n, nil
}

func (s *AuthService) PruneExpired(ctx context.Context) (int64, error) {
	retention := s.PruneRetention
	if retention <= 0 {
		retention = DefaultPruneRetention
	}
	n, err := s.Repo.DeleteExpiredRefresh(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	s.Metrics.Pruned(n)
	return n, nil
}

// RunPruner calls PruneExpired every interval until ctx is done.
func (s *AuthService) RunPruner(ctx context.Context, interval time.Duration) {
	l := logging.FromContext(ctx).With("worker", "refresh_pruner")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PruneExpired(ctx)
			if err != nil {
				l.Error("prune_failed", "error", err)
				continue
			}
			if n > 0 {
				l.Info("pruned_refresh_tokens", "deleted", n)
			}
		}
	}
}
