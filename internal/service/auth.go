package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/compliance_api/internal/events"
	"github.com/Skotchmaster/compliance_api/internal/metrics"
	"github.com/Skotchmaster/compliance_api/internal/models"
	"github.com/Skotchmaster/compliance_api/internal/oauth"
	"github.com/Skotchmaster/compliance_api/internal/repo"
	"github.com/Skotchmaster/compliance_api/pkg/hash"
	"github.com/Skotchmaster/compliance_api/pkg/logging"
	"github.com/Skotchmaster/compliance_api/pkg/tokens"
)

const (
	publishTimeout  = 5 * time.Second
	maxUserAgentLen = 512
)

type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth.UserInfo, error)
}

type AuthService struct {
	Repo   *repo.GormRepo
	Tokens *tokens.Issuer
	Hasher hash.Hasher

	// Google is nil when Google sign-in is not configured.
	Google IdentityProvider
	States oauth.StateStore

	Events  events.Publisher
	Metrics *metrics.Auth

	// PruneRetention is how long expired refresh rows are kept.
	// Zero means DefaultPruneRetention.
	PruneRetention time.Duration
	Now            func() time.Time
}

type ClientMeta struct {
	IP        string
	UserAgent string
}

type AuthResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type RegisterInput struct {
	Email    string `json:"email"     validate:"required,email,max=254"`
	Password string `json:"password"  validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=255"`
	Plan     string `json:"plan"      validate:"omitempty,oneof=basic professional"`
}

type loginInput struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput, meta ClientMeta) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	in.Email = repo.NormalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Plan == "" {
		in.Plan = models.PlanBasic
	}
	if err := checkStruct(in); err != nil {
		s.Metrics.Operation("register", "invalid")
		return nil, err
	}

	taken, err := s.Repo.EmailTaken(ctx, in.Email)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot check email", "error", err)
		return nil, err
	}
	if taken {
		l.Warn("register_error", "status", 409, "reason", "email already registered")
		s.Metrics.Operation("register", "conflict")
		return nil, ErrEmailTaken
	}

	pwHash, err := s.Hasher.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, hash.ErrPasswordTooLong) {
			return nil, invalid("password", "must be at most 72 bytes")
		}
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: &pwHash,
		FullName:     in.FullName,
		Plan:         in.Plan,
		IsActive:     true,
	}
	if err := s.Repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			s.Metrics.Operation("register", "conflict")
			return nil, ErrEmailTaken
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return nil, err
	}

	res, err := s.issue(ctx, user, meta)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	l.Info("user_registered", "user_id", user.ID)
	s.Metrics.Operation("register", "ok")
	s.publish(ctx, events.UserRegistered, user, meta)
	return res, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error) {
	email = repo.NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if err := checkStruct(loginInput{Email: email, Password: password}); err != nil {
		return nil, err
	}

	user, err := s.Repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown email")
			s.Metrics.Operation("login", "unauthorized")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}
	if !user.HasPassword() {
		l.Warn("login_failed", "status", 401, "reason", "account has no password", "user_id", user.ID)
		s.Metrics.Operation("login", "unauthorized")
		return nil, ErrInvalidCredentials
	}
	if !s.Hasher.CheckPassword(*user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password", "user_id", user.ID)
		s.Metrics.Operation("login", "unauthorized")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		l.Warn("login_failed", "status", 401, "reason", "inactive user", "user_id", user.ID)
		s.Metrics.Operation("login", "unauthorized")
		return nil, ErrInactiveUser
	}

	res, err := s.issue(ctx, user, meta)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	l.Info("login_successful", "user_id", user.ID)
	s.Metrics.Operation("login", "ok")
	s.publish(ctx, events.UserLoggedIn, user, meta)
	return res, nil
}

// GoogleAuthURL returns the consent screen URL together with the state
// nonce embedded in it.
func (s *AuthService) GoogleAuthURL(ctx context.Context) (string, string, error) {
	if s.Google == nil || s.States == nil {
		return "", "", ErrOAuthDisabled
	}
	state, err := s.States.Issue(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("google_url_error", "status", 502, "error", err)
		return "", "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return s.Google.AuthCodeURL(state), state, nil
}

func (s *AuthService) GoogleCallback(ctx context.Context, code, state string, meta ClientMeta) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.google")

	if s.Google == nil {
		return nil, ErrOAuthDisabled
	}
	if strings.TrimSpace(code) == "" {
		return nil, invalid("code", "is required")
	}
	if state != "" {
		if s.States == nil {
			return nil, ErrInvalidState
		}
		ok, err := s.States.Consume(ctx, state)
		if err != nil {
			l.Error("google_login_failed", "status", 502, "reason", "state store", "error", err)
			return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		if !ok {
			l.Warn("google_login_failed", "status", 401, "reason", "unknown or expired state")
			s.Metrics.Operation("google", "unauthorized")
			return nil, ErrInvalidState
		}
	}

	info, err := s.Google.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, oauth.ErrCodeRejected) {
			l.Warn("google_login_failed", "status", 401, "reason", "code rejected", "error", err)
			s.Metrics.Operation("google", "unauthorized")
			return nil, fmt.Errorf("%w: %w", ErrCodeRejected, err)
		}
		l.Error("google_login_failed", "status", 502, "error", err)
		s.Metrics.Operation("google", "upstream")
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if !info.VerifiedEmail {
		l.Warn("google_login_failed", "status", 401, "reason", "email not verified")
		s.Metrics.Operation("google", "unauthorized")
		return nil, ErrEmailNotVerified
	}

	user, created, err := s.Repo.LinkOrCreateGoogleUser(ctx, repo.GoogleProfile{
		Subject:  info.Subject,
		Email:    info.Email,
		FullName: info.Name,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		l.Error("google_login_failed", "status", 500, "error", err)
		return nil, err
	}
	if !user.IsActive {
		l.Warn("google_login_failed", "status", 401, "reason", "inactive user", "user_id", user.ID)
		return nil, ErrInactiveUser
	}

	res, err := s.issue(ctx, user, meta)
	if err != nil {
		l.Error("google_login_failed", "status", 500, "error", err)
		return nil, err
	}

	l.Info("google_login_successful", "user_id", user.ID, "created", created)
	s.Metrics.Operation("google", "ok")
	if created {
		s.publish(ctx, events.UserRegistered, user, meta)
	}
	s.publish(ctx, events.UserGoogleLoggedIn, user, meta)
	return res, nil
}

// Refresh rotates a refresh token. The presented token is revoked and
// replaced; presenting an already rotated token again revokes every
// session of its owner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*AuthResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	claims, err := s.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", "bad token", "error", err)
		s.Metrics.Operation("refresh", "unauthorized")
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidRefreshToken)
	}

	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserGone
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	now := s.now()
	access, accessExp, err := s.Tokens.NewAccess(user.ID.String(), user.Email, now)
	if err != nil {
		return nil, err
	}
	refresh, jti, refreshExp, err := s.Tokens.NewRefresh(user.ID.String(), now)
	if err != nil {
		return nil, err
	}
	next := s.refreshRow(user.ID, refresh, jti, refreshExp, meta)

	_, err = s.Repo.RotateRefresh(ctx, claims.ID, tokens.HashToken(refreshToken), now, next)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrRefreshReused):
		n, rErr := s.Repo.RevokeAllForUser(ctx, user.ID, now)
		if rErr != nil {
			l.Error("refresh_reuse_revoke_failed", "user_id", user.ID, "error", rErr)
		}
		l.Warn("refresh_reuse_detected", "status", 401, "user_id", user.ID, "revoked", n)
		s.Metrics.ReuseDetected()
		s.Metrics.Operation("refresh", "reused")
		s.publish(ctx, events.RefreshReuseDetected, user, meta)
		return nil, ErrRefreshReused
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, repo.ErrRefreshRevoked), errors.Is(err, repo.ErrRefreshExpired):
		l.Warn("refresh_failed", "status", 401, "reason", err.Error(), "user_id", user.ID)
		s.Metrics.Operation("refresh", "unauthorized")
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	default:
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	s.Metrics.Operation("refresh", "ok")
	s.publish(ctx, events.TokenRefreshed, user, meta)
	return &AuthResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// LogOut revokes one refresh token. An empty token, an unknown row or an
// already revoked row all succeed silently.
func (s *AuthService) LogOut(ctx context.Context, refreshToken string, meta ClientMeta) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if refreshToken == "" {
		return nil
	}
	claims, err := s.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		l.Warn("logout_failed", "status", 401, "reason", "bad token", "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}

	changed, err := s.Repo.RevokeRefresh(ctx, claims.ID, tokens.HashToken(refreshToken), s.now())
	if err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refreshToken", "error", err)
		return err
	}
	if changed {
		l.Info("successful_logout", "user_id", claims.Subject)
		s.Metrics.Operation("logout", "ok")
		s.publishRaw(ctx, events.UserLoggedOut, claims.Subject, "", meta)
	}
	return nil
}

// Authenticate checks an access token's signature, expiry and type. It
// never touches the database.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrInvalidAccessToken
	}
	claims, err := s.Tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	id := &Identity{UserID: claims.Subject, Email: claims.Email}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

func (s *AuthService) issue(ctx context.Context, user *models.User, meta ClientMeta) (*AuthResult, error) {
	now := s.now()
	access, accessExp, err := s.Tokens.NewAccess(user.ID.String(), user.Email, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, jti, refreshExp, err := s.Tokens.NewRefresh(user.ID.String(), now)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	if err := s.Repo.CreateRefresh(ctx, s.refreshRow(user.ID, refresh, jti, refreshExp, meta)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &AuthResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (s *AuthService) refreshRow(userID uuid.UUID, token, jti string, exp time.Time, meta ClientMeta) *models.RefreshToken {
	ua := meta.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}
	return &models.RefreshToken{
		JTI:       jti,
		TokenHash: tokens.HashToken(token),
		UserID:    userID,
		ExpiresAt: exp,
		UserAgent: ua,
		IP:        meta.IP,
	}
}

func (s *AuthService) publish(ctx context.Context, typ events.Type, u *models.User, meta ClientMeta) {
	s.publishRaw(ctx, typ, u.ID.String(), u.Email, meta)
}

// publishRaw is best effort: failures are logged and never returned.
func (s *AuthService) publishRaw(ctx context.Context, typ events.Type, userID, email string, meta ClientMeta) {
	if s.Events == nil {
		return
	}
	ev := events.New(typ, userID, email, s.now())
	ev.IP = meta.IP
	ev.UserAgent = meta.UserAgent

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.Events.Publish(pctx, ev); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "event_type", typ, "error", err)
	}
}
