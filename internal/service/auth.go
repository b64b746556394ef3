package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/orderhub/internal/apperr"
	"github.com/geocoder89/orderhub/internal/auth"
	"github.com/geocoder89/orderhub/internal/domain/token"
	"github.com/geocoder89/orderhub/internal/domain/user"
	"github.com/geocoder89/orderhub/internal/notifications"
	"github.com/geocoder89/orderhub/internal/security"
)

type RegisterInput struct {
	Email    string
	Password string
	Username string
	Name     string
}

// LoginInput identifies the account by Email, or by Username when Email is empty.
type LoginInput struct {
	Email    string
	Username string
	Password string
}

type AuthResult struct {
	User   user.User `json:"user"`
	Tokens auth.Pair `json:"tokens"`
}

type AuthService struct {
	users    UserStore
	tokens   Tokens
	hasher   PasswordHasher
	notifier notifications.Notifier
	log      *slog.Logger
	now      func() time.Time

	// background tracks reset mails sent after the request returned.
	background    sync.WaitGroup
	notifyTimeout time.Duration
}

const defaultNotifyTimeout = 10 * time.Second

func NewAuthService(users UserStore, tokens Tokens, hasher PasswordHasher, notifier notifications.Notifier, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		notifier: notifier,
		log:      log,
		now:      nowUTC,

		notifyTimeout: defaultNotifyTimeout,
	}
}

// Wait blocks until every background notification has finished.
func (s *AuthService) Wait() {
	s.background.Wait()
}

func errInvalidCredentials() *apperr.Error {
	return apperr.NotFound("invalid_credentials", "Incorrect email or password")
}

func errPleaseAuthenticate() *apperr.Error {
	return apperr.Unauthenticated("unauthorized", "Please authenticate")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	if err := security.Validate(in.Password); err != nil {
		return AuthResult{}, apperr.Validation("validation_error", "Password is too long")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, apperr.Internal("Could not register user", err)
	}

	u := user.NewUser{
		Email:        normalizeEmail(in.Email),
		Username:     in.Username,
		PasswordHash: &hash,
		Role:         user.RoleUser,
		Status:       user.StatusActive,
		Name:         in.Name,
	}.Build(s.now())

	created, err := s.users.Create(ctx, u)
	if err != nil {
		return AuthResult{}, mapUserWriteErr(err, "Could not register user")
	}

	pair, err := s.tokens.IssuePair(ctx, created.ID)
	if err != nil {
		return AuthResult{}, apperr.Internal("Could not issue tokens", err)
	}

	s.log.InfoContext(ctx, "user_registered", "user_id", created.ID)

	return AuthResult{User: created, Tokens: pair}, nil
}

// Login collapses an unknown identifier and a wrong password into one error.
// The reason is logged, never returned.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (AuthResult, error) {
	var (
		u   user.User
		err error
	)
	if email := normalizeEmail(in.Email); email != "" {
		u, err = s.users.GetByEmail(ctx, email)
	} else {
		u, err = s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	}

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.hasher.Burn(in.Password)
			s.log.WarnContext(ctx, "login_failed", "reason", "unknown_identifier")
			return AuthResult{}, errInvalidCredentials()
		}
		return AuthResult{}, apperr.Internal("Could not log in", err)
	}

	if !u.HasPassword() {
		s.hasher.Burn(in.Password)
		s.log.WarnContext(ctx, "login_failed", "reason", "no_local_credential", "user_id", u.ID)
		return AuthResult{}, errInvalidCredentials()
	}

	if !s.hasher.Matches(in.Password, *u.PasswordHash) {
		s.log.WarnContext(ctx, "login_failed", "reason", "bad_password", "user_id", u.ID)
		return AuthResult{}, errInvalidCredentials()
	}

	pair, err := s.tokens.IssuePair(ctx, u.ID)
	if err != nil {
		return AuthResult{}, apperr.Internal("Could not issue tokens", err)
	}

	s.log.InfoContext(ctx, "login_succeeded", "user_id", u.ID)

	return AuthResult{User: u, Tokens: pair}, nil
}

// Logout is global: every token the owner holds is deleted, whatever its type.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	row, err := s.tokens.Lookup(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			return apperr.NotFound("not_found", "Not found")
		}
		return apperr.Internal("Could not log out", err)
	}

	if err := s.tokens.RevokeAll(ctx, row.UserID); err != nil {
		return apperr.Internal("Could not log out", err)
	}

	s.log.InfoContext(ctx, "logout", "user_id", row.UserID)
	return nil
}

// Refresh consumes the presented refresh token and issues a new pair.
// Expired, malformed and unknown tokens all answer "Please authenticate".
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (auth.Pair, error) {
	row, err := s.tokens.Verify(ctx, refreshToken, token.TypeRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenNotFound) {
			s.log.WarnContext(ctx, "refresh_failed", "err", err)
			return auth.Pair{}, errPleaseAuthenticate()
		}
		return auth.Pair{}, apperr.Internal("Could not refresh tokens", err)
	}

	if _, err := s.users.GetByID(ctx, row.UserID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return auth.Pair{}, errPleaseAuthenticate()
		}
		return auth.Pair{}, apperr.Internal("Could not refresh tokens", err)
	}

	if err := s.tokens.Consume(ctx, row); err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			s.log.WarnContext(ctx, "refresh_token_reused", "user_id", row.UserID)
			return auth.Pair{}, errPleaseAuthenticate()
		}
		return auth.Pair{}, apperr.Internal("Could not refresh tokens", err)
	}

	pair, err := s.tokens.IssuePair(ctx, row.UserID)
	if err != nil {
		return auth.Pair{}, apperr.Internal("Could not issue tokens", err)
	}

	return pair, nil
}

// ForgotPassword answers the same way, and after the same work, whether or
// not the email is registered: issuing and mailing the reset token happen
// after it returns.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.log.InfoContext(ctx, "forgot_password_unknown_email")
			return nil
		}
		return apperr.Internal("Could not start password reset", err)
	}

	// keeps request values (trace, actor) but not its deadline
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer cancel()
		s.sendReset(bg, u)
	}()

	return nil
}

func (s *AuthService) sendReset(ctx context.Context, u user.User) {
	issued, err := s.tokens.Issue(ctx, u.ID, token.TypeResetPassword, 0)
	if err != nil {
		s.log.ErrorContext(ctx, "reset_password_issue_failed", "user_id", u.ID, "err", err)
		return
	}

	msg := notifications.TokenMessage{Email: u.Email, Name: u.Name, Token: issued.Token, Expires: issued.Expires}
	if err := s.notifier.SendResetPassword(ctx, msg); err != nil {
		s.log.ErrorContext(ctx, "reset_password_notify_failed", "user_id", u.ID, "err", err)
	}
}

func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	failed := apperr.Unauthenticated("password_reset_failed", "Password reset failed")

	row, err := s.tokens.Verify(ctx, resetToken, token.TypeResetPassword)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenNotFound) {
			return failed
		}
		return apperr.Internal("Could not reset password", err)
	}

	if err := security.Validate(newPassword); err != nil {
		return apperr.Validation("validation_error", "Password is too long")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal("Could not reset password", err)
	}

	if _, err := s.users.Update(ctx, row.UserID, user.Patch{PasswordHash: &hash}); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return failed
		}
		return apperr.Internal("Could not reset password", err)
	}

	if err := s.tokens.RevokeAllOfType(ctx, row.UserID, token.TypeResetPassword); err != nil {
		return apperr.Internal("Could not reset password", err)
	}

	s.log.InfoContext(ctx, "password_reset", "user_id", row.UserID)
	return nil
}

func (s *AuthService) SendVerificationEmail(ctx context.Context, u user.User) error {
	issued, err := s.tokens.Issue(ctx, u.ID, token.TypeVerifyEmail, 0)
	if err != nil {
		return apperr.Internal("Could not send verification email", err)
	}

	msg := notifications.TokenMessage{Email: u.Email, Name: u.Name, Token: issued.Token, Expires: issued.Expires}
	if err := s.notifier.SendVerifyEmail(ctx, msg); err != nil {
		return apperr.Internal("Could not send verification email", err)
	}

	return nil
}

func (s *AuthService) VerifyEmail(ctx context.Context, verifyToken string) error {
	failed := apperr.Unauthenticated("email_verification_failed", "Email verification failed")

	row, err := s.tokens.Verify(ctx, verifyToken, token.TypeVerifyEmail)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrTokenNotFound) {
			return failed
		}
		return apperr.Internal("Could not verify email", err)
	}

	if err := s.tokens.RevokeAllOfType(ctx, row.UserID, token.TypeVerifyEmail); err != nil {
		return apperr.Internal("Could not verify email", err)
	}

	verifiedAt := s.now()
	if _, err := s.users.Update(ctx, row.UserID, user.Patch{EmailVerified: &verifiedAt}); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return failed
		}
		return apperr.Internal("Could not verify email", err)
	}

	return nil
}

func mapUserWriteErr(err error, internalMsg string) error {
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		return apperr.Conflict("email_taken", "Email already taken")
	case errors.Is(err, user.ErrUsernameTaken):
		return apperr.Conflict("username_taken", "Username already taken")
	case errors.Is(err, user.ErrNotFound):
		return apperr.NotFound("user_not_found", "User not found")
	default:
		return apperr.Internal(internalMsg, err)
	}
}
