package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"webdiary-server/internal/observability"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// UserStore is the credential store consulted by the service.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, username, passwordHash string, role Role) (int64, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	UpdateLastLogin(ctx context.Context, id int64) error
	UpsertAdmin(ctx context.Context, username, passwordHash string) error
}

// Service orchestrates login, registration and password changes.
type Service struct {
	store   UserStore
	codec   *Codec
	limiter *RateLimiter
	logger  *observability.Logger
	now     func() time.Time
}

func NewService(store UserStore, codec *Codec, limiter *RateLimiter, logger *observability.Logger) *Service {
	return &Service{
		store:   store,
		codec:   codec,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// Login authenticates the user and mints a session token. clientID
// keys the failure counter, usually the source address. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password, clientID string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		return LoginResult{}, &ValidationError{Message: "username must be at least 3 characters long"}
	}
	if len(password) < 4 {
		return LoginResult{}, &ValidationError{Message: "password must be at least 4 characters long"}
	}

	if allowed, retryAfter := s.limiter.CheckAllowed(clientID); !allowed {
		return LoginResult{}, ErrLoginLocked{RetryAfter: retryAfter}
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.limiter.RecordFailure(clientID)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("look up user: %w", err)
	}

	valid, legacy := verifyPassword(password, user.Password)
	if !valid {
		s.limiter.RecordFailure(clientID)
		return LoginResult{}, ErrInvalidCredentials
	}

	if legacy {
		// One-time migration of a plaintext credential; the next login
		// takes the hash-verification path.
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return LoginResult{}, fmt.Errorf("hash migrated password: %w", err)
		}
		if err := s.store.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
			return LoginResult{}, fmt.Errorf("persist migrated password: %w", err)
		}
		s.logger.Info("legacy_password_migrated", map[string]any{"user_id": user.ID})
	}

	s.limiter.RecordSuccess(clientID)

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		return LoginResult{}, fmt.Errorf("update last login: %w", err)
	}

	token, expiresIn, err := s.codec.Mint(user.ID, user.Username, user.Role)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		User:      UserInfo{ID: user.ID, Username: user.Username, Role: user.Role},
		Token:     token,
		ExpiresIn: expiresIn,
		TokenType: "Bearer",
	}, nil
}

// Register creates a new viewer-user account.
func (s *Service) Register(ctx context.Context, username, password string) (RegisterResult, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return RegisterResult{}, &ValidationError{Message: "username is required"}
	case len(username) < 3:
		return RegisterResult{}, &ValidationError{Message: "username must be at least 3 characters long"}
	case len(username) > 50:
		return RegisterResult{}, &ValidationError{Message: "username must be at most 50 characters long"}
	case !usernameRegex.MatchString(username):
		return RegisterResult{}, &ValidationError{Message: "username may only contain letters, digits, underscores and hyphens"}
	}
	switch {
	case password == "":
		return RegisterResult{}, &ValidationError{Message: "password is required"}
	case len(password) < 4:
		return RegisterResult{}, &ValidationError{Message: "password must be at least 4 characters long"}
	case len(password) > 255:
		return RegisterResult{}, &ValidationError{Message: "password must be at most 255 characters long"}
	}

	// Weak passwords are tolerated for this internal tool, just noted.
	if passwordStrength(password) < 2 {
		s.logger.Info("weak_password_registered", map[string]any{"username": username})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.Create(ctx, username, string(hash), RoleViewer)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return RegisterResult{}, ErrUsernameTaken
		}
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user_registered", map[string]any{"user_id": id, "username": username})

	return RegisterResult{UserID: id, Username: username, Role: RoleViewer}, nil
}

// ChangePassword replaces the acting user's password after verifying
// the current one. Legacy plaintext records verify without a
// rehash-on-read since the new hash is written right after.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) (PasswordChangeResult, error) {
	switch {
	case currentPassword == "":
		return PasswordChangeResult{}, &ValidationError{Message: "current password is required"}
	case newPassword == "":
		return PasswordChangeResult{}, &ValidationError{Message: "new password is required"}
	case len(newPassword) < 4:
		return PasswordChangeResult{}, &ValidationError{Message: "new password must be at least 4 characters long"}
	case len(newPassword) > 255:
		return PasswordChangeResult{}, &ValidationError{Message: "new password must be at most 255 characters long"}
	case newPassword == currentPassword:
		return PasswordChangeResult{}, &ValidationError{Message: "new password must differ from the current one"}
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return PasswordChangeResult{}, ErrUserNotFound
		}
		return PasswordChangeResult{}, fmt.Errorf("look up user: %w", err)
	}

	if valid, _ := verifyPassword(currentPassword, user.Password); !valid {
		s.logger.Info("password_change_rejected", map[string]any{"user_id": user.ID})
		return PasswordChangeResult{}, ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return PasswordChangeResult{}, fmt.Errorf("hash new password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return PasswordChangeResult{}, fmt.Errorf("persist new password: %w", err)
	}

	s.logger.Info("password_changed", map[string]any{"user_id": user.ID})

	return PasswordChangeResult{
		UserID:    user.ID,
		Username:  user.Username,
		ChangedAt: s.now().UTC(),
	}, nil
}

// BootstrapAdmin ensures the configured admin account exists. A no-op
// when neither variable is set; both are required together.
func (s *Service) BootstrapAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	if username == "" && password == "" {
		return nil
	}
	if username == "" || password == "" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return s.store.UpsertAdmin(ctx, username, string(hash))
}

// verifyPassword checks the submitted password against the stored
// value: bcrypt first, then a constant-time equality check for legacy
// plaintext records still awaiting migration.
func verifyPassword(password, stored string) (valid, legacyPlaintext bool) {
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil {
		return true, false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1 {
		return true, true
	}
	return false, false
}

func passwordStrength(password string) int {
	strength := 0
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			strength++
		}
	}
	if len(password) >= 8 {
		strength++
	}
	return strength
}
