package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"booklending/internal/auth"
	"booklending/internal/models"
	"booklending/internal/repositories"
)

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	Token  string      `json:"token"`
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
}

// AuthService issues and resolves opaque bearer tokens.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, who auth.Identity) error
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
	BootstrapAdmin(ctx context.Context, email, password string) error
}

type authService struct {
	db         *gorm.DB
	userRepo   repositories.UserRepository
	tokenRepo  repositories.TokenRepository
	bcryptCost int
}

func NewAuthService(db *gorm.DB, userRepo repositories.UserRepository, tokenRepo repositories.TokenRepository, bcryptCost int) AuthService {
	return &authService{db: db, userRepo: userRepo, tokenRepo: tokenRepo, bcryptCost: bcryptCost}
}

// Login checks the credentials and returns the user's token, creating one on
// first login.
func (s *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var (
		user   *models.User
		result *LoginResult
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = s.userRepo.GetByEmail(tx, email)
		if err != nil {
			if isNotFound(err) {
				return ErrInvalidCredentials
			}
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			return ErrInvalidCredentials
		}

		token, err := s.tokenRepo.GetByUser(tx, user.ID)
		if err != nil && !isNotFound(err) {
			return err
		}
		if token == nil {
			key, err := newTokenKey()
			if err != nil {
				return err
			}
			token = &models.AuthToken{Key: key, UserID: user.ID}
			if err := s.tokenRepo.Create(tx, token); err != nil {
				return err
			}
		}

		result = newLoginResult(user, token)
		return nil
	})
	if isUniqueViolation(err) {
		// A concurrent first login created the token; use that one.
		token, rerr := s.tokenRepo.GetByUser(s.db.WithContext(ctx), user.ID)
		if rerr != nil {
			return nil, asServiceError("Login: reload token", rerr)
		}
		result, err = newLoginResult(user, token), nil
	}
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			log.Printf("[INFO] Login: failed attempt for %q", email)
		}
		return nil, asServiceError("Login", err)
	}
	log.Printf("[INFO] Login: user %s (%s) logged in", result.UserID, result.Role)
	return result, nil
}

func newLoginResult(user *models.User, token *models.AuthToken) *LoginResult {
	return &LoginResult{
		Token:  token.Key,
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
	}
}

// Logout revokes the caller's token.
func (s *authService) Logout(ctx context.Context, who auth.Identity) error {
	if err := authorize(auth.OpLogout, who); err != nil {
		return err
	}
	if err := s.tokenRepo.DeleteByUser(s.db.WithContext(ctx), who.UserID); err != nil {
		return asServiceError("Logout", err)
	}
	log.Printf("[INFO] Logout: user %s logged out", who.UserID)
	return nil
}

// Authenticate resolves a token to the identity that owns it.
func (s *authService) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, ErrUnauthenticated
	}
	t, err := s.tokenRepo.GetByKey(s.db.WithContext(ctx), token)
	if err != nil {
		if isNotFound(err) {
			return auth.Identity{}, ErrUnauthenticated
		}
		return auth.Identity{}, asServiceError("Authenticate", err)
	}
	role, ok := models.ParseRole(string(t.User.Role))
	if !ok {
		log.Printf("[WARN] Authenticate: user %s has unknown role %q", t.UserID, t.User.Role)
		return auth.Identity{}, ErrUnauthenticated
	}
	return auth.Identity{UserID: t.UserID, Email: t.User.Email, Role: role}, nil
}

// BootstrapAdmin makes sure an administrator with the given email exists.
// An existing account is left untouched.
func (s *authService) BootstrapAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return ValidationError("Admin email and password are required.")
	}

	db := s.db.WithContext(ctx)
	if _, err := s.userRepo.GetByEmail(db, email); err == nil {
		return nil
	} else if !isNotFound(err) {
		return asServiceError("BootstrapAdmin", err)
	}

	hash, err := hashPassword(password, s.bcryptCost)
	if err != nil {
		return asServiceError("BootstrapAdmin", err)
	}
	user := &models.User{Email: email, PasswordHash: hash, Role: models.RoleAdmin}
	if err := s.userRepo.Create(db, user); err != nil {
		return asServiceError("BootstrapAdmin", err)
	}
	log.Printf("[INFO] BootstrapAdmin: created administrator %s (id=%s)", email, user.ID)
	return nil
}

// newTokenKey returns 40 hex characters of randomness.
func newTokenKey() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
