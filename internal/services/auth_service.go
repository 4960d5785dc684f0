package services

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/somexchange/backend/internal/audit"
	"github.com/somexchange/backend/internal/config"
	"github.com/somexchange/backend/internal/models"
	"github.com/somexchange/backend/internal/store"
	"golang.org/x/crypto/argon2"
)

type AuthService struct {
	store     store.Store
	redis     *redis.Client
	validator *ValidationHelper
	jwt       config.JWTConfig
	argon     config.Argon2Config
	audit     *audit.Logger
	now       func() time.Time
}

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// CreateUserRequest represents a new teller or admin account
type CreateUserRequest struct {
	Username string      `json:"username" validate:"required,alphanum,min=3,max=32"`
	Password string      `json:"password" validate:"required,min=8"`
	Role     models.Role `json:"role" validate:"required,oneof=admin teller"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// Claims carried by bearer tokens. Subject is the username.
type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(st store.Store, redisClient *redis.Client, jwtCfg config.JWTConfig, argonCfg config.Argon2Config, auditLogger *audit.Logger) *AuthService {
	return &AuthService{
		store:     st,
		redis:     redisClient,
		validator: NewValidationHelper(),
		jwt:       jwtCfg,
		argon:     argonCfg,
		audit:     auditLogger,
		now:       time.Now,
	}
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, req.Username)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[AUTH] User not found: %s", req.Username)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !s.verifyPassword(req.Password, user.PasswordHash) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Username)
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	log.Printf("[AUTH] Login successful for %s", user.Username)
	return &AuthResponse{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// Logout revokes tokenString until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if s.redis == nil {
		log.Printf("[AUTH] Redis unavailable, token %s of %s stays valid until expiry", claims.ID, claims.Subject)
		return nil
	}

	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, revokedKey(claims.ID), claims.Subject, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	log.Printf("[AUTH] Token revoked for %s", claims.Subject)
	return nil
}

// Authenticate verifies a bearer token and resolves the caller. The role is
// read from the user record, so a role change or removal applies to tokens
// already issued.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (models.Identity, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	if s.redis != nil {
		n, err := s.redis.Exists(ctx, revokedKey(claims.ID)).Result()
		if err != nil {
			log.Printf("[AUTH] Revocation check failed: %v", err)
		} else if n > 0 {
			return models.Identity{}, fmt.Errorf("%w: token revoked", ErrInvalidCredentials)
		}
	}

	user, err := s.store.GetUser(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[AUTH] Token for unknown user %s rejected", claims.Subject)
		return models.Identity{}, fmt.Errorf("%w: user no longer exists", ErrInvalidCredentials)
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("load user: %w", err)
	}
	if user.Role != claims.Role {
		log.Printf("[AUTH] Role of %s changed from %s to %s since token issue", user.Username, claims.Role, user.Role)
	}
	return models.Identity{Username: user.Username, Role: user.Role}, nil
}

// CreateUser stores a new user with an argon2id password hash.
func (s *AuthService) CreateUser(ctx context.Context, actor models.Identity, req CreateUserRequest) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: creating users requires admin", ErrForbidden)
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if err := s.validator.Validate(&req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUser(ctx, req.Username); err == nil {
		return nil, invalid("Username", "%s already exists", req.Username)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: req.Username, PasswordHash: hash, Role: req.Role}
	if err := s.store.PutUser(ctx, user); err != nil {
		return nil, fmt.Errorf("store user: %w", err)
	}

	log.Printf("[AUTH] User %s created with role %s", user.Username, user.Role)
	s.audit.LogOperation("CREATE_USER", actor, map[string]string{"username": user.Username, "role": string(user.Role)})
	return user, nil
}

func revokedKey(tokenID string) string {
	return "revoked:" + tokenID
}

func (s *AuthService) generateJWT(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(time.Duration(s.jwt.ExpiryHours) * time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString([]byte(s.jwt.SecretKey))
	return signed, expiresAt, err
}

func (s *AuthService) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(s.jwt.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: incomplete token claims", ErrInvalidCredentials)
	}
	return claims, nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	salt := make([]byte, s.argon.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := s.argonKey(password, salt)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func (s *AuthService) verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(hash, s.argonKey(password, salt)) == 1
}

func (s *AuthService) argonKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, s.argon.Time, s.argon.Memory, s.argon.Threads, s.argon.KeyLength)
}
