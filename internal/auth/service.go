package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/config"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
)

type Permission string

const (
	PermOperator   Permission = "operator"
	PermTechnician Permission = "technician"
	PermAdmin      Permission = "admin"
)

type AuthService struct {
	store           *MemoryStore
	jwtHandler      *JWTHandler
	passwordHasher  *PasswordHasher
	machineTokenGen *MachineTokenGenerator
	maxAttempts     int
	lockDuration    time.Duration
	logger          *zap.Logger
}

func NewAuthService(store *MemoryStore, cfg config.AuthConfig, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:           store,
		jwtHandler:      NewJWTHandler(cfg.GetJWTSecret(), cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		passwordHasher:  NewPasswordHasher(),
		machineTokenGen: NewMachineTokenGenerator(),
		maxAttempts:     cfg.MaxFailedLoginAttempts,
		lockDuration:    cfg.AccountLockDuration,
		logger:          logger,
	}
}

// LoginUser authenticates a user and returns tokens
func (a *AuthService) LoginUser(username, password, ipAddress string) (accessToken, refreshToken string, err error) {
	user, err := a.store.GetUserByUsername(username)
	if err != nil {
		a.logAuthEvent("user_login_failed", username, ipAddress, "user not found")
		return "", "", ErrInvalidCredentials
	}

	// Check if account is locked
	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		a.logAuthEvent("user_login_failed", username, ipAddress, "account locked")
		return "", "", fmt.Errorf("%w until %s", ErrAccountLocked, user.LockedUntil.Format(time.RFC3339))
	}

	// Verify password
	valid, err := a.passwordHasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !valid {
		a.store.RecordFailedLogin(user.ID, a.maxAttempts, a.lockDuration)
		a.logAuthEvent("user_login_failed", username, ipAddress, "invalid password")
		return "", "", ErrInvalidCredentials
	}

	a.store.RecordSuccessfulLogin(user.ID)

	accessToken, refreshToken, err = a.issueTokens(user)
	if err != nil {
		return "", "", err
	}

	a.logAuthEvent("user_login_success", username, ipAddress, "")
	return accessToken, refreshToken, nil
}

// RefreshAccessToken generates new access token from refresh token. The old
// refresh token is revoked.
func (a *AuthService) RefreshAccessToken(refreshToken string) (string, string, error) {
	userID, err := a.store.ConsumeRefreshToken(a.hashRefreshToken(refreshToken))
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	user, err := a.store.GetUserByID(userID)
	if err != nil {
		return "", "", fmt.Errorf("user not found: %w", err)
	}

	return a.issueTokens(user)
}

// RevokeRefreshToken revokes a refresh token
func (a *AuthService) RevokeRefreshToken(refreshToken string) {
	a.store.RevokeRefreshToken(a.hashRefreshToken(refreshToken))
}

func (a *AuthService) issueTokens(user User) (string, string, error) {
	accessToken, err := a.jwtHandler.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := a.jwtHandler.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := time.Now().Add(a.jwtHandler.refreshTokenTTL)
	a.store.StoreRefreshToken(user.ID, a.hashRefreshToken(refreshToken), expiresAt)

	return accessToken, refreshToken, nil
}

// ValidateMachineToken validates a machine token and returns permissions
func (a *AuthService) ValidateMachineToken(token, ipAddress string) ([]Permission, error) {
	if !a.machineTokenGen.ValidateTokenFormat(token) {
		return nil, fmt.Errorf("invalid token format")
	}

	machineToken, err := a.store.GetMachineTokenByHash(a.machineTokenGen.HashToken(token))
	if err != nil {
		a.logAuthEvent("machine_token_failed", "", ipAddress, "token not found")
		return nil, fmt.Errorf("invalid token")
	}

	a.logAuthEvent("machine_token_success", machineToken.Name, ipAddress, "")

	permissions := make([]Permission, len(machineToken.Permissions))
	for i, p := range machineToken.Permissions {
		permissions[i] = Permission(p)
	}
	return permissions, nil
}

// ValidateToken validates any token (JWT or Machine Token)
func (a *AuthService) ValidateToken(token, ipAddress string) ([]Permission, error) {
	// Try JWT first
	if claims, err := a.jwtHandler.ValidateAccessToken(token); err == nil {
		return RoleToPermissions(claims.Role), nil
	}

	// Try Machine Token
	return a.ValidateMachineToken(token, ipAddress)
}

// ListUsers returns all configured accounts.
func (a *AuthService) ListUsers() []User {
	return a.store.ListUsers()
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (a *AuthService) AccessTokenTTL() time.Duration {
	return a.jwtHandler.AccessTokenTTL()
}

// GetUser returns the user behind a username.
func (a *AuthService) GetUser(username string) (User, error) {
	return a.store.GetUserByUsername(username)
}

// RoleToPermissions expands a role into the permissions it grants.
func RoleToPermissions(role string) []Permission {
	switch role {
	case "admin":
		return []Permission{PermOperator, PermTechnician, PermAdmin}
	case "technician":
		return []Permission{PermOperator, PermTechnician}
	default:
		return []Permission{PermOperator}
	}
}

func (a *AuthService) hashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func (a *AuthService) logAuthEvent(eventType, subject, ip, reason string) {
	fields := []zap.Field{
		zap.String("event", eventType),
		zap.String("subject", subject),
		zap.String("ip", ip),
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
		a.logger.Warn("Auth event", fields...)
		return
	}
	a.logger.Info("Auth event", fields...)
}
