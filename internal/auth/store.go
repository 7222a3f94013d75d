package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/config"
	"github.com/google/uuid"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrTokenNotFound        = errors.New("token not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found or expired")
)

// userNamespace derives stable user ids from usernames.
var userNamespace = uuid.MustParse("6f1c9c52-2b8e-4d3e-9a55-0f8c6a1d7e21")

type User struct {
	ID                  uuid.UUID  `json:"id"`
	Username            string     `json:"username"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	FailedLoginAttempts int        `json:"-"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
}

type MachineToken struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	TokenHash   string     `json:"-"`
	Permissions []string   `json:"permissions"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

type refreshToken struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// MemoryStore keeps users and machine tokens from the configuration and
// refresh tokens in memory. Refresh tokens do not survive a restart.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*User
	byName        map[string]uuid.UUID
	machineTokens map[string]*MachineToken
	refreshTokens map[string]refreshToken
	now           func() time.Time
}

func NewMemoryStore(cfg config.AuthConfig) *MemoryStore {
	s := &MemoryStore{
		users:         make(map[uuid.UUID]*User),
		byName:        make(map[string]uuid.UUID),
		machineTokens: make(map[string]*MachineToken),
		refreshTokens: make(map[string]refreshToken),
		now:           time.Now,
	}

	for _, u := range cfg.Users {
		id := uuid.NewSHA1(userNamespace, []byte(u.Username))
		s.users[id] = &User{ID: id, Username: u.Username, PasswordHash: u.PasswordHash, Role: u.Role}
		s.byName[u.Username] = id
	}
	for _, t := range cfg.MachineTokens {
		s.machineTokens[t.TokenHash] = &MachineToken{
			ID:          uuid.NewSHA1(userNamespace, []byte("token:"+t.Name)),
			Name:        t.Name,
			TokenHash:   t.TokenHash,
			Permissions: append([]string(nil), t.Permissions...),
		}
	}
	return s
}

func (s *MemoryStore) GetUserByUsername(username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *s.users[id], nil
}

func (s *MemoryStore) GetUserByID(id uuid.UUID) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (s *MemoryStore) ListUsers() []User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out
}

// RecordFailedLogin increments the failure counter and locks the account
// once maxAttempts is reached.
func (s *MemoryStore) RecordFailedLogin(id uuid.UUID, maxAttempts int, lockFor time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return
	}
	u.FailedLoginAttempts++
	if maxAttempts > 0 && u.FailedLoginAttempts >= maxAttempts {
		until := s.now().Add(lockFor)
		u.LockedUntil = &until
		u.FailedLoginAttempts = 0
	}
}

func (s *MemoryStore) RecordSuccessfulLogin(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		now := s.now()
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLogin = &now
	}
}

func (s *MemoryStore) StoreRefreshToken(userID uuid.UUID, tokenHash string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[tokenHash] = refreshToken{userID: userID, expiresAt: expiresAt}
}

// ConsumeRefreshToken returns the owner of a valid refresh token and revokes it.
func (s *MemoryStore) ConsumeRefreshToken(tokenHash string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refreshTokens[tokenHash]
	delete(s.refreshTokens, tokenHash)
	if !ok || s.now().After(t.expiresAt) {
		return uuid.Nil, ErrRefreshTokenNotFound
	}
	return t.userID, nil
}

func (s *MemoryStore) RevokeRefreshToken(tokenHash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, tokenHash)
}

// GetMachineTokenByHash returns the token and marks it as used.
func (s *MemoryStore) GetMachineTokenByHash(tokenHash string) (MachineToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.machineTokens[tokenHash]
	if !ok {
		return MachineToken{}, ErrTokenNotFound
	}
	now := s.now()
	t.LastUsed = &now
	return *t, nil
}
