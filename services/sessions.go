package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oscarbot/gateway-service/models"
)

// SessionName is the logical session cookie name reported to API consumers.
const SessionName = "GATEWAYSESS"

// defaultSessionTTL bounds Redis-held sessions; the in-memory store keeps
// sessions until logout or process exit.
const defaultSessionTTL = 24 * time.Hour

// Session is one authenticated gateway session.
type Session struct {
	ID        string    `json:"id"`
	UID       uint      `json:"uid"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionManager creates, resolves and deletes gateway sessions.
type SessionManager interface {
	// Create opens a fresh session for the user. A fresh session id is
	// always generated so a login never reuses a pre-login id.
	Create(ctx context.Context, user *models.User) (*Session, error)

	// Get resolves a session by id. Returns (nil, nil) for unknown ids.
	Get(ctx context.Context, id string) (*Session, error)

	// DeleteForUser removes every session belonging to the user.
	DeleteForUser(ctx context.Context, uid uint) error
}

// MemorySessionStore is the default in-process session manager.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory session manager.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]*Session{}}
}

// Create opens a fresh session for the user.
func (s *MemorySessionStore) Create(_ context.Context, user *models.User) (*Session, error) {
	session := &Session{
		ID:        uuid.New().String(),
		UID:       user.UID,
		Username:  user.Name,
		Roles:     user.RoleList(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return session, nil
}

// Get resolves a session by id.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id], nil
}

// DeleteForUser removes every session belonging to the user.
func (s *MemorySessionStore) DeleteForUser(_ context.Context, uid uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if session.UID == uid {
			delete(s.sessions, id)
		}
	}
	return nil
}

// RedisSessionStore keeps sessions in Redis so they survive restarts and are
// shared across instances.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a Redis-backed session manager and verifies
// the connection.
func NewRedisSessionStore(ctx context.Context, addr, username, password string, db int) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisSessionStore{client: client, ttl: defaultSessionTTL}, nil
}

// Close releases the Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func sessionKey(id string) string {
	return "gateway:session:" + id
}

func userSessionsKey(uid uint) string {
	return fmt.Sprintf("gateway:user_sessions:%d", uid)
}

// Create opens a fresh session for the user.
func (s *RedisSessionStore) Create(ctx context.Context, user *models.User) (*Session, error) {
	session := &Session{
		ID:        uuid.New().String(),
		UID:       user.UID,
		Username:  user.Name,
		Roles:     user.RoleList(),
		CreatedAt: time.Now().UTC(),
	}

	encoded, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), encoded, s.ttl)
	pipe.SAdd(ctx, userSessionsKey(user.UID), session.ID)
	pipe.Expire(ctx, userSessionsKey(user.UID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Get resolves a session by id.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

// DeleteForUser removes every session belonging to the user.
func (s *RedisSessionStore) DeleteForUser(ctx context.Context, uid uint) error {
	ids, err := s.client.SMembers(ctx, userSessionsKey(uid)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, id := range ids {
		pipe.Del(ctx, sessionKey(id))
	}
	pipe.Del(ctx, userSessionsKey(uid))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// CSRFSigner mints and verifies the HMAC-signed tokens handed out at login.
type CSRFSigner struct {
	secret []byte
}

// NewCSRFSigner creates a signer for the given shared secret.
func NewCSRFSigner(secret string) *CSRFSigner {
	return &CSRFSigner{secret: []byte(secret)}
}

// Token mints a signed token bound to the session id.
func (s *CSRFSigner) Token(sessionID string) (string, error) {
	claims := jwt.MapClaims{
		"sid": sessionID,
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign csrf token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and returns the bound session id.
func (s *CSRFSigner) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid csrf token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid csrf token claims")
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", fmt.Errorf("csrf token carries no session")
	}
	return sid, nil
}
