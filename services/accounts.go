package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oscarbot/gateway-service/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AccountStore manages the gateway-managed user accounts.
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore creates the store and migrates the users table.
func NewAccountStore(db *gorm.DB) *AccountStore {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		slog.Warn("Failed to auto-migrate users table", "error", err)
	}
	return &AccountStore{db: db}
}

// LoadByName loads a user account by name. Returns (nil, nil) when no such
// account exists. Leading and trailing whitespace in the name is ignored.
func (s *AccountStore) LoadByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("name = ?", strings.TrimSpace(name)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", name, err)
	}
	return &user, nil
}

// Create persists a new user account.
func (s *AccountStore) Create(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user %q: %w", user.Name, err)
	}
	return nil
}

// Block deactivates a user account.
func (s *AccountStore) Block(ctx context.Context, user *models.User) error {
	user.Active = false
	if err := s.db.WithContext(ctx).Model(user).Update("active", false).Error; err != nil {
		return fmt.Errorf("failed to block user %q: %w", user.Name, err)
	}
	return nil
}

// SetPassword hashes and stores the given password on the user.
func (s *AccountStore) SetPassword(user *models.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Pass = string(hash)
	return nil
}

// CheckPassword verifies a candidate password against the stored hash.
func (s *AccountStore) CheckPassword(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Pass), []byte(strings.TrimSpace(password))) == nil
}
