package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"notification-hub/internal/models"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DirectoryEntry is the public view of a user.
type DirectoryEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserRepository stores directory users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a user with a bcrypt hash of password.
func (r *UserRepository) Create(ctx context.Context, username, password, role string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	if role == "" {
		role = models.RoleMember
	}

	u := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		return models.User{}, fmt.Errorf("create user %q: %w", username, err)
	}
	return u, nil
}

// EnsureUser creates the user unless the username already exists.
// It reports whether a user was created.
func (r *UserRepository) EnsureUser(ctx context.Context, username, password, role string) (bool, error) {
	var existing models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("look up user %q: %w", username, err)
	}
	if _, err := r.Create(ctx, username, password, role); err != nil {
		return false, err
	}
	return true, nil
}

// Authenticate checks username and password.
func (r *UserRepository) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, fmt.Errorf("look up user %q: %w", username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Directory lists every user ordered by username.
func (r *UserRepository) Directory(ctx context.Context) ([]DirectoryEntry, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).Order("username asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]DirectoryEntry, 0, len(users))
	for _, u := range users {
		out = append(out, DirectoryEntry{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	return out, nil
}
