package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms/internal/cache"
	apperrors "lms/internal/errors"
	"lms/internal/logging"
	"lms/internal/model"
	"lms/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// UserService exposes user profile and administration operations.
type UserService interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	ChangeRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.User, error)
	AwardXP(ctx context.Context, id uuid.UUID, amount int) (*model.User, error)
	Stats(ctx context.Context) (*model.UserStats, error)
}

type userService struct {
	repo  repository.UserRepository
	cache *cache.Client
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache *cache.Client) UserService {
	return &userService{repo: repo, cache: cache}
}

func (s *userService) cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("user:%s", id)
}

func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
		var cached model.User
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	// PasswordHash is excluded from JSON, so the cached copy never holds it.
	if payload, err := json.Marshal(user); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(id), payload, userCacheTTL)
	}
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// ChangeRole updates a user's role. Tokens already issued keep the old role
// until they expire.
func (s *userService) ChangeRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, apperrors.Validation("role must be STUDENT, TEACHER or ADMIN")
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))

	logging.FromContext(ctx).Info("user role changed", "user_id", id.String(), "role", string(role))
	return s.GetUser(ctx, id)
}

func (s *userService) AwardXP(ctx context.Context, id uuid.UUID, amount int) (*model.User, error) {
	if amount <= 0 {
		return nil, apperrors.Validation("xp amount must be positive")
	}
	if err := s.repo.IncrementXP(ctx, id, amount); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("award xp: %w", err)
	}
	_ = s.cache.Delete(ctx, s.cacheKey(id))

	logging.FromContext(ctx).Info("xp awarded", "user_id", id.String(), "amount", amount)
	return s.GetUser(ctx, id)
}

func (s *userService) Stats(ctx context.Context) (*model.UserStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}
