package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms/internal/model"
)

// UserRepository defines persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	IncrementXP(ctx context.Context, id uuid.UUID, amount int) error
	Stats(ctx context.Context) (*model.UserStats, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return r.updateColumn(ctx, id, "role", role)
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.updateColumn(ctx, id, "password_hash", hash)
}

// IncrementXP adds amount in a single statement so concurrent awards are not lost.
func (r *userRepository) IncrementXP(ctx context.Context, id uuid.UUID, amount int) error {
	return r.updateColumn(ctx, id, "xp", gorm.Expr("xp + ?", amount))
}

func (r *userRepository) updateColumn(ctx context.Context, id uuid.UUID, column string, value interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepository) Stats(ctx context.Context) (*model.UserStats, error) {
	var rows []struct {
		Role  model.Role
		Count int64
		XP    int64
	}
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Select("role, COUNT(*) AS count, COALESCE(SUM(xp), 0) AS xp").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &model.UserStats{ByRole: make(map[model.Role]int64, len(rows))}
	for _, row := range rows {
		stats.ByRole[row.Role] = row.Count
		stats.Total += row.Count
		stats.TotalXP += row.XP
	}
	return stats, nil
}
