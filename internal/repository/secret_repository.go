package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lms/internal/model"
)

// SecretRepository persists encrypted secrets. It never sees plaintext.
type SecretRepository interface {
	// Upsert inserts the secret or, when (name, environment) exists, replaces
	// its value and rotation timestamp.
	Upsert(ctx context.Context, secret *model.Secret) error
	FindByNameAndEnvironment(ctx context.Context, name, environment string) (*model.Secret, error)
	// ListMetadata returns metadata for one environment, or all when
	// environment is empty.
	ListMetadata(ctx context.Context, environment string) ([]model.SecretMetadata, error)
	Delete(ctx context.Context, name, environment string) error
}

type secretRepository struct {
	db *gorm.DB
}

// NewSecretRepository creates a GORM-backed secret repository.
func NewSecretRepository(db *gorm.DB) SecretRepository {
	return &secretRepository{db: db}
}

func (r *secretRepository) Upsert(ctx context.Context, secret *model.Secret) error {
	now := time.Now().UTC()
	if secret.CreatedAt.IsZero() {
		secret.CreatedAt = now
	}
	secret.RotatedAt = now

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "environment"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "rotated_at"}),
	}).Create(secret).Error
}

func (r *secretRepository) FindByNameAndEnvironment(ctx context.Context, name, environment string) (*model.Secret, error) {
	var secret model.Secret
	err := r.db.WithContext(ctx).
		Where("name = ? AND environment = ?", name, environment).
		First(&secret).Error
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (r *secretRepository) ListMetadata(ctx context.Context, environment string) ([]model.SecretMetadata, error) {
	q := r.db.WithContext(ctx).Model(&model.Secret{}).
		Select("name, environment, created_at, rotated_at")
	if environment != "" {
		q = q.Where("environment = ?", environment)
	}

	var out []model.SecretMetadata
	if err := q.Order("environment, name").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Delete is idempotent: removing a missing secret is not an error.
func (r *secretRepository) Delete(ctx context.Context, name, environment string) error {
	return r.db.WithContext(ctx).
		Where("name = ? AND environment = ?", name, environment).
		Delete(&model.Secret{}).Error
}
