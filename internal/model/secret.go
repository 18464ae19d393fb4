package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Secret is an encrypted configuration value scoped to a deployment
// environment. Value only ever holds ciphertext.
type Secret struct {
	ID          uuid.UUID `json:"-" gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null;uniqueIndex:idx_secrets_name_env"`
	Environment string    `json:"environment" gorm:"size:64;not null;uniqueIndex:idx_secrets_name_env"`
	Value       string    `json:"-" gorm:"type:text;not null"`
	CreatedAt   time.Time `json:"createdAt"`
	RotatedAt   time.Time `json:"rotatedAt"`
}

// BeforeCreate sets UUID before creating the record.
func (s *Secret) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SecretMetadata is the listing projection of a secret. It has no value field.
type SecretMetadata struct {
	Name        string    `json:"name"`
	Environment string    `json:"environment"`
	CreatedAt   time.Time `json:"createdAt"`
	RotatedAt   time.Time `json:"rotatedAt"`
}
