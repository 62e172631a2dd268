package repository

import (
	"context"

	"settlement-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository reads users and their saved addresses.
type UserRepository interface {
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindAddress(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := conn(ctx, r.db).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) FindAddress(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	var a models.Address
	if err := conn(ctx, r.db).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
