package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// ContestRepository loads contest settings.
type ContestRepository interface {
	GetByID(ctx context.Context, id uint) (models.Contest, error)
}

type contestRepository struct {
	db *gorm.DB
}

// NewContestRepository constructs a gorm backed contest repository.
func NewContestRepository(db *gorm.DB) ContestRepository {
	return &contestRepository{db: db}
}

func (r *contestRepository) GetByID(ctx context.Context, id uint) (models.Contest, error) {
	var contest models.Contest
	if err := r.db.WithContext(ctx).First(&contest, id).Error; err != nil {
		return models.Contest{}, err
	}
	return contest, nil
}
