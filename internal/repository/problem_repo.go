package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// ProblemRepository resolves the problems submissions target.
type ProblemRepository interface {
	GetVisible(ctx context.Context, id uint, contestID *uint) (models.Problem, error)
	GetVisibleByDisplayID(ctx context.Context, displayID string, contestID *uint) (models.Problem, error)
}

type problemRepository struct {
	db *gorm.DB
}

// NewProblemRepository constructs a gorm backed problem repository.
func NewProblemRepository(db *gorm.DB) ProblemRepository {
	return &problemRepository{db: db}
}

// scoped limits the query to visible problems of one contest, or to
// problems outside any contest when contestID is nil.
func (r *problemRepository) scoped(ctx context.Context, contestID *uint) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Problem{}).Where("visible = ?", true)
	if contestID == nil {
		return query.Where("contest_id IS NULL")
	}
	return query.Where("contest_id = ?", *contestID)
}

func (r *problemRepository) GetVisible(ctx context.Context, id uint, contestID *uint) (models.Problem, error) {
	var problem models.Problem
	if err := r.scoped(ctx, contestID).Where("id = ?", id).First(&problem).Error; err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) GetVisibleByDisplayID(ctx context.Context, displayID string, contestID *uint) (models.Problem, error) {
	var problem models.Problem
	if err := r.scoped(ctx, contestID).Where("display_id = ?", displayID).First(&problem).Error; err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}
