package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// AutoMigrate creates or updates the tables used by the judge worker.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Contest{}, &models.Problem{}, &models.Submission{})
}
