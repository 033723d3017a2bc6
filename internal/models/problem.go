package models

import (
	"time"

	"gorm.io/datatypes"
)

// Rule types shared by problems and contests.
const (
	RuleTypeACM = "ACM"
	RuleTypeOI  = "OI"
)

// Problem is the judge-side view of a problem submissions target.
type Problem struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	DisplayID       string                      `gorm:"size:32;not null;index" json:"_id"`
	ContestID       *uint                       `gorm:"index" json:"contest_id"`
	Title           string                      `gorm:"size:255;not null" json:"title"`
	Visible         bool                        `gorm:"not null" json:"visible"`
	Languages       datatypes.JSONSlice[string] `json:"languages"`
	RuleType        string                      `gorm:"size:8;not null;default:ACM" json:"rule_type"`
	ShareSubmission bool                        `gorm:"not null;default:false" json:"share_submission"`
	CreatedByID     uint                        `gorm:"not null;default:0" json:"created_by_id"`
	CreatedAt       time.Time                   `json:"create_time"`
	UpdatedAt       time.Time                   `json:"-"`
}

// AllowsLanguage reports whether language is in the problem's allow-list.
func (p Problem) AllowsLanguage(language string) bool {
	for _, allowed := range p.Languages {
		if allowed == language {
			return true
		}
	}
	return false
}
