package models

import (
	"time"

	"gorm.io/datatypes"
)

// Dispatch states track the handoff of a submission to the judge.
const (
	DispatchStatePending     = "pending"
	DispatchStateDispatching = "dispatching"
	DispatchStateDispatched  = "dispatched"
	// DispatchStateAbandoned marks a record whose dispatch was reported as failed
	// to the submitter but could not be removed. It is never judged or listed.
	DispatchStateAbandoned = "abandoned"
)

// Submission represents a single judge attempt for a problem.
type Submission struct {
	ID               string            `gorm:"primaryKey;size:36" json:"id"`
	ProblemID        uint              `gorm:"not null;index" json:"problem_id"`
	ContestID        *uint             `gorm:"index" json:"contest_id"`
	LectureID        *uint             `gorm:"index" json:"lecture_id"`
	UserID           uint              `gorm:"not null;index" json:"user_id"`
	Username         string            `gorm:"size:64;not null;index" json:"username"`
	Language         string            `gorm:"size:32;not null" json:"language"`
	Code             string            `gorm:"type:text;not null" json:"code"`
	Result           int               `gorm:"not null;index" json:"result"`
	Info             datatypes.JSONMap `json:"info"`
	StatisticInfo    datatypes.JSONMap `json:"statistic_info"`
	Shared           bool              `gorm:"not null;default:false" json:"shared"`
	IP               string            `gorm:"size:64" json:"ip"`
	DispatchState    string            `gorm:"size:16;not null;default:pending;index" json:"-"`
	DispatchAttempts int               `gorm:"not null;default:0" json:"-"`
	DispatchedAt     *time.Time        `json:"-"`
	CreatedAt        time.Time         `gorm:"index" json:"create_time"`
	UpdatedAt        time.Time         `json:"-"`
	Problem          Problem           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Contest          *Contest          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
}

// InContest reports whether the submission was made inside a contest.
func (s Submission) InContest() bool {
	return s.ContestID != nil
}

// IsDispatched reports whether the judge has accepted the submission.
func (s Submission) IsDispatched() bool {
	return s.DispatchState == DispatchStateDispatched
}
