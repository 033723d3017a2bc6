package models

import (
	"time"

	"gorm.io/datatypes"
)

// ContestStatus describes where a contest is in its lifecycle.
type ContestStatus string

const (
	ContestStatusNotStarted ContestStatus = "not_started"
	ContestStatusUnderway   ContestStatus = "underway"
	ContestStatusEnded      ContestStatus = "ended"
)

// Contest carries the contest settings consulted while admitting and listing submissions.
type Contest struct {
	ID              uint                        `gorm:"primaryKey" json:"id"`
	Title           string                      `gorm:"size:255;not null" json:"title"`
	Visible         bool                        `gorm:"not null" json:"visible"`
	Password        string                      `gorm:"size:64" json:"-"`
	RuleType        string                      `gorm:"size:8;not null;default:ACM" json:"rule_type"`
	RealTimeRank    bool                        `gorm:"not null" json:"real_time_rank"`
	AllowedIPRanges datatypes.JSONSlice[string] `json:"allowed_ip_ranges"`
	StartTime       time.Time                   `gorm:"not null" json:"start_time"`
	EndTime         time.Time                   `gorm:"not null" json:"end_time"`
	LectureID       *uint                       `gorm:"index" json:"lecture_id"`
	CreatedByID     uint                        `gorm:"not null;default:0" json:"created_by_id"`
	CreatedAt       time.Time                   `json:"create_time"`
	UpdatedAt       time.Time                   `json:"-"`
}

// Status derives the contest lifecycle state at the given instant.
func (c Contest) Status(now time.Time) ContestStatus {
	switch {
	case now.Before(c.StartTime):
		return ContestStatusNotStarted
	case now.After(c.EndTime):
		return ContestStatusEnded
	default:
		return ContestStatusUnderway
	}
}

// PasswordProtected reports whether participants must unlock the contest first.
func (c Contest) PasswordProtected() bool {
	return c.Password != ""
}
