package service

import (
	"time"

	"github.com/noah-isme/gema-judge/internal/models"
)

// Actor roles.
const (
	RoleRegularUser = "regular_user"
	RoleAdmin       = "admin"
	RoleSuperAdmin  = "super_admin"
)

// Problem permissions granted to admin accounts.
const (
	ProblemPermissionNone = "none"
	ProblemPermissionOwn  = "own"
	ProblemPermissionAll  = "all"
)

// Authentication methods.
const (
	AuthMethodSession = "session"
	AuthMethodAPIKey  = "api_key"
)

// Actor is the already-authenticated caller of a submission operation.
type Actor struct {
	ID                uint
	Username          string
	Role              string
	ProblemPermission string
	AuthMethod        string
	IP                string
	SessionID         string
	UnlockedContests  []uint
}

// IsAuthenticated reports whether the actor represents a logged-in user.
func (a Actor) IsAuthenticated() bool {
	return a.ID != 0
}

// IsAdminRole reports whether the actor holds any admin role.
func (a Actor) IsAdminRole() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// IsSuperAdmin reports whether the actor is a super admin.
func (a Actor) IsSuperAdmin() bool {
	return a.Role == RoleSuperAdmin
}

// CanManageAllProblems reports whether the actor administers every problem.
func (a Actor) CanManageAllProblems() bool {
	return a.IsAdminRole() && a.ProblemPermission == ProblemPermissionAll
}

// IsContestAdmin reports whether the actor created the contest or is a super admin.
func (a Actor) IsContestAdmin(contest *models.Contest) bool {
	if contest == nil || !a.IsAuthenticated() {
		return false
	}
	return contest.CreatedByID == a.ID || a.IsSuperAdmin()
}

// Trusted reports whether the caller bypasses throttling.
func (a Actor) Trusted() bool {
	return a.AuthMethod == AuthMethodAPIKey
}

// HasUnlocked reports whether the actor entered the password of contestID.
func (a Actor) HasUnlocked(contestID uint) bool {
	for _, id := range a.UnlockedContests {
		if id == contestID {
			return true
		}
	}
	return false
}

// problemDetailsVisible reports whether the actor may see problem details such as submission ids.
func (a Actor) problemDetailsVisible(contest *models.Contest, now time.Time) bool {
	if contest == nil {
		return true
	}
	return contest.RuleType == models.RuleTypeACM ||
		contest.Status(now) == models.ContestStatusEnded ||
		a.IsContestAdmin(contest) ||
		contest.RealTimeRank
}
