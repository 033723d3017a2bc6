package service

import (
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/models"
)

// contestScope selects the access rules applied to a contest.
type contestScope int

const (
	scopeProblems contestScope = iota
	scopeSubmissions
)

// checkContestAccess applies the contest entry rules shared by submitting
// and by contest listings.
func checkContestAccess(actor Actor, contest *models.Contest, scope contestScope, now time.Time) error {
	if !actor.IsAuthenticated() {
		return ErrNoPermission.WithMessage("Please login first")
	}

	admin := actor.IsContestAdmin(contest)
	if !contest.Visible && !admin {
		return ErrContestNotFound
	}
	if admin {
		return nil
	}

	if contest.PasswordProtected() && !actor.HasUnlocked(contest.ID) {
		return ErrContestPasswordRequired
	}

	status := contest.Status(now)
	if status == models.ContestStatusNotStarted {
		return ErrContestNotStarted
	}

	if scope == scopeSubmissions && status == models.ContestStatusUnderway &&
		contest.RuleType == models.RuleTypeOI && !contest.RealTimeRank {
		return ErrNoPermission.WithMessage("No permission to get submissions")
	}

	return nil
}

// ipAllowed reports whether ip falls inside one of ranges. Entries may carry
// host bits ("10.0.0.7/8") or be bare addresses; unparsable entries are skipped.
func ipAllowed(ip string, ranges []string, logger zerolog.Logger) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, raw := range ranges {
		prefix, err := parseRange(raw)
		if err != nil {
			logger.Warn().Err(err).Str("range", raw).Msg("skipping invalid contest ip range")
			continue
		}
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseRange(raw string) (netip.Prefix, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "/") {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		addr = addr.Unmap()
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}

	prefix, err := netip.ParsePrefix(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(prefix.Addr().Unmap(), prefix.Bits()).Masked(), nil
}
