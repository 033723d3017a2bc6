package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-judge/internal/models"
)

// MaxCodeBytes bounds the size of submitted source code.
const MaxCodeBytes = 1 << 20

// CreateSubmissionRequest is the payload for a new judge submission.
type CreateSubmissionRequest struct {
	ProblemID uint   `json:"problem_id" validate:"required,gt=0"`
	Language  string `json:"language" validate:"required,max=32"`
	Code      string `json:"code" validate:"required,max=1048576"`
	ContestID *uint  `json:"contest_id" validate:"omitempty,gt=0"`
	Captcha   string `json:"captcha" validate:"omitempty,max=16"`
}

// CreateSubmissionResponse is returned once the judge accepted a submission.
// Hidden responses carry no id.
type CreateSubmissionResponse struct {
	SubmissionID string `json:"submission_id,omitempty"`
	Hidden       bool   `json:"-"`
}

// ShareSubmissionRequest toggles the shared flag of a submission.
type ShareSubmissionRequest struct {
	ID     string `json:"id" validate:"required,uuid"`
	Shared bool   `json:"shared"`
}

// SubmissionListQuery describes the listing filters.
type SubmissionListQuery struct {
	Limit     int    `query:"limit" validate:"required,gt=0"`
	Offset    int    `query:"offset" validate:"gte=0"`
	ProblemID string `query:"problem_id" validate:"omitempty,max=32"`
	Myself    bool   `query:"myself"`
	Result    *int   `query:"result" validate:"omitempty,gte=-2,lte=8"`
	Username  string `query:"username" validate:"omitempty,max=64"`
	ContestID *uint  `query:"contest_id"`
}

// SubmissionView is the detail representation of a submission.
type SubmissionView struct {
	ID               string                 `json:"id"`
	ProblemID        uint                   `json:"problem"`
	ProblemDisplayID string                 `json:"problem_id"`
	ContestID        *uint                  `json:"contest_id,omitempty"`
	UserID           uint                   `json:"user_id"`
	Username         string                 `json:"username"`
	Language         string                 `json:"language"`
	Code             string                 `json:"code"`
	Result           int                    `json:"result"`
	Info             map[string]interface{} `json:"info,omitempty"`
	StatisticInfo    map[string]interface{} `json:"statistic_info"`
	Shared           bool                   `json:"shared"`
	IP               string                 `json:"ip,omitempty"`
	CreateTime       time.Time              `json:"create_time"`
	CanUnshare       bool                   `json:"can_unshare"`
}

// SubmissionListItem is the row representation used by listings.
type SubmissionListItem struct {
	ID               string                 `json:"id"`
	ProblemDisplayID string                 `json:"problem"`
	UserID           uint                   `json:"user_id"`
	Username         string                 `json:"username"`
	Language         string                 `json:"language"`
	Result           int                    `json:"result"`
	StatisticInfo    map[string]interface{} `json:"statistic_info"`
	Shared           bool                   `json:"shared"`
	CreateTime       time.Time              `json:"create_time"`
	ShowLink         bool                   `json:"show_link"`
}

// SubmissionPage is a page of listing results.
type SubmissionPage struct {
	Results []SubmissionListItem `json:"results"`
	Total   int64                `json:"total"`
}

// JudgeResult is the verdict reported back by the judge.
type JudgeResult struct {
	SubmissionID  string                 `json:"submission_id" validate:"required"`
	Result        int                    `json:"result" validate:"gte=-2,lte=8"`
	Info          map[string]interface{} `json:"info"`
	StatisticInfo map[string]interface{} `json:"statistic_info"`
}

// NewSubmissionView converts a submission into its detail view. The safe
// variant drops per-case judge info and the submitter address.
func NewSubmissionView(model models.Submission, full bool) SubmissionView {
	view := SubmissionView{
		ID:               model.ID,
		ProblemID:        model.ProblemID,
		ProblemDisplayID: model.Problem.DisplayID,
		ContestID:        model.ContestID,
		UserID:           model.UserID,
		Username:         model.Username,
		Language:         model.Language,
		Code:             model.Code,
		Result:           model.Result,
		StatisticInfo:    copyMap(model.StatisticInfo),
		Shared:           model.Shared,
		CreateTime:       model.CreatedAt,
	}
	if full {
		view.Info = copyMap(model.Info)
		view.IP = model.IP
	}
	return view
}

// NewSubmissionListItem converts a submission into a listing row.
func NewSubmissionListItem(model models.Submission, showLink bool) SubmissionListItem {
	return SubmissionListItem{
		ID:               model.ID,
		ProblemDisplayID: model.Problem.DisplayID,
		UserID:           model.UserID,
		Username:         model.Username,
		Language:         model.Language,
		Result:           model.Result,
		StatisticInfo:    copyMap(model.StatisticInfo),
		Shared:           model.Shared,
		CreateTime:       model.CreatedAt,
		ShowLink:         showLink,
	}
}

// copyMap clones a JSON column for output. Stored columns decode numbers as
// json.Number; views expose them as float64 like any other decoded JSON.
func copyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = normalizeJSON(v)
	}
	return out
}

func normalizeJSON(v interface{}) interface{} {
	switch value := v.(type) {
	case json.Number:
		if f, err := value.Float64(); err == nil {
			return f
		}
		return value.String()
	case map[string]interface{}:
		return copyMap(value)
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = normalizeJSON(item)
		}
		return out
	default:
		return v
	}
}
