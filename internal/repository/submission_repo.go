package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// undispatchedStates are the states the reconciler may still deliver.
var undispatchedStates = []string{models.DispatchStatePending, models.DispatchStateDispatching}

// likeEscaper makes user input match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	NonContest  bool
	ContestID   *uint
	ProblemID   *uint
	UserID      *uint
	Username    string
	Result      *int
	CreatedFrom *time.Time
	Limit       int
	Offset      int
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	Exists(ctx context.Context, problemID, userID uint) (bool, error)
	Latest(ctx context.Context, userID, problemID uint, contestID *uint) (models.Submission, error)
	UpdateShared(ctx context.Context, id string, shared bool) error
	UpdateResult(ctx context.Context, id string, result int, info, statistic map[string]interface{}) (bool, error)
	TransitionDispatch(ctx context.Context, id, from, to string) (bool, error)
	Reclaim(ctx context.Context, submission models.Submission) (bool, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	Abandon(ctx context.Context, id string) (bool, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Problem").
		Preload("Contest")
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).Where("id = ?", id).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("dispatch_state <> ?", models.DispatchStateAbandoned)

	if filter.NonContest {
		query = query.Where("contest_id IS NULL")
	}
	if filter.ContestID != nil {
		query = query.Where("contest_id = ?", *filter.ContestID)
	}
	if filter.ProblemID != nil {
		query = query.Where("problem_id = ?", *filter.ProblemID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if username := strings.TrimSpace(filter.Username); username != "" {
		query = query.Where(`LOWER(username) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(username))+"%")
	}
	if filter.Result != nil {
		query = query.Where("result = ?", *filter.Result)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var submissions []models.Submission
	if err := query.Preload("Problem").Order("created_at DESC").Order("id DESC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) Exists(ctx context.Context, problemID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("problem_id = ? AND user_id = ? AND dispatch_state <> ?", problemID, userID, models.DispatchStateAbandoned).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *submissionRepository) Latest(ctx context.Context, userID, problemID uint, contestID *uint) (models.Submission, error) {
	query := r.baseQuery(ctx).Where("user_id = ? AND problem_id = ? AND dispatch_state <> ?", userID, problemID, models.DispatchStateAbandoned)
	if contestID != nil {
		query = query.Where("contest_id = ?", *contestID)
	}

	var submission models.Submission
	if err := query.Order("created_at DESC").Order("id DESC").First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) UpdateShared(ctx context.Context, id string, shared bool) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Update("shared", shared)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *submissionRepository) UpdateResult(ctx context.Context, id string, result int, info, statistic map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"result":         result,
		"info":           datatypes.JSONMap(info),
		"statistic_info": datatypes.JSONMap(statistic),
	}
	res := r.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// TransitionDispatch moves a submission between dispatch states only if it is
// still in the expected state. The boolean reports whether this caller won.
func (r *submissionRepository) TransitionDispatch(ctx context.Context, id, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND dispatch_state = ?", id, from).
		Update("dispatch_state", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Reclaim takes over a stale submission. DispatchAttempts acts as the version,
// so two sweepers racing on the same row cannot both win.
func (r *submissionRepository) Reclaim(ctx context.Context, submission models.Submission) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND dispatch_attempts = ? AND dispatch_state IN ?", submission.ID, submission.DispatchAttempts, undispatchedStates).
		Updates(map[string]interface{}{
			"dispatch_state":    models.DispatchStateDispatching,
			"dispatch_attempts": gorm.Expr("dispatch_attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *submissionRepository) MarkDispatched(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND dispatch_state = ?", id, models.DispatchStateDispatching).
		Updates(map[string]interface{}{
			"dispatch_state": models.DispatchStateDispatched,
			"dispatched_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *submissionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Submission{}).Error
}

// Abandon parks an undispatched record so it is neither redelivered nor listed.
func (r *submissionRepository) Abandon(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND dispatch_state IN ?", id, undispatchedStates).
		Update("dispatch_state", models.DispatchStateAbandoned)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *submissionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).
		Where("dispatch_state IN ? AND updated_at < ?", undispatchedStates, before).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var submissions []models.Submission
	if err := query.Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}
