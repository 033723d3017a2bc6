package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

func setupJudgeTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Contest{}, &models.Problem{}, &models.Submission{}))
	return db
}

func uintPtr(v uint) *uint { return &v }

func seedSubmission(t *testing.T, db *gorm.DB, sub models.Submission) models.Submission {
	t.Helper()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Language == "" {
		sub.Language = "Python3"
	}
	if sub.Code == "" {
		sub.Code = "print(1)"
	}
	if sub.Username == "" {
		sub.Username = "alice"
	}
	if sub.DispatchState == "" {
		sub.DispatchState = models.DispatchStateDispatched
	}
	require.NoError(t, db.Create(&sub).Error)
	return sub
}

func TestSubmissionRepositoryListFilters(t *testing.T) {
	db := setupJudgeTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	problem := models.Problem{DisplayID: "A", Title: "A+B", Visible: true}
	require.NoError(t, db.Create(&problem).Error)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedSubmission(t, db, models.Submission{ProblemID: problem.ID, UserID: 1, Username: "Alice", Result: models.JudgeStatusAccepted, CreatedAt: base})
	seedSubmission(t, db, models.Submission{ProblemID: problem.ID, UserID: 2, Username: "bob", Result: models.JudgeStatusWrongAnswer, CreatedAt: base.Add(time.Minute)})
	seedSubmission(t, db, models.Submission{ProblemID: problem.ID, UserID: 3, Username: "malice", Result: models.JudgeStatusAccepted, CreatedAt: base.Add(2 * time.Minute)})
	seedSubmission(t, db, models.Submission{ProblemID: problem.ID, UserID: 1, Username: "Alice", ContestID: uintPtr(9), CreatedAt: base.Add(3 * time.Minute)})

	items, total, err := repo.List(ctx, SubmissionFilter{NonContest: true, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, items, 3)
	require.Equal(t, "malice", items[0].Username, "newest first")
	require.Equal(t, "A", items[0].Problem.DisplayID)

	items, total, err = repo.List(ctx, SubmissionFilter{NonContest: true, Username: "ALI", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)

	accepted := models.JudgeStatusAccepted
	items, _, err = repo.List(ctx, SubmissionFilter{NonContest: true, UserID: uintPtr(1), Result: &accepted, Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, uint(1), items[0].UserID)

	from := base.Add(90 * time.Second)
	items, total, err = repo.List(ctx, SubmissionFilter{NonContest: true, CreatedFrom: &from, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "malice", items[0].Username)

	paged, total, err := repo.List(ctx, SubmissionFilter{NonContest: true, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, paged, 1)
	require.Equal(t, "bob", paged[0].Username)

	items, _, err = repo.List(ctx, SubmissionFilter{ContestID: uintPtr(9), Limit: 10})
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestSubmissionRepositoryUsernameFilterIsLiteral(t *testing.T) {
	db := setupJudgeTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1, Username: "alice"})
	seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 2, Username: "bob"})
	seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 3, Username: "dev_ops"})
	seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 4, Username: `back\slash`})

	for _, tc := range []struct {
		term string
		want []string
	}{
		{term: "_", want: []string{"dev_ops"}},
		{term: "%", want: nil},
		{term: "v_o", want: []string{"dev_ops"}},
		{term: "a_i", want: nil},
		{term: `\`, want: []string{`back\slash`}},
		{term: "LIC", want: []string{"alice"}},
	} {
		items, total, err := repo.List(ctx, SubmissionFilter{Username: tc.term, Limit: 10})
		require.NoError(t, err, tc.term)
		require.Equal(t, int64(len(tc.want)), total, tc.term)
		names := make([]string, 0, len(items))
		for _, item := range items {
			names = append(names, item.Username)
		}
		require.ElementsMatch(t, tc.want, names, tc.term)
	}
}

func TestSubmissionRepositoryDispatchTransitions(t *testing.T) {
	db := setupJudgeTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	sub := seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1, Result: models.JudgeStatusPending, DispatchState: models.DispatchStatePending})

	won, err := repo.TransitionDispatch(ctx, sub.ID, models.DispatchStatePending, models.DispatchStateDispatching)
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.TransitionDispatch(ctx, sub.ID, models.DispatchStatePending, models.DispatchStateDispatching)
	require.NoError(t, err)
	require.False(t, won, "second claimer must lose")

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ok, err := repo.MarkDispatched(ctx, sub.ID, at)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, stored.IsDispatched())
	require.NotNil(t, stored.DispatchedAt)

	ok, err = repo.MarkDispatched(ctx, sub.ID, at)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSubmissionRepositoryReclaimIsExclusive(t *testing.T) {
	db := setupJudgeTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	sub := seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1, DispatchState: models.DispatchStateDispatching})

	won, err := repo.Reclaim(ctx, sub)
	require.NoError(t, err)
	require.True(t, won)

	won, err = repo.Reclaim(ctx, sub)
	require.NoError(t, err)
	require.False(t, won, "stale snapshot must not reclaim twice")

	stored, err := repo.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.DispatchAttempts)
	require.Equal(t, models.DispatchStateDispatching, stored.DispatchState)

	done := seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1})
	won, err = repo.Reclaim(ctx, done)
	require.NoError(t, err)
	require.False(t, won, "dispatched submissions are never reclaimed")
}

func TestSubmissionRepositoryListStale(t *testing.T) {
	db := setupJudgeTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	old := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	stale := seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1, DispatchState: models.DispatchStatePending})
	fresh := seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1, DispatchState: models.DispatchStatePending})
	seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1})
	require.NoError(t, db.Model(&models.Submission{}).Where("id = ?", stale.ID).UpdateColumn("updated_at", old).Error)
	require.NoError(t, db.Model(&models.Submission{}).Where("id = ?", fresh.ID).UpdateColumn("updated_at", old.Add(2*time.Hour)).Error)

	items, err := repo.ListStale(ctx, old.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, stale.ID, items[0].ID)
}

func TestSubmissionRepositoryAbandon(t *testing.T) {
	db := setupJudgeTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	old := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	stuck := seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1, DispatchState: models.DispatchStateDispatching})
	done := seedSubmission(t, db, models.Submission{ProblemID: 1, UserID: 1})
	require.NoError(t, db.Model(&models.Submission{}).Where("id = ?", stuck.ID).UpdateColumn("updated_at", old).Error)

	abandoned, err := repo.Abandon(ctx, stuck.ID)
	require.NoError(t, err)
	require.True(t, abandoned)

	abandoned, err = repo.Abandon(ctx, done.ID)
	require.NoError(t, err)
	require.False(t, abandoned, "dispatched submissions stay dispatched")

	stale, err := repo.ListStale(ctx, old.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, stale)

	won, err := repo.Reclaim(ctx, models.Submission{ID: stuck.ID})
	require.NoError(t, err)
	require.False(t, won)

	items, total, err := repo.List(ctx, SubmissionFilter{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, done.ID, items[0].ID)

	latest, err := repo.Latest(ctx, 1, 1, nil)
	require.NoError(t, err)
	require.Equal(t, done.ID, latest.ID)
}

func TestSubmissionRepositorySharedResultAndLatest(t *testing.T) {
	db := setupJudgeTestDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := seedSubmission(t, db, models.Submission{ProblemID: 4, UserID: 7, CreatedAt: base})
	second := seedSubmission(t, db, models.Submission{ProblemID: 4, UserID: 7, CreatedAt: base.Add(time.Minute)})

	require.NoError(t, repo.UpdateShared(ctx, first.ID, true))
	require.ErrorIs(t, repo.UpdateShared(ctx, uuid.NewString(), true), gorm.ErrRecordNotFound)

	updated, err := repo.UpdateResult(ctx, second.ID, models.JudgeStatusAccepted, map[string]interface{}{"err": nil}, map[string]interface{}{"score": float64(100)})
	require.NoError(t, err)
	require.True(t, updated)

	latest, err := repo.Latest(ctx, 7, 4, nil)
	require.NoError(t, err)
	require.Equal(t, second.ID, latest.ID)
	require.Equal(t, models.JudgeStatusAccepted, latest.Result)
	require.Equal(t, json.Number("100"), latest.StatisticInfo["score"])

	stored, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, stored.Shared)

	exists, err := repo.Exists(ctx, 4, 7)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.Exists(ctx, 4, 8)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.GetByID(ctx, first.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestProblemAndContestRepositories(t *testing.T) {
	db := setupJudgeTestDB(t)
	problems := NewProblemRepository(db)
	contests := NewContestRepository(db)
	ctx := context.Background()

	contest := models.Contest{Title: "Weekly", Visible: true, StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour)}
	require.NoError(t, db.Create(&contest).Error)

	public := models.Problem{DisplayID: "1001", Title: "Public", Visible: true}
	hidden := models.Problem{DisplayID: "1002", Title: "Hidden", Visible: false}
	scoped := models.Problem{DisplayID: "A", Title: "Contest", Visible: true, ContestID: &contest.ID}
	require.NoError(t, db.Create(&public).Error)
	require.NoError(t, db.Create(&hidden).Error)
	require.NoError(t, db.Create(&scoped).Error)

	got, err := problems.GetVisible(ctx, public.ID, nil)
	require.NoError(t, err)
	require.Equal(t, "1001", got.DisplayID)

	_, err = problems.GetVisible(ctx, hidden.ID, nil)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = problems.GetVisible(ctx, scoped.ID, nil)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound, "contest problems are not reachable outside the contest")

	_, err = problems.GetVisible(ctx, public.ID, &contest.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	got, err = problems.GetVisibleByDisplayID(ctx, "A", &contest.ID)
	require.NoError(t, err)
	require.Equal(t, scoped.ID, got.ID)

	loaded, err := contests.GetByID(ctx, contest.ID)
	require.NoError(t, err)
	require.Equal(t, "Weekly", loaded.Title)

	_, err = contests.GetByID(ctx, contest.ID+100)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
