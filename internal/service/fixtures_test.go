package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/judge"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/ratelimit"
	"github.com/noah-isme/gema-judge/internal/repository"
)

var fixtureNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubEngine struct {
	mu    sync.Mutex
	tasks []judge.Task
	err   error
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Judge(ctx context.Context, task judge.Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return e.err
}

func (e *stubEngine) calls() []judge.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]judge.Task(nil), e.tasks...)
}

type stubCaptcha struct {
	answer string
	calls  int
}

func (s *stubCaptcha) Check(ctx context.Context, sessionID, answer string) (bool, error) {
	s.calls++
	return answer == s.answer, nil
}

type fixture struct {
	db         *gorm.DB
	repo       repository.SubmissionRepository
	engine     *stubEngine
	captcha    *stubCaptcha
	admission  *AdmissionController
	dispatcher *DispatchCoordinator
	svc        *submissionService

	problem        models.Problem
	hiddenProblem  models.Problem
	contest        models.Contest
	contestProblem models.Problem
}

type fixtureOptions struct {
	limit   ratelimit.Limit
	showAll bool
}

func newFixture(t *testing.T, mutate ...func(*fixtureOptions)) *fixture {
	t.Helper()

	opts := fixtureOptions{limit: ratelimit.Limit{Capacity: 5, FillRate: 1}, showAll: true}
	for _, m := range mutate {
		m(&opts)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Contest{}, &models.Problem{}, &models.Submission{}))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := func() time.Time { return fixtureNow }
	bucket, err := ratelimit.NewBucket(ratelimit.NewRedisStore(client, ratelimit.WithClock(clock)), opts.limit)
	require.NoError(t, err)

	f := &fixture{
		db:      db,
		repo:    repository.NewSubmissionRepository(db),
		engine:  &stubEngine{},
		captcha: &stubCaptcha{answer: "abcd"},
	}

	problems := repository.NewProblemRepository(db)
	contests := repository.NewContestRepository(db)
	f.admission = NewAdmissionController(problems, contests, f.captcha, bucket, zerolog.Nop(), WithAdmissionClock(clock))
	f.dispatcher = NewDispatchCoordinator(f.repo, f.engine, time.Second, zerolog.Nop(), WithDispatchClock(clock))
	svc := NewSubmissionService(f.repo, problems, contests, f.admission, f.dispatcher, validator.New(), SubmissionServiceConfig{ShowAll: opts.showAll, MaxPageSize: 50}, zerolog.Nop())
	f.svc = svc.(*submissionService)
	f.svc.now = clock

	lecture := uint(3)
	f.problem = models.Problem{DisplayID: "1001", Title: "A+B", Visible: true, Languages: datatypes.JSONSlice[string]{"C++", "Python3"}, CreatedByID: 50}
	f.hiddenProblem = models.Problem{DisplayID: "1002", Title: "Hidden", Visible: false, Languages: datatypes.JSONSlice[string]{"C++"}}
	f.contest = models.Contest{
		Title:       "Weekly",
		Visible:     true,
		RuleType:    models.RuleTypeACM,
		StartTime:   fixtureNow.Add(-time.Hour),
		EndTime:     fixtureNow.Add(time.Hour),
		LectureID:   &lecture,
		CreatedByID: 99,
	}
	require.NoError(t, db.Create(&f.problem).Error)
	require.NoError(t, db.Create(&f.hiddenProblem).Error)
	require.NoError(t, db.Create(&f.contest).Error)
	f.contestProblem = models.Problem{DisplayID: "A", Title: "Contest A", Visible: true, ContestID: &f.contest.ID, Languages: datatypes.JSONSlice[string]{"C++"}, CreatedByID: 99}
	require.NoError(t, db.Create(&f.contestProblem).Error)

	return f
}

func (f *fixture) updateContest(t *testing.T, updates map[string]interface{}) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Contest{}).Where("id = ?", f.contest.ID).Updates(updates).Error)
}

func (f *fixture) seedSubmission(t *testing.T, sub models.Submission) models.Submission {
	t.Helper()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Language == "" {
		sub.Language = "C++"
	}
	if sub.Code == "" {
		sub.Code = "int main(){}"
	}
	if sub.DispatchState == "" {
		sub.DispatchState = models.DispatchStateDispatched
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = fixtureNow
	}
	require.NoError(t, f.db.Create(&sub).Error)
	return sub
}

func (f *fixture) countSubmissions(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	return count
}

func alice() Actor {
	return Actor{ID: 1, Username: "alice", Role: RoleRegularUser, AuthMethod: AuthMethodSession, IP: "10.1.2.3", SessionID: "sess-alice"}
}

func bob() Actor {
	return Actor{ID: 2, Username: "bob", Role: RoleRegularUser, AuthMethod: AuthMethodSession, IP: "10.1.2.4", SessionID: "sess-bob"}
}

func contestOwner() Actor {
	return Actor{ID: 99, Username: "owner", Role: RoleAdmin, ProblemPermission: ProblemPermissionOwn, AuthMethod: AuthMethodSession, IP: "172.16.0.1"}
}

func uintPtr(v uint) *uint { return &v }

func intPtr(v int) *int { return &v }
