package service

import (
	"context"
	"fmt"
	"novaexam_backend/internal/config"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/repository"
	"novaexam_backend/pkg/database"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB
	now time.Time

	users      *repository.UserRepository
	categories *repository.CategoryRepository
	exams      *repository.ExamRepository
	attempts   *repository.AttemptRepository

	auth        *AuthService
	leaderboard *LeaderboardService
	attemptSvc  *AttemptService
	examSvc     *ExamService
	importSvc   *ImportService
	dashboard   *DashboardService
	cache       *recordingCache
}

// recordingCache 记录被清理的考试 ID
type recordingCache struct {
	examIDs []uint
}

func (c *recordingCache) Invalidate(_ context.Context, examID uint) {
	c.examIDs = append(c.examIDs, examID)
}

func (c *recordingCache) reset() []uint {
	ids := c.examIDs
	c.examIDs = nil
	return ids
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "novaexam.db")
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.ConfigurePool(db, "sqlite"); err != nil {
		t.Fatalf("configure pool: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret", ExpireTime: time.Hour}}

	env := &testEnv{
		t:          t,
		ctx:        context.Background(),
		db:         db,
		now:        baseTime,
		users:      repository.NewUserRepository(db),
		categories: repository.NewCategoryRepository(db),
		exams:      repository.NewExamRepository(db),
		attempts:   repository.NewAttemptRepository(db),
		cache:      &recordingCache{},
	}
	clock := func() time.Time { return env.now }

	env.auth = NewAuthService(env.users, cfg)
	env.leaderboard = NewLeaderboardService(env.attempts, env.exams, nil, cfg)
	env.attemptSvc = NewAttemptService(db, env.attempts, env.exams, env.leaderboard, nil)
	env.attemptSvc.Now = clock
	env.examSvc = NewExamService(env.exams, env.attempts, env.categories, nil, nil, env.cache)
	env.examSvc.Now = clock
	env.importSvc = NewImportService(db, env.exams, env.cache)
	env.dashboard = NewDashboardService(env.users, env.exams, env.attempts, env.attemptSvc)
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) student(name string) *model.User {
	e.t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", Password: "x", Role: model.Student}
	if err := e.users.Create(e.ctx, u); err != nil {
		e.t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// exam 创建一场已发布、当前开放的考试；每道题两个选项，第一个正确
func (e *testEnv) exam(title string, durationMinutes int, marks ...int) *model.Exam {
	e.t.Helper()
	exam := &model.Exam{
		Title:           title,
		DurationMinutes: durationMinutes,
		StartTime:       e.now.Add(-time.Hour),
		EndTime:         e.now.Add(24 * time.Hour),
		IsPublished:     true,
	}
	if err := e.exams.Create(e.ctx, exam); err != nil {
		e.t.Fatalf("create exam: %v", err)
	}
	for i, m := range marks {
		q := &model.Question{
			ExamID: exam.ID,
			Text:   fmt.Sprintf("%s Q%d", title, i+1),
			Marks:  m,
			Choices: []model.Choice{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
			},
		}
		if err := e.exams.CreateQuestion(e.ctx, q); err != nil {
			e.t.Fatalf("create question: %v", err)
		}
	}
	loaded, err := e.exams.FindWithQuestions(e.ctx, exam.ID)
	if err != nil {
		e.t.Fatalf("load exam: %v", err)
	}
	return loaded
}

func correctID(q model.Question) *uint {
	id := q.CorrectChoice().ID
	return &id
}

func wrongID(q model.Question) *uint {
	for _, c := range q.Choices {
		if !c.IsCorrect {
			id := c.ID
			return &id
		}
	}
	return nil
}

func (e *testEnv) start(userID, examID uint) *model.Attempt {
	e.t.Helper()
	a, _, err := e.attemptSvc.Start(e.ctx, userID, examID)
	if err != nil {
		e.t.Fatalf("start: %v", err)
	}
	return a
}

func (e *testEnv) answer(userID, attemptID, questionID uint, choiceID *uint) {
	e.t.Helper()
	if _, err := e.attemptSvc.SaveAnswer(e.ctx, userID, attemptID, questionID, choiceID); err != nil {
		e.t.Fatalf("save answer: %v", err)
	}
}

func (e *testEnv) countRows(m interface{}, query string, args ...interface{}) int64 {
	e.t.Helper()
	var n int64
	if err := e.db.Model(m).Where(query, args...).Count(&n).Error; err != nil {
		e.t.Fatalf("count: %v", err)
	}
	return n
}
