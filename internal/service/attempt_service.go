package service

import (
	"context"
	"errors"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/repository"
	"novaexam_backend/internal/util"
	"novaexam_backend/pkg/logger"
	"novaexam_backend/pkg/monitoring"
	"novaexam_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ClosedAttemptError 作答已提交，携带作答 ID 供前端跳转到成绩页
type ClosedAttemptError struct {
	AttemptID uint
}

func (e *ClosedAttemptError) Error() string {
	return util.ErrAttemptSubmitted.Error()
}

func (e *ClosedAttemptError) Unwrap() error {
	return util.ErrAttemptSubmitted
}

type AttemptService struct {
	DB          *gorm.DB
	Attempts    *repository.AttemptRepository
	Exams       *repository.ExamRepository
	Leaderboard *LeaderboardService
	Notifier    *NotificationService
	Now         func() time.Time
}

func NewAttemptService(
	db *gorm.DB,
	attempts *repository.AttemptRepository,
	exams *repository.ExamRepository,
	leaderboard *LeaderboardService,
	notifier *NotificationService,
) *AttemptService {
	return &AttemptService{
		DB:          db,
		Attempts:    attempts,
		Exams:       exams,
		Leaderboard: leaderboard,
		Notifier:    notifier,
		Now:         time.Now,
	}
}

type attemptLookup func(ctx context.Context, r *repository.AttemptRepository) (*model.Attempt, error)

func byIDForUser(attemptID, userID uint) attemptLookup {
	return func(ctx context.Context, r *repository.AttemptRepository) (*model.Attempt, error) {
		return r.LockForUser(ctx, attemptID, userID)
	}
}

func byUserExam(userID, examID uint) attemptLookup {
	return func(ctx context.Context, r *repository.AttemptRepository) (*model.Attempt, error) {
		return r.LockByUserExam(ctx, userID, examID)
	}
}

// loadAndReconcile 所有读取作答的入口都经过这里：
// 加行锁读取作答和考试，超时未提交的先自动提交并计分，再在同一事务内执行 op。
// op 只在作答仍未提交时执行。返回值 transitioned 表示本次发生了超时自动提交。
func (s *AttemptService) loadAndReconcile(
	ctx context.Context,
	lookup attemptLookup,
	op func(tx *gorm.DB, a *model.Attempt) error,
) (*model.Attempt, bool, error) {
	now := s.Now()
	var attempt *model.Attempt
	transitioned := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attempts := s.Attempts.WithTx(tx)
		a, err := lookup(ctx, attempts)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrAttemptNotFound
			}
			return err
		}

		exam, err := s.Exams.WithTx(tx).FindByID(ctx, a.ExamID)
		if err != nil {
			return err
		}
		a.Exam = exam

		if a.IsExpired(now) {
			if err := s.finalize(ctx, attempts, a, now); err != nil {
				return err
			}
			transitioned = true
		}
		attempt = a

		if op != nil && !a.IsSubmitted {
			return op(tx, a)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if transitioned {
		logger.Log.Info("Attempt auto-submitted after expiry",
			zap.Uint("attemptID", attempt.ID),
			zap.Uint("userID", attempt.UserID),
			zap.Int("score", attempt.Score),
		)
		s.afterSubmit(ctx, attempt, "auto")
	}
	return attempt, transitioned, nil
}

// finalize 计分并写入终态，调用方必须持有行锁
func (s *AttemptService) finalize(ctx context.Context, attempts *repository.AttemptRepository, a *model.Attempt, now time.Time) error {
	answers, err := attempts.ListAnswers(ctx, a.ID)
	if err != nil {
		return err
	}
	score := CalculateScore(answers)
	if err := attempts.MarkSubmitted(ctx, a.ID, now, score); err != nil {
		return err
	}
	a.IsSubmitted = true
	a.EndTime = &now
	a.Score = score
	return nil
}

// afterSubmit 事务提交之后执行，失败不影响作答状态
func (s *AttemptService) afterSubmit(ctx context.Context, a *model.Attempt, trigger string) {
	monitoring.AttemptTransitions.WithLabelValues(trigger).Inc()
	s.Leaderboard.Invalidate(ctx, a.ExamID)
	s.Notifier.AttemptCompleted(a.ID)
}

// Start 开始考试。已有作答时直接返回（created=false），不再检查考试是否处于开放时间
func (s *AttemptService) Start(ctx context.Context, userID, examID uint) (*model.Attempt, bool, error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.Start")
	defer span.End()
	span.SetAttributes(attribute.Int64("exam.id", int64(examID)), attribute.Int64("user.id", int64(userID)))

	// 已有作答优先：考试下架或关闭后仍能回到自己的作答
	existing, _, err := s.loadAndReconcile(ctx, byUserExam(userID, examID), nil)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, util.ErrAttemptNotFound) {
		return nil, false, err
	}

	exam, err := s.Exams.FindPublishedWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, util.ErrExamNotFound
		}
		return nil, false, err
	}

	now := s.Now()
	if !exam.IsActive(now) {
		return nil, false, util.ErrExamNotActive
	}

	attempt := &model.Attempt{
		UserID:    userID,
		ExamID:    examID,
		StartTime: now,
		Answers:   make([]model.Answer, 0, len(exam.Questions)),
	}
	for _, q := range exam.Questions {
		attempt.Answers = append(attempt.Answers, model.Answer{QuestionID: q.ID})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.Attempts.WithTx(tx).Create(ctx, attempt)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 并发开始：另一个请求已创建，转为读取已有作答
			existing, _, err := s.loadAndReconcile(ctx, byUserExam(userID, examID), nil)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	attempt.Exam = exam
	logger.Log.Info("Attempt started",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("userID", userID),
		zap.Uint("examID", examID),
	)
	return attempt, true, nil
}

// Get 读取（并对账）学生自己的作答
func (s *AttemptService) Get(ctx context.Context, userID, attemptID uint) (*model.Attempt, error) {
	a, _, err := s.loadAndReconcile(ctx, byIDForUser(attemptID, userID), nil)
	return a, err
}

// FindForExam 学生在该考试上的作答，没有时返回 nil
func (s *AttemptService) FindForExam(ctx context.Context, userID, examID uint) (*model.Attempt, error) {
	a, _, err := s.loadAndReconcile(ctx, byUserExam(userID, examID), nil)
	if errors.Is(err, util.ErrAttemptNotFound) {
		return nil, nil
	}
	return a, err
}

// ReconcileForUser 对该学生所有未提交的作答做过期检查，返回全部作答
func (s *AttemptService) ReconcileForUser(ctx context.Context, userID uint) ([]model.Attempt, error) {
	attempts, err := s.Attempts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		if attempts[i].IsSubmitted {
			continue
		}
		a, _, err := s.loadAndReconcile(ctx, byIDForUser(attempts[i].ID, userID), nil)
		if err != nil {
			return nil, err
		}
		attempts[i] = *a
	}
	return attempts, nil
}

type ChoiceView struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

type QuestionView struct {
	ID               uint         `json:"id"`
	Text             string       `json:"text"`
	Marks            int          `json:"marks"`
	TimeLimitSeconds *int         `json:"timeLimitSeconds,omitempty"`
	ImageURL         string       `json:"imageUrl,omitempty"`
	Choices          []ChoiceView `json:"choices"`
}

// TakeView 答题页：当前题目（不含正确答案）、进度与剩余时间
type TakeView struct {
	AttemptID        uint           `json:"attemptId"`
	ExamID           uint           `json:"examId"`
	ExamTitle        string         `json:"examTitle"`
	Index            int            `json:"index"`
	TotalQuestions   int            `json:"totalQuestions"`
	Question         QuestionView   `json:"question"`
	SelectedChoiceID *uint          `json:"selectedChoiceId"`
	Progress         map[uint]*uint `json:"progress"`
	TimeRemaining    int            `json:"timeRemaining"`
}

// TakeExam 返回第 index 题（从 1 开始，越界时回到第 1 题）
func (s *AttemptService) TakeExam(ctx context.Context, userID, examID uint, index int) (*TakeView, error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.TakeExam")
	defer span.End()

	var view *TakeView
	a, _, err := s.loadAndReconcile(ctx, byUserExam(userID, examID), func(tx *gorm.DB, a *model.Attempt) error {
		questions, err := s.Exams.WithTx(tx).ListQuestions(ctx, a.ExamID)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return util.ErrExamHasNoQuestions
		}
		if index < 1 || index > len(questions) {
			index = 1
		}
		q := questions[index-1]

		attempts := s.Attempts.WithTx(tx)
		ans, err := attempts.EnsureAnswer(ctx, a.ID, q.ID)
		if err != nil {
			return err
		}
		progress, err := attempts.Selections(ctx, a.ID)
		if err != nil {
			return err
		}

		choices := make([]ChoiceView, len(q.Choices))
		for i, c := range q.Choices {
			choices[i] = ChoiceView{ID: c.ID, Text: c.Text}
		}
		view = &TakeView{
			AttemptID:      a.ID,
			ExamID:         a.ExamID,
			ExamTitle:      a.Exam.Title,
			Index:          index,
			TotalQuestions: len(questions),
			Question: QuestionView{
				ID:               q.ID,
				Text:             q.Text,
				Marks:            q.Marks,
				TimeLimitSeconds: q.TimeLimitSeconds,
				ImageURL:         q.ImageURL,
				Choices:          choices,
			},
			SelectedChoiceID: ans.SelectedChoiceID,
			Progress:         progress,
			TimeRemaining:    a.TimeRemaining(s.Now()),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if a.IsSubmitted {
		return nil, &ClosedAttemptError{AttemptID: a.ID}
	}
	return view, nil
}

// SaveAnswer choiceID 为 nil 时清空作答。超时的作答先自动提交，再返回 ErrAttemptExpired
func (s *AttemptService) SaveAnswer(ctx context.Context, userID, attemptID, questionID uint, choiceID *uint) (*model.Answer, error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.SaveAnswer")
	defer span.End()
	span.SetAttributes(attribute.Int64("attempt.id", int64(attemptID)), attribute.Int64("question.id", int64(questionID)))

	var saved *model.Answer
	a, transitioned, err := s.loadAndReconcile(ctx, byIDForUser(attemptID, userID), func(tx *gorm.DB, a *model.Attempt) error {
		exams := s.Exams.WithTx(tx)
		if _, err := exams.FindQuestionInExam(ctx, a.ExamID, questionID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrQuestionNotFound
			}
			return err
		}

		if choiceID != nil {
			choice, err := exams.FindChoiceByID(ctx, *choiceID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return util.ErrChoiceNotFound
				}
				return err
			}
			if choice.QuestionID != questionID {
				return util.ErrChoiceMismatch
			}
		}

		ans, err := s.Attempts.WithTx(tx).SaveAnswer(ctx, a.ID, questionID, choiceID)
		if err != nil {
			return err
		}
		saved = ans
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		return nil, util.ErrAttemptExpired
	}
	if a.IsSubmitted {
		return nil, util.ErrAttemptSubmitted
	}
	return saved, nil
}

// Submit 幂等：已提交的作答原样返回
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID uint) (*model.Attempt, error) {
	ctx, span := tracing.Tracer.Start(ctx, "AttemptService.Submit")
	defer span.End()

	submitted := false
	a, _, err := s.loadAndReconcile(ctx, byIDForUser(attemptID, userID), func(tx *gorm.DB, a *model.Attempt) error {
		if err := s.finalize(ctx, s.Attempts.WithTx(tx), a, s.Now()); err != nil {
			return err
		}
		submitted = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if submitted {
		logger.Log.Info("Attempt submitted",
			zap.Uint("attemptID", a.ID),
			zap.Uint("userID", userID),
			zap.Int("score", a.Score),
		)
		s.afterSubmit(ctx, a, "manual")
	}
	return a, nil
}

type ReviewItem struct {
	QuestionID       uint           `json:"questionId"`
	Text             string         `json:"text"`
	Marks            int            `json:"marks"`
	Explanation      string         `json:"explanation,omitempty"`
	ImageURL         string         `json:"imageUrl,omitempty"`
	Choices          []ReviewChoice `json:"choices"`
	SelectedChoiceID *uint          `json:"selectedChoiceId"`
	CorrectChoiceID  *uint          `json:"correctChoiceId"`
	IsCorrect        bool           `json:"isCorrect"`
}

// ReviewChoice 成绩页展示的选项，提交后可以公开正确答案
type ReviewChoice struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

type ResultView struct {
	AttemptID      uint         `json:"attemptId"`
	ExamID         uint         `json:"examId"`
	ExamTitle      string       `json:"examTitle"`
	StartTime      time.Time    `json:"startTime"`
	EndTime        *time.Time   `json:"endTime"`
	Score          int          `json:"score"`
	TotalMarks     int          `json:"totalMarks"`
	CorrectAnswers int          `json:"correctAnswers"`
	TotalQuestions int          `json:"totalQuestions"`
	Percentage     float64      `json:"percentage"`
	Passed         bool         `json:"passed"`
	Review         []ReviewItem `json:"review"`
}

func (s *AttemptService) Result(ctx context.Context, userID, attemptID uint) (*ResultView, error) {
	a, err := s.Get(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if !a.IsSubmitted {
		return nil, util.ErrAttemptInProgress
	}

	answers, err := s.Attempts.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Exams.ListQuestions(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	selected := make(map[uint]*uint, len(answers))
	for _, ans := range answers {
		selected[ans.QuestionID] = ans.SelectedChoiceID
	}

	total := 0
	review := make([]ReviewItem, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		total += q.Marks

		item := ReviewItem{
			QuestionID:       q.ID,
			Text:             q.Text,
			Marks:            q.Marks,
			Explanation:      q.Explanation,
			ImageURL:         q.ImageURL,
			Choices:          make([]ReviewChoice, len(q.Choices)),
			SelectedChoiceID: selected[q.ID],
		}
		for j, c := range q.Choices {
			item.Choices[j] = ReviewChoice{ID: c.ID, Text: c.Text, IsCorrect: c.IsCorrect}
		}
		if correct := q.CorrectChoice(); correct != nil {
			id := correct.ID
			item.CorrectChoiceID = &id
			item.IsCorrect = item.SelectedChoiceID != nil && *item.SelectedChoiceID == id
		}
		review = append(review, item)
	}

	pct := Percentage(a.Score, total)
	return &ResultView{
		AttemptID:      a.ID,
		ExamID:         a.ExamID,
		ExamTitle:      a.Exam.Title,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Score:          a.Score,
		TotalMarks:     total,
		CorrectAnswers: CountCorrect(answers),
		TotalQuestions: len(questions),
		Percentage:     pct,
		Passed:         Passed(a.Score, total),
		Review:         review,
	}, nil
}

type ResultSummary struct {
	AttemptID  uint       `json:"attemptId"`
	ExamID     uint       `json:"examId"`
	ExamTitle  string     `json:"examTitle"`
	Score      int        `json:"score"`
	TotalMarks int        `json:"totalMarks"`
	Percentage float64    `json:"percentage"`
	Passed     bool       `json:"passed"`
	EndTime    *time.Time `json:"endTime"`
}

// ListMyResults 已提交的作答，最近的在前
func (s *AttemptService) ListMyResults(ctx context.Context, userID uint) ([]ResultSummary, error) {
	if _, err := s.ReconcileForUser(ctx, userID); err != nil {
		return nil, err
	}
	attempts, err := s.Attempts.ListSubmittedByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]ResultSummary, 0, len(attempts))
	for _, a := range attempts {
		total := a.Exam.TotalMarks()
		pct := Percentage(a.Score, total)
		results = append(results, ResultSummary{
			AttemptID:  a.ID,
			ExamID:     a.ExamID,
			ExamTitle:  a.Exam.Title,
			Score:      a.Score,
			TotalMarks: total,
			Percentage: pct,
			Passed:     Passed(a.Score, total),
			EndTime:    a.EndTime,
		})
	}
	return results, nil
}

// AttemptView 返回给学生的作答状态
type AttemptView struct {
	ID            uint                `json:"id"`
	ExamID        uint                `json:"examId"`
	ExamTitle     string              `json:"examTitle"`
	Status        model.AttemptStatus `json:"status"`
	StartTime     time.Time           `json:"startTime"`
	ExpectedEnd   time.Time           `json:"expectedEnd"`
	EndTime       *time.Time          `json:"endTime,omitempty"`
	IsSubmitted   bool                `json:"isSubmitted"`
	Score         int                 `json:"score"`
	TimeRemaining int                 `json:"timeRemaining"`
}

// View 需要 Exam 已加载
func (s *AttemptService) View(a *model.Attempt) AttemptView {
	return AttemptView{
		ID:            a.ID,
		ExamID:        a.ExamID,
		ExamTitle:     a.Exam.Title,
		Status:        a.Status(),
		StartTime:     a.StartTime,
		ExpectedEnd:   a.ExpectedEnd(),
		EndTime:       a.EndTime,
		IsSubmitted:   a.IsSubmitted,
		Score:         a.Score,
		TimeRemaining: a.TimeRemaining(s.Now()),
	}
}
