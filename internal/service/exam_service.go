package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/repository"
	"novaexam_backend/internal/util"
	"novaexam_backend/pkg/logger"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ExamService struct {
	Exams      *repository.ExamRepository
	Attempts   *repository.AttemptRepository
	Categories *repository.CategoryRepository
	Storage    *StorageService
	Notifier   *NotificationService
	Cache      LeaderboardInvalidator
	Now        func() time.Time
}

func NewExamService(
	exams *repository.ExamRepository,
	attempts *repository.AttemptRepository,
	categories *repository.CategoryRepository,
	storage *StorageService,
	notifier *NotificationService,
	cache LeaderboardInvalidator,
) *ExamService {
	return &ExamService{
		Exams:      exams,
		Attempts:   attempts,
		Categories: categories,
		Storage:    storage,
		Notifier:   notifier,
		Cache:      cache,
		Now:        time.Now,
	}
}

type ExamReq struct {
	Title           string    `json:"title" validate:"required,notblank,max=200"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"durationMinutes" validate:"required,min=1"`
	StartTime       time.Time `json:"startTime" validate:"required"`
	EndTime         time.Time `json:"endTime" validate:"required"`
	IsPublished     bool      `json:"isPublished"`
	CategoryID      *uint     `json:"categoryId"`
}

type ChoiceReq struct {
	Text      string `json:"text" validate:"required,notblank,max=500"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionReq struct {
	Text             string      `json:"text" validate:"required,notblank"`
	Marks            int         `json:"marks" validate:"min=0"`
	Explanation      string      `json:"explanation"`
	TimeLimitSeconds *int        `json:"timeLimitSeconds" validate:"omitempty,min=1"`
	Choices          []ChoiceReq `json:"choices" validate:"dive"`
}

type CategoryReq struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description"`
}

func (s *ExamService) validateExam(ctx context.Context, req *ExamReq) error {
	if req.DurationMinutes < 1 {
		return util.ErrInvalidDuration
	}
	if err := util.ValidateStruct(req); err != nil {
		return err
	}
	if !req.EndTime.After(req.StartTime) {
		return util.ErrInvalidExamWindow
	}
	if req.CategoryID != nil {
		if _, err := s.Categories.FindByID(ctx, *req.CategoryID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.ErrCategoryNotFound
			}
			return err
		}
	}
	return nil
}

func (s *ExamService) CreateExam(ctx context.Context, req ExamReq) (*model.Exam, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validateExam(ctx, &req); err != nil {
		return nil, err
	}

	exam := &model.Exam{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		IsPublished:     req.IsPublished,
		CategoryID:      req.CategoryID,
	}
	if err := s.Exams.Create(ctx, exam); err != nil {
		return nil, err
	}

	logger.Log.Info("Exam created", zap.Uint("examID", exam.ID), zap.Bool("published", exam.IsPublished))
	if exam.IsPublished {
		s.Notifier.ExamPublished(exam)
	}
	return exam, nil
}

func (s *ExamService) UpdateExam(ctx context.Context, id uint, req ExamReq) (*model.Exam, error) {
	exam, err := s.findExam(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validateExam(ctx, &req); err != nil {
		return nil, err
	}

	wasPublished := exam.IsPublished
	exam.Title = req.Title
	exam.Description = req.Description
	exam.DurationMinutes = req.DurationMinutes
	exam.StartTime = req.StartTime
	exam.EndTime = req.EndTime
	exam.IsPublished = req.IsPublished
	exam.CategoryID = req.CategoryID
	exam.Category = nil

	if err := s.Exams.Update(ctx, exam); err != nil {
		return nil, err
	}
	s.invalidate(ctx, exam.ID)
	if !wasPublished && exam.IsPublished {
		s.Notifier.ExamPublished(exam)
	}
	return exam, nil
}

// TogglePublish 切换发布状态，从未发布变为发布时通知学生
func (s *ExamService) TogglePublish(ctx context.Context, id uint) (*model.Exam, error) {
	exam, err := s.findExam(ctx, id)
	if err != nil {
		return nil, err
	}
	exam.IsPublished = !exam.IsPublished
	if err := s.Exams.Update(ctx, exam); err != nil {
		return nil, err
	}

	logger.Log.Info("Exam publish state changed", zap.Uint("examID", id), zap.Bool("published", exam.IsPublished))
	if exam.IsPublished {
		s.Notifier.ExamPublished(exam)
	}
	return exam, nil
}

// DeleteExam 级联删除题目、选项、作答
func (s *ExamService) DeleteExam(ctx context.Context, id uint) error {
	if _, err := s.findExam(ctx, id); err != nil {
		return err
	}
	if err := s.Exams.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	logger.Log.Info("Exam deleted", zap.Uint("examID", id))
	return nil
}

func (s *ExamService) GetExam(ctx context.Context, id uint) (*model.Exam, error) {
	exam, err := s.Exams.FindWithQuestions(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

func (s *ExamService) ListExams(ctx context.Context) ([]repository.ExamListRow, error) {
	return s.Exams.List(ctx, false)
}

// invalidate 标题和总分都会出现在排行榜里
func (s *ExamService) invalidate(ctx context.Context, examID uint) {
	if s.Cache != nil {
		s.Cache.Invalidate(ctx, examID)
	}
}

func (s *ExamService) findExam(ctx context.Context, id uint) (*model.Exam, error) {
	exam, err := s.Exams.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	return exam, nil
}

// validateQuestion 至少两个选项且恰好一个正确；分值 0 视为默认 1 分
func validateQuestion(req *QuestionReq) error {
	req.Text = strings.TrimSpace(req.Text)
	if req.Marks < 0 {
		return util.ErrInvalidMarks
	}
	if err := util.ValidateStruct(req); err != nil {
		return err
	}
	if len(req.Choices) < 2 {
		return util.ErrTooFewChoices
	}
	correct := 0
	for _, c := range req.Choices {
		if c.IsCorrect {
			correct++
		}
	}
	if correct != 1 {
		return util.ErrOneCorrectChoice
	}
	if req.Marks == 0 {
		req.Marks = 1
	}
	return nil
}

func buildChoices(reqs []ChoiceReq) []model.Choice {
	choices := make([]model.Choice, len(reqs))
	for i, c := range reqs {
		choices[i] = model.Choice{Text: strings.TrimSpace(c.Text), IsCorrect: c.IsCorrect}
	}
	return choices
}

func (s *ExamService) ListQuestions(ctx context.Context, examID uint) ([]model.Question, error) {
	if _, err := s.findExam(ctx, examID); err != nil {
		return nil, err
	}
	return s.Exams.ListQuestions(ctx, examID)
}

func (s *ExamService) CreateQuestion(ctx context.Context, examID uint, req QuestionReq) (*model.Question, error) {
	if _, err := s.findExam(ctx, examID); err != nil {
		return nil, err
	}
	if err := validateQuestion(&req); err != nil {
		return nil, err
	}

	q := &model.Question{
		ExamID:           examID,
		Text:             req.Text,
		Marks:            req.Marks,
		Explanation:      req.Explanation,
		TimeLimitSeconds: req.TimeLimitSeconds,
		Choices:          buildChoices(req.Choices),
	}
	if err := s.Exams.CreateQuestion(ctx, q); err != nil {
		return nil, err
	}
	s.invalidate(ctx, examID)
	return q, nil
}

// UpdateQuestion 选项整体替换；已有作答若选中了被替换的选项会被清空
func (s *ExamService) UpdateQuestion(ctx context.Context, id uint, req QuestionReq) (*model.Question, error) {
	q, err := s.findQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateQuestion(&req); err != nil {
		return nil, err
	}

	q.Text = req.Text
	q.Marks = req.Marks
	q.Explanation = req.Explanation
	q.TimeLimitSeconds = req.TimeLimitSeconds
	if err := s.Exams.ReplaceQuestion(ctx, q, buildChoices(req.Choices)); err != nil {
		return nil, err
	}
	s.invalidate(ctx, q.ExamID)
	return q, nil
}

func (s *ExamService) DeleteQuestion(ctx context.Context, id uint) error {
	q, err := s.findQuestion(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Exams.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, q.ExamID)
	return nil
}

func (s *ExamService) UploadQuestionImage(ctx context.Context, id uint, filename string, file io.ReadSeeker, size int64) (*model.Question, error) {
	q, err := s.findQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	url, err := s.Storage.UploadQuestionImage(ctx, id, filename, file, size)
	if err != nil {
		return nil, err
	}
	if err := s.Exams.UpdateQuestionImage(ctx, id, url); err != nil {
		return nil, err
	}
	q.ImageURL = url
	return q, nil
}

func (s *ExamService) findQuestion(ctx context.Context, id uint) (*model.Question, error) {
	q, err := s.Exams.FindQuestionByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	return q, nil
}

// AttemptRow 管理端作答列表
type AttemptRow struct {
	AttemptID   uint       `json:"attemptId"`
	UserID      uint       `json:"userId"`
	Username    string     `json:"username"`
	Status      string     `json:"status"`
	Score       int        `json:"score"`
	TotalMarks  int        `json:"totalMarks"`
	Percentage  float64    `json:"percentage"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	IsSubmitted bool       `json:"isSubmitted"`
}

// ListAttempts 只读视图，不触发自动提交；已超时未提交的标记为 expired
func (s *ExamService) ListAttempts(ctx context.Context, examID uint) ([]AttemptRow, error) {
	exam, err := s.findExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.Attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	marks, err := s.Exams.TotalMarks(ctx, []uint{examID})
	if err != nil {
		return nil, err
	}
	total := marks[examID]
	now := s.Now()

	rows := make([]AttemptRow, 0, len(attempts))
	for i := range attempts {
		a := &attempts[i]
		a.Exam = exam
		status := string(a.Status())
		if a.IsExpired(now) {
			status = "expired"
		}
		row := AttemptRow{
			AttemptID:   a.ID,
			UserID:      a.UserID,
			Status:      status,
			Score:       a.Score,
			TotalMarks:  total,
			StartTime:   a.StartTime,
			EndTime:     a.EndTime,
			IsSubmitted: a.IsSubmitted,
		}
		if a.User != nil {
			row.Username = a.User.Username
		}
		if a.IsSubmitted {
			row.Percentage = Percentage(a.Score, total)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *ExamService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.Categories.List(ctx)
}

func (s *ExamService) CreateCategory(ctx context.Context, req CategoryReq) (*model.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := util.ValidateStruct(&req); err != nil {
		return nil, err
	}
	category := &model.Category{Name: req.Name, Description: req.Description}
	if err := s.Categories.Create(ctx, category); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("category %q already exists: %w", req.Name, util.ErrConflict)
		}
		return nil, err
	}
	return category, nil
}
