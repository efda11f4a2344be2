package service

import (
	"context"
	"errors"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/repository"
	"novaexam_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type ExamStatus string

const (
	ExamCompleted    ExamStatus = "Completed"
	ExamInProgress   ExamStatus = "In Progress"
	ExamAvailable    ExamStatus = "Available"
	ExamNotAvailable ExamStatus = "Not Available"
)

// 考试详情页的下一步
const (
	NextResult      = "result"
	NextTake        = "take"
	NextStart       = "start"
	NextUnavailable = "unavailable"
)

const recentAttemptsLimit = 10

type DashboardService struct {
	UserRepo   *repository.UserRepository
	Exams      *repository.ExamRepository
	Attempts   *repository.AttemptRepository
	AttemptSvc *AttemptService
}

func NewDashboardService(
	userRepo *repository.UserRepository,
	exams *repository.ExamRepository,
	attempts *repository.AttemptRepository,
	attemptSvc *AttemptService,
) *DashboardService {
	return &DashboardService{
		UserRepo:   userRepo,
		Exams:      exams,
		Attempts:   attempts,
		AttemptSvc: attemptSvc,
	}
}

type ExamSummary struct {
	ID              uint            `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DurationMinutes int             `json:"durationMinutes"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	Category        *model.Category `json:"category,omitempty"`
	QuestionCount   int             `json:"questionCount"`
	TotalMarks      int             `json:"totalMarks"`
}

type DashboardItem struct {
	Exam    ExamSummary  `json:"exam"`
	Status  ExamStatus   `json:"status"`
	Attempt *AttemptView `json:"attempt,omitempty"`
}

func summarize(row repository.ExamListRow) ExamSummary {
	return ExamSummary{
		ID:              row.ID,
		Title:           row.Title,
		Description:     row.Description,
		DurationMinutes: row.DurationMinutes,
		StartTime:       row.StartTime,
		EndTime:         row.EndTime,
		Category:        row.Category,
		QuestionCount:   row.QuestionCount,
		TotalMarks:      row.TotalMarks,
	}
}

// StudentDashboard 已发布考试及该学生在每场考试上的状态；过期未提交的作答在这里被自动提交
func (s *DashboardService) StudentDashboard(ctx context.Context, userID uint) ([]DashboardItem, error) {
	exams, err := s.Exams.List(ctx, true)
	if err != nil {
		return nil, err
	}
	attempts, err := s.AttemptSvc.ReconcileForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byExam := make(map[uint]*model.Attempt, len(attempts))
	for i := range attempts {
		byExam[attempts[i].ExamID] = &attempts[i]
	}

	now := s.AttemptSvc.Now()
	items := make([]DashboardItem, 0, len(exams))
	for i := range exams {
		row := exams[i]
		item := DashboardItem{Exam: summarize(row)}

		if a, ok := byExam[row.ID]; ok {
			if a.Exam == nil {
				a.Exam = &row.Exam
			}
			view := s.AttemptSvc.View(a)
			item.Attempt = &view
			if a.IsSubmitted {
				item.Status = ExamCompleted
			} else {
				item.Status = ExamInProgress
			}
		} else if row.Exam.IsActive(now) {
			item.Status = ExamAvailable
		} else {
			item.Status = ExamNotAvailable
		}
		items = append(items, item)
	}
	return items, nil
}

type ExamOverview struct {
	Exam    ExamSummary  `json:"exam"`
	Next    string       `json:"next"`
	Attempt *AttemptView `json:"attempt,omitempty"`
}

// ExamOverview 考试详情：告诉前端应该去成绩页、继续答题还是开始考试
func (s *DashboardService) ExamOverview(ctx context.Context, userID, examID uint) (*ExamOverview, error) {
	exam, err := s.Exams.FindWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, err
	}
	if !exam.IsPublished {
		return nil, util.ErrExamNotFound
	}

	summary := summarize(repository.ExamListRow{
		Exam:          *exam,
		QuestionCount: len(exam.Questions),
		TotalMarks:    exam.TotalMarks(),
	})
	overview := &ExamOverview{Exam: summary}
	a, err := s.AttemptSvc.FindForExam(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	switch {
	case a != nil:
		view := s.AttemptSvc.View(a)
		overview.Attempt = &view
		if a.IsSubmitted {
			overview.Next = NextResult
		} else {
			overview.Next = NextTake
		}
	case exam.IsActive(s.AttemptSvc.Now()):
		overview.Next = NextStart
	default:
		overview.Next = NextUnavailable
	}
	return overview, nil
}

type RecentAttempt struct {
	AttemptID   uint      `json:"attemptId"`
	Username    string    `json:"username"`
	ExamTitle   string    `json:"examTitle"`
	StartTime   time.Time `json:"startTime"`
	IsSubmitted bool      `json:"isSubmitted"`
	Score       int       `json:"score"`
}

type AdminStats struct {
	TotalStudents  int64           `json:"totalStudents"`
	TotalExams     int64           `json:"totalExams"`
	TotalAttempts  int64           `json:"totalAttempts"`
	RecentAttempts []RecentAttempt `json:"recentAttempts"`
}

func (s *DashboardService) AdminStats(ctx context.Context) (*AdminStats, error) {
	students, err := s.UserRepo.CountStudents(ctx)
	if err != nil {
		return nil, err
	}
	exams, err := s.Exams.Count(ctx)
	if err != nil {
		return nil, err
	}
	attempts, err := s.Attempts.Count(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.Attempts.Recent(ctx, recentAttemptsLimit)
	if err != nil {
		return nil, err
	}

	stats := &AdminStats{
		TotalStudents:  students,
		TotalExams:     exams,
		TotalAttempts:  attempts,
		RecentAttempts: make([]RecentAttempt, 0, len(recent)),
	}
	for _, a := range recent {
		row := RecentAttempt{
			AttemptID:   a.ID,
			StartTime:   a.StartTime,
			IsSubmitted: a.IsSubmitted,
			Score:       a.Score,
		}
		if a.User != nil {
			row.Username = a.User.Username
		}
		if a.Exam != nil {
			row.ExamTitle = a.Exam.Title
		}
		stats.RecentAttempts = append(stats.RecentAttempts, row)
	}
	return stats, nil
}
