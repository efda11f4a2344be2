package repository

import (
	"context"
	"novaexam_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: tx}
}

// Create 连同 Answers 一起写入，不会触碰 User/Exam
func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return r.DB.WithContext(ctx).Omit("User", "Exam").Create(attempt).Error
}

// LockForUser 行锁读取某学生的作答；不属于该学生时返回 ErrRecordNotFound
func (r *AttemptRepository) LockForUser(ctx context.Context, id, userID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", id, userID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) LockByUserExam(ctx context.Context, userID, examID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND exam_id = ?", userID, examID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) FindByUserExam(ctx context.Context, userID, examID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND exam_id = ?", userID, examID).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// MarkSubmitted 只更新终态字段
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, id uint, endTime time.Time, score int) error {
	return r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_submitted": true,
			"end_time":     endTime,
			"score":        score,
		}).Error
}

// ListAnswers 预加载题目（含选项）与所选选项，按题目顺序
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uint) ([]model.Answer, error) {
	var answers []model.Answer
	err := r.DB.WithContext(ctx).
		Preload("Question").
		Preload("Question.Choices", func(db *gorm.DB) *gorm.DB { return db.Order("choices.id asc") }).
		Preload("SelectedChoice").
		Where("attempt_id = ?", attemptID).
		Order("question_id asc").
		Find(&answers).Error
	return answers, err
}

func (r *AttemptRepository) FindAnswer(ctx context.Context, attemptID, questionID uint) (*model.Answer, error) {
	var ans model.Answer
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&ans).Error
	if err != nil {
		return nil, err
	}
	return &ans, nil
}

// SaveAnswer 每个 (attempt, question) 只有一行，已存在则原地更新所选选项
func (r *AttemptRepository) SaveAnswer(ctx context.Context, attemptID, questionID uint, choiceID *uint) (*model.Answer, error) {
	ans, err := r.EnsureAnswer(ctx, attemptID, questionID)
	if err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).Model(&model.Answer{}).
		Where("id = ?", ans.ID).
		Update("selected_choice_id", choiceID).Error; err != nil {
		return nil, err
	}
	ans.SelectedChoiceID = choiceID
	return ans, nil
}

// EnsureAnswer 不存在时创建空作答，已存在则原样返回
func (r *AttemptRepository) EnsureAnswer(ctx context.Context, attemptID, questionID uint) (*model.Answer, error) {
	ans := model.Answer{AttemptID: attemptID, QuestionID: questionID}
	err := r.DB.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		FirstOrCreate(&ans).Error
	if err != nil {
		return nil, err
	}
	return &ans, nil
}

// Selections 题目 ID 到所选选项的映射，未作答为 nil
func (r *AttemptRepository) Selections(ctx context.Context, attemptID uint) (map[uint]*uint, error) {
	var answers []model.Answer
	if err := r.DB.WithContext(ctx).
		Select("question_id", "selected_choice_id").
		Where("attempt_id = ?", attemptID).
		Find(&answers).Error; err != nil {
		return nil, err
	}
	out := make(map[uint]*uint, len(answers))
	for _, a := range answers {
		out[a.QuestionID] = a.SelectedChoiceID
	}
	return out, nil
}


func (r *AttemptRepository) ListByUser(ctx context.Context, userID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Exam").
		Where("user_id = ?", userID).
		Order("start_time desc, id desc").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListSubmittedByUser(ctx context.Context, userID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("Exam").
		Preload("Exam.Questions").
		Where("user_id = ? AND is_submitted = ?", userID, true).
		Order("end_time desc, id desc").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListByExam(ctx context.Context, examID uint) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("User").
		Where("exam_id = ?", examID).
		Order("start_time desc, id desc").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) Recent(ctx context.Context, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Preload("User").
		Preload("Exam").
		Order("start_time desc, id desc").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).Count(&count).Error
	return count, err
}

// ScoreRow 排行榜原始数据：一次已提交作答
type ScoreRow struct {
	UserID   uint
	Username string
	ExamID   uint
	Score    int
}

// SubmittedScores examID 为 0 时返回全部考试
func (r *AttemptRepository) SubmittedScores(ctx context.Context, examID uint) ([]ScoreRow, error) {
	var rows []ScoreRow
	q := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Select("attempts.user_id, users.username, attempts.exam_id, attempts.score").
		Joins("JOIN users ON users.id = attempts.user_id").
		Where("attempts.is_submitted = ?", true)
	if examID != 0 {
		q = q.Where("attempts.exam_id = ?", examID)
	}
	err := q.Order("attempts.id asc").Scan(&rows).Error
	return rows, err
}

// FindWithOwner 预加载学生与考试
func (r *AttemptRepository) FindWithOwner(ctx context.Context, id uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).Preload("User").Preload("Exam").First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}
