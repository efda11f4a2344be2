package repository

import (
	"context"
	"novaexam_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

// WithTx 返回绑定到事务的仓储副本
func (r *ExamRepository) WithTx(tx *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: tx}
}

func (r *ExamRepository) Create(ctx context.Context, exam *model.Exam) error {
	return r.DB.WithContext(ctx).Omit("Category", "Questions").Create(exam).Error
}

func (r *ExamRepository) Update(ctx context.Context, exam *model.Exam) error {
	return r.DB.WithContext(ctx).Omit("Category", "Questions").Save(exam).Error
}

func (r *ExamRepository) FindByID(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	if err := r.DB.WithContext(ctx).Preload("Category").First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

// FindWithQuestions 预加载题目与选项，均按 id 升序
func (r *ExamRepository) FindWithQuestions(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.WithContext(ctx).
		Preload("Category").
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("questions.id asc") }).
		Preload("Questions.Choices", func(db *gorm.DB) *gorm.DB { return db.Order("choices.id asc") }).
		First(&exam, id).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *ExamRepository) FindPublishedWithQuestions(ctx context.Context, id uint) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.WithContext(ctx).
		Preload("Category").
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("questions.id asc") }).
		Preload("Questions.Choices", func(db *gorm.DB) *gorm.DB { return db.Order("choices.id asc") }).
		Where("is_published = ?", true).
		First(&exam, id).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

type ExamListRow struct {
	model.Exam
	QuestionCount int `json:"questionCount"`
	TotalMarks    int `json:"totalMarks"`
	AttemptCount  int `json:"attemptCount"`
}

func (r *ExamRepository) List(ctx context.Context, publishedOnly bool) ([]ExamListRow, error) {
	var exams []model.Exam
	q := r.DB.WithContext(ctx).Preload("Category").Order("created_at desc, id desc")
	if publishedOnly {
		q = q.Where("is_published = ?", true)
	}
	if err := q.Find(&exams).Error; err != nil {
		return nil, err
	}
	if len(exams) == 0 {
		return []ExamListRow{}, nil
	}

	ids := make([]uint, len(exams))
	for i, e := range exams {
		ids[i] = e.ID
	}

	var stats []struct {
		ExamID        uint
		QuestionCount int
		TotalMarks    int
	}
	if err := r.DB.WithContext(ctx).Model(&model.Question{}).
		Select("exam_id, COUNT(*) AS question_count, COALESCE(SUM(marks), 0) AS total_marks").
		Where("exam_id IN ?", ids).
		Group("exam_id").
		Scan(&stats).Error; err != nil {
		return nil, err
	}

	var attempts []struct {
		ExamID       uint
		AttemptCount int
	}
	if err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Select("exam_id, COUNT(*) AS attempt_count").
		Where("exam_id IN ?", ids).
		Group("exam_id").
		Scan(&attempts).Error; err != nil {
		return nil, err
	}

	rows := make([]ExamListRow, len(exams))
	for i, e := range exams {
		rows[i].Exam = e
		for _, s := range stats {
			if s.ExamID == e.ID {
				rows[i].QuestionCount = s.QuestionCount
				rows[i].TotalMarks = s.TotalMarks
			}
		}
		for _, a := range attempts {
			if a.ExamID == e.ID {
				rows[i].AttemptCount = a.AttemptCount
			}
		}
	}
	return rows, nil
}

func (r *ExamRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Exam{}).Count(&count).Error
	return count, err
}

// TotalMarks 按考试汇总题目分值；没有题目的考试不在结果中
func (r *ExamRepository) TotalMarks(ctx context.Context, examIDs []uint) (map[uint]int, error) {
	out := make(map[uint]int, len(examIDs))
	if len(examIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ExamID     uint
		TotalMarks int
	}
	err := r.DB.WithContext(ctx).Model(&model.Question{}).
		Select("exam_id, COALESCE(SUM(marks), 0) AS total_marks").
		Where("exam_id IN ?", examIDs).
		Group("exam_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ExamID] = row.TotalMarks
	}
	return out, nil
}

func (r *ExamRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		attemptIDs := tx.Model(&model.Attempt{}).Select("id").Where("exam_id = ?", id)
		if err := tx.Where("attempt_id IN (?)", attemptIDs).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("exam_id = ?", id).Delete(&model.Attempt{}).Error; err != nil {
			return err
		}
		if _, err := r.WithTx(tx).DeleteQuestionsByExam(ctx, id); err != nil {
			return err
		}
		return tx.Delete(&model.Exam{}, id).Error
	})
}

// ---- 题目 ----

// CreateQuestion 题目与选项一起写入
func (r *ExamRepository) CreateQuestion(ctx context.Context, question *model.Question) error {
	return r.DB.WithContext(ctx).Create(question).Error
}

func (r *ExamRepository) FindQuestionByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("choices.id asc") }).
		First(&q, id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *ExamRepository) FindQuestionInExam(ctx context.Context, examID, questionID uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).Where("id = ? AND exam_id = ?", questionID, examID).First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *ExamRepository) ListQuestions(ctx context.Context, examID uint) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.WithContext(ctx).
		Preload("Choices", func(db *gorm.DB) *gorm.DB { return db.Order("choices.id asc") }).
		Where("exam_id = ?", examID).
		Order("id asc").
		Find(&qs).Error
	return qs, err
}

// ReplaceQuestion 更新题干并整体替换选项；引用旧选项的作答被清空而不是删除
func (r *ExamRepository) ReplaceQuestion(ctx context.Context, question *model.Question, choices []model.Choice) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Question{}).Where("id = ?", question.ID).Updates(map[string]interface{}{
			"text":               question.Text,
			"marks":              question.Marks,
			"explanation":        question.Explanation,
			"time_limit_seconds": question.TimeLimitSeconds,
		}).Error; err != nil {
			return err
		}

		oldChoices := tx.Model(&model.Choice{}).Select("id").Where("question_id = ?", question.ID)
		if err := tx.Model(&model.Answer{}).
			Where("selected_choice_id IN (?)", oldChoices).
			Update("selected_choice_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", question.ID).Delete(&model.Choice{}).Error; err != nil {
			return err
		}

		for i := range choices {
			choices[i].ID = 0
			choices[i].QuestionID = question.ID
		}
		if len(choices) > 0 {
			if err := tx.Create(&choices).Error; err != nil {
				return err
			}
		}
		question.Choices = choices
		return nil
	})
}

func (r *ExamRepository) UpdateQuestionImage(ctx context.Context, id uint, url string) error {
	return r.DB.WithContext(ctx).Model(&model.Question{}).Where("id = ?", id).Update("image_url", url).Error
}

func (r *ExamRepository) DeleteQuestion(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteQuestions(tx, tx.Model(&model.Question{}).Select("id").Where("id = ?", id))
	})
}

// DeleteQuestionsByExam 删除考试下全部题目及其选项、作答，返回删除的题目数
func (r *ExamRepository) DeleteQuestionsByExam(ctx context.Context, examID uint) (int64, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&model.Question{}).Where("exam_id = ?", examID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	db := r.DB.WithContext(ctx)
	err := deleteQuestions(db, db.Model(&model.Question{}).Select("id").Where("exam_id = ?", examID))
	return count, err
}

func deleteQuestions(tx *gorm.DB, questionIDs *gorm.DB) error {
	if err := tx.Where("question_id IN (?)", questionIDs).Delete(&model.Answer{}).Error; err != nil {
		return err
	}
	if err := tx.Where("question_id IN (?)", questionIDs).Delete(&model.Choice{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN (?)", questionIDs).Delete(&model.Question{}).Error
}

func (r *ExamRepository) FindChoiceByID(ctx context.Context, id uint) (*model.Choice, error) {
	var c model.Choice
	if err := r.DB.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
