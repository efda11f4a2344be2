package model

import "time"

// swagger:model Category
type Category struct {
	BaseModel
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

func (Category) TableName() string {
	return "categories"
}

// swagger:model Exam
type Exam struct {
	BaseModel
	Title           string     `gorm:"size:200;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	DurationMinutes int        `gorm:"not null" json:"durationMinutes"`
	StartTime       time.Time  `gorm:"not null" json:"startTime"`
	EndTime         time.Time  `gorm:"not null" json:"endTime"`
	IsPublished     bool       `gorm:"default:false;index" json:"isPublished"`
	CategoryID      *uint      `gorm:"index" json:"categoryId,omitempty"`
	Category        *Category  `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Questions       []Question `gorm:"constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsActive 已发布且当前时间处于开放窗口内（含边界）
func (e *Exam) IsActive(now time.Time) bool {
	return e.IsPublished && !now.Before(e.StartTime) && !now.After(e.EndTime)
}

func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// TotalMarks 需要预加载 Questions
func (e *Exam) TotalMarks() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Marks
	}
	return total
}

// swagger:model Question
type Question struct {
	BaseModel
	ExamID           uint     `gorm:"index;not null" json:"examId"`
	Text             string   `gorm:"type:text;not null" json:"text"`
	Marks            int      `gorm:"default:1;not null" json:"marks"`
	Explanation      string   `gorm:"type:text" json:"explanation,omitempty"`
	TimeLimitSeconds *int     `json:"timeLimitSeconds,omitempty"`
	ImageURL         string   `gorm:"size:255" json:"imageUrl,omitempty"`
	Choices          []Choice `gorm:"constraint:OnDelete:CASCADE" json:"choices,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectChoice 返回第一个正确选项；题目未预加载 Choices 或没有正确选项时返回 nil
func (q *Question) CorrectChoice() *Choice {
	for i := range q.Choices {
		if q.Choices[i].IsCorrect {
			return &q.Choices[i]
		}
	}
	return nil
}

// swagger:model Choice
type Choice struct {
	BaseModel
	QuestionID uint   `gorm:"index;not null" json:"questionId"`
	Text       string `gorm:"size:500;not null" json:"text"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
}

func (Choice) TableName() string {
	return "choices"
}
