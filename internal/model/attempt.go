package model

import "time"

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// Attempt 一个学生对一场考试的唯一一次作答
// swagger:model Attempt
type Attempt struct {
	BaseModel
	UserID      uint       `gorm:"uniqueIndex:idx_attempt_user_exam;not null" json:"userId"`
	ExamID      uint       `gorm:"uniqueIndex:idx_attempt_user_exam;index;not null" json:"examId"`
	StartTime   time.Time  `gorm:"not null" json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	IsSubmitted bool       `gorm:"default:false;index" json:"isSubmitted"`
	Score       int        `gorm:"default:0;not null" json:"score"`

	User    *User    `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Exam    *Exam    `gorm:"constraint:OnDelete:CASCADE" json:"exam,omitempty"`
	Answers []Answer `gorm:"constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// ExpectedEnd 需要预加载 Exam
func (a *Attempt) ExpectedEnd() time.Time {
	return a.StartTime.Add(a.Exam.Duration())
}

// IsExpired 只做判断，不修改状态；已提交的作答永远不算过期
func (a *Attempt) IsExpired(now time.Time) bool {
	if a.IsSubmitted || a.StartTime.IsZero() {
		return false
	}
	return now.After(a.ExpectedEnd())
}

// TimeRemaining 剩余秒数，已提交时为 0
func (a *Attempt) TimeRemaining(now time.Time) int {
	if a.IsSubmitted {
		return 0
	}
	remaining := int(a.ExpectedEnd().Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (a *Attempt) Status() AttemptStatus {
	if a.IsSubmitted {
		return AttemptSubmitted
	}
	return AttemptInProgress
}

// Answer 每道题在一次作答中至多一条记录，重复保存时原地更新
// swagger:model Answer
type Answer struct {
	BaseModel
	AttemptID        uint  `gorm:"uniqueIndex:idx_answer_attempt_question;not null" json:"attemptId"`
	QuestionID       uint  `gorm:"uniqueIndex:idx_answer_attempt_question;index;not null" json:"questionId"`
	SelectedChoiceID *uint `gorm:"index" json:"selectedChoiceId"`

	Question       *Question `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	SelectedChoice *Choice   `gorm:"constraint:OnDelete:SET NULL" json:"-"`
}

func (Answer) TableName() string {
	return "answers"
}
