package service

import (
	"novaexam_backend/internal/model"
	"testing"
)

func answer(questionID uint, marks int, choice *model.Choice) model.Answer {
	a := model.Answer{
		QuestionID: questionID,
		Question:   &model.Question{BaseModel: model.BaseModel{ID: questionID}, Marks: marks},
	}
	if choice != nil {
		id := choice.ID
		a.SelectedChoiceID = &id
		a.SelectedChoice = choice
	}
	return a
}

func choice(id, questionID uint, correct bool) *model.Choice {
	return &model.Choice{BaseModel: model.BaseModel{ID: id}, QuestionID: questionID, IsCorrect: correct}
}

func TestCalculateScore(t *testing.T) {
	tests := []struct {
		name        string
		answers     []model.Answer
		wantScore   int
		wantCorrect int
	}{
		{"no answers", nil, 0, 0},
		{
			"one right one wrong",
			[]model.Answer{answer(1, 1, choice(10, 1, true)), answer(2, 2, choice(20, 2, false))},
			1, 1,
		},
		{
			"both right",
			[]model.Answer{answer(1, 1, choice(10, 1, true)), answer(2, 2, choice(21, 2, true))},
			3, 2,
		},
		{
			"unanswered question",
			[]model.Answer{answer(1, 5, nil), answer(2, 2, choice(21, 2, true))},
			2, 1,
		},
		{
			"correct choice of another question",
			[]model.Answer{answer(1, 4, choice(21, 2, true))},
			0, 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateScore(tt.answers); got != tt.wantScore {
				t.Errorf("CalculateScore = %d, want %d", got, tt.wantScore)
			}
			// 重复计算结果不变
			if got := CalculateScore(tt.answers); got != tt.wantScore {
				t.Errorf("second CalculateScore = %d, want %d", got, tt.wantScore)
			}
			if got := CountCorrect(tt.answers); got != tt.wantCorrect {
				t.Errorf("CountCorrect = %d, want %d", got, tt.wantCorrect)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		score, total int
		want         float64
		passed       bool
	}{
		{3, 3, 100, true},
		{1, 3, 33.33, false},
		{2, 3, 66.67, true},
		{3, 5, 60, true},
		{0, 0, 0, false},
		// 59.9975% 显示为 60，但不及格
		{23999, 40000, 60, false},
		{24000, 40000, 60, true},
	}
	for _, tt := range tests {
		got := Percentage(tt.score, tt.total)
		if got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.score, tt.total, got, tt.want)
		}
		if passed := Passed(tt.score, tt.total); passed != tt.passed {
			t.Errorf("Passed(%d, %d) = %v, want %v", tt.score, tt.total, passed, tt.passed)
		}
	}
}
