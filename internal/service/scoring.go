package service

import (
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/util"
)

// PassThreshold 及格线（百分比）
const PassThreshold = 60

// CalculateScore 累加所选选项正确的题目分值
// answers 需要预加载 Question 与 SelectedChoice；不属于该题的选项不计分
func CalculateScore(answers []model.Answer) int {
	score := 0
	for _, ans := range answers {
		if isCorrectAnswer(ans) {
			score += ans.Question.Marks
		}
	}
	return score
}

// CountCorrect 答对的题目数
func CountCorrect(answers []model.Answer) int {
	n := 0
	for _, ans := range answers {
		if isCorrectAnswer(ans) {
			n++
		}
	}
	return n
}

func isCorrectAnswer(ans model.Answer) bool {
	if ans.SelectedChoice == nil || ans.Question == nil {
		return false
	}
	return ans.SelectedChoice.IsCorrect && ans.SelectedChoice.QuestionID == ans.QuestionID
}

// Percentage 总分为 0 时返回 0，结果保留两位小数
func Percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return util.Round2(float64(score) / float64(total) * 100)
}

// Passed 用整数比较，不受 Percentage 的舍入影响
func Passed(score, total int) bool {
	if total <= 0 {
		return false
	}
	return score*100 >= PassThreshold*total
}
