package score

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/olympiad/internal/domain"
)

// DefaultPassingScore applies when a quiz does not set its own threshold.
const DefaultPassingScore = 50

var hundred = decimal.NewFromInt(100)

// Graded is the outcome of grading one attempt.
type Graded struct {
	CorrectAnswers int
	TotalQuestions int
	Percentage     int
	Passed         bool
}

// Grade scores answers against questions. A question is correct iff the answer stored at its
// index equals its correct option. Unanswered questions count as incorrect.
func Grade(questions []domain.Question, answers map[int]string, passingScore int) Graded {
	g := Graded{TotalQuestions: len(questions)}
	for i, q := range questions {
		if a, ok := answers[i]; ok && a != "" && a == q.CorrectOption {
			g.CorrectAnswers++
		}
	}

	g.Percentage = Percentage(g.CorrectAnswers, g.TotalQuestions)
	g.Passed = Passed(g.Percentage, passingScore)
	return g
}

// Percentage returns round(correct / total * 100), rounding halves up, or 0 when total is 0.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}

	p := decimal.NewFromInt(int64(correct)).
		Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).
		Round(0)
	return int(p.IntPart())
}

func Passed(percentage, passingScore int) bool {
	if passingScore <= 0 {
		passingScore = DefaultPassingScore
	}
	return percentage >= passingScore
}
