package submission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
)

// Answer texts of unusable answers
const (
	NotAnswered   = "Not Answered"
	InvalidFormat = "Invalid Answer Format"
	InvalidOption = "Invalid Option Selected"
)

// Score grades answers against questions, which must be in quiz order. Essay answers are
// recorded for review and never count as correct. Malformed answers are graded incorrect.
func Score(questions []quiz.Question, answers Answers) Result {
	ids := make([]int, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	given := answers.Normalize(ids)

	res := Result{TotalQuestions: len(questions), Details: make([]DetailEntry, 0, len(questions))}
	for _, q := range questions {
		entry := gradeQuestion(q, given[q.ID])
		if entry.IsCorrect {
			res.Score++
		}
		res.Details = append(res.Details, entry)
	}
	res.Percentage = Percentage(res.Score, res.TotalQuestions)
	return res
}

func gradeQuestion(q quiz.Question, ans AnswerValue) DetailEntry {
	entry := DetailEntry{
		QuestionID:        q.ID,
		QuestionText:      q.Text,
		QuestionType:      q.Type,
		CorrectAnswerText: q.CorrectAnswerText(),
	}

	if q.IsEssay() {
		entry.NeedsReview = true
		entry.UserAnswerText = NotAnswered
		if !ans.IsEmpty() {
			entry.UserAnswerText = strings.TrimSpace(ans.String())
		}
		return entry
	}

	if ans.IsEmpty() {
		entry.UserAnswerText = NotAnswered
		return entry
	}
	idx, err := strconv.Atoi(strings.TrimSpace(ans.String()))
	if err != nil {
		entry.UserAnswerText = InvalidFormat
		return entry
	}
	if idx < 0 || idx >= len(q.Options) {
		entry.UserAnswerText = InvalidOption
		return entry
	}
	entry.UserAnswerText = q.Options[idx]
	entry.IsCorrect = idx == q.CorrectAnswer
	return entry
}

// Percentage is score/total as a percentage rounded to 2 decimals, 0 without questions.
func Percentage(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return core.Round(float64(score)/float64(total)*100, 2)
}

// Feedback is the encouragement shown with a result.
func Feedback(name string, percentage float64) string {
	switch {
	case percentage >= 100:
		return fmt.Sprintf("Perfect score, %s! You're a whiz!", name)
	case percentage >= 80:
		return fmt.Sprintf("Excellent work, %s!", name)
	case percentage >= 60:
		return fmt.Sprintf("Good job, %s!", name)
	case percentage >= 40:
		return fmt.Sprintf("Not bad, %s. Keep practicing!", name)
	default:
		return fmt.Sprintf("Keep learning, %s!", name)
	}
}
