package submission

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/rehmanpranto/QuizFlow/core"
)

// AnswerValue is one raw answer: a JSON number, string or null.
type AnswerValue struct {
	raw   string
	isNum bool
	null  bool
}

func NumberAnswer(i int) AnswerValue  { return AnswerValue{raw: strconv.Itoa(i), isNum: true} }
func TextAnswer(s string) AnswerValue { return AnswerValue{raw: s} }

func (v AnswerValue) IsEmpty() bool  { return v.null || strings.TrimSpace(v.raw) == "" }
func (v AnswerValue) String() string { return v.raw }
func (v AnswerValue) IsNumber() bool { return v.isNum }

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var val interface{}
	if err := dec.Decode(&val); err != nil {
		return err
	}
	switch x := val.(type) {
	case nil:
		*v = AnswerValue{null: true}
	case json.Number:
		*v = AnswerValue{raw: x.String(), isNum: true}
	case string:
		*v = AnswerValue{raw: x}
	case bool:
		*v = AnswerValue{raw: strconv.FormatBool(x)}
	default:
		// objects and arrays are kept verbatim and fail to parse as an option
		*v = AnswerValue{raw: string(data)}
	}
	return nil
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.null {
		return []byte("null"), nil
	}
	if v.isNum {
		return []byte(v.raw), nil
	}
	return json.Marshal(v.raw)
}

// Answers holds a student's answers. The JSON form is either an array, aligned to the quiz's
// questions in order, or an object keyed by question id.
type Answers struct {
	positional []AnswerValue
	keyed      map[int]AnswerValue
	given      bool // a list or an object was supplied, even an empty one
}

// PositionalAnswers builds Answers aligned to the question order.
func PositionalAnswers(values ...AnswerValue) Answers {
	return Answers{positional: values, given: true}
}

// KeyedAnswers builds Answers keyed by question id.
func KeyedAnswers(values map[int]AnswerValue) Answers {
	return Answers{keyed: values, given: true}
}

func (a *Answers) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = Answers{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var values []AnswerValue
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return errors.Wrap(err, "decoding answers list")
		}
		*a = Answers{positional: values, given: true}
	case '{':
		var values map[string]AnswerValue
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return errors.Wrap(err, "decoding answers object")
		}
		keyed := make(map[int]AnswerValue, len(values))
		for k, v := range values {
			id, err := strconv.Atoi(strings.TrimSpace(k))
			if err != nil {
				return errors.Errorf("answers: invalid question id %q", k)
			}
			keyed[id] = v
		}
		*a = Answers{keyed: keyed, given: true}
	default:
		return errors.New("answers must be a list or an object")
	}
	return nil
}

// Given reports whether an answer list or object was supplied. An empty one counts: every
// question is then graded as not answered.
func (a Answers) Given() bool { return a.given }

// Len is the number of answers given, empty ones included.
func (a Answers) Len() int {
	if a.keyed != nil {
		return len(a.keyed)
	}
	return len(a.positional)
}

// Normalize maps the answers to question ids. questionIDs is the quiz's question order.
func (a Answers) Normalize(questionIDs []int) map[int]AnswerValue {
	if a.keyed != nil {
		return a.keyed
	}
	m := make(map[int]AnswerValue, len(a.positional))
	for i, v := range a.positional {
		if i >= len(questionIDs) {
			break
		}
		m[questionIDs[i]] = v
	}
	return m
}

// DetailEntry is the graded outcome of one question.
type DetailEntry struct {
	QuestionID        int    `json:"question_id"`
	QuestionText      string `json:"question_text"`
	QuestionType      string `json:"question_type"`
	UserAnswerText    string `json:"user_answer_text"`
	CorrectAnswerText string `json:"correct_answer_text"`
	IsCorrect         bool   `json:"is_correct"`
	NeedsReview       bool   `json:"needs_review"`
}

// Result is what Score computes.
type Result struct {
	Score          int           `json:"score"`
	TotalQuestions int           `json:"total_questions"`
	Percentage     float64       `json:"percentage"`
	Details        []DetailEntry `json:"detailed_results"`
}

type Submission struct {
	ID             int           `json:"id"`
	SubmissionID   string        `json:"submission_id"`
	UserID         int           `json:"user_id"`
	QuizID         int           `json:"quiz_id,omitempty"`
	QuizTitle      string        `json:"quiz_title,omitempty"`
	Score          int           `json:"score"`
	TotalQuestions int           `json:"total_questions"`
	Percentage     float64       `json:"percentage"`
	Details        []DetailEntry `json:"detailed_results,omitempty"`
	AccessCodeUsed string        `json:"access_code_used,omitempty"`
	Feedback       string        `json:"feedback"`
	SubmittedAt    time.Time     `json:"submitted_at"`
}

// Summary drops the detailed results.
func (s Submission) Summary() Submission {
	s.Details = nil
	return s
}

// SubmitRequest is a student's answer sheet. The quiz is picked by QuizID, then by
// AccessCode, then the active quiz is used.
type SubmitRequest struct {
	QuizID     int     `json:"quiz_id" validate:"min=0"`
	AccessCode string  `json:"access_code" validate:"omitempty,accesscode"`
	Answers    Answers `json:"answers"`
}

func (r *SubmitRequest) Validate(validate *validator.Validate) error {
	r.AccessCode = core.CleanString(r.AccessCode)
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !r.Answers.Given() {
		return core.NewValidationError(errors.New("answers are required"), core.FieldError{Field: "answers", Error: "this field is required"})
	}
	return nil
}

// StudentStats is a student with a summary of their submissions.
type StudentStats struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	Submissions    int        `json:"submissions"`
	BestPercentage float64    `json:"best_percentage"`
	LastSubmitted  *time.Time `json:"last_submitted_at,omitempty"`
}
