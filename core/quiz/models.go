package quiz

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

// Question types
const (
	TypeMultipleChoice = "multiple_choice"
	TypeEssay          = "essay"
)

// OptionCount is the number of options of a multiple-choice question.
const OptionCount = 4

type Quiz struct {
	ID                     int       `json:"id"`
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	TimeLimitSeconds       int       `json:"time_limit_seconds"`
	TimePerQuestionSeconds int       `json:"time_per_question_seconds"`
	IsActive               bool      `json:"is_active"`
	AccessCode             string    `json:"access_code,omitempty"`
	CreatedBy              int       `json:"created_by,omitempty"`
	QuestionCount          int       `json:"question_count"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// EssayOptions is the instructional metadata of an essay question.
type EssayOptions struct {
	Instructions string `json:"instructions,omitempty"`
	MaxWords     int    `json:"max_words,omitempty"`
}

type Question struct {
	ID         int           `json:"id"`
	QuizID     int           `json:"quiz_id"`
	Text       string        `json:"text"`
	Type       string        `json:"type"`
	Options    []string      `json:"options,omitempty"`
	Essay      *EssayOptions `json:"essay,omitempty"`
	OrderIndex int           `json:"order_index"`

	// CorrectAnswer is the option index of a multiple-choice question.
	CorrectAnswer int `json:"correct_answer"`
	// SampleAnswer is the reference answer of an essay question.
	SampleAnswer string `json:"sample_answer,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q Question) IsMultipleChoice() bool { return q.Type == TypeMultipleChoice }
func (q Question) IsEssay() bool          { return q.Type == TypeEssay }

// CorrectAnswerText is the human-readable correct answer.
func (q Question) CorrectAnswerText() string {
	if q.IsEssay() {
		return q.SampleAnswer
	}
	if q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) {
		return q.Options[q.CorrectAnswer]
	}
	return ""
}

// StoredCorrectAnswer is the value kept in the correct_answer column.
func (q Question) StoredCorrectAnswer() string {
	if q.IsEssay() {
		return q.SampleAnswer
	}
	return strconv.Itoa(q.CorrectAnswer)
}

// PublicQuestion is a Question as shown to students: no answers.
type PublicQuestion struct {
	ID         int           `json:"id"`
	Question   string        `json:"question"`
	Type       string        `json:"type"`
	Options    []string      `json:"options"`
	Essay      *EssayOptions `json:"essay,omitempty"`
	OrderIndex int           `json:"order_index"`
}

func (q Question) Public() PublicQuestion {
	opts := q.Options
	if opts == nil {
		opts = []string{}
	}
	return PublicQuestion{
		ID:         q.ID,
		Question:   q.Text,
		Type:       q.Type,
		Options:    opts,
		Essay:      q.Essay,
		OrderIndex: q.OrderIndex,
	}
}

// NewQuiz holds the editable fields of a Quiz, for creation and full updates.
type NewQuiz struct {
	Title                  string `json:"title" validate:"required,max=200"`
	Description            string `json:"description" validate:"max=5000"`
	TimeLimitSeconds       int    `json:"time_limit_seconds" validate:"min=0"`
	TimePerQuestionSeconds int    `json:"time_per_question_seconds" validate:"min=0"`
	AccessCode             string `json:"access_code" validate:"omitempty,accesscode"`
	GenerateAccessCode     bool   `json:"generate_access_code"`
}

func (nq *NewQuiz) Validate(validate *validator.Validate) error {
	nq.Title = core.CleanString(nq.Title)
	nq.Description = core.CleanString(nq.Description)
	nq.AccessCode = core.CleanString(nq.AccessCode)
	return validate.Struct(nq)
}

// NewQuestion accepts both question payload shapes:
// `options` + `correct_answer`, or `optionA`..`optionD` + `correctAnswer`.
// The correct answer may be an index, a letter or the option text.
type NewQuestion struct {
	Text          string          `json:"text"`
	Question      string          `json:"question"`
	Type          string          `json:"type" validate:"omitempty,oneof=multiple_choice essay"`
	Options       json.RawMessage `json:"options"`
	OptionA       string          `json:"optionA"`
	OptionB       string          `json:"optionB"`
	OptionC       string          `json:"optionC"`
	OptionD       string          `json:"optionD"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	CorrectAlt    json.RawMessage `json:"correctAnswer"`
	Instructions  string          `json:"instructions"`
	MaxWords      int             `json:"max_words" validate:"min=0"`
	OrderIndex    *int            `json:"order_index" validate:"omitempty,min=0"`

	normalized Question
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	if err := validate.Struct(nq); err != nil {
		return err
	}

	q := Question{Text: core.CleanString(nq.Text)}
	if q.Text == "" {
		q.Text = core.CleanString(nq.Question)
	}
	if q.Text == "" {
		return fieldErr("text", "this field is required")
	}

	q.Type = nq.Type
	if q.Type == "" {
		q.Type = TypeMultipleChoice
	}
	if nq.OrderIndex != nil {
		q.OrderIndex = *nq.OrderIndex
	} else {
		q.OrderIndex = -1
	}

	answer := nq.CorrectAnswer
	if isEmptyJSON(answer) {
		answer = nq.CorrectAlt
	}

	if q.Type == TypeEssay {
		essay := EssayOptions{Instructions: core.CleanString(nq.Instructions), MaxWords: nq.MaxWords}
		if !isEmptyJSON(nq.Options) {
			if err := json.Unmarshal(nq.Options, &essay); err != nil {
				return fieldErr("options", "essay options must be an object with instructions and max_words")
			}
		}
		if essay.MaxWords < 0 {
			return fieldErr("options", "max_words must not be negative")
		}
		q.Essay = &essay
		if !isEmptyJSON(answer) {
			var sample string
			if err := json.Unmarshal(answer, &sample); err != nil {
				return fieldErr("correct_answer", "sample answer must be text")
			}
			q.SampleAnswer = core.CleanString(sample)
		}
		nq.normalized = q
		return nil
	}

	var opts []string
	if !isEmptyJSON(nq.Options) {
		if err := json.Unmarshal(nq.Options, &opts); err != nil {
			return fieldErr("options", "options must be a list of strings")
		}
	} else {
		opts = []string{nq.OptionA, nq.OptionB, nq.OptionC, nq.OptionD}
	}
	if len(opts) != OptionCount {
		return fieldErr("options", "exactly 4 options are required")
	}
	for i, opt := range opts {
		opts[i] = core.CleanString(opt)
		if opts[i] == "" {
			return fieldErr("options", "options cannot be empty")
		}
	}
	q.Options = opts

	if isEmptyJSON(answer) {
		return fieldErr("correct_answer", "this field is required")
	}
	idx, ok := parseAnswerIndex(opts, answer)
	if !ok {
		return fieldErr("correct_answer", "correct answer must match one of the 4 options")
	}
	q.CorrectAnswer = idx
	nq.normalized = q
	return nil
}

// Normalized returns the question built by Validate.
func (nq *NewQuestion) Normalized() Question {
	return nq.normalized
}

func parseAnswerIndex(opts []string, raw json.RawMessage) (int, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch val := v.(type) {
	case json.Number:
		i, err := val.Int64()
		if err != nil || i < 0 || int(i) >= len(opts) {
			return 0, false
		}
		return int(i), true
	case string:
		return ResolveAnswerIndex(opts, val)
	}
	return 0, false
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func fieldErr(field, msg string) error {
	return core.NewValidationError(errors.New(msg), core.FieldError{Field: field, Error: msg})
}

type QueryFilter struct {
	CreatedBy int
}
