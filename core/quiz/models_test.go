package quiz

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

func newValidator() *validator.Validate {
	validate := validator.New()
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	core.InitValidators(validate, translator)
	return validate
}

func TestResolveAnswerIndex(t *testing.T) {
	opts := []string{"Dhaka", "Khulna", "Sylhet", "Rajshahi"}

	tests := []struct {
		raw    string
		want   int
		wantOK bool
	}{
		{raw: "2", want: 2, wantOK: true},
		{raw: " 0 ", want: 0, wantOK: true},
		{raw: "4"},
		{raw: "-1"},
		{raw: "C", want: 2, wantOK: true},
		{raw: "d", want: 3, wantOK: true},
		{raw: "E"},
		{raw: "sylhet", want: 2, wantOK: true},
		{raw: "Chittagong"},
		{raw: ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ResolveAnswerIndex(opts, tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNewQuestion_Validate(t *testing.T) {
	validate := newValidator()

	tests := []struct {
		name      string
		payload   string
		wantErr   bool
		wantField string
		check     func(t *testing.T, q Question)
	}{
		{
			name:    "options and correct_answer index",
			payload: `{"text": "2 + 2?", "options": ["3", "4", "5", "6"], "correct_answer": 1}`,
			check: func(t *testing.T, q Question) {
				assert.Equal(t, TypeMultipleChoice, q.Type)
				assert.Equal(t, []string{"3", "4", "5", "6"}, q.Options)
				assert.Equal(t, 1, q.CorrectAnswer)
				assert.Equal(t, -1, q.OrderIndex)
			},
		},
		{
			name:    "option fields and correctAnswer letter",
			payload: `{"question": "Capital?", "optionA": "Dhaka", "optionB": "Khulna", "optionC": "Sylhet", "optionD": "Rajshahi", "correctAnswer": "A", "order_index": 3}`,
			check: func(t *testing.T, q Question) {
				assert.Equal(t, "Capital?", q.Text)
				assert.Equal(t, 0, q.CorrectAnswer)
				assert.Equal(t, 3, q.OrderIndex)
			},
		},
		{
			name:    "correct answer as option text",
			payload: `{"text": "Largest?", "options": ["a", "b", "c", "d"], "correct_answer": "c"}`,
			check: func(t *testing.T, q Question) {
				assert.Equal(t, 2, q.CorrectAnswer)
			},
		},
		{
			name:    "essay",
			payload: `{"text": "Explain.", "type": "essay", "options": {"instructions": "Be brief", "max_words": 150}, "correct_answer": "A sample"}`,
			check: func(t *testing.T, q Question) {
				require.NotNil(t, q.Essay)
				assert.Equal(t, "Be brief", q.Essay.Instructions)
				assert.Equal(t, 150, q.Essay.MaxWords)
				assert.Equal(t, "A sample", q.SampleAnswer)
				assert.Equal(t, "A sample", q.CorrectAnswerText())
			},
		},
		{name: "missing text", payload: `{"options": ["a", "b", "c", "d"], "correct_answer": 0}`, wantErr: true, wantField: "text"},
		{name: "three options", payload: `{"text": "x", "options": ["a", "b", "c"], "correct_answer": 0}`, wantErr: true, wantField: "options"},
		{name: "empty option", payload: `{"text": "x", "optionA": "a", "optionB": "", "optionC": "c", "optionD": "d", "correctAnswer": 0}`, wantErr: true, wantField: "options"},
		{name: "missing answer", payload: `{"text": "x", "options": ["a", "b", "c", "d"]}`, wantErr: true, wantField: "correct_answer"},
		{name: "answer out of range", payload: `{"text": "x", "options": ["a", "b", "c", "d"], "correct_answer": 4}`, wantErr: true, wantField: "correct_answer"},
		{name: "unknown type", payload: `{"text": "x", "type": "true_false"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nq NewQuestion
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &nq))
			err := nq.Validate(validate)
			if tt.wantErr {
				require.Error(t, err)
				if tt.wantField != "" {
					verr, ok := err.(*core.ValidationError)
					require.True(t, ok, "%T", err)
					assert.Equal(t, tt.wantField, verr.Fields[0].Field)
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, nq.Normalized())
		})
	}
}

func TestNewQuiz_Validate(t *testing.T) {
	validate := newValidator()

	nq := NewQuiz{Title: "  General Knowledge ", AccessCode: " 4821 "}
	require.NoError(t, nq.Validate(validate))
	assert.Equal(t, "General Knowledge", nq.Title)
	assert.Equal(t, "4821", nq.AccessCode)

	nq = NewQuiz{Title: "GK", AccessCode: "abc"}
	assert.Error(t, nq.Validate(validate))

	nq = NewQuiz{}
	assert.Error(t, nq.Validate(validate))
}

func TestQuestion_Public(t *testing.T) {
	q := Question{ID: 4, Text: "2 + 2?", Type: TypeMultipleChoice, Options: []string{"3", "4", "5", "6"}, CorrectAnswer: 1, OrderIndex: 2}
	data, err := json.Marshal(q.Public())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "correct")
	assert.JSONEq(t, `{"id": 4, "question": "2 + 2?", "type": "multiple_choice", "options": ["3", "4", "5", "6"], "order_index": 2}`, string(data))
}

func TestCanManage(t *testing.T) {
	qz := Quiz{ID: 1, CreatedBy: 5}
	admin := user.User{ID: 1, Role: user.RoleAdmin}
	owner := user.User{ID: 5, Role: user.RoleTeacher}
	other := user.User{ID: 6, Role: user.RoleTeacher}
	student := user.User{ID: 5, Role: user.RoleStudent}

	assert.True(t, CanManage(admin, qz))
	assert.True(t, CanManage(owner, qz))
	assert.False(t, CanManage(other, qz))
	assert.False(t, CanManage(student, qz))
}
