package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/quiz"
)

const (
	quizColumns = `id, title, description, time_limit_seconds, time_per_question_seconds, is_active, access_code,
		created_by, created_at, updated_at`
	quizCountColumn = "(SELECT COUNT(*) FROM questions WHERE questions.quiz_id = quizzes.id) AS question_count"
	questionColumns = `id, quiz_id, text, type, option_a, option_b, option_c, option_d, essay_instructions,
		essay_max_words, correct_answer, order_index, created_at, updated_at`
)

type quizRow struct {
	ID                     int         `db:"id"`
	Title                  string      `db:"title"`
	Description            string      `db:"description"`
	TimeLimitSeconds       int         `db:"time_limit_seconds"`
	TimePerQuestionSeconds int         `db:"time_per_question_seconds"`
	IsActive               bool        `db:"is_active"`
	AccessCode             null.String `db:"access_code"`
	CreatedBy              null.Int    `db:"created_by"`
	QuestionCount          int         `db:"question_count"`
	CreatedAt              time.Time   `db:"created_at"`
	UpdatedAt              time.Time   `db:"updated_at"`
}

func toQuizRow(qz quiz.Quiz) quizRow {
	return quizRow{
		ID:                     qz.ID,
		Title:                  qz.Title,
		Description:            qz.Description,
		TimeLimitSeconds:       qz.TimeLimitSeconds,
		TimePerQuestionSeconds: qz.TimePerQuestionSeconds,
		IsActive:               qz.IsActive,
		AccessCode:             null.NewString(qz.AccessCode, qz.AccessCode != ""),
		CreatedBy:              null.NewInt(qz.CreatedBy, qz.CreatedBy != 0),
		QuestionCount:          qz.QuestionCount,
		CreatedAt:              qz.CreatedAt.UTC(),
		UpdatedAt:              qz.UpdatedAt.UTC(),
	}
}

func (r quizRow) toDomain() quiz.Quiz {
	return quiz.Quiz{
		ID:                     r.ID,
		Title:                  r.Title,
		Description:            r.Description,
		TimeLimitSeconds:       r.TimeLimitSeconds,
		TimePerQuestionSeconds: r.TimePerQuestionSeconds,
		IsActive:               r.IsActive,
		AccessCode:             r.AccessCode.String,
		CreatedBy:              r.CreatedBy.Int,
		QuestionCount:          r.QuestionCount,
		CreatedAt:              r.CreatedAt.UTC(),
		UpdatedAt:              r.UpdatedAt.UTC(),
	}
}

type questionRow struct {
	ID                int         `db:"id"`
	QuizID            int         `db:"quiz_id"`
	Text              string      `db:"text"`
	Type              string      `db:"type"`
	OptionA           null.String `db:"option_a"`
	OptionB           null.String `db:"option_b"`
	OptionC           null.String `db:"option_c"`
	OptionD           null.String `db:"option_d"`
	EssayInstructions null.String `db:"essay_instructions"`
	EssayMaxWords     null.Int    `db:"essay_max_words"`
	CorrectAnswer     string      `db:"correct_answer"`
	OrderIndex        int         `db:"order_index"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func toQuestionRow(q quiz.Question) questionRow {
	row := questionRow{
		ID:            q.ID,
		QuizID:        q.QuizID,
		Text:          q.Text,
		Type:          q.Type,
		CorrectAnswer: q.StoredCorrectAnswer(),
		OrderIndex:    q.OrderIndex,
		CreatedAt:     q.CreatedAt.UTC(),
		UpdatedAt:     q.UpdatedAt.UTC(),
	}
	opts := []*null.String{&row.OptionA, &row.OptionB, &row.OptionC, &row.OptionD}
	for i, opt := range q.Options {
		if i < len(opts) {
			*opts[i] = null.StringFrom(opt)
		}
	}
	if q.Essay != nil {
		row.EssayInstructions = null.NewString(q.Essay.Instructions, q.Essay.Instructions != "")
		row.EssayMaxWords = null.NewInt(q.Essay.MaxWords, q.Essay.MaxWords > 0)
	}
	return row
}

func (r questionRow) toDomain() quiz.Question {
	q := quiz.Question{
		ID:         r.ID,
		QuizID:     r.QuizID,
		Text:       r.Text,
		Type:       r.Type,
		OrderIndex: r.OrderIndex,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if q.IsEssay() {
		q.Essay = &quiz.EssayOptions{Instructions: r.EssayInstructions.String, MaxWords: r.EssayMaxWords.Int}
		q.SampleAnswer = r.CorrectAnswer
		return q
	}

	q.Options = []string{r.OptionA.String, r.OptionB.String, r.OptionC.String, r.OptionD.String}
	if idx, ok := quiz.ResolveAnswerIndex(q.Options, r.CorrectAnswer); ok {
		q.CorrectAnswer = idx
	} else {
		// unresolvable legacy value: no option is correct
		q.CorrectAnswer = -1
	}
	return q
}

type quizRepository struct {
	baseRepository
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(exec core.DBExecutor) *quizRepository {
	return &quizRepository{baseRepository{exec: exec}}
}

// trapNoRowsErr maps "no rows" err to notFound
func (repo quizRepository) trapNoRowsErr(err error, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo quizRepository) trapQuizUniqueErr(err error, msg string) error {
	if isUniqueViolation(err, "access_code") {
		return quiz.ErrAccessCodeTaken
	}
	return errors.Wrap(err, msg)
}

func (repo quizRepository) getQuiz(ctx context.Context, exec core.DBExecutor, where string, args ...interface{}) (quiz.Quiz, error) {
	var row quizRow
	q := exec.Rebind("SELECT " + quizColumns + ", " + quizCountColumn + " FROM quizzes WHERE " + where)
	if err := exec.GetContext(ctx, &row, q, args...); err != nil {
		return quiz.Quiz{}, repo.trapNoRowsErr(err, quiz.ErrNotFound, "getting quiz")
	}
	return row.toDomain(), nil
}

func (repo quizRepository) CreateQuiz(ctx context.Context, qz quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	exe := repo.getExec(exec)
	row := toQuizRow(qz)
	q := exe.Rebind(`INSERT INTO quizzes (title, description, time_limit_seconds, time_per_question_seconds, is_active,
		access_code, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		row.Title, row.Description, row.TimeLimitSeconds, row.TimePerQuestionSeconds, row.IsActive,
		row.AccessCode, row.CreatedBy, row.CreatedAt, row.UpdatedAt,
	).Scan(&row.ID)
	if err != nil {
		return quiz.Quiz{}, repo.trapQuizUniqueErr(err, "inserting quiz")
	}
	return row.toDomain(), nil
}

func (repo quizRepository) UpdateQuiz(ctx context.Context, qz quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	exe := repo.getExec(exec)
	row := toQuizRow(qz)
	q := exe.Rebind(`UPDATE quizzes SET title = ?, description = ?, time_limit_seconds = ?, time_per_question_seconds = ?,
		access_code = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		row.Title, row.Description, row.TimeLimitSeconds, row.TimePerQuestionSeconds, row.AccessCode, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return quiz.Quiz{}, repo.trapQuizUniqueErr(err, "updating quiz")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	return row.toDomain(), nil
}

func (repo quizRepository) DeleteQuiz(ctx context.Context, id int, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM quizzes WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting quiz")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrNotFound
	}
	return nil
}

func (repo quizRepository) GetQuizByID(ctx context.Context, id int, exec ...core.DBExecutor) (quiz.Quiz, error) {
	return repo.getQuiz(ctx, repo.getExec(exec), "id = ?", id)
}

func (repo quizRepository) GetActiveQuiz(ctx context.Context, exec ...core.DBExecutor) (quiz.Quiz, error) {
	return repo.getQuiz(ctx, repo.getExec(exec), "is_active = ?", true)
}

func (repo quizRepository) GetQuizByAccessCode(ctx context.Context, code string, exec ...core.DBExecutor) (quiz.Quiz, error) {
	return repo.getQuiz(ctx, repo.getExec(exec), "access_code = ?", code)
}

func (repo quizRepository) AccessCodeExists(ctx context.Context, code string, exec ...core.DBExecutor) (bool, error) {
	exe := repo.getExec(exec)
	var count int
	if err := exe.GetContext(ctx, &count, exe.Rebind("SELECT COUNT(*) FROM quizzes WHERE access_code = ?"), code); err != nil {
		return false, errors.Wrap(err, "checking access code")
	}
	return count > 0, nil
}

func (repo quizRepository) QueryQuizzes(ctx context.Context, filter quiz.QueryFilter, exec ...core.DBExecutor) ([]quiz.Quiz, error) {
	exe := repo.getExec(exec)
	q := "SELECT " + quizColumns + ", " + quizCountColumn + " FROM quizzes WHERE 1 = 1"
	var args []interface{}
	if filter.CreatedBy != 0 {
		q += " AND created_by = ?"
		args = append(args, filter.CreatedBy)
	}
	q += " ORDER BY created_at DESC, id DESC"

	var rows []quizRow
	if err := exe.SelectContext(ctx, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}
	quizzes := make([]quiz.Quiz, 0, len(rows))
	for _, r := range rows {
		quizzes = append(quizzes, r.toDomain())
	}
	return quizzes, nil
}

func (repo quizRepository) SetActive(ctx context.Context, id int, active bool, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	now := core.NowFunc()
	if id == 0 {
		q := exe.Rebind("UPDATE quizzes SET is_active = ?, updated_at = ? WHERE is_active <> ?")
		_, err := exe.ExecContext(ctx, q, active, now, active)
		return errors.Wrap(err, "updating quizzes")
	}

	res, err := exe.ExecContext(ctx, exe.Rebind("UPDATE quizzes SET is_active = ?, updated_at = ? WHERE id = ?"), active, now, id)
	if err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrNotFound
	}
	return nil
}

func (repo quizRepository) getQuestion(ctx context.Context, exec core.DBExecutor, id int) (quiz.Question, error) {
	var row questionRow
	q := exec.Rebind("SELECT " + questionColumns + " FROM questions WHERE id = ?")
	if err := exec.GetContext(ctx, &row, q, id); err != nil {
		return quiz.Question{}, repo.trapNoRowsErr(err, quiz.ErrQuestionNotFound, "getting question")
	}
	return row.toDomain(), nil
}

func (repo quizRepository) trapQuestionErr(err error, msg string) error {
	if isUniqueViolation(err) {
		return quiz.ErrOrderIndexTaken
	}
	return errors.Wrap(err, msg)
}

func (repo quizRepository) CreateQuestion(ctx context.Context, question quiz.Question, exec ...core.DBExecutor) (quiz.Question, error) {
	exe := repo.getExec(exec)
	row := toQuestionRow(question)
	q := exe.Rebind(`INSERT INTO questions (quiz_id, text, type, option_a, option_b, option_c, option_d, essay_instructions,
		essay_max_words, correct_answer, order_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := exe.QueryRowxContext(ctx, q,
		row.QuizID, row.Text, row.Type, row.OptionA, row.OptionB, row.OptionC, row.OptionD, row.EssayInstructions,
		row.EssayMaxWords, row.CorrectAnswer, row.OrderIndex, row.CreatedAt, row.UpdatedAt,
	).Scan(&row.ID)
	if err != nil {
		return quiz.Question{}, repo.trapQuestionErr(err, "inserting question")
	}
	return row.toDomain(), nil
}

func (repo quizRepository) UpdateQuestion(ctx context.Context, question quiz.Question, exec ...core.DBExecutor) (quiz.Question, error) {
	exe := repo.getExec(exec)
	row := toQuestionRow(question)
	q := exe.Rebind(`UPDATE questions SET text = ?, type = ?, option_a = ?, option_b = ?, option_c = ?, option_d = ?,
		essay_instructions = ?, essay_max_words = ?, correct_answer = ?, order_index = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, q,
		row.Text, row.Type, row.OptionA, row.OptionB, row.OptionC, row.OptionD, row.EssayInstructions, row.EssayMaxWords,
		row.CorrectAnswer, row.OrderIndex, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return quiz.Question{}, repo.trapQuestionErr(err, "updating question")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.Question{}, quiz.ErrQuestionNotFound
	}
	return row.toDomain(), nil
}

func (repo quizRepository) DeleteQuestion(ctx context.Context, id int, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM questions WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return quiz.ErrQuestionNotFound
	}
	return nil
}

func (repo quizRepository) GetQuestionByID(ctx context.Context, id int, exec ...core.DBExecutor) (quiz.Question, error) {
	return repo.getQuestion(ctx, repo.getExec(exec), id)
}

func (repo quizRepository) QueryQuestions(ctx context.Context, quizID int, exec ...core.DBExecutor) ([]quiz.Question, error) {
	exe := repo.getExec(exec)
	var rows []questionRow
	q := exe.Rebind("SELECT " + questionColumns + " FROM questions WHERE quiz_id = ? ORDER BY order_index, id")
	if err := exe.SelectContext(ctx, &rows, q, quizID); err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	questions := make([]quiz.Question, 0, len(rows))
	for _, r := range rows {
		questions = append(questions, r.toDomain())
	}
	return questions, nil
}

func (repo quizRepository) NextOrderIndex(ctx context.Context, quizID int, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	var maxIndex sql.NullInt64
	q := exe.Rebind("SELECT MAX(order_index) FROM questions WHERE quiz_id = ?")
	if err := exe.GetContext(ctx, &maxIndex, q, quizID); err != nil {
		return 0, errors.Wrap(err, "getting max order_index")
	}
	if !maxIndex.Valid {
		return 0, nil
	}
	return int(maxIndex.Int64) + 1, nil
}
