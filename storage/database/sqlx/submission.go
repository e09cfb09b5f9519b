package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/submission"
	"github.com/rehmanpranto/QuizFlow/core/user"
)

const submissionColumns = `s.id, s.submission_id, s.user_id, s.quiz_id, COALESCE(q.title, '') AS quiz_title, s.score,
	s.total_questions, s.percentage, s.detailed_results, s.access_code_used, s.feedback, s.submitted_at`

const submissionFrom = " FROM submissions s LEFT JOIN quizzes q ON q.id = s.quiz_id"

type submissionRow struct {
	ID              int         `db:"id"`
	SubmissionID    string      `db:"submission_id"`
	UserID          int         `db:"user_id"`
	QuizID          null.Int    `db:"quiz_id"`
	QuizTitle       string      `db:"quiz_title"`
	Score           int         `db:"score"`
	TotalQuestions  int         `db:"total_questions"`
	Percentage      float64     `db:"percentage"`
	DetailedResults string      `db:"detailed_results"`
	AccessCodeUsed  null.String `db:"access_code_used"`
	Feedback        string      `db:"feedback"`
	SubmittedAt     time.Time   `db:"submitted_at"`
}

func toSubmissionRow(sub submission.Submission) (submissionRow, error) {
	details := sub.Details
	if details == nil {
		details = []submission.DetailEntry{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return submissionRow{}, errors.Wrap(err, "encoding detailed results")
	}
	return submissionRow{
		ID:              sub.ID,
		SubmissionID:    sub.SubmissionID,
		UserID:          sub.UserID,
		QuizID:          null.NewInt(sub.QuizID, sub.QuizID != 0),
		QuizTitle:       sub.QuizTitle,
		Score:           sub.Score,
		TotalQuestions:  sub.TotalQuestions,
		Percentage:      sub.Percentage,
		DetailedResults: string(data),
		AccessCodeUsed:  null.NewString(sub.AccessCodeUsed, sub.AccessCodeUsed != ""),
		Feedback:        sub.Feedback,
		SubmittedAt:     sub.SubmittedAt.UTC(),
	}, nil
}

func (r submissionRow) toDomain(withDetails bool) (submission.Submission, error) {
	sub := submission.Submission{
		ID:             r.ID,
		SubmissionID:   r.SubmissionID,
		UserID:         r.UserID,
		QuizID:         r.QuizID.Int,
		QuizTitle:      r.QuizTitle,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		Percentage:     r.Percentage,
		AccessCodeUsed: r.AccessCodeUsed.String,
		Feedback:       r.Feedback,
		SubmittedAt:    r.SubmittedAt.UTC(),
	}
	if withDetails && r.DetailedResults != "" {
		if err := json.Unmarshal([]byte(r.DetailedResults), &sub.Details); err != nil {
			return submission.Submission{}, errors.Wrap(err, "decoding detailed results")
		}
	}
	return sub, nil
}

type statsRow struct {
	ID            int          `db:"id"`
	Name          string       `db:"name"`
	Email         string       `db:"email"`
	IsActive      bool         `db:"is_active"`
	CreatedAt     time.Time    `db:"created_at"`
	LastLogin     null.Time    `db:"last_login"`
	SubmissionID  null.Int     `db:"submission_id"`
	Percentage    null.Float64 `db:"percentage"`
	LastSubmitted null.Time    `db:"submitted_at"`
}

type submissionRepository struct {
	baseRepository
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(exec core.DBExecutor) *submissionRepository {
	return &submissionRepository{baseRepository{exec: exec}}
}

// trapNoRowsErr maps "no rows" err to submission.ErrNotFound
func (repo submissionRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return submission.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo submissionRepository) get(ctx context.Context, exec core.DBExecutor, where string, args ...interface{}) (submission.Submission, error) {
	var row submissionRow
	q := exec.Rebind("SELECT " + submissionColumns + submissionFrom + " WHERE " + where)
	if err := exec.GetContext(ctx, &row, q, args...); err != nil {
		return submission.Submission{}, repo.trapNoRowsErr(err, "getting submission")
	}
	return row.toDomain(true)
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission, exec ...core.DBExecutor) (submission.Submission, error) {
	exe := repo.getExec(exec)
	row, err := toSubmissionRow(sub)
	if err != nil {
		return submission.Submission{}, err
	}
	q := exe.Rebind(`INSERT INTO submissions (submission_id, user_id, quiz_id, score, total_questions, percentage,
		detailed_results, access_code_used, feedback, submitted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err = exe.QueryRowxContext(ctx, q,
		row.SubmissionID, row.UserID, row.QuizID, row.Score, row.TotalQuestions, row.Percentage,
		row.DetailedResults, row.AccessCodeUsed, row.Feedback, row.SubmittedAt,
	).Scan(&row.ID)
	if err != nil {
		if isUniqueViolation(err, "user_id") {
			return submission.Submission{}, submission.ErrAlreadySubmitted
		}
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return row.toDomain(true)
}

func (repo submissionRepository) GetSubmissionByID(ctx context.Context, id int, exec ...core.DBExecutor) (submission.Submission, error) {
	return repo.get(ctx, repo.getExec(exec), "s.id = ?", id)
}

func (repo submissionRepository) GetSubmissionByToken(ctx context.Context, token string, exec ...core.DBExecutor) (submission.Submission, error) {
	return repo.get(ctx, repo.getExec(exec), "s.submission_id = ?", token)
}

func (repo submissionRepository) GetSubmissionByUser(ctx context.Context, userID int, exec ...core.DBExecutor) (submission.Submission, error) {
	return repo.get(ctx, repo.getExec(exec), "s.user_id = ?", userID)
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, userID int, exec ...core.DBExecutor) ([]submission.Submission, error) {
	exe := repo.getExec(exec)
	var rows []submissionRow
	q := exe.Rebind("SELECT " + submissionColumns + submissionFrom + " WHERE s.user_id = ? ORDER BY s.submitted_at DESC, s.id DESC")
	if err := exe.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, r := range rows {
		sub, err := r.toDomain(false)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// QueryStudentStats lists students with their submission, newest students first.
// A student has at most one submission, so a plain join carries the stats.
func (repo submissionRepository) QueryStudentStats(ctx context.Context, exec ...core.DBExecutor) ([]submission.StudentStats, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`SELECT u.id, u.name, u.email, u.is_active, u.created_at, u.last_login,
		s.id AS submission_id, s.percentage, s.submitted_at
		FROM users u LEFT JOIN submissions s ON s.user_id = u.id
		WHERE u.role = ? ORDER BY u.created_at DESC, u.id DESC`)

	var rows []statsRow
	if err := exe.SelectContext(ctx, &rows, q, user.RoleStudent); err != nil {
		return nil, errors.Wrap(err, "querying student stats")
	}
	stats := make([]submission.StudentStats, 0, len(rows))
	for _, r := range rows {
		st := submission.StudentStats{
			ID:        r.ID,
			Name:      r.Name,
			Email:     r.Email,
			IsActive:  r.IsActive,
			CreatedAt: r.CreatedAt.UTC(),
		}
		if r.LastLogin.Valid {
			t := r.LastLogin.Time.UTC()
			st.LastLogin = &t
		}
		if r.SubmissionID.Valid {
			st.Submissions = 1
			st.BestPercentage = r.Percentage.Float64
			if r.LastSubmitted.Valid {
				t := r.LastSubmitted.Time.UTC()
				st.LastSubmitted = &t
			}
		}
		stats = append(stats, st)
	}
	return stats, nil
}
