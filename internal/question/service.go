// Package question manages the canonical test definitions the grading
// engine reconciles against: tests, their questions, and each
// question's options.
package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrTestNotFound     = errors.New("test not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrDuplicateOption  = errors.New("duplicate option id")
)

type Service struct {
	db *sql.DB
}

type TestRecord struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type OptionRecord struct {
	ID        string `json:"id"`
	Key       string `json:"key,omitempty"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"is_correct"`
}

type QuestionRecord struct {
	ID       string         `json:"id"`
	TestID   int64          `json:"test_id"`
	SeqNo    int            `json:"seq_no"`
	Content  string         `json:"content"`
	Weight   float64        `json:"weight"`
	ImageURL string         `json:"image_url,omitempty"`
	Options  []OptionRecord `json:"options"`
}

type UpsertQuestionInput struct {
	TestID   int64
	ID       string
	SeqNo    int
	Content  string
	Weight   float64
	ImageURL string
	Options  []OptionRecord
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) CreateTest(ctx context.Context, title string) (*TestRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrInvalidInput
	}
	t := &TestRecord{Title: title}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO tests (title, created_at)
		VALUES ($1, now())
		RETURNING id, created_at
	`, title).Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert test: %w", err)
	}
	return t, nil
}

func (s *Service) ListTests(ctx context.Context) ([]TestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at
		FROM tests
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	out := make([]TestRecord, 0)
	for rows.Next() {
		var t TestRecord
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan test row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return out, nil
}

func (s *Service) ListQuestions(ctx context.Context, testID int64) ([]QuestionRecord, error) {
	if testID <= 0 {
		return nil, ErrInvalidInput
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tests WHERE id = $1)
	`, testID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check test: %w", err)
	}
	if !exists {
		return nil, ErrTestNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			q.id, q.test_id, q.seq_no, q.content, q.weight, COALESCE(q.image_url, ''),
			o.id, COALESCE(o.option_key, ''), o.content, o.is_correct
		FROM questions q
		LEFT JOIN question_options o ON o.question_id = q.id
		WHERE q.test_id = $1
		ORDER BY q.seq_no, q.id, o.id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]QuestionRecord, 0)
	index := map[string]int{}
	for rows.Next() {
		var q QuestionRecord
		var optID, optKey, optContent sql.NullString
		var optCorrect sql.NullBool
		if err := rows.Scan(&q.ID, &q.TestID, &q.SeqNo, &q.Content, &q.Weight, &q.ImageURL,
			&optID, &optKey, &optContent, &optCorrect); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		i, ok := index[q.ID]
		if !ok {
			q.Options = make([]OptionRecord, 0, 4)
			out = append(out, q)
			i = len(out) - 1
			index[q.ID] = i
		}
		if optID.Valid {
			out[i].Options = append(out[i].Options, OptionRecord{
				ID:        optID.String,
				Key:       optKey.String,
				Content:   optContent.String,
				IsCorrect: optCorrect.Valid && optCorrect.Bool,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// UpsertQuestion writes a question definition with its full option set.
// Options are replaced wholesale; any stored scores touching this test
// become stale until their next recalculation pass.
func (s *Service) UpsertQuestion(ctx context.Context, in UpsertQuestionInput) (*QuestionRecord, error) {
	if err := validateUpsert(in); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tests WHERE id = $1)
	`, in.TestID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check test: %w", err)
	}
	if !exists {
		return nil, ErrTestNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO questions (id, test_id, seq_no, content, weight, image_url)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (id)
		DO UPDATE SET
			test_id = EXCLUDED.test_id,
			seq_no = EXCLUDED.seq_no,
			content = EXCLUDED.content,
			weight = EXCLUDED.weight,
			image_url = EXCLUDED.image_url
	`, in.ID, in.TestID, in.SeqNo, strings.TrimSpace(in.Content), in.Weight, strings.TrimSpace(in.ImageURL)); err != nil {
		return nil, fmt.Errorf("upsert question: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM question_options WHERE question_id = $1
	`, in.ID); err != nil {
		return nil, fmt.Errorf("clear options: %w", err)
	}
	for _, opt := range in.Options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO question_options (id, question_id, option_key, content, is_correct)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		`, opt.ID, in.ID, strings.TrimSpace(opt.Key), opt.Content, opt.IsCorrect); err != nil {
			return nil, fmt.Errorf("insert option %s: %w", opt.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}

	rec := &QuestionRecord{
		ID:       in.ID,
		TestID:   in.TestID,
		SeqNo:    in.SeqNo,
		Content:  strings.TrimSpace(in.Content),
		Weight:   in.Weight,
		ImageURL: strings.TrimSpace(in.ImageURL),
		Options:  in.Options,
	}
	return rec, nil
}

func (s *Service) DeleteQuestion(ctx context.Context, testID int64, questionID string) error {
	if testID <= 0 || strings.TrimSpace(questionID) == "" {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM questions
		WHERE id = $1 AND test_id = $2
	`, questionID, testID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete question rows: %w", err)
	}
	if n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func validateUpsert(in UpsertQuestionInput) error {
	if in.TestID <= 0 || strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.Content) == "" {
		return ErrInvalidInput
	}
	if in.SeqNo <= 0 || len(in.Options) == 0 {
		return ErrInvalidInput
	}
	seen := make(map[string]struct{}, len(in.Options))
	for _, opt := range in.Options {
		id := strings.TrimSpace(opt.ID)
		if id == "" {
			return ErrInvalidInput
		}
		if _, dup := seen[id]; dup {
			return ErrDuplicateOption
		}
		seen[id] = struct{}{}
	}
	// Zero or multiple correct flags are accepted on purpose: legacy
	// definitions exist in both states and the engine reports them
	// observably instead of rejecting them here.
	return nil
}
