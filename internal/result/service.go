package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"schooldesk/internal/grading"
)

var (
	ErrResultNotFound      = errors.New("result not found")
	ErrTestNotFound        = errors.New("test not found")
	ErrQuestionNotInTest   = errors.New("question not in test")
	ErrOptionNotInQuestion = errors.New("option does not belong to question")
	ErrReasonRequired      = errors.New("correction reason is required")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// View is a test result as served to the dashboard: the immutable
// capture plus a freshly reconciled score. StoredScore is the cached
// value last written by Recalculate; Stale reports that the cache
// disagrees with the current reconciliation, which happens whenever a
// ledger write or option edit landed after the last recalculation.
type View struct {
	ID               int64                    `json:"id"`
	StudentID        int64                    `json:"student_id"`
	TestID           int64                    `json:"test_id"`
	ImageURL         string                   `json:"image_url,omitempty"`
	StoredScore      int                      `json:"stored_score"`
	Score            int                      `json:"score"`
	Stale            bool                     `json:"stale"`
	Answers          []grading.ResolvedAnswer `json:"answers"`
	MalformedPayload bool                     `json:"malformed_payload,omitempty"`
	FlaggedQuestions []string                 `json:"flagged_questions,omitempty"`
}

// StudentScore is one row of a per-test results listing, already
// reconciled against current definitions and ledger state.
type StudentScore struct {
	ResultID    int64  `json:"result_id"`
	StudentID   int64  `json:"student_id"`
	StudentName string `json:"student_name"`
	Score       int    `json:"score"`
	Correct     int    `json:"correct"`
	Wrong       int    `json:"wrong"`
	Unanswered  int    `json:"unanswered"`
	Corrected   int    `json:"corrected"`
}

type CorrectionInput struct {
	ResultID    int64
	QuestionID  string
	NewOptionID string
	Reason      string
	ReviewerID  int64
}

type resultRow struct {
	ID         int64
	StudentID  int64
	TestID     int64
	RawAnswers []byte
	Score      int
	ImageURL   string
}

// Get serves a result with its score recomputed from the current
// snapshot of definitions and ledger. The stored score is reported but
// never trusted for display.
func (s *Service) Get(ctx context.Context, resultID int64) (*View, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	view, err := s.buildView(ctx, tx, resultID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit read tx: %w", err)
	}
	return view, nil
}

// Recalculate re-runs the reconciliation pass and persists the new
// score. It is the only writer of test_results.score.
func (s *Service) Recalculate(ctx context.Context, resultID int64) (*View, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin recalculate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockResult(ctx, tx, resultID); err != nil {
		return nil, err
	}

	view, err := s.buildView(ctx, tx, resultID)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE test_results
		SET score = $2,
			recalculated_at = now()
		WHERE id = $1
	`, resultID, view.Score); err != nil {
		return nil, fmt.Errorf("update score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit recalculate: %w", err)
	}

	view.StoredScore = view.Score
	view.Stale = false
	return view, nil
}

// RecordCorrection validates and appends one ledger entry. The entry
// snapshots the pre-entry authoritative resolved option (id, label and
// content) so the audit trail stays truthful even if options are edited
// later. Persisting the score is a separate Recalculate call; until it
// runs, stored scores read as stale.
func (s *Service) RecordCorrection(ctx context.Context, in CorrectionInput) (*grading.CorrectionEntry, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, ErrReasonRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin correction tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockResult(ctx, tx, in.ResultID); err != nil {
		return nil, err
	}

	row, questions, entries, err := loadSnapshot(ctx, tx, in.ResultID)
	if err != nil {
		return nil, err
	}

	var question *grading.Question
	number := 0
	for i := range questions {
		if questions[i].ID == in.QuestionID {
			question = &questions[i]
			number = i + 1
			break
		}
	}
	if question == nil {
		return nil, ErrQuestionNotInTest
	}

	set := grading.Canonicalize(question.Options)
	newOpt := set.ByID(in.NewOptionID)
	if newOpt == nil {
		return nil, ErrOptionNotInQuestion
	}

	// Resolver pass over ledger state prior to this entry; its outcome
	// becomes the entry's original side.
	latest := grading.LatestByQuestion(entries)
	var override *grading.CorrectionEntry
	if e, ok := latest[in.QuestionID]; ok {
		e := e
		override = &e
	}
	payload := grading.ParsePayload(row.RawAnswers)
	prior := grading.Resolve(*question, number, set, payload.Selection(question.ID, number), override)

	entry := grading.CorrectionEntry{
		ResultID:    in.ResultID,
		QuestionID:  in.QuestionID,
		NewOptionID: in.NewOptionID,
		NewLabel:    newOpt.Letter,
		NewContent:  newOpt.Content,
		Reason:      strings.TrimSpace(in.Reason),
		CreatedBy:   in.ReviewerID,
	}
	var originalID interface{}
	if prior.ResolvedOptionID != "" {
		id := prior.ResolvedOptionID
		entry.OriginalOptionID = &id
		entry.OriginalLabel = prior.SelectedLabel
		entry.OriginalContent = prior.SelectedContent
		originalID = id
	}

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO correction_logs (
			result_id,
			question_id,
			original_option_id,
			new_option_id,
			original_label,
			original_content,
			new_label,
			new_content,
			reason,
			created_by,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		RETURNING id, created_at
	`, in.ResultID, in.QuestionID, originalID, in.NewOptionID,
		entry.OriginalLabel, entry.OriginalContent, entry.NewLabel, entry.NewContent,
		entry.Reason, in.ReviewerID).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert correction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit correction: %w", err)
	}
	return &entry, nil
}

// Corrections returns the full append-only audit list for a result,
// oldest first.
func (s *Service) Corrections(ctx context.Context, resultID int64) ([]grading.CorrectionEntry, error) {
	if err := s.ensureResult(ctx, resultID); err != nil {
		return nil, err
	}
	return loadCorrections(ctx, s.db, resultID)
}

// ResultsByTest reconciles every result captured for a test against the
// current definitions and ledger.
func (s *Service) ResultsByTest(ctx context.Context, testID int64) ([]StudentScore, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin list tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tests WHERE id = $1)
	`, testID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check test: %w", err)
	}
	if !exists {
		return nil, ErrTestNotFound
	}

	questions, err := loadQuestions(ctx, tx, testID)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT r.id, r.student_id, COALESCE(s.full_name, ''), r.raw_answers
		FROM test_results r
		LEFT JOIN students s ON s.id = r.student_id
		WHERE r.test_id = $1
		ORDER BY s.full_name, r.id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]StudentScore, 0)
	for rows.Next() {
		var sc StudentScore
		var raw []byte
		if err := rows.Scan(&sc.ResultID, &sc.StudentID, &sc.StudentName, &raw); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		entries, err := loadCorrections(ctx, tx, sc.ResultID)
		if err != nil {
			return nil, err
		}
		rec := grading.Reconcile(grading.Input{
			Questions:   questions,
			RawAnswers:  json.RawMessage(raw),
			Corrections: entries,
		})
		sc.Score = rec.Score
		for _, a := range rec.Answers {
			switch {
			case a.ResolvedOptionID == "":
				sc.Unanswered++
			case a.IsCorrect:
				sc.Correct++
			default:
				sc.Wrong++
			}
			if a.ManuallyAdjusted {
				sc.Corrected++
			}
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit list tx: %w", err)
	}
	return out, nil
}

func (s *Service) buildView(ctx context.Context, q queryable, resultID int64) (*View, error) {
	row, questions, entries, err := loadSnapshot(ctx, q, resultID)
	if err != nil {
		return nil, err
	}

	rec := grading.Reconcile(grading.Input{
		Questions:   questions,
		RawAnswers:  json.RawMessage(row.RawAnswers),
		Corrections: entries,
	})

	return &View{
		ID:               row.ID,
		StudentID:        row.StudentID,
		TestID:           row.TestID,
		ImageURL:         row.ImageURL,
		StoredScore:      row.Score,
		Score:            rec.Score,
		Stale:            rec.Score != row.Score,
		Answers:          rec.Answers,
		MalformedPayload: rec.MalformedPayload,
		FlaggedQuestions: rec.FlaggedQuestions,
	}, nil
}

func (s *Service) ensureResult(ctx context.Context, resultID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM test_results WHERE id = $1)
	`, resultID).Scan(&exists); err != nil {
		return fmt.Errorf("check result: %w", err)
	}
	if !exists {
		return ErrResultNotFound
	}
	return nil
}

func lockResult(ctx context.Context, tx *sql.Tx, resultID int64) error {
	var id int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM test_results WHERE id = $1 FOR UPDATE
	`, resultID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrResultNotFound
		}
		return fmt.Errorf("lock result: %w", err)
	}
	return nil
}

// loadSnapshot reads everything one reconciliation pass needs from a
// single queryable so the pass runs against consistent state.
func loadSnapshot(ctx context.Context, q queryable, resultID int64) (*resultRow, []grading.Question, []grading.CorrectionEntry, error) {
	row := &resultRow{}
	err := q.QueryRowContext(ctx, `
		SELECT id, student_id, test_id, COALESCE(raw_answers, 'null'::jsonb), score, COALESCE(image_url, '')
		FROM test_results
		WHERE id = $1
	`, resultID).Scan(&row.ID, &row.StudentID, &row.TestID, &row.RawAnswers, &row.Score, &row.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, ErrResultNotFound
		}
		return nil, nil, nil, fmt.Errorf("load result: %w", err)
	}

	questions, err := loadQuestions(ctx, q, row.TestID)
	if err != nil {
		return nil, nil, nil, err
	}

	entries, err := loadCorrections(ctx, q, resultID)
	if err != nil {
		return nil, nil, nil, err
	}

	return row, questions, entries, nil
}

func loadQuestions(ctx context.Context, q queryable, testID int64) ([]grading.Question, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			qs.id,
			qs.content,
			qs.weight,
			COALESCE(qs.image_url, ''),
			o.id,
			COALESCE(o.option_key, ''),
			o.content,
			o.is_correct
		FROM questions qs
		LEFT JOIN question_options o ON o.question_id = qs.id
		WHERE qs.test_id = $1
		ORDER BY qs.seq_no, qs.id, o.id
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]grading.Question, 0)
	index := map[string]int{}
	for rows.Next() {
		var (
			qID, qContent, qImage string
			weight                float64
			optID, optKey         sql.NullString
			optContent            sql.NullString
			optCorrect            sql.NullBool
		)
		if err := rows.Scan(&qID, &qContent, &weight, &qImage, &optID, &optKey, &optContent, &optCorrect); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		i, ok := index[qID]
		if !ok {
			out = append(out, grading.Question{
				ID:       qID,
				Content:  qContent,
				Weight:   weight,
				ImageURL: qImage,
			})
			i = len(out) - 1
			index[qID] = i
		}
		if optID.Valid {
			out[i].Options = append(out[i].Options, grading.Option{
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

func loadCorrections(ctx context.Context, q queryable, resultID int64) ([]grading.CorrectionEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			id,
			result_id,
			question_id,
			original_option_id,
			new_option_id,
			COALESCE(original_label, ''),
			COALESCE(original_content, ''),
			COALESCE(new_label, ''),
			COALESCE(new_content, ''),
			reason,
			COALESCE(created_by, 0),
			created_at
		FROM correction_logs
		WHERE result_id = $1
		ORDER BY created_at, id
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}
	defer rows.Close()

	out := make([]grading.CorrectionEntry, 0)
	for rows.Next() {
		var e grading.CorrectionEntry
		var original sql.NullString
		if err := rows.Scan(
			&e.ID,
			&e.ResultID,
			&e.QuestionID,
			&original,
			&e.NewOptionID,
			&e.OriginalLabel,
			&e.OriginalContent,
			&e.NewLabel,
			&e.NewContent,
			&e.Reason,
			&e.CreatedBy,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan correction row: %w", err)
		}
		if original.Valid {
			v := original.String
			e.OriginalOptionID = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corrections: %w", err)
	}
	return out, nil
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}
