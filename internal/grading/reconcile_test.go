package grading

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func reconcileFixture() []Question {
	return []Question{
		{
			ID:     "q1",
			Weight: 1,
			Options: []Option{
				{ID: "o1", Key: "A", Content: "x"},
				{ID: "o2", Key: "B", Content: "y", IsCorrect: true},
			},
		},
		{
			ID:     "q2",
			Weight: 1,
			Options: []Option{
				{ID: "o3", Key: "A", Content: "p", IsCorrect: true},
				{ID: "o4", Key: "B", Content: "q"},
			},
		},
		{
			ID:     "q3",
			Weight: 2,
			Options: []Option{
				{ID: "o5", Key: "A", Content: "m", IsCorrect: true},
				{ID: "o6", Key: "B", Content: "n"},
			},
		},
	}
}

func TestReconcileSequencePayload(t *testing.T) {
	out := Reconcile(Input{
		Questions: reconcileFixture(),
		RawAnswers: json.RawMessage(`[
			{"question_id":"q1","selectedOption":"b"},
			{"number":2,"selected_option_id":"o4"},
			{"questionId":"q3","selectedOptionId":"o5"}
		]`),
	})

	if out.MalformedPayload {
		t.Fatalf("unexpected malformed flag")
	}
	if len(out.Answers) != 3 {
		t.Fatalf("answers = %d, want 3", len(out.Answers))
	}
	if a := out.Answers[0]; a.ResolvedOptionID != "o2" || !a.IsCorrect {
		t.Errorf("q1 = %+v, want o2 correct", a)
	}
	if a := out.Answers[1]; a.ResolvedOptionID != "o4" || a.IsCorrect {
		t.Errorf("q2 = %+v, want o4 wrong", a)
	}
	if a := out.Answers[2]; a.ResolvedOptionID != "o5" || !a.IsCorrect {
		t.Errorf("q3 = %+v, want o5 correct", a)
	}
	// 1 + 2 correct of total 4.
	if out.Score != 75 {
		t.Errorf("score = %d, want 75", out.Score)
	}
}

func TestReconcileMapPayload(t *testing.T) {
	out := Reconcile(Input{
		Questions:  reconcileFixture(),
		RawAnswers: json.RawMessage(`{"1":"o1","3":"o5"}`),
	})

	if a := out.Answers[0]; a.ResolvedOptionID != "o1" || a.Route != RouteOptionID {
		t.Errorf("q1 = %+v, want o1 via option_id", a)
	}
	if a := out.Answers[1]; a.Route != RouteUnanswered {
		t.Errorf("q2 = %+v, want unanswered", a)
	}
	if a := out.Answers[2]; a.ResolvedOptionID != "o5" {
		t.Errorf("q3 = %+v, want o5", a)
	}
	if out.Score != 50 {
		t.Errorf("score = %d, want 50", out.Score)
	}
}

func TestReconcileMalformedPayload(t *testing.T) {
	out := Reconcile(Input{
		Questions:  reconcileFixture(),
		RawAnswers: json.RawMessage(`"scrambled"`),
	})

	if !out.MalformedPayload {
		t.Fatalf("expected malformed payload flag")
	}
	for _, a := range out.Answers {
		if a.Route != RouteUnanswered {
			t.Errorf("question %s = %+v, want unanswered", a.QuestionID, a)
		}
	}
	if out.Score != 0 {
		t.Errorf("score = %d, want 0", out.Score)
	}
}

func TestReconcileLatestCorrectionWins(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	out := Reconcile(Input{
		Questions:  reconcileFixture(),
		RawAnswers: json.RawMessage(`[{"question_id":"q1","selected_option_id":"o1"}]`),
		Corrections: []CorrectionEntry{
			{ID: 1, QuestionID: "q1", NewOptionID: "o1", CreatedAt: base},
			{ID: 2, QuestionID: "q1", NewOptionID: "o2", CreatedAt: base.Add(time.Minute)},
		},
	})

	a := out.Answers[0]
	if a.ResolvedOptionID != "o2" || a.Route != RouteOverride {
		t.Fatalf("q1 = %+v, want o2 via override", a)
	}
	if !a.ManuallyAdjusted {
		t.Fatalf("corrected question must carry the manual flag")
	}
	if out.Answers[1].ManuallyAdjusted {
		t.Fatalf("untouched question carries the manual flag")
	}
}

func TestReconcileCorrectionTimestampTie(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	latest := LatestByQuestion([]CorrectionEntry{
		{ID: 7, QuestionID: "q1", NewOptionID: "o1", CreatedAt: at},
		{ID: 9, QuestionID: "q1", NewOptionID: "o2", CreatedAt: at},
		{ID: 8, QuestionID: "q1", NewOptionID: "o1", CreatedAt: at},
	})
	if got := latest["q1"]; got.ID != 9 {
		t.Fatalf("latest id = %d, want 9", got.ID)
	}
}

func TestReconcileMissingOptionDefinition(t *testing.T) {
	questions := reconcileFixture()
	questions[1].Options = nil

	out := Reconcile(Input{
		Questions:  questions,
		RawAnswers: json.RawMessage(`{"2":"o4"}`),
	})

	if len(out.FlaggedQuestions) != 1 || out.FlaggedQuestions[0] != "q2" {
		t.Fatalf("flagged = %v, want [q2]", out.FlaggedQuestions)
	}
	if a := out.Answers[1]; a.Route != RouteUnanswered || !a.MissingOptions {
		t.Fatalf("q2 = %+v, want flagged unanswered", a)
	}
	if len(out.Answers) != 3 {
		t.Fatalf("one bad question aborted the pass: %d answers", len(out.Answers))
	}
}

func TestReconcileIdempotent(t *testing.T) {
	in := Input{
		Questions:  reconcileFixture(),
		RawAnswers: json.RawMessage(`[{"question_id":"q1","selectedOption":"B"},{"question_id":"q3","selectedOption":"A"}]`),
		Corrections: []CorrectionEntry{
			{ID: 1, QuestionID: "q2", NewOptionID: "o3", CreatedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)},
		},
	}

	first := Reconcile(in)
	second := Reconcile(in)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reconciliation is not idempotent:\n%+v\nvs\n%+v", first, second)
	}
	if first.Score != 100 {
		t.Fatalf("score = %d, want 100", first.Score)
	}
}

func TestReconcileZeroWeightTest(t *testing.T) {
	out := Reconcile(Input{Questions: nil, RawAnswers: json.RawMessage(`[]`)})
	if out.Score != 0 {
		t.Fatalf("score = %d, want 0", out.Score)
	}
	if len(out.Answers) != 0 {
		t.Fatalf("answers = %v, want none", out.Answers)
	}
}
