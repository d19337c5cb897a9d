package grading

import "encoding/json"

// Input is one consistent snapshot of everything a reconciliation pass
// reads: current question definitions in display order, the immutable
// captured payload, and the full correction ledger for the result.
type Input struct {
	Questions   []Question
	RawAnswers  json.RawMessage
	Corrections []CorrectionEntry
}

// Reconciliation is the outcome of a complete decode, resolve,
// aggregate pass. Score is derived state; callers that persist it must
// treat the stored copy as a cache invalidated by any ledger write.
type Reconciliation struct {
	Score            int              `json:"score"`
	Answers          []ResolvedAnswer `json:"answers"`
	MalformedPayload bool             `json:"malformed_payload,omitempty"`
	FlaggedQuestions []string         `json:"flagged_questions,omitempty"`
}

// Reconcile runs one full pass. It is idempotent: the same snapshot
// always reconciles to the same score and answers.
func Reconcile(in Input) Reconciliation {
	payload := ParsePayload(in.RawAnswers)
	latest := LatestByQuestion(in.Corrections)
	corrected := CorrectedQuestions(in.Corrections)

	out := Reconciliation{
		Answers:          make([]ResolvedAnswer, 0, len(in.Questions)),
		MalformedPayload: payload.Malformed,
	}

	for i, q := range in.Questions {
		number := i + 1
		set := Canonicalize(q.Options)

		var override *CorrectionEntry
		if e, ok := latest[q.ID]; ok {
			e := e
			override = &e
		}

		ans := Resolve(q, number, set, payload.Selection(q.ID, number), override)
		ans.ManuallyAdjusted = corrected[q.ID]
		if ans.MissingOptions {
			out.FlaggedQuestions = append(out.FlaggedQuestions, q.ID)
		}
		out.Answers = append(out.Answers, ans)
	}

	out.Score = Score(out.Answers)
	return out
}
