package grading

import "time"

// CorrectionEntry is one append-only human override of a question's
// graded answer. Entries are never edited in place; correcting a
// question twice appends a second entry.
type CorrectionEntry struct {
	ID               int64     `json:"id"`
	ResultID         int64     `json:"result_id"`
	QuestionID       string    `json:"question_id"`
	OriginalOptionID *string   `json:"original_option_id,omitempty"`
	NewOptionID      string    `json:"new_option_id"`
	OriginalLabel    string    `json:"original_label,omitempty"`
	OriginalContent  string    `json:"original_content,omitempty"`
	NewLabel         string    `json:"new_label,omitempty"`
	NewContent       string    `json:"new_content,omitempty"`
	Reason           string    `json:"reason"`
	CreatedBy        int64     `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// LatestByQuestion projects the authoritative entry per question: the
// greatest created_at wins, with the larger id breaking exact timestamp
// ties so the projection stays deterministic under concurrent reviews.
func LatestByQuestion(entries []CorrectionEntry) map[string]CorrectionEntry {
	latest := make(map[string]CorrectionEntry, len(entries))
	for _, e := range entries {
		cur, ok := latest[e.QuestionID]
		if !ok || e.CreatedAt.After(cur.CreatedAt) ||
			(e.CreatedAt.Equal(cur.CreatedAt) && e.ID > cur.ID) {
			latest[e.QuestionID] = e
		}
	}
	return latest
}

// CorrectedQuestions reports every question touched by at least one
// entry, however many times it was corrected since.
func CorrectedQuestions(entries []CorrectionEntry) map[string]bool {
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.QuestionID] = true
	}
	return out
}
