package grading

import "strings"

// Route identifies which resolution rule produced an answer. Exactly
// one route fires per question.
type Route string

const (
	RouteOverride   Route = "override"
	RouteOptionID   Route = "option_id"
	RouteLetter     Route = "letter"
	RouteUnanswered Route = "unanswered"
)

const (
	noSelectionLabel   = "-"
	noSelectionContent = "No selection"
)

// ResolvedAnswer is the engine's final determination for one question.
// Display fields are always populated from the canonical option set so
// consumers never branch on how the answer was resolved.
type ResolvedAnswer struct {
	QuestionID       string  `json:"question_id"`
	Number           int     `json:"number"`
	ResolvedOptionID string  `json:"resolved_option_id,omitempty"`
	SelectedLabel    string  `json:"selected_label"`
	SelectedContent  string  `json:"selected_content"`
	IsCorrect        bool    `json:"is_correct"`
	CorrectLabel     string  `json:"correct_label"`
	CorrectContent   string  `json:"correct_content"`
	Weight           float64 `json:"weight"`
	Route            Route   `json:"route"`
	ManuallyAdjusted bool    `json:"manually_adjusted"`
	MissingOptions   bool    `json:"missing_options,omitempty"`
}

// Resolve applies the resolution rules in strict priority order:
// authoritative override, direct option-id match, letter match with
// positional fallback, then unanswered. It never fails; malformed or
// unmatchable selections degrade to the unanswered sentinel.
func Resolve(q Question, number int, set OptionSet, sel *RawSelection, override *CorrectionEntry) ResolvedAnswer {
	out := ResolvedAnswer{
		QuestionID:      q.ID,
		Number:          number,
		SelectedLabel:   noSelectionLabel,
		SelectedContent: noSelectionContent,
		CorrectLabel:    set.CorrectLabel(),
		CorrectContent:  set.CorrectContent(),
		Weight:          ClampWeight(q.Weight),
		Route:           RouteUnanswered,
	}

	if len(set.Options) == 0 {
		// Malformed test definition. The question stays in the pass as
		// unanswered so one bad definition cannot abort reconciliation.
		out.MissingOptions = true
		return out
	}

	if override != nil {
		if opt := set.ByID(override.NewOptionID); opt != nil {
			fillSelection(&out, opt, RouteOverride)
			return out
		}
		// The overriding option has since been removed from the
		// definition. Degrade to unanswered and flag it.
		out.MissingOptions = true
		return out
	}

	if sel == nil {
		return out
	}

	if opt := set.ByID(sel.OptionID); opt != nil {
		fillSelection(&out, opt, RouteOptionID)
		return out
	}

	if letter := normalizeLetter(sel.Letter); letter != "" {
		if opt := set.ByLetter(letter); opt != nil {
			fillSelection(&out, opt, RouteLetter)
			return out
		}
		if opt := set.ByOffset(int(letter[0] - 'A')); opt != nil {
			fillSelection(&out, opt, RouteLetter)
			return out
		}
	}

	return out
}

func fillSelection(out *ResolvedAnswer, opt *CanonicalOption, route Route) {
	out.ResolvedOptionID = opt.ID
	out.SelectedLabel = opt.Letter
	out.SelectedContent = opt.Content
	out.IsCorrect = opt.IsCorrect
	out.Route = route
}

// normalizeLetter reduces a raw letter code to a single uppercase
// character, the only form capture pipelines ever meant to store.
func normalizeLetter(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	r := []rune(s)[0]
	if r < 'A' || r > 'Z' {
		return ""
	}
	return string(r)
}
