// Package grading reconciles raw captured answers against canonical
// question definitions and the correction ledger, and derives scores.
// Everything in this package is pure: no I/O, no clocks, no mutation of
// inputs.
package grading

import (
	"sort"
	"strings"
)

type Option struct {
	ID        string
	Key       string
	Content   string
	IsCorrect bool
}

type Question struct {
	ID       string
	Content  string
	Weight   float64
	ImageURL string
	Options  []Option
}

// CanonicalOption is an option annotated with its position in the
// canonical order and the letter shown to reviewers.
type CanonicalOption struct {
	Option
	Ordinal int
	Letter  string
}

// OptionSet is the canonical view of one question's options. Correct is
// the first canonically-ordered option flagged correct; when no option
// is flagged, Correct is nil and the labels fall back to "?".
type OptionSet struct {
	Options []CanonicalOption
	Correct *CanonicalOption
}

const unknownCorrectLabel = "?"

// Canonicalize imposes the canonical total order on options. Each
// option sorts by its trimmed key when it has one and by its id
// otherwise, with ids breaking ties. Ranking each option on its own
// keeps the order total, so the result is identical for any
// permutation of the input, including legacy data with duplicated or
// missing keys.
func Canonicalize(options []Option) OptionSet {
	sorted := append([]Option(nil), options...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		ar := sortRank(a)
		br := sortRank(b)
		if ar != br {
			return ar < br
		}
		return a.ID < b.ID
	})

	set := OptionSet{Options: make([]CanonicalOption, 0, len(sorted))}
	for i, opt := range sorted {
		letter := strings.TrimSpace(opt.Key)
		if letter == "" {
			letter = string(rune('A' + i))
		}
		set.Options = append(set.Options, CanonicalOption{
			Option:  opt,
			Ordinal: i,
			Letter:  letter,
		})
	}
	for i := range set.Options {
		if set.Options[i].IsCorrect {
			set.Correct = &set.Options[i]
			break
		}
	}
	return set
}

func sortRank(o Option) string {
	if k := strings.TrimSpace(o.Key); k != "" {
		return k
	}
	return o.ID
}

func (s OptionSet) ByID(id string) *CanonicalOption {
	if id == "" {
		return nil
	}
	for i := range s.Options {
		if s.Options[i].ID == id {
			return &s.Options[i]
		}
	}
	return nil
}

func (s OptionSet) ByLetter(letter string) *CanonicalOption {
	if letter == "" {
		return nil
	}
	for i := range s.Options {
		if strings.EqualFold(s.Options[i].Letter, letter) {
			return &s.Options[i]
		}
	}
	return nil
}

// ByOffset indexes into the canonical order; out-of-range offsets
// return nil rather than panicking.
func (s OptionSet) ByOffset(offset int) *CanonicalOption {
	if offset < 0 || offset >= len(s.Options) {
		return nil
	}
	return &s.Options[offset]
}

func (s OptionSet) CorrectLabel() string {
	if s.Correct == nil {
		return unknownCorrectLabel
	}
	return s.Correct.Letter
}

func (s OptionSet) CorrectContent() string {
	if s.Correct == nil {
		return ""
	}
	return s.Correct.Content
}
