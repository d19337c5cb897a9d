package grading

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		answers []ResolvedAnswer
		want    int
	}{
		{
			name: "weighted mix with the heavy question wrong",
			answers: []ResolvedAnswer{
				{Weight: 1, IsCorrect: true},
				{Weight: 1, IsCorrect: true},
				{Weight: 2, IsCorrect: false},
				{Weight: 1, IsCorrect: true},
			},
			want: 60,
		},
		{
			name: "all correct",
			answers: []ResolvedAnswer{
				{Weight: 1, IsCorrect: true},
				{Weight: 3, IsCorrect: true},
			},
			want: 100,
		},
		{
			name: "all wrong",
			answers: []ResolvedAnswer{
				{Weight: 1},
				{Weight: 1},
			},
			want: 0,
		},
		{
			name: "rounded to nearest integer",
			answers: []ResolvedAnswer{
				{Weight: 1, IsCorrect: true},
				{Weight: 1},
				{Weight: 1},
			},
			want: 33,
		},
		{
			name: "rounds half up",
			answers: []ResolvedAnswer{
				{Weight: 1, IsCorrect: true},
				{Weight: 1},
			},
			want: 50,
		},
		{
			name:    "no questions scores zero by policy",
			answers: nil,
			want:    0,
		},
		{
			name: "non-positive weights clamp to one",
			answers: []ResolvedAnswer{
				{Weight: 0, IsCorrect: true},
				{Weight: -3},
			},
			want: 50,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.answers); got != tc.want {
				t.Errorf("score = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestClampWeight(t *testing.T) {
	if got := ClampWeight(0); got != 1 {
		t.Errorf("ClampWeight(0) = %v, want 1", got)
	}
	if got := ClampWeight(-2); got != 1 {
		t.Errorf("ClampWeight(-2) = %v, want 1", got)
	}
	if got := ClampWeight(2.5); got != 2.5 {
		t.Errorf("ClampWeight(2.5) = %v, want 2.5", got)
	}
}
