package knowledge

import (
	"testing"
)

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"", "abc", 3},
		{"abc", "", 3},
		{"", "", 0},
		{"kitten", "sitting", 3},
		{"missing semicolon", "missing semicolons", 1},
	}

	for _, tt := range tests {
		if got := EditDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("EditDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "unused import foo", "unused import foo", 1.0},
		{"disjoint", "syntax error", "missing brace", 0.0},
		{"empty", "", "anything", 0.0},
		{"half overlap", "type mismatch found", "type mismatch expected", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenOverlap(tt.a, tt.b)
			if got < tt.want-0.001 || got > tt.want+0.001 {
				t.Errorf("TokenOverlap(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFuzzyScore(t *testing.T) {
	t.Run("substring match scores 1.0", func(t *testing.T) {
		got := FuzzyScore("SyntaxError: unexpected token at line 4", "unexpected token", DefaultMaxEditDistance)
		if got != 1.0 {
			t.Errorf("expected 1.0 for substring match, got %f", got)
		}
	})

	t.Run("short signature within cutoff", func(t *testing.T) {
		// dist("parse errr", "parse error") = 1, max len 11
		got := FuzzyScore("parse errr", "parse error", DefaultMaxEditDistance)
		want := 1.0 - 1.0/11.0
		if got < want-0.001 || got > want+0.001 {
			t.Errorf("expected %f, got %f", want, got)
		}
	})

	t.Run("short signature beyond cutoff rejected", func(t *testing.T) {
		if got := FuzzyScore("completely different", "parse error", DefaultMaxEditDistance); got != 0.0 {
			t.Errorf("expected rejection, got %f", got)
		}
	})

	t.Run("long signature uses token overlap", func(t *testing.T) {
		query := "error: incompatible type in assignment near field delta"
		candidate := "incompatible type in assignment to delta field value"
		got := FuzzyScore(query, candidate, DefaultMaxEditDistance)
		if got <= 0.0 || got >= 1.0 {
			t.Errorf("expected partial overlap score, got %f", got)
		}
	})
}
