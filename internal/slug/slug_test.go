package slug

import (
	"context"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Spaced  Out  ", "spaced-out"},
		{"UPPER", "upper"},
		{"dots.and/slashes", "dotsandslashes"},
		{"--lead-and-trail--", "lead-and-trail"},
		{"a---b", "a-b"},
		{"!!!", "team"},
		{"", "team"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateIncrementsSuffixOnCollision(t *testing.T) {
	existing := map[string]bool{"acme": true, "acme-1": true}
	gen := NewGenerator(nil, func(_ context.Context, s, _ string) (bool, error) {
		return existing[s], nil
	})

	got, err := gen.Generate(context.Background(), "Acme", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme-2" {
		t.Fatalf("expected acme-2, got %q", got)
	}
}

func TestGenerateExcludeIDSkipsOwnSlug(t *testing.T) {
	gen := NewGenerator(nil, func(_ context.Context, s, excludeID string) (bool, error) {
		// The record being updated owns "acme" already.
		return s == "acme" && excludeID != "team-1", nil
	})

	got, err := gen.Generate(context.Background(), "Acme", "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "acme" {
		t.Fatalf("expected acme, got %q", got)
	}
}

func TestGenerateReservedWord(t *testing.T) {
	gen := NewGenerator([]string{"admin"}, func(context.Context, string, string) (bool, error) {
		return false, nil
	})

	got, err := gen.Generate(context.Background(), "Admin", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "admin-1" {
		t.Fatalf("expected admin-1, got %q", got)
	}
}

func TestGeneratePadsShortInput(t *testing.T) {
	gen := NewGenerator(nil, nil)

	got, err := gen.Generate(context.Background(), "a", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a00" {
		t.Fatalf("expected a00, got %q", got)
	}
}

func TestGenerateTruncatesLongInput(t *testing.T) {
	gen := NewGenerator(nil, nil)

	got, err := gen.Generate(context.Background(), strings.Repeat("x", 100), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) > gen.MaxLength-5 {
		t.Fatalf("expected slug truncated to %d, got %d chars", gen.MaxLength-5, len(got))
	}
}

func TestGenerateRandomFallbackTerminates(t *testing.T) {
	calls := 0
	gen := NewGenerator(nil, func(_ context.Context, s, _ string) (bool, error) {
		calls++
		// Everything sequential collides; only a random suffix escapes.
		return !strings.ContainsAny(strings.TrimPrefix(s, "abc-"), "abcdef") || s == "abc", nil
	})

	got, err := gen.Generate(context.Background(), "abc", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatalf("expected a slug")
	}
	if calls <= maxSequentialAttempts {
		t.Fatalf("expected fallback past %d sequential attempts, got %d calls", maxSequentialAttempts, calls)
	}
}

func TestGeneratedSlugsAreValid(t *testing.T) {
	gen := NewGenerator([]string{"admin"}, func(context.Context, string, string) (bool, error) {
		return false, nil
	})
	inputs := []string{"Acme Corp", "a", "!!!", strings.Repeat("long-name-", 10), "Already-Fine"}
	for _, in := range inputs {
		got, err := gen.Generate(context.Background(), in, "")
		if err != nil {
			t.Fatalf("Generate(%q): %v", in, err)
		}
		if !gen.IsValid(got) {
			t.Errorf("Generate(%q) = %q which fails IsValid", in, got)
		}
	}
}

func TestIsValid(t *testing.T) {
	gen := NewGenerator([]string{"admin"}, nil)
	valid := []string{"acme", "acme-1", "a-b-c", "a00"}
	for _, s := range valid {
		if !gen.IsValid(s) {
			t.Errorf("expected %q valid", s)
		}
	}
	invalid := []string{"", "ab", "-acme", "acme-", "Acme", "a_b", "admin", strings.Repeat("x", 31)}
	for _, s := range invalid {
		if gen.IsValid(s) {
			t.Errorf("expected %q invalid", s)
		}
	}
}
