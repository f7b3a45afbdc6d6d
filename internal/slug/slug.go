// Package slug produces URL-safe, collision-free identifiers for tenants
// and teams.
package slug

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	// Fallback is used when normalization leaves nothing usable.
	Fallback = "team"

	defaultMinLength = 3
	defaultMaxLength = 30

	// suffixReserve keeps room for a "-NNN" collision suffix.
	suffixReserve = 5

	maxSequentialAttempts = 1000
)

var (
	invalidChars    = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedHyphens = regexp.MustCompile(`-{2,}`)
	validPattern    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
)

// ExistsFunc reports whether a slug is already persisted. excludeID, when
// non-empty, identifies a record whose own slug must not count as a conflict.
type ExistsFunc func(ctx context.Context, slug, excludeID string) (bool, error)

// Generator resolves normalized slugs against reserved words and persisted
// records.
type Generator struct {
	MinLength int
	MaxLength int
	Reserved  map[string]struct{}
	Exists    ExistsFunc
}

// NewGenerator constructs a Generator with default length bounds.
func NewGenerator(reserved []string, exists ExistsFunc) *Generator {
	set := make(map[string]struct{}, len(reserved))
	for _, word := range reserved {
		set[strings.ToLower(word)] = struct{}{}
	}
	return &Generator{
		MinLength: defaultMinLength,
		MaxLength: defaultMaxLength,
		Reserved:  set,
		Exists:    exists,
	}
}

// Normalize lowercases text, strips everything outside [a-z0-9-], collapses
// repeated hyphens and trims leading/trailing ones. An empty result maps to
// the literal fallback.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, " ", "-")
	s = invalidChars.ReplaceAllString(s, "")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return Fallback
	}
	return s
}

// Generate derives a unique slug from text. Collisions against reserved words
// and persisted slugs resolve by appending -1, -2, ...; after 1000 attempts a
// random suffix guarantees termination.
func (g *Generator) Generate(ctx context.Context, text, excludeID string) (string, error) {
	base := Normalize(text)
	for len(base) < g.MinLength {
		base += "0"
	}
	if max := g.MaxLength - suffixReserve; len(base) > max {
		base = strings.Trim(base[:max], "-")
	}

	candidate := base
	for attempt := 1; attempt <= maxSequentialAttempts; attempt++ {
		taken, err := g.taken(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}

	// Sequential space exhausted; fall back to a random unique suffix.
	for {
		candidate = fmt.Sprintf("%s-%s", base, uuid.NewString()[:4])
		taken, err := g.taken(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// IsValid re-checks length bounds and shape: starts and ends alphanumeric,
// interior may contain hyphens. Used both for generated slugs and externally
// supplied vanity slugs.
func (g *Generator) IsValid(s string) bool {
	if len(s) < g.MinLength || len(s) > g.MaxLength {
		return false
	}
	if _, reserved := g.Reserved[s]; reserved {
		return false
	}
	return validPattern.MatchString(s)
}

func (g *Generator) taken(ctx context.Context, candidate, excludeID string) (bool, error) {
	if _, reserved := g.Reserved[candidate]; reserved {
		return true, nil
	}
	if g.Exists == nil {
		return false, nil
	}
	return g.Exists(ctx, candidate, excludeID)
}
