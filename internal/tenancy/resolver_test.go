package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/ssntpl/neev/internal/domain"
)

type teamDirMock struct {
	byIDFunc     func(ctx context.Context, id string) (*domain.Team, error)
	bySlugFunc   func(ctx context.Context, slug string) (*domain.Team, error)
	byDomainFunc func(ctx context.Context, host string) (*domain.Team, error)
}

func (m *teamDirMock) ByID(ctx context.Context, id string) (*domain.Team, error) {
	if m.byIDFunc == nil {
		return nil, ErrNotFound
	}
	return m.byIDFunc(ctx, id)
}

func (m *teamDirMock) BySlug(ctx context.Context, slug string) (*domain.Team, error) {
	if m.bySlugFunc == nil {
		return nil, ErrNotFound
	}
	return m.bySlugFunc(ctx, slug)
}

func (m *teamDirMock) ByDomain(ctx context.Context, host string) (*domain.Team, error) {
	if m.byDomainFunc == nil {
		return nil, ErrNotFound
	}
	return m.byDomainFunc(ctx, host)
}

func TestResolveSessionIDWinsOverOtherSignals(t *testing.T) {
	dir := &teamDirMock{
		byIDFunc: func(_ context.Context, id string) (*domain.Team, error) {
			if id != "team-42" {
				t.Fatalf("unexpected id lookup: %s", id)
			}
			return &domain.Team{ID: id, Slug: "session-team"}, nil
		},
		bySlugFunc: func(_ context.Context, slug string) (*domain.Team, error) {
			t.Fatalf("slug lookup should not run when session id resolves: %s", slug)
			return nil, ErrNotFound
		},
	}
	res := NewResolver[*domain.Team](dir, false)

	team, err := res.Resolve(context.Background(), Signals{SessionID: "team-42", Subdomain: "other"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team.ID != "team-42" {
		t.Fatalf("expected session-bound team, got %+v", team)
	}
}

func TestResolveFallsThroughDomainToSlug(t *testing.T) {
	dir := &teamDirMock{
		byDomainFunc: func(_ context.Context, host string) (*domain.Team, error) {
			if host != "corp.example.com" {
				t.Fatalf("unexpected host lookup: %s", host)
			}
			return nil, ErrNotFound
		},
		bySlugFunc: func(_ context.Context, slug string) (*domain.Team, error) {
			if slug != "acme" {
				t.Fatalf("unexpected slug lookup: %s", slug)
			}
			return &domain.Team{ID: "team-1", Slug: slug}, nil
		},
	}
	res := NewResolver[*domain.Team](dir, false)

	team, err := res.Resolve(context.Background(), Signals{Host: "Corp.Example.com", Subdomain: "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team.Slug != "acme" {
		t.Fatalf("expected slug resolution, got %+v", team)
	}
}

func TestResolveHeaderAndPathSignals(t *testing.T) {
	seen := []string{}
	dir := &teamDirMock{
		bySlugFunc: func(_ context.Context, slug string) (*domain.Team, error) {
			seen = append(seen, slug)
			if slug == "from-path" {
				return &domain.Team{ID: "team-p", Slug: slug}, nil
			}
			return nil, ErrNotFound
		},
	}
	res := NewResolver[*domain.Team](dir, false)

	team, err := res.Resolve(context.Background(), Signals{Header: "from-header", PathSegment: "from-path"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if team.ID != "team-p" {
		t.Fatalf("expected path-resolved team, got %+v", team)
	}
	if len(seen) != 2 || seen[0] != "from-header" {
		t.Fatalf("expected header tried before path, got %v", seen)
	}
}

func TestResolveRequiredFailsWithoutSignals(t *testing.T) {
	res := NewResolver[*domain.Team](&teamDirMock{}, true)
	if _, err := res.Resolve(context.Background(), Signals{}); !errors.Is(err, ErrContextRequired) {
		t.Fatalf("expected ErrContextRequired, got %v", err)
	}
}

func TestResolveOptionalReportsNotFound(t *testing.T) {
	res := NewResolver[*domain.Team](&teamDirMock{}, false)
	if _, err := res.Resolve(context.Background(), Signals{Subdomain: "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolvePropagatesDirectoryErrors(t *testing.T) {
	boom := errors.New("db down")
	dir := &teamDirMock{
		bySlugFunc: func(context.Context, string) (*domain.Team, error) { return nil, boom },
	}
	res := NewResolver[*domain.Team](dir, false)
	if _, err := res.Resolve(context.Background(), Signals{Subdomain: "acme"}); !errors.Is(err, boom) {
		t.Fatalf("expected directory error, got %v", err)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	calls := 0
	dir := &teamDirMock{
		bySlugFunc: func(_ context.Context, slug string) (*domain.Team, error) {
			calls++
			return &domain.Team{ID: "team-1", Slug: slug}, nil
		},
	}
	res := NewResolver[*domain.Team](dir, false)
	sig := Signals{Subdomain: "acme"}

	first, err := res.Resolve(context.Background(), sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := res.Resolve(context.Background(), sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID || calls != 2 {
		t.Fatalf("expected identical read-only resolutions, got %+v vs %+v (%d calls)", first, second, calls)
	}
}
