package tenancy

import (
	"context"
	"errors"
	"strings"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/slug"
)

var (
	// ErrNotFound reports that a signal named a container that does not exist.
	ErrNotFound = errors.New("tenancy: context not found")

	// ErrContextRequired reports that a required resolver found no signal
	// that resolves to a container.
	ErrContextRequired = errors.New("tenancy: context required")
)

// Signals are the inbound request hints a resolver considers, all consumed
// as opaque strings. Zero values mean the signal is absent.
type Signals struct {
	// SessionID is a container id previously bound to the caller's session.
	SessionID string
	// Host is the full request host, matched against verified custom domains.
	Host string
	// Subdomain is the left-most host label, matched as a slug.
	Subdomain string
	// Header is an explicit header-supplied slug.
	Header string
	// PathSegment is an explicit path-supplied slug.
	PathSegment string
}

// Directory looks containers of one kind up by their resolvable handles.
// Implementations are read-only; misses return ErrNotFound.
type Directory[T domain.ContextContainer] interface {
	ByID(ctx context.Context, id string) (T, error)
	BySlug(ctx context.Context, slug string) (T, error)
	ByDomain(ctx context.Context, host string) (T, error)
}

// Resolver maps request signals to a container of one kind. Resolution is
// read-only and idempotent: safe to invoke multiple times per request.
type Resolver[T domain.ContextContainer] struct {
	dir      Directory[T]
	required bool
}

// NewResolver constructs a resolver. A required resolver fails the request
// with ErrContextRequired when no signal resolves; an optional one reports
// ErrNotFound, which callers treat as "leave the context empty" and let
// downstream capability checks decide.
func NewResolver[T domain.ContextContainer](dir Directory[T], required bool) *Resolver[T] {
	return &Resolver[T]{dir: dir, required: required}
}

// Resolve applies the fixed first-match-wins order: session-bound id, then
// verified custom domain, then slug from subdomain, header and path.
func (r *Resolver[T]) Resolve(ctx context.Context, sig Signals) (T, error) {
	var zero T
	if r.dir == nil {
		return zero, r.miss()
	}

	type lookup func(context.Context) (T, bool, error)
	order := []lookup{
		func(ctx context.Context) (T, bool, error) {
			if sig.SessionID == "" {
				return zero, false, nil
			}
			got, err := r.dir.ByID(ctx, sig.SessionID)
			return got, true, err
		},
		func(ctx context.Context) (T, bool, error) {
			host := strings.ToLower(strings.TrimSpace(sig.Host))
			if host == "" {
				return zero, false, nil
			}
			got, err := r.dir.ByDomain(ctx, host)
			return got, true, err
		},
	}
	for _, raw := range []string{sig.Subdomain, sig.Header, sig.PathSegment} {
		raw := raw
		order = append(order, func(ctx context.Context) (T, bool, error) {
			if strings.TrimSpace(raw) == "" {
				return zero, false, nil
			}
			got, err := r.dir.BySlug(ctx, slug.Normalize(raw))
			return got, true, err
		})
	}

	for _, try := range order {
		got, attempted, err := try(ctx)
		if !attempted {
			continue
		}
		if err == nil {
			return got, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return zero, err
		}
		// Miss on this signal; fall through to the next one.
	}
	return zero, r.miss()
}

func (r *Resolver[T]) miss() error {
	if r.required {
		return ErrContextRequired
	}
	return ErrNotFound
}
