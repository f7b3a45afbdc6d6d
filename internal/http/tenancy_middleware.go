package httpx

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/ssntpl/neev/internal/tenancy"
	jwtpkg "github.com/ssntpl/neev/pkg/jwt"
)

const teamHeader = "X-Team"

// resolveTenancy gathers the request's context signals, runs the tenant and
// team resolvers and binds whatever they find into the request context.
// Resolution happens once, before routing, so every handler and every
// repository call downstream sees the same bound containers. The request is
// rejected only when the tenant resolver is configured as required and no
// signal resolves.
func (r *Router) resolveTenancy(req *http.Request) (*http.Request, int, string) {
	sig := r.signalsFrom(req)

	resolved := &tenancy.ResolvedContext{}
	if r.tenantRes != nil {
		tenant, err := r.tenantRes.Resolve(req.Context(), sig.tenant)
		switch {
		case err == nil:
			resolved.Tenant = tenant
		case errors.Is(err, tenancy.ErrContextRequired):
			return req, http.StatusBadRequest, "tenant context required"
		case errors.Is(err, tenancy.ErrNotFound):
			// Optional resolver, no signal matched. Leave the slot empty.
		default:
			r.logger.Error("tenant resolution failed", "error", err, "path", req.URL.Path)
			return req, http.StatusInternalServerError, "context resolution failed"
		}
	}
	if r.teamRes != nil {
		team, err := r.teamRes.Resolve(req.Context(), sig.team)
		switch {
		case err == nil:
			resolved.Team = team
		case errors.Is(err, tenancy.ErrNotFound):
		default:
			r.logger.Error("team resolution failed", "error", err, "path", req.URL.Path)
			return req, http.StatusInternalServerError, "context resolution failed"
		}
	}

	if resolved.HasTenant() || resolved.HasTeam() {
		return req.WithContext(tenancy.WithResolved(req.Context(), resolved)), 0, ""
	}
	return req, 0, ""
}

type requestSignals struct {
	tenant tenancy.Signals
	team   tenancy.Signals
}

// signalsFrom extracts resolver inputs: token claims act as session-bound
// ids, the host matches verified custom domains, the left-most host label
// and the explicit header each carry a slug, and paths of the form
// /t/{slug}/... name the tenant directly.
func (r *Router) signalsFrom(req *http.Request) requestSignals {
	var sig requestSignals

	if token, err := bearerToken(req.Header.Get("Authorization")); err == nil {
		if claims, err := jwtpkg.Parse(token, r.cfg.JWTSecret); err == nil {
			sig.tenant.SessionID = claims.TenantID
			sig.team.SessionID = claims.TeamID
		}
	}

	host := hostOnly(req.Host)
	sig.tenant.Host = host
	sig.team.Host = host
	if sub := leftmostLabel(host); sub != "" {
		sig.team.Subdomain = sub
	}

	sig.tenant.Header = req.Header.Get(r.cfg.TenantHeader)
	sig.team.Header = req.Header.Get(teamHeader)

	if seg, ok := pathTenantSegment(req.URL.Path); ok {
		sig.tenant.PathSegment = seg
	}
	return sig
}

func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return strings.ToLower(h)
	}
	return strings.ToLower(host)
}

// leftmostLabel returns the first host label when the host is deep enough
// to carry one, e.g. "acme" from acme.neev.example.com. Bare domains and
// plain hosts yield nothing.
func leftmostLabel(host string) string {
	if strings.Count(host, ".") < 2 {
		return ""
	}
	label, _, _ := strings.Cut(host, ".")
	if label == "www" {
		return ""
	}
	return label
}

func pathTenantSegment(path string) (string, bool) {
	trimmed, ok := strings.CutPrefix(path, "/t/")
	if !ok {
		return "", false
	}
	seg, _, _ := strings.Cut(trimmed, "/")
	if seg == "" {
		return "", false
	}
	return seg, true
}
