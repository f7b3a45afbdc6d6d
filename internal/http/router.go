package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssntpl/neev/internal/domain"
	"github.com/ssntpl/neev/internal/repository"
	"github.com/ssntpl/neev/internal/service/auth"
	"github.com/ssntpl/neev/internal/service/password"
	"github.com/ssntpl/neev/internal/service/tenant"
	"github.com/ssntpl/neev/internal/tenancy"
	"github.com/ssntpl/neev/pkg/config"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	auth      *auth.Service
	tenants   *tenant.Service
	tenantRes *tenancy.Resolver[*domain.Tenant]
	teamRes   *tenancy.Resolver[*domain.Team]
	counter   Counter
	cfg       config.Config
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	loginOutcomes      *prometheus.CounterVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc *auth.Service, tenantSvc *tenant.Service,
	tenantRes *tenancy.Resolver[*domain.Tenant], teamRes *tenancy.Resolver[*domain.Team],
	counter Counter, cfg config.Config, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      authSvc,
		tenants:   tenantSvc,
		tenantRes: tenantRes,
		teamRes:   teamRes,
		counter:   counter,
		cfg:       cfg,
		dbHealth:  dbHealth,
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP resolves tenancy context, strips the /t/{slug} prefix and
// delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/healthz" && req.URL.Path != "/metrics" {
		resolved, status, msg := r.resolveTenancy(req)
		if status != 0 {
			writeError(w, status, msg)
			return
		}
		req = resolved
		if seg, ok := pathTenantSegment(req.URL.Path); ok {
			req.URL.Path = strings.TrimPrefix(req.URL.Path, "/t/"+seg)
			if req.URL.Path == "" {
				req.URL.Path = "/"
			}
		}
	}
	r.mux.ServeHTTP(w, req)
}

func (r *Router) register() {
	window := r.cfg.RequestRateWindow
	limit := r.cfg.RequestRateLimit
	r.mux.HandleFunc("/healthz", r.instrument("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.instrument("signup", r.withRateLimit("signup", rateLimitSignup, window, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.instrument("login", r.withRateLimit("login", rateLimitLogin, window, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/password", r.instrument("password", r.handlerAuthRate("password", limit, window, r.handleChangePassword)))
	r.mux.HandleFunc("/auth/attempts", r.instrument("attempts", r.handlerAuthRate("attempts", limit, window, r.handleAttempts)))
	r.mux.HandleFunc("/auth/sso/provision", r.instrument("provision", r.withRateLimit("provision", rateLimitLogin, window, rateLimitKeyIP, r.handleProvision)))
	r.mux.HandleFunc("/tenants", r.instrument("tenants", r.handlerAuthRate("tenants", limit, window, r.handleTenants)))
	r.mux.HandleFunc("/teams", r.instrument("teams", r.handlerAuthRate("teams", limit, window, r.handleTeams)))
	r.mux.HandleFunc("/teams/", r.instrument("team", r.handlerAuthRate("team", limit, window, r.handleTeamSubroutes)))
	r.mux.HandleFunc("/invitations/", r.instrument("invitations", r.handlerAuthRate("invitations", limit, window, r.handleInvitationSubroutes)))
}

// instrument wraps a handler with request metrics and an access log line.
func (r *Router) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, req)
		elapsed := time.Since(start)
		r.recordRequestMetrics(req.Method, route, rec.status, elapsed)
		r.logger.Info("request handled",
			"method", req.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password, requestMeta(req))
	if err != nil {
		r.writeLoginError(w, err)
		return
	}
	r.recordLoginOutcome("success")
	body := map[string]any{
		"user":   userView(user),
		"tokens": tokenView(tokens),
	}
	if warning, ok := r.auth.PasswordWarning(req.Context(), user); ok {
		body["warning"] = warning
	}
	writeJSON(w, http.StatusOK, body)
}

func (r *Router) writeLoginError(w http.ResponseWriter, err error) {
	var throttled *auth.ThrottledError
	var ssoRequired *auth.SSORequiredError
	switch {
	case errors.As(err, &throttled):
		r.recordLoginOutcome("throttled")
		w.Header().Set("Retry-After", strconv.Itoa(throttled.RetryAfterSeconds()))
		writeError(w, http.StatusTooManyRequests, "too many attempts, retry later")
	case errors.As(err, &ssoRequired):
		r.recordLoginOutcome("sso_required")
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error":        "single sign-on required",
			"sso_provider": ssoRequired.Provider,
		})
	case errors.Is(err, auth.ErrSSOMisconfigured):
		r.recordLoginOutcome("sso_misconfigured")
		writeError(w, http.StatusServiceUnavailable, "single sign-on is not configured, contact your administrator")
	case errors.Is(err, auth.ErrPasswordExpired):
		r.recordLoginOutcome("password_expired")
		writeError(w, http.StatusForbidden, "password expired, reset required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		r.recordLoginOutcome("invalid_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		r.recordLoginOutcome("error")
		r.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
	}
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Name, payload.Email, payload.Password, requestMeta(req))
	if err != nil {
		var violation *password.Violation
		if errors.As(err, &violation) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": violation.Message,
				"rule":  violation.Rule,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   userView(user),
		"tokens": tokenView(tokens),
	})
}

func (r *Router) handleChangePassword(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	var payload struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.ChangePassword(req.Context(), info.UserID, payload.Current, payload.New); err != nil {
		var violation *password.Violation
		switch {
		case errors.As(err, &violation):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": violation.Message,
				"rule":  violation.Rule,
			})
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeError(w, http.StatusForbidden, "current password incorrect")
		default:
			writeError(w, http.StatusInternalServerError, "password change failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}

func (r *Router) handleAttempts(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	attempts, err := r.auth.RecentAttempts(req.Context(), info.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (r *Router) handleProvision(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := r.auth.ProvisionSSOUser(req.Context(), payload.Name, payload.Email, requestMeta(req))
	if err != nil {
		if errors.Is(err, auth.ErrAutoProvisionDisabled) {
			writeError(w, http.StatusForbidden, "auto-provisioning is not enabled for this context")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": userView(user)})
}

func (r *Router) handleTenants(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := r.tenants.CreateTenant(req.Context(), payload.Name)
	if err != nil {
		r.writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		tenantID := info.TenantID
		if rc, okr := tenancy.Resolved(req.Context()); okr && rc.HasTenant() {
			tenantID = rc.Tenant.ID
		}
		created, err := r.tenants.CreateTeam(req.Context(), tenantID, info.UserID, payload.Name)
		if err != nil {
			r.writeTenantError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		teams, err := r.tenants.TeamsForUser(req.Context(), info.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, teams)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/teams/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		r.notFound(w)
		return
	}
	teamID := parts[0]
	switch {
	case len(parts) == 1:
		r.handleTeamRename(w, req, teamID)
	case len(parts) == 2 && parts[1] == "slug":
		r.handleTeamSlug(w, req, teamID)
	case len(parts) == 2 && parts[1] == "provider":
		r.handleTeamProvider(w, req, teamID)
	case len(parts) == 2 && parts[1] == "invitations":
		r.handleTeamInvitations(w, req, teamID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleTeamRename(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	team, err := r.tenants.RenameTeam(req.Context(), teamID, payload.Name)
	if err != nil {
		r.writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (r *Router) handleTeamSlug(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Slug string `json:"slug"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	team, err := r.tenants.SetVanitySlug(req.Context(), teamID, payload.Slug)
	if err != nil {
		r.writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (r *Router) handleTeamProvider(w http.ResponseWriter, req *http.Request, teamID string) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	var payload domain.ProviderSettings
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	team, err := r.tenants.ConfigureProvider(req.Context(), teamID, payload)
	if err != nil {
		r.writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (r *Router) handleTeamInvitations(w http.ResponseWriter, req *http.Request, teamID string) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Email string `json:"email"`
			Role  string `json:"role"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		invite, err := r.tenants.Invite(req.Context(), teamID, payload.Email, payload.Role)
		if err != nil {
			r.writeTenantError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, invite)
	case http.MethodGet:
		invites, err := r.tenants.ListInvitations(req.Context(), teamID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, invites)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleInvitationSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/invitations/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "accept" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.authContextMissing(w, req)
		return
	}
	member, err := r.tenants.AcceptInvitation(req.Context(), parts[0], info.UserID)
	if err != nil {
		r.writeTenantError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (r *Router) writeTenantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidName), errors.Is(err, tenant.ErrInvalidSlug):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tenant.ErrSlugTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tenant.ErrInviteResolved):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, tenant.ErrInviteExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		r.notFound(w)
	default:
		r.logger.Error("tenant operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "operation failed")
	}
}

func (r *Router) authContextMissing(w http.ResponseWriter, req *http.Request) {
	r.logger.Error("auth context missing", "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "authorization context missing")
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func requestMeta(req *http.Request) auth.RequestMeta {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if trimmed := strings.TrimSpace(first); trimmed != "" {
			host = trimmed
		}
	}
	return auth.RequestMeta{IP: host, UserAgent: req.UserAgent()}
}

func userView(user *domain.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"tenant_id": user.TenantID,
	}
}

func tokenView(tokens auth.TokenPair) map[string]any {
	return map[string]any{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_in":    int(tokens.ExpiresIn.Seconds()),
	}
}
