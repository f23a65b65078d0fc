package httpapi

import (
	"net/http"
	"net/netip"
	"time"

	"orbitdesk.io/internal/audit"
	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/obs"
)

const serviceName = "orbit-identity"

// API is the HTTP adapter over the auth service and gate.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	gate       *auth.Gate
	store      auth.Store
	version    string
	rateBurst  int
	ratePerSec float64
	proxies    []netip.Prefix
}

// Option configures API.
type Option func(*API)

// WithRateLimit sets the per-IP budget for the unauthenticated auth routes.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec = perSecond
			a.rateBurst = burst
		}
	}
}

// WithTrustedProxies names the reverse proxies whose X-Forwarded-For header
// identifies the client for rate limiting.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.proxies = append([]netip.Prefix(nil), prefixes...)
	}
}

func New(svc *auth.Service, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		gate:       auth.NewGate(svc.Store()),
		store:      svc.Store(),
		version:    version,
		rateBurst:  10,
		ratePerSec: 5,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())
	a.mux.HandleFunc("GET /v1/roles", a.handleRoles)

	public := http.NewServeMux()
	public.HandleFunc("POST /v1/auth/register", a.handleRegister)
	public.HandleFunc("POST /v1/auth/login", a.handleLogin)
	public.HandleFunc("POST /v1/auth/2fa", a.handleSecondFactor)
	limited := RateLimit(public, a.rateBurst, a.ratePerSec, a.proxies...)
	a.mux.Handle("POST /v1/auth/register", limited)
	a.mux.Handle("POST /v1/auth/login", limited)
	a.mux.Handle("POST /v1/auth/2fa", limited)

	a.mux.HandleFunc("POST /v1/auth/2fa/enroll", a.handleEnrollSecondFactor)
	a.mux.HandleFunc("GET /v1/workspace", a.handleWorkspace)
	a.mux.HandleFunc("POST /v1/workspace/switch", a.handleSwitchWorkspace)

	a.mux.HandleFunc("GET /v1/companies", a.handleListCompanies)
	a.mux.HandleFunc("POST /v1/companies", a.handleCreateCompany)
	a.mux.HandleFunc("GET /v1/company/members", a.handleListMembers)
	a.mux.HandleFunc("POST /v1/company/members", a.handleInviteMember)
	a.mux.HandleFunc("PATCH /v1/company/members/{identityID}", a.handleUpdateMember)
	a.mux.HandleFunc("DELETE /v1/company/members/{identityID}", a.handleRemoveMember)

	a.mux.HandleFunc("POST /v1/projects", a.handleCreateProject)
	a.mux.HandleFunc("GET /v1/projects/{id}/access", a.handleProjectAccess)
	a.mux.HandleFunc("POST /v1/projects/{id}/members", a.handleAddProjectMember)
	a.mux.HandleFunc("DELETE /v1/projects/{id}/members/{identityID}", a.handleRemoveProjectMember)
	a.mux.HandleFunc("PUT /v1/projects/{id}/lead", a.handleTransferLead)

	a.mux.HandleFunc("POST /v1/admin/identities/{id}/status", a.handleSetStatus)
}

// Handler returns the full middleware chain around the routes.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) audit(r *http.Request, event string, fields map[string]any) {
	_ = audit.LogEvent(r.Context(), event, fields)
}
