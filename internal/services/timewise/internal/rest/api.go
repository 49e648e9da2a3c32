package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gamma-omg/timewise-go/internal/pkg/httpx"
	"github.com/gamma-omg/timewise-go/internal/pkg/middleware"
	"github.com/gamma-omg/timewise-go/internal/pkg/router"
	"github.com/gamma-omg/timewise-go/internal/pkg/serr"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/attendance"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/location"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/oauth"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/service"
)

type timewiseService interface {
	LoginURL(env oauth.Env, r service.LoginRequest) (string, error)
	AuthCallback(ctx context.Context, env oauth.Env, r service.AuthCallbackRequest) (service.AuthCallbackResponse, error)
	RedeemCode(ctx context.Context, code string) (service.RedeemResponse, error)
	Me(ctx context.Context, sid string) (service.MeResponse, error)
	Tenants(ctx context.Context, sid string) ([]model.TenantMembership, error)
	SelectTenant(ctx context.Context, sid, tenant string) (service.MeResponse, error)
	CheckIn(ctx context.Context, sid string, src location.Source) (attendance.CheckInResult, error)
	CheckOut(ctx context.Context, sid string, src location.Source) (attendance.CheckOutResult, error)
	Today(ctx context.Context, sid string) (service.TodayResponse, error)
	Logout(ctx context.Context, sid string) error
}

type API struct {
	srv  timewiseService
	auth router.Middleware
	rt   *router.Router
}

// NewAPI mounts the app endpoints. Session endpoints require a token signed
// accepted by sessions.
func NewAPI(srv timewiseService, sessions middleware.SessionValidator) *API {
	api := &API{
		srv:  srv,
		auth: middleware.Auth(sessions),
		rt:   router.New(),
	}
	api.mount()
	return api
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.rt.ServeHTTP(w, r)
}

func (a *API) mount() {
	a.rt.HandleFunc("GET /auth/{provider}/login", a.handleLogin)
	a.rt.HandleFunc("GET /auth/{provider}/callback", a.handleCallback)
	a.rt.HandleFunc("POST /auth/redeem", a.handleRedeem)

	a.rt.Handle("GET /me", a.session(a.handleMe))
	a.rt.Handle("GET /tenants", a.session(a.handleTenants))
	a.rt.Handle("POST /tenants/select", a.session(a.handleSelectTenant))
	a.rt.Handle("POST /attendance/check-in", a.session(a.handleCheckIn))
	a.rt.Handle("POST /attendance/check-out", a.session(a.handleCheckOut))
	a.rt.Handle("GET /attendance/today", a.session(a.handleToday))
	a.rt.Handle("POST /logout", a.session(a.handleLogout))
}

func (a *API) session(h http.HandlerFunc) http.Handler {
	return a.auth(h)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("provider")
	url, err := a.srv.LoginURL(oauth.NewHTTPEnv(p, w, r), service.LoginRequest{
		Provider:    p,
		RedirectURL: r.URL.Query().Get("redirect_url"),
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	p := r.PathValue("provider")
	q := r.URL.Query()

	resp, err := a.srv.AuthCallback(r.Context(), oauth.NewHTTPEnv(p, w, r), service.AuthCallbackRequest{
		Provider: p,
		Code:     q.Get("code"),
		State:    q.Get("state"),
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	http.Redirect(w, r, resp.RedirectURL, http.StatusFound)
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	SessionToken string                   `json:"session_token"`
	Status       string                   `json:"status"`
	Tenants      []model.TenantMembership `json:"tenants"`
}

func (a *API) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, badRequest(err))
		return
	}

	resp, err := a.srv.RedeemCode(r.Context(), req.Code)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, redeemResponse{
		SessionToken: resp.SessionToken,
		Status:       resp.Status,
		Tenants:      resp.Tenants,
	})
}

type meResponse struct {
	Identity   model.Identity          `json:"identity"`
	Tenant     *model.TenantMembership `json:"tenant"`
	Employment *model.EmploymentRecord `json:"employment"`
}

func newMeResponse(m service.MeResponse) meResponse {
	return meResponse{
		Identity:   m.Identity,
		Tenant:     m.Tenant,
		Employment: m.Employment,
	}
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := a.srv.Me(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, newMeResponse(me))
}

type tenantsResponse struct {
	Tenants []model.TenantMembership `json:"tenants"`
}

func (a *API) handleTenants(w http.ResponseWriter, r *http.Request) {
	ts, err := a.srv.Tenants(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, tenantsResponse{Tenants: ts})
}

type selectTenantRequest struct {
	Tenant string `json:"tenant"`
}

func (a *API) handleSelectTenant(w http.ResponseWriter, r *http.Request) {
	var req selectTenantRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, badRequest(err))
		return
	}

	if req.Tenant == "" {
		httpx.HandleErr(w, r, serr.NewServiceError(nil, http.StatusBadRequest, "tenant is required").WithCode("bad_request"))
		return
	}

	me, err := a.srv.SelectTenant(r.Context(), middleware.SessionIDFromContext(r.Context()), req.Tenant)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, newMeResponse(me))
}

type punchRequest struct {
	Location         *model.GeoFix `json:"location"`
	PermissionDenied bool          `json:"permission_denied"`
}

func (p punchRequest) source() location.Source {
	return location.Reported{Fix: p.Location, PermissionDenied: p.PermissionDenied}
}

type checkInResponse struct {
	Timestamp      time.Time              `json:"timestamp"`
	DistanceMeters float64                `json:"distance_meters"`
	TaskID         string                 `json:"task_id,omitempty"`
	Record         model.AttendanceRecord `json:"record"`
}

func (a *API) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req punchRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, badRequest(err))
		return
	}

	res, err := a.srv.CheckIn(r.Context(), middleware.SessionIDFromContext(r.Context()), req.source())
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, checkInResponse{
		Timestamp:      res.Timestamp,
		DistanceMeters: res.DistanceMeters,
		TaskID:         res.TaskID,
		Record:         res.Record,
	})
}

type checkOutResponse struct {
	Timestamp time.Time              `json:"timestamp"`
	Record    model.AttendanceRecord `json:"record"`
}

func (a *API) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	var req punchRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, badRequest(err))
		return
	}

	res, err := a.srv.CheckOut(r.Context(), middleware.SessionIDFromContext(r.Context()), req.source())
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, checkOutResponse{
		Timestamp: res.Timestamp,
		Record:    res.Record,
	})
}

type todayResponse struct {
	Date        string                  `json:"date"`
	DayKey      string                  `json:"day_key"`
	ClockedIn   bool                    `json:"clocked_in"`
	Fresh       bool                    `json:"fresh"`
	StaleReason string                  `json:"stale_reason,omitempty"`
	Record      *model.AttendanceRecord `json:"record"`
}

func (a *API) handleToday(w http.ResponseWriter, r *http.Request) {
	resp, err := a.srv.Today(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	out := todayResponse{
		Date:        resp.Day.Date,
		DayKey:      resp.Day.Key,
		ClockedIn:   resp.Status.ClockedIn,
		Fresh:       resp.Status.Fresh,
		StaleReason: resp.StaleCode,
		Record:      resp.Status.Record,
	}

	writeJSON(w, r, http.StatusOK, out)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.srv.Logout(r.Context(), middleware.SessionIDFromContext(r.Context())); err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
