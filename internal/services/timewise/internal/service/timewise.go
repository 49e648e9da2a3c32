package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gamma-omg/timewise-go/internal/pkg/serr"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/attendance"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/location"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/oauth"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/otc"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/session"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/tenant"
	"github.com/google/uuid"
)

// Login statuses handed to the app together with the session token.
const (
	StatusAuthorized   = "authorized"
	StatusSelectTenant = "select_tenant"
)

const keyRedirectURL = "redirect_url"

type authenticator interface {
	LoginURL(env oauth.Env, provider string) (string, error)
	Exchange(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error)
}

type tenantResolver interface {
	Resolve(ctx context.Context, id model.Identity) (tenant.Resolution, error)
}

type employeeChecker interface {
	Authorize(ctx context.Context, id model.Identity, tenant string) (model.EmploymentRecord, error)
}

type attendanceService interface {
	Today() attendance.Day
	CheckIn(ctx context.Context, sub attendance.Subject, src location.Source) (attendance.CheckInResult, error)
	CheckOut(ctx context.Context, sub attendance.Subject, src location.Source) (attendance.CheckOutResult, error)
	TodayStatus(ctx context.Context, sub attendance.Subject) (attendance.Status, error)
}

type tokenIssuer interface {
	Issue(sessionID string) (string, error)
}

type oneTimeCodeProvider interface {
	CreateCode(ctx context.Context, e otc.Entry) (string, error)
	RedeemCode(ctx context.Context, code string) (otc.Entry, error)
}

// Timewise drives a login from the provider callback through tenant
// selection and employee authorization to attendance.
type Timewise struct {
	auth        authenticator
	tenants     tenantResolver
	employees   employeeChecker
	attendance  attendanceService
	tokens      tokenIssuer
	otc         oneTimeCodeProvider
	sessions    session.Store
	appRedirect string
	now         func() time.Time
	log         *slog.Logger
}

type TimewiseOption func(*Timewise) *Timewise

func WithAuthenticator(a authenticator) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.auth = a
		return s
	}
}

func WithTenants(r tenantResolver) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.tenants = r
		return s
	}
}

func WithEmployees(c employeeChecker) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.employees = c
		return s
	}
}

func WithAttendance(a attendanceService) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.attendance = a
		return s
	}
}

func WithTokens(iss tokenIssuer) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.tokens = iss
		return s
	}
}

func WithOTC(p oneTimeCodeProvider) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.otc = p
		return s
	}
}

func WithSessions(st session.Store) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.sessions = st
		return s
	}
}

// WithAppRedirect sets the app url the callback sends the one-time code to.
// Login requests may only redirect below it.
func WithAppRedirect(u string) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.appRedirect = u
		return s
	}
}

func WithClock(now func() time.Time) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.now = now
		return s
	}
}

func WithLogger(l *slog.Logger) TimewiseOption {
	return func(s *Timewise) *Timewise {
		s.log = l
		return s
	}
}

func NewTimewise(opts ...TimewiseOption) *Timewise {
	s := &Timewise{
		now: time.Now,
		log: slog.Default(),
	}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.auth == nil {
		panic("oauth authenticator is required")
	}

	if s.tenants == nil {
		panic("tenant resolver is required")
	}

	if s.employees == nil {
		panic("employee checker is required")
	}

	if s.attendance == nil {
		panic("attendance service is required")
	}

	if s.tokens == nil {
		panic("token issuer is required")
	}

	if s.otc == nil {
		panic("one-time code provider is required")
	}

	if s.sessions == nil {
		panic("session store is required")
	}

	if s.appRedirect == "" {
		panic("app redirect url is required")
	}

	return s
}

type LoginRequest struct {
	Provider    string
	RedirectURL string
}

// LoginURL starts a login attempt and returns the provider authorize url.
func (s *Timewise) LoginURL(env oauth.Env, r LoginRequest) (string, error) {
	redirect := r.RedirectURL
	if redirect == "" {
		redirect = s.appRedirect
	}

	if !s.allowedRedirect(redirect) {
		return "", classify(fmt.Errorf("%w: %s", ErrInvalidRedirect, redirect))
	}

	if err := env.Save(keyRedirectURL, redirect); err != nil {
		return "", fmt.Errorf("save redirect url: %w", err)
	}

	u, err := s.auth.LoginURL(env, r.Provider)
	if err != nil {
		if errors.Is(err, oauth.ErrProviderNotFound) {
			return "", withProvider(classify(err), r.Provider)
		}

		return "", fmt.Errorf("login url: %w", err)
	}

	return u, nil
}

type AuthCallbackRequest struct {
	Provider string
	Code     string
	State    string
}

type AuthCallbackResponse struct {
	RedirectURL string
	OTC         string
	Status      string
}

// AuthCallback verifies the callback, opens a session for the identity and
// resolves its tenants. When one tenant remains the employee is authorized
// for it right away. The app receives a one-time code on its redirect url.
func (s *Timewise) AuthCallback(ctx context.Context, env oauth.Env, r AuthCallbackRequest) (AuthCallbackResponse, error) {
	usr, err := s.auth.Exchange(ctx, env, r.Provider, r.Code, r.State)
	if err != nil {
		return AuthCallbackResponse{}, withProvider(classify(fmt.Errorf("exchange: %w", err)), r.Provider)
	}

	redirect, err := env.Load(keyRedirectURL)
	if err != nil || !s.allowedRedirect(redirect) {
		redirect = s.appRedirect
	}
	_ = env.Delete(keyRedirectURL)

	id := model.Identity{
		ID: usr.ID,
		Profile: model.Profile{
			DisplayName:   usr.DisplayName,
			PictureURL:    usr.PictureURL,
			StatusMessage: usr.StatusMessage,
		},
		LoginAt: s.now(),
	}

	sess := session.New(s.sessions, uuid.NewString())
	log := s.log.With("identity", id.ID, "session", sess.ID())

	if err := sess.SetIdentity(ctx, id); err != nil {
		return AuthCallbackResponse{}, fmt.Errorf("save identity: %w", err)
	}

	status, err := s.resolveTenant(ctx, sess, id)
	if err != nil {
		if clearErr := sess.Clear(ctx); clearErr != nil {
			log.Warn("failed to clear rejected session", "error", clearErr)
		}

		return AuthCallbackResponse{}, classify(err)
	}

	code, err := s.otc.CreateCode(ctx, otc.Entry{SessionID: sess.ID(), Status: status})
	if err != nil {
		return AuthCallbackResponse{}, fmt.Errorf("create one-time code: %w", err)
	}

	u, err := url.Parse(redirect)
	if err != nil {
		return AuthCallbackResponse{}, fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set("otc", code)
	u.RawQuery = q.Encode()

	log.Info("login completed", "status", status)
	return AuthCallbackResponse{
		RedirectURL: u.String(),
		OTC:         code,
		Status:      status,
	}, nil
}

// resolveTenant finds the tenants of the identity. A single tenant is
// authorized and selected, several are kept as candidates.
func (s *Timewise) resolveTenant(ctx context.Context, sess *session.Session, id model.Identity) (string, error) {
	res, err := s.tenants.Resolve(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolve tenants: %w", err)
	}

	if res.Selected == nil {
		if err := sess.SetCandidates(ctx, res.Tenants); err != nil {
			return "", fmt.Errorf("save candidates: %w", err)
		}

		return StatusSelectTenant, nil
	}

	if err := s.selectTenant(ctx, sess, id, *res.Selected); err != nil {
		return "", err
	}

	return StatusAuthorized, nil
}

func (s *Timewise) selectTenant(ctx context.Context, sess *session.Session, id model.Identity, t model.TenantMembership) error {
	emp, err := s.employees.Authorize(ctx, id, t.Tenant)
	if err != nil {
		// a previous selection must not survive a failed switch
		if clearErr := sess.ClearTenant(ctx); clearErr != nil {
			s.log.Warn("failed to clear tenant", "error", clearErr, "session", sess.ID())
		}

		return fmt.Errorf("authorize for %s: %w", t.Tenant, err)
	}

	if err := sess.SelectTenant(ctx, t, emp); err != nil {
		return fmt.Errorf("select tenant: %w", err)
	}

	return nil
}

type RedeemResponse struct {
	SessionToken string
	Status       string
	Tenants      []model.TenantMembership
}

// RedeemCode exchanges a one-time code for a session token.
func (s *Timewise) RedeemCode(ctx context.Context, code string) (RedeemResponse, error) {
	if code == "" {
		return RedeemResponse{}, classify(otc.ErrCodeNotFound)
	}

	e, err := s.otc.RedeemCode(ctx, code)
	if err != nil {
		return RedeemResponse{}, classify(fmt.Errorf("redeem code: %w", err))
	}

	sess := session.New(s.sessions, e.SessionID)
	if _, err := sess.Identity(ctx); err != nil {
		return RedeemResponse{}, classify(fmt.Errorf("load identity: %w", err))
	}

	tk, err := s.tokens.Issue(e.SessionID)
	if err != nil {
		return RedeemResponse{}, fmt.Errorf("issue session token: %w", err)
	}

	resp := RedeemResponse{SessionToken: tk, Status: e.Status}
	switch e.Status {
	case StatusSelectTenant:
		resp.Tenants, err = sess.Candidates(ctx)
	default:
		var t model.TenantMembership
		t, err = sess.Tenant(ctx)
		resp.Tenants = []model.TenantMembership{t}
	}
	if err != nil {
		return RedeemResponse{}, classify(fmt.Errorf("load tenants: %w", err))
	}

	return resp, nil
}

type MeResponse struct {
	Identity   model.Identity
	Tenant     *model.TenantMembership
	Employment *model.EmploymentRecord
}

// Me returns the stored login record.
func (s *Timewise) Me(ctx context.Context, sid string) (MeResponse, error) {
	sess := session.New(s.sessions, sid)

	id, err := sess.Identity(ctx)
	if err != nil {
		return MeResponse{}, classify(fmt.Errorf("load identity: %w", err))
	}

	resp := MeResponse{Identity: id}
	t, err := sess.Tenant(ctx)
	switch {
	case err == nil:
		resp.Tenant = &t
	case !errors.Is(err, session.ErrNotFound):
		return MeResponse{}, fmt.Errorf("load tenant: %w", err)
	}

	emp, err := sess.Employment(ctx)
	switch {
	case err == nil:
		resp.Employment = &emp
	case !errors.Is(err, session.ErrNotFound):
		return MeResponse{}, fmt.Errorf("load employment: %w", err)
	}

	return resp, nil
}

// Tenants looks the tenants of the session identity up again and keeps them
// as the candidates for a selection.
func (s *Timewise) Tenants(ctx context.Context, sid string) ([]model.TenantMembership, error) {
	sess := session.New(s.sessions, sid)

	id, err := sess.Identity(ctx)
	if err != nil {
		return nil, classify(fmt.Errorf("load identity: %w", err))
	}

	res, err := s.tenants.Resolve(ctx, id)
	if err != nil {
		return nil, classify(fmt.Errorf("resolve tenants: %w", err))
	}

	if err := sess.SetCandidates(ctx, res.Tenants); err != nil {
		return nil, fmt.Errorf("save candidates: %w", err)
	}

	return res.Tenants, nil
}

// SelectTenant authorizes the employee for one of the candidate tenants and
// makes it the selected one.
func (s *Timewise) SelectTenant(ctx context.Context, sid, code string) (MeResponse, error) {
	sess := session.New(s.sessions, sid)

	id, err := sess.Identity(ctx)
	if err != nil {
		return MeResponse{}, classify(fmt.Errorf("load identity: %w", err))
	}

	candidates, err := sess.Candidates(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			return MeResponse{}, fmt.Errorf("load candidates: %w", err)
		}

		res, err := s.tenants.Resolve(ctx, id)
		if err != nil {
			return MeResponse{}, classify(fmt.Errorf("resolve tenants: %w", err))
		}
		candidates = res.Tenants
	}

	t, err := tenant.Find(candidates, code)
	if err != nil {
		return MeResponse{}, classify(err)
	}

	if err := s.selectTenant(ctx, sess, id, t); err != nil {
		return MeResponse{}, classify(err)
	}

	s.log.Info("tenant selected", "identity", id.ID, "tenant", t.Tenant)
	return s.Me(ctx, sid)
}

func (s *Timewise) CheckIn(ctx context.Context, sid string, src location.Source) (attendance.CheckInResult, error) {
	sub, err := s.subject(ctx, sid)
	if err != nil {
		return attendance.CheckInResult{}, err
	}

	res, err := s.attendance.CheckIn(ctx, sub, src)
	if err != nil {
		return attendance.CheckInResult{}, classify(fmt.Errorf("check in: %w", err))
	}

	return res, nil
}

func (s *Timewise) CheckOut(ctx context.Context, sid string, src location.Source) (attendance.CheckOutResult, error) {
	sub, err := s.subject(ctx, sid)
	if err != nil {
		return attendance.CheckOutResult{}, err
	}

	res, err := s.attendance.CheckOut(ctx, sub, src)
	if err != nil {
		return attendance.CheckOutResult{}, classify(fmt.Errorf("check out: %w", err))
	}

	return res, nil
}

// TodayResponse carries the day status. StaleCode is the error code of the
// failed remote read when the status came from the mirror.
type TodayResponse struct {
	Day       attendance.Day
	Status    attendance.Status
	StaleCode string
}

func (s *Timewise) Today(ctx context.Context, sid string) (TodayResponse, error) {
	sub, err := s.subject(ctx, sid)
	if err != nil {
		return TodayResponse{}, err
	}

	day := s.attendance.Today()
	st, err := s.attendance.TodayStatus(ctx, sub)
	if err != nil {
		return TodayResponse{}, classify(fmt.Errorf("today status: %w", err))
	}

	resp := TodayResponse{Day: day, Status: st}
	if st.StaleReason != nil {
		resp.StaleCode = staleCode(st.StaleReason)
		s.log.Warn("serving mirrored attendance", "error", st.StaleReason,
			"identity", sub.Identity.ID, "tenant", sub.Tenant, "day", day.Key)
	}

	return resp, nil
}

// Logout forgets the identity, the selected tenant and pending candidates.
func (s *Timewise) Logout(ctx context.Context, sid string) error {
	if err := session.New(s.sessions, sid).Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}

// subject loads everything attendance needs from the session.
func (s *Timewise) subject(ctx context.Context, sid string) (attendance.Subject, error) {
	sess := session.New(s.sessions, sid)

	id, err := sess.Identity(ctx)
	if err != nil {
		return attendance.Subject{}, classify(fmt.Errorf("load identity: %w", err))
	}

	t, err := sess.Tenant(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return attendance.Subject{}, classify(ErrNoTenantSelected)
		}

		return attendance.Subject{}, fmt.Errorf("load tenant: %w", err)
	}

	emp, err := sess.Employment(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return attendance.Subject{}, classify(ErrNoTenantSelected)
		}

		return attendance.Subject{}, fmt.Errorf("load employment: %w", err)
	}

	return attendance.Subject{Identity: id, Tenant: t.Tenant, Employment: emp}, nil
}

func (s *Timewise) allowedRedirect(u string) bool {
	return u == s.appRedirect || strings.HasPrefix(u, strings.TrimSuffix(s.appRedirect, "/")+"/")
}

func withProvider(err error, provider string) error {
	if se, ok := serr.As(err); ok {
		se.With("provider", provider)
	}
	return err
}
