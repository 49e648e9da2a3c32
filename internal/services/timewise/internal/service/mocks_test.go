package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/attendance"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/location"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/oauth"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/otc"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/session"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/tenant"
)

type mockAuthenticator struct {
	loginURLFunc func(env oauth.Env, provider string) (string, error)
	exchangeFunc func(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error)
}

func (m *mockAuthenticator) LoginURL(env oauth.Env, provider string) (string, error) {
	return m.loginURLFunc(env, provider)
}

func (m *mockAuthenticator) Exchange(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error) {
	return m.exchangeFunc(ctx, env, provider, code, state)
}

type mockTenants struct {
	resolveFunc func(ctx context.Context, id model.Identity) (tenant.Resolution, error)
}

func (m *mockTenants) Resolve(ctx context.Context, id model.Identity) (tenant.Resolution, error) {
	return m.resolveFunc(ctx, id)
}

type mockEmployees struct {
	authorizeFunc func(ctx context.Context, id model.Identity, tenant string) (model.EmploymentRecord, error)
}

func (m *mockEmployees) Authorize(ctx context.Context, id model.Identity, tenant string) (model.EmploymentRecord, error) {
	return m.authorizeFunc(ctx, id, tenant)
}

type mockAttendance struct {
	todayFunc       func() attendance.Day
	checkInFunc     func(ctx context.Context, sub attendance.Subject, src location.Source) (attendance.CheckInResult, error)
	checkOutFunc    func(ctx context.Context, sub attendance.Subject, src location.Source) (attendance.CheckOutResult, error)
	todayStatusFunc func(ctx context.Context, sub attendance.Subject) (attendance.Status, error)
}

func (m *mockAttendance) Today() attendance.Day {
	return m.todayFunc()
}

func (m *mockAttendance) CheckIn(ctx context.Context, sub attendance.Subject, src location.Source) (attendance.CheckInResult, error) {
	return m.checkInFunc(ctx, sub, src)
}

func (m *mockAttendance) CheckOut(ctx context.Context, sub attendance.Subject, src location.Source) (attendance.CheckOutResult, error) {
	return m.checkOutFunc(ctx, sub, src)
}

func (m *mockAttendance) TodayStatus(ctx context.Context, sub attendance.Subject) (attendance.Status, error) {
	return m.todayStatusFunc(ctx, sub)
}

type mockTokens struct {
	issueFunc func(sessionID string) (string, error)
}

func (m *mockTokens) Issue(sessionID string) (string, error) {
	return m.issueFunc(sessionID)
}

// mapEnv is an in-memory oauth.Env.
type mapEnv map[string]string

func (e mapEnv) Save(key, val string) error {
	e[key] = val
	return nil
}

func (e mapEnv) Load(key string) (string, error) {
	v, ok := e[key]
	if !ok {
		return "", errors.New("missing " + key)
	}
	return v, nil
}

func (e mapEnv) Delete(key string) error {
	delete(e, key)
	return nil
}

// mapStore is a session.Store whose content tests can inspect.
type mapStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]string)}
}

func (s *mapStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return "", session.ErrNotFound
	}
	return v, nil
}

func (s *mapStore) Set(_ context.Context, key, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = val
	return nil
}

func (s *mapStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *mapStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

var (
	acme   = model.TenantMembership{Tenant: "ACME", Status: model.StatusActive, DisplayName: "Somchai"}
	globex = model.TenantMembership{Tenant: "GLOBEX", Status: model.StatusActive, DisplayName: "Somchai"}
	emp    = model.EmploymentRecord{ID: "emp-1", Name: "Somchai Jaidee"}
	lineU1 = oauth.User{ID: "U1", DisplayName: "somchai.line", PictureURL: "https://pic.example.com/u1"}
	loginT = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
)

type testEnv struct {
	srv        *Timewise
	auth       *mockAuthenticator
	tenants    *mockTenants
	employees  *mockEmployees
	attendance *mockAttendance
	tokens     *mockTokens
	codes      *otc.Local
	store      *mapStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		auth: &mockAuthenticator{
			loginURLFunc: func(env oauth.Env, provider string) (string, error) {
				return "https://access.line.me/authorize?state=s", nil
			},
			exchangeFunc: func(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error) {
				return lineU1, nil
			},
		},
		tenants: &mockTenants{
			resolveFunc: func(ctx context.Context, id model.Identity) (tenant.Resolution, error) {
				sel := acme
				return tenant.Resolution{Tenants: []model.TenantMembership{acme}, Selected: &sel}, nil
			},
		},
		employees: &mockEmployees{
			authorizeFunc: func(ctx context.Context, id model.Identity, tenant string) (model.EmploymentRecord, error) {
				return emp, nil
			},
		},
		attendance: &mockAttendance{
			todayFunc: func() attendance.Day {
				return attendance.Day{Date: "2026-10-14", Key: "1791910800000"}
			},
		},
		tokens: &mockTokens{
			issueFunc: func(sessionID string) (string, error) {
				return "token-for-" + sessionID, nil
			},
		},
		codes: otc.NewLocal(time.Minute),
		store: newMapStore(),
	}

	env.srv = NewTimewise(
		WithAuthenticator(env.auth),
		WithTenants(env.tenants),
		WithEmployees(env.employees),
		WithAttendance(env.attendance),
		WithTokens(env.tokens),
		WithOTC(env.codes),
		WithSessions(env.store),
		WithAppRedirect("timewise://auth"),
		WithClock(func() time.Time { return loginT }),
	)
	return env
}

// login runs the callback and redeems the code, returning the session id.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()

	resp, err := e.srv.AuthCallback(t.Context(), mapEnv{}, AuthCallbackRequest{Provider: "line", Code: "c", State: "s"})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}

	entry, err := e.codes.RedeemCode(t.Context(), resp.OTC)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	return entry.SessionID
}
