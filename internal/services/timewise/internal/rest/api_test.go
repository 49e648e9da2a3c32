package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gamma-omg/timewise-go/internal/pkg/httpx"
	"github.com/gamma-omg/timewise-go/internal/pkg/serr"
	"github.com/gamma-omg/timewise-go/internal/pkg/testutil"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/attendance"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/location"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/oauth"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/service"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessions = token.NewJWTIssuer(token.JwtConfig{
	Secret: token.Secret("test-session-key"),
	Issuer: "timewise",
	TTL:    time.Hour,
})

type mockTimewise struct {
	loginURLFunc     func(env oauth.Env, r service.LoginRequest) (string, error)
	authCallbackFunc func(ctx context.Context, env oauth.Env, r service.AuthCallbackRequest) (service.AuthCallbackResponse, error)
	redeemFunc       func(ctx context.Context, code string) (service.RedeemResponse, error)
	meFunc           func(ctx context.Context, sid string) (service.MeResponse, error)
	tenantsFunc      func(ctx context.Context, sid string) ([]model.TenantMembership, error)
	selectFunc       func(ctx context.Context, sid, tenant string) (service.MeResponse, error)
	checkInFunc      func(ctx context.Context, sid string, src location.Source) (attendance.CheckInResult, error)
	checkOutFunc     func(ctx context.Context, sid string, src location.Source) (attendance.CheckOutResult, error)
	todayFunc        func(ctx context.Context, sid string) (service.TodayResponse, error)
	logoutFunc       func(ctx context.Context, sid string) error
}

func (m *mockTimewise) LoginURL(env oauth.Env, r service.LoginRequest) (string, error) {
	return m.loginURLFunc(env, r)
}

func (m *mockTimewise) AuthCallback(ctx context.Context, env oauth.Env, r service.AuthCallbackRequest) (service.AuthCallbackResponse, error) {
	return m.authCallbackFunc(ctx, env, r)
}

func (m *mockTimewise) RedeemCode(ctx context.Context, code string) (service.RedeemResponse, error) {
	return m.redeemFunc(ctx, code)
}

func (m *mockTimewise) Me(ctx context.Context, sid string) (service.MeResponse, error) {
	return m.meFunc(ctx, sid)
}

func (m *mockTimewise) Tenants(ctx context.Context, sid string) ([]model.TenantMembership, error) {
	return m.tenantsFunc(ctx, sid)
}

func (m *mockTimewise) SelectTenant(ctx context.Context, sid, tenant string) (service.MeResponse, error) {
	return m.selectFunc(ctx, sid, tenant)
}

func (m *mockTimewise) CheckIn(ctx context.Context, sid string, src location.Source) (attendance.CheckInResult, error) {
	return m.checkInFunc(ctx, sid, src)
}

func (m *mockTimewise) CheckOut(ctx context.Context, sid string, src location.Source) (attendance.CheckOutResult, error) {
	return m.checkOutFunc(ctx, sid, src)
}

func (m *mockTimewise) Today(ctx context.Context, sid string) (service.TodayResponse, error) {
	return m.todayFunc(ctx, sid)
}

func (m *mockTimewise) Logout(ctx context.Context, sid string) error {
	return m.logoutFunc(ctx, sid)
}

func sessionToken(t *testing.T, sid string) string {
	t.Helper()

	tk, err := sessions.Issue(sid)
	require.NoError(t, err)
	return tk
}

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.DiscardHandler))
	m.Run()
}

func TestAPI_HandleLogin(t *testing.T) {
	var got service.LoginRequest
	srv := &mockTimewise{
		loginURLFunc: func(env oauth.Env, r service.LoginRequest) (string, error) {
			got = r
			require.NoError(t, env.Save("state", "abc"))
			return "https://access.line.me/oauth2/v2.1/authorize?state=abc", nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/auth/line/login?redirect_url=timewise://auth", nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://access.line.me/oauth2/v2.1/authorize?state=abc", rec.Header().Get("Location"))
	assert.Equal(t, service.LoginRequest{Provider: "line", RedirectURL: "timewise://auth"}, got)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "line-state=abc")
}

func TestAPI_HandleLogin_ProviderNotFound(t *testing.T) {
	srv := &mockTimewise{
		loginURLFunc: func(env oauth.Env, r service.LoginRequest) (string, error) {
			return "", serr.NewServiceError(oauth.ErrProviderNotFound, http.StatusNotFound, "not found").WithCode("provider_not_found")
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/auth/unknown/login", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	resp := testutil.ParseResponse[httpx.ErrorResponse](t, rec)
	assert.Equal(t, "provider_not_found", resp.Code)
}

func TestAPI_Callback(t *testing.T) {
	var got service.AuthCallbackRequest
	srv := &mockTimewise{
		authCallbackFunc: func(ctx context.Context, env oauth.Env, req service.AuthCallbackRequest) (service.AuthCallbackResponse, error) {
			got = req
			return service.AuthCallbackResponse{RedirectURL: "timewise://auth?otc=xyz"}, nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/auth/line/callback?code=test_code&state=test_state", nil)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "timewise://auth?otc=xyz", rec.Header().Get("Location"))
	assert.Equal(t, service.AuthCallbackRequest{Provider: "line", Code: "test_code", State: "test_state"}, got)
}

func TestAPI_Callback_StateMismatch(t *testing.T) {
	srv := &mockTimewise{
		authCallbackFunc: func(ctx context.Context, env oauth.Env, req service.AuthCallbackRequest) (service.AuthCallbackResponse, error) {
			return service.AuthCallbackResponse{},
				serr.NewServiceError(oauth.ErrStateMismatch, http.StatusBadRequest, "state mismatch").WithCode("state_mismatch")
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/auth/line/callback?code=c&state=forged", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestAPI_Redeem(t *testing.T) {
	srv := &mockTimewise{
		redeemFunc: func(ctx context.Context, code string) (service.RedeemResponse, error) {
			assert.Equal(t, "xyz", code)
			return service.RedeemResponse{
				SessionToken: "tk",
				Status:       service.StatusSelectTenant,
				Tenants:      []model.TenantMembership{{Tenant: "ACME"}, {Tenant: "GLOBEX"}},
			}, nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "POST", "/auth/redeem", redeemRequest{Code: "xyz"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := testutil.ParseResponse[redeemResponse](t, rec)
	assert.Equal(t, "tk", resp.SessionToken)
	assert.Equal(t, service.StatusSelectTenant, resp.Status)
	assert.Len(t, resp.Tenants, 2)
}

func TestAPI_Redeem_BadBody(t *testing.T) {
	api := NewAPI(&mockTimewise{}, sessions)

	req := httptest.NewRequest("POST", "/auth/redeem", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_SessionRoutesRequireToken(t *testing.T) {
	api := NewAPI(&mockTimewise{}, sessions)

	routes := []struct{ method, path string }{
		{"GET", "/me"},
		{"GET", "/tenants"},
		{"POST", "/tenants/select"},
		{"POST", "/attendance/check-in"},
		{"POST", "/attendance/check-out"},
		{"GET", "/attendance/today"},
		{"POST", "/logout"},
	}

	for _, rt := range routes {
		rec := testutil.SendRequest(t, api, rt.method, rt.path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", rt.method, rt.path)
	}
}

func TestAPI_SessionRoutesRejectLooseTokens(t *testing.T) {
	srv := &mockTimewise{
		meFunc: func(ctx context.Context, sid string) (service.MeResponse, error) {
			t.Fatalf("handler reached with session %q", sid)
			return service.MeResponse{}, nil
		},
	}
	api := NewAPI(srv, sessions)

	sign := func(claims jwt.RegisteredClaims) string {
		tk, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-session-key"))
		require.NoError(t, err)
		return tk
	}

	tokens := map[string]string{
		"no expiry":      sign(jwt.RegisteredClaims{Subject: "sid-1", Issuer: "timewise"}),
		"foreign issuer": sign(jwt.RegisteredClaims{Subject: "sid-1", Issuer: "someone-else"}),
		"expired": sign(jwt.RegisteredClaims{
			Subject:   "sid-1",
			Issuer:    "timewise",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
	}

	for name, tk := range tokens {
		t.Run(name, func(t *testing.T) {
			rec := testutil.SendRequest(t, api, "GET", "/me", nil, testutil.WithBearer(tk))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAPI_Me(t *testing.T) {
	srv := &mockTimewise{
		meFunc: func(ctx context.Context, sid string) (service.MeResponse, error) {
			assert.Equal(t, "sid-1", sid)
			return service.MeResponse{
				Identity: model.Identity{ID: "U1"},
				Tenant:   &model.TenantMembership{Tenant: "ACME"},
			}, nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/me", nil, testutil.WithBearer(sessionToken(t, "sid-1")))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := testutil.ParseResponse[meResponse](t, rec)
	assert.Equal(t, "U1", resp.Identity.ID)
	assert.Equal(t, "ACME", resp.Tenant.Tenant)
	assert.Nil(t, resp.Employment)
}

func TestAPI_Tenants(t *testing.T) {
	srv := &mockTimewise{
		tenantsFunc: func(ctx context.Context, sid string) ([]model.TenantMembership, error) {
			return []model.TenantMembership{{Tenant: "ACME", Status: model.StatusActive}}, nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/tenants", nil, testutil.WithBearer(sessionToken(t, "sid-1")))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := testutil.ParseResponse[tenantsResponse](t, rec)
	assert.Equal(t, []model.TenantMembership{{Tenant: "ACME", Status: model.StatusActive}}, resp.Tenants)
}

func TestAPI_SelectTenant(t *testing.T) {
	srv := &mockTimewise{
		selectFunc: func(ctx context.Context, sid, tenant string) (service.MeResponse, error) {
			assert.Equal(t, "GLOBEX", tenant)
			return service.MeResponse{Tenant: &model.TenantMembership{Tenant: tenant}}, nil
		},
	}
	api := NewAPI(srv, sessions)
	tk := testutil.WithBearer(sessionToken(t, "sid-1"))

	rec := testutil.SendRequest(t, api, "POST", "/tenants/select", selectTenantRequest{Tenant: "GLOBEX"}, tk)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = testutil.SendRequest(t, api, "POST", "/tenants/select", selectTenantRequest{}, tk)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_CheckIn(t *testing.T) {
	ts := time.Date(2026, 10, 14, 2, 0, 0, 0, time.UTC)
	srv := &mockTimewise{
		checkInFunc: func(ctx context.Context, sid string, src location.Source) (attendance.CheckInResult, error) {
			fix, err := src.Current(ctx)
			require.NoError(t, err)
			assert.Equal(t, 13.75635, fix.Lat)
			assert.Equal(t, 100.50185, fix.Lng)

			return attendance.CheckInResult{Timestamp: ts, DistanceMeters: 7.75, TaskID: "task-1"}, nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "POST", "/attendance/check-in",
		punchRequest{Location: &model.GeoFix{Lat: 13.75635, Lng: 100.50185}},
		testutil.WithBearer(sessionToken(t, "sid-1")))
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := testutil.ParseResponse[checkInResponse](t, rec)
	assert.True(t, resp.Timestamp.Equal(ts))
	assert.Equal(t, 7.75, resp.DistanceMeters)
	assert.Equal(t, "task-1", resp.TaskID)
}

func TestAPI_CheckIn_PermissionDenied(t *testing.T) {
	srv := &mockTimewise{
		checkInFunc: func(ctx context.Context, sid string, src location.Source) (attendance.CheckInResult, error) {
			_, err := src.Current(ctx)
			require.ErrorIs(t, err, location.ErrPermissionDenied)
			return attendance.CheckInResult{}, serr.NewServiceError(err, http.StatusUnprocessableEntity, "denied").WithCode("location_permission_denied")
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "POST", "/attendance/check-in",
		punchRequest{PermissionDenied: true},
		testutil.WithBearer(sessionToken(t, "sid-1")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_CheckIn_OutOfGeofence(t *testing.T) {
	srv := &mockTimewise{
		checkInFunc: func(ctx context.Context, sid string, src location.Source) (attendance.CheckInResult, error) {
			return attendance.CheckInResult{}, serr.NewServiceError(attendance.ErrOutOfGeofence, http.StatusUnprocessableEntity, "too far").
				WithCode("out_of_geofence").
				With("distance_meters", "97.20")
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "POST", "/attendance/check-in",
		punchRequest{Location: &model.GeoFix{Lat: 13.7563, Lng: 100.5027}},
		testutil.WithBearer(sessionToken(t, "sid-1")))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := testutil.ParseResponse[httpx.ErrorResponse](t, rec)
	assert.Equal(t, "out_of_geofence", resp.Code)
	assert.Equal(t, "97.20", resp.Env["distance_meters"])
}

func TestAPI_CheckOut_EmptyBody(t *testing.T) {
	srv := &mockTimewise{
		checkOutFunc: func(ctx context.Context, sid string, src location.Source) (attendance.CheckOutResult, error) {
			_, err := src.Current(ctx)
			require.ErrorIs(t, err, location.ErrUnavailable)
			return attendance.CheckOutResult{Timestamp: time.Now()}, nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "POST", "/attendance/check-out", nil, testutil.WithBearer(sessionToken(t, "sid-1")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Today(t *testing.T) {
	srv := &mockTimewise{
		todayFunc: func(ctx context.Context, sid string) (service.TodayResponse, error) {
			return service.TodayResponse{
				Day: attendance.Day{Date: "2026-10-14", Key: "1791910800000"},
				Status: attendance.Status{
					ClockedIn:   true,
					Fresh:       false,
					StaleReason: errors.New("search https://wfm.internal/search/ACME: dial tcp 10.0.0.7:443: i/o timeout"),
					Record:      &model.AttendanceRecord{Date: "2026-10-14", TaskID: "task-1"},
				},
				StaleCode: "network_timeout",
			}, nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/attendance/today", nil, testutil.WithBearer(sessionToken(t, "sid-1")))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := testutil.ParseResponse[todayResponse](t, rec)
	assert.Equal(t, "2026-10-14", resp.Date)
	assert.Equal(t, "1791910800000", resp.DayKey)
	assert.True(t, resp.ClockedIn)
	assert.False(t, resp.Fresh)
	assert.Equal(t, "network_timeout", resp.StaleReason)
	assert.NotContains(t, rec.Body.String(), "wfm.internal")
	require.NotNil(t, resp.Record)
	assert.Equal(t, "task-1", resp.Record.TaskID)
}

func TestAPI_Logout(t *testing.T) {
	var cleared string
	srv := &mockTimewise{
		logoutFunc: func(ctx context.Context, sid string) error {
			cleared = sid
			return nil
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "POST", "/logout", nil, testutil.WithBearer(sessionToken(t, "sid-1")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "sid-1", cleared)
}

func TestAPI_InternalError(t *testing.T) {
	srv := &mockTimewise{
		meFunc: func(ctx context.Context, sid string) (service.MeResponse, error) {
			return service.MeResponse{}, errors.New("boom")
		},
	}
	api := NewAPI(srv, sessions)

	rec := testutil.SendRequest(t, api, "GET", "/me", nil, testutil.WithBearer(sessionToken(t, "sid-1")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
