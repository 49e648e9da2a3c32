package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gamma-omg/timewise-go/internal/pkg/serr"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/attendance"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/employee"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/location"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/oauth"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/otc"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/session"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/tenant"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/wfm"
)

var (
	ErrNoTenantSelected = errors.New("no tenant selected")
	ErrInvalidRedirect  = errors.New("redirect url not allowed")
)

type failure struct {
	err    error
	status int
	code   string
	msg    string
}

// failures are matched in order, the first hit wins.
var failures = []failure{
	{wfm.ErrNetworkTimeout, http.StatusGatewayTimeout, "network_timeout", "the HR service did not answer in time, please try again"},
	{wfm.ErrNetwork, http.StatusBadGateway, "network", "the HR service could not be reached, please try again"},
	{wfm.ErrMalformedResponse, http.StatusBadGateway, "malformed_response", "the HR service returned an unexpected answer"},
	{tenant.ErrNoTenantsFound, http.StatusForbidden, "no_tenants", "no company is linked to this account, contact your administrator"},
	{tenant.ErrUnknownTenant, http.StatusNotFound, "unknown_tenant", "the company is not one of your companies"},
	{employee.ErrNotAuthorized, http.StatusForbidden, "not_authorized", "you are not registered as an employee of this company, contact your administrator"},
	{attendance.ErrAlreadyCheckedIn, http.StatusConflict, "already_checked_in", "you have already checked in today"},
	{attendance.ErrNoWorkLocation, http.StatusUnprocessableEntity, "no_work_location", "no work location is configured for you, contact your administrator"},
	{attendance.ErrNotClockedIn, http.StatusConflict, "not_clocked_in", "you have not checked in today"},
	{attendance.ErrAlreadyCheckedOut, http.StatusConflict, "already_checked_out", "you have already checked out today"},
	{attendance.ErrCheckOutBeforeCheckIn, http.StatusConflict, "check_out_before_check_in", "check-out must be later than check-in"},
	{attendance.ErrOperationInProgress, http.StatusConflict, "operation_in_progress", "another attendance request is still in progress"},
	{location.ErrPermissionDenied, http.StatusUnprocessableEntity, "location_permission_denied", "allow location access to check in"},
	{location.ErrUnavailable, http.StatusUnprocessableEntity, "location_unavailable", "your location could not be determined, please try again"},
	{oauth.ErrProviderTimeout, http.StatusGatewayTimeout, "network_timeout", "LINE did not answer in time, please try again"},
	{oauth.ErrProviderUnavailable, http.StatusBadGateway, "network", "LINE could not be reached, please try again"},
	{oauth.ErrStateMismatch, http.StatusBadRequest, "state_mismatch", "the login attempt could not be verified, please start again"},
	{oauth.ErrAuthFailed, http.StatusUnauthorized, "auth_failed", "authentication failed"},
	{oauth.ErrProviderNotFound, http.StatusNotFound, "provider_not_found", "login provider not found"},
	{otc.ErrCodeNotFound, http.StatusBadRequest, "invalid_code", "the login code is invalid or expired"},
	{session.ErrNotFound, http.StatusUnauthorized, "session_expired", "your session has expired, please log in again"},
	{ErrNoTenantSelected, http.StatusConflict, "no_tenant_selected", "select a company first"},
	{ErrInvalidRedirect, http.StatusBadRequest, "invalid_redirect", "redirect url not allowed"},
}

// classify turns a domain error into a ServiceError. Errors outside the
// taxonomy and caller cancellation are returned unchanged.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}

	if _, ok := serr.As(err); ok {
		return err
	}

	var gerr *attendance.OutOfGeofenceError
	if errors.As(err, &gerr) {
		return serr.NewServiceError(err, http.StatusUnprocessableEntity,
			"you are %.0f m from your work location, move within %.0f m to check in", gerr.Distance, gerr.Radius).
			WithCode("out_of_geofence").
			With("distance_meters", strconv.FormatFloat(gerr.Distance, 'f', 2, 64)).
			With("radius_meters", strconv.FormatFloat(gerr.Radius, 'f', 0, 64))
	}

	for _, f := range failures {
		if errors.Is(err, f.err) {
			return serr.NewServiceError(err, f.status, "%s", f.msg).WithCode(f.code)
		}
	}

	return err
}

// staleCode names why the remote could not be read without exposing the
// underlying error.
func staleCode(err error) string {
	if se, ok := serr.As(classify(err)); ok && se.Code != "" {
		return se.Code
	}
	return "unavailable"
}
