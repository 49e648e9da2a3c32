package employee

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/geo"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/wfm"
	"github.com/ttacon/libphonenumber"
)

var ErrNotAuthorized = errors.New("employee not authorized")

const (
	searchHitsPerPage = 500
	defaultRegion     = "TH"
)

type employeeSearcher interface {
	SearchEmployees(ctx context.Context, tenant string, r wfm.SearchRequest) ([]wfm.EmployeeHit, error)
}

// Checker confirms an identity is provisioned as an employee of a tenant.
type Checker struct {
	search employeeSearcher
	region string
}

type CheckerOption func(*Checker)

// WithPhoneRegion sets the region used to read phone numbers without a country code.
func WithPhoneRegion(region string) CheckerOption {
	return func(c *Checker) {
		c.region = region
	}
}

func NewChecker(search employeeSearcher, opts ...CheckerOption) *Checker {
	if search == nil {
		panic("employee searcher is required")
	}

	c := &Checker{search: search, region: defaultRegion}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Authorize looks up the most recent EMPLOYEE record of the identity in the tenant.
// The result must not be reused for another tenant.
func (c *Checker) Authorize(ctx context.Context, id model.Identity, tenant string) (model.EmploymentRecord, error) {
	hits, err := c.search.SearchEmployees(ctx, tenant, wfm.SearchRequest{
		HitsPerPage: searchHitsPerPage,
		Page:        1,
		Filter: []string{
			wfm.Eq("company", tenant),
			wfm.In("workflowId", wfm.WorkflowEmployee),
			wfm.Eq("type", wfm.TypeTask),
			wfm.Eq("detail.userInfo.assignee.lUId", id.ID),
		},
		Sort: []string{wfm.Desc("timestamp")},
	})
	if err != nil {
		return model.EmploymentRecord{}, fmt.Errorf("search employees: %w", err)
	}

	if len(hits) == 0 {
		return model.EmploymentRecord{}, ErrNotAuthorized
	}

	return c.project(hits[0]), nil
}

func (c *Checker) project(h wfm.EmployeeHit) model.EmploymentRecord {
	d := h.Detail
	jd := d.JobDescription

	rec := model.EmploymentRecord{
		ID:             h.ID,
		TaskGUID:       d.TaskInfo.GUID,
		EmployeeNumber: d.UserInfo.EmployeeNumber,
		Name:           d.UserInfo.Name,
		Phone:          c.normalizePhone(d.UserInfo.PhoneNumber),
		Email:          d.UserInfo.Assignee.UserInfo.Email,
		Department:     model.Department{Code: jd.Department.Code, Name: jd.Department.Name},
		Position:       model.Position{ID: jd.Position.ID, Name: jd.Position.Name},
		Division:       jd.Division.Name,
		Branch:         jd.Branch,
		WorkLocations:  make([]model.WorkLocation, 0, len(d.WorkLocation.Items)),
	}

	if rec.Name == "" {
		rec.Name = d.UserInfo.Assignee.UserInfo.DisplayName
	}

	if jd.BasicWage.Valid {
		rec.BasicWage = jd.BasicWage.Decimal
	}

	if jd.StartTimestamp != nil && *jd.StartTimestamp > 0 {
		start := time.UnixMilli(*jd.StartTimestamp).UTC()
		rec.StartDate = &start
	}

	for _, l := range d.WorkLocation.Items {
		// a location without coordinates cannot be used for the geofence
		if l.GeoLocation == nil {
			continue
		}

		rec.WorkLocations = append(rec.WorkLocations, model.WorkLocation{
			ID:        l.ID,
			GUID:      l.GUID,
			Alias:     l.Alias,
			Address:   l.Address,
			Point:     geo.Point{Lat: l.GeoLocation.Lat, Lng: l.GeoLocation.Lng},
			IsPrimary: l.IsPrimary,
		})
	}

	return rec
}

// normalizePhone formats parseable numbers as E.164 and keeps anything else as is.
func (c *Checker) normalizePhone(raw string) string {
	if raw == "" {
		return ""
	}

	num, err := libphonenumber.Parse(raw, c.region)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		return raw
	}

	return libphonenumber.Format(num, libphonenumber.E164)
}
