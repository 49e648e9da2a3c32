package model

import (
	"time"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/geo"
	"github.com/shopspring/decimal"
)

// Membership statuses reported by the user search.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Remote attendance statuses.
const (
	AttendanceWorking = "WORKING"
)

type Profile struct {
	DisplayName   string `json:"display_name"`
	PictureURL    string `json:"picture_url,omitempty"`
	StatusMessage string `json:"status_message,omitempty"`
}

// Identity is the authenticated person as reported by the identity provider.
type Identity struct {
	ID      string    `json:"id"`
	Profile Profile   `json:"profile"`
	LoginAt time.Time `json:"login_at"`
}

// TenantMembership is one (identity, tenant) membership record.
type TenantMembership struct {
	ID             string `json:"id"`
	Tenant         string `json:"tenant"`
	Module         string `json:"module,omitempty"`
	Role           string `json:"role,omitempty"`
	Status         string `json:"status"`
	EmployeeNumber string `json:"employee_number,omitempty"`
	DisplayName    string `json:"display_name,omitempty"`
	Email          string `json:"email,omitempty"`
	GUID           string `json:"guid,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	TeamID         string `json:"team_id,omitempty"`
}

func (m TenantMembership) Active() bool {
	return m.Status == StatusActive
}

type Department struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

type Position struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type WorkLocation struct {
	ID        string    `json:"id,omitempty"`
	GUID      string    `json:"guid,omitempty"`
	Alias     string    `json:"alias,omitempty"`
	Address   string    `json:"address,omitempty"`
	Point     geo.Point `json:"point"`
	IsPrimary bool      `json:"is_primary,omitempty"`
}

// EmploymentRecord is the employee's provisioning record inside one tenant.
type EmploymentRecord struct {
	ID             string          `json:"id"`
	TaskGUID       string          `json:"task_guid,omitempty"`
	EmployeeNumber string          `json:"employee_number,omitempty"`
	Name           string          `json:"name,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Email          string          `json:"email,omitempty"`
	Department     Department      `json:"department"`
	Position       Position        `json:"position"`
	Division       string          `json:"division,omitempty"`
	Branch         string          `json:"branch,omitempty"`
	BasicWage      decimal.Decimal `json:"basic_wage"`
	StartDate      *time.Time      `json:"start_date,omitempty"`
	WorkLocations  []WorkLocation  `json:"work_locations"`
}

// PrimaryLocation returns the location flagged primary, or the first one.
func (e EmploymentRecord) PrimaryLocation() (WorkLocation, bool) {
	for _, l := range e.WorkLocations {
		if l.IsPrimary {
			return l, true
		}
	}

	if len(e.WorkLocations) > 0 {
		return e.WorkLocations[0], true
	}

	return WorkLocation{}, false
}

// GeoFix is a device location reading.
type GeoFix struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

func (f GeoFix) Point() geo.Point {
	return geo.Point{Lat: f.Lat, Lng: f.Lng}
}

type Punch struct {
	At  time.Time `json:"at"`
	Fix *GeoFix   `json:"fix,omitempty"`
}

// AttendanceRecord is the check-in/check-out pair for one calendar day.
type AttendanceRecord struct {
	Date     string `json:"date"`
	DayKey   string `json:"day_key"`
	TaskID   string `json:"task_id,omitempty"`
	Status   string `json:"status,omitempty"`
	CheckIn  *Punch `json:"check_in,omitempty"`
	CheckOut *Punch `json:"check_out,omitempty"`
}

func (r AttendanceRecord) ClockedIn() bool {
	return r.CheckIn != nil && r.CheckOut == nil
}
