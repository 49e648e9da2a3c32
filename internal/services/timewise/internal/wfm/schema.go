package wfm

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SearchRequest is the body of a tenant search query.
type SearchRequest struct {
	HitsPerPage int      `json:"hitsPerPage"`
	Page        int      `json:"page"`
	Filter      []string `json:"filter"`
	Sort        []string `json:"sort,omitempty"`
}

// UserSearchRequest is the body of the identity -> tenant lookup.
type UserSearchRequest struct {
	Limit  int      `json:"limit"`
	Filter []string `json:"filter"`
	Sort   []string `json:"sort,omitempty"`
}

type searchResponse[T any] struct {
	Hits []T `json:"hits" validate:"required,dive"`
}

type UserInfo struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PictureURL  string `json:"pictureUrl,omitempty"`
}

// UserHit is a tenant membership record from the user search.
type UserHit struct {
	ID             string   `json:"id" validate:"required"`
	Company        string   `json:"company" validate:"required"`
	Module         string   `json:"module"`
	GUID           string   `json:"gUId"`
	LUID           string   `json:"lUId"`
	Role           string   `json:"role"`
	Status         string   `json:"status"`
	EmployeeNumber string   `json:"employeeNumber"`
	UserInfo       UserInfo `json:"userInfo"`
	FirstName      string   `json:"firstName"`
	LastName       string   `json:"lastName"`
	TeamID         string   `json:"teamId"`
}

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Named struct {
	ID   string `json:"id,omitempty"`
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

// Location is a configured work location of an employee.
type Location struct {
	ID          string  `json:"id"`
	GUID        string  `json:"gUId"`
	Alias       string  `json:"alias"`
	Address     string  `json:"address"`
	GeoLocation *LatLng `json:"geoLocation"`
	IsPrimary   bool    `json:"isPrimary"`
}

// WorkLocations decodes both the list form `{"items": [...]}` and the
// single location form of detail.workLocation.
type WorkLocations struct {
	Items []Location
}

func (w *WorkLocations) UnmarshalJSON(b []byte) error {
	var raw struct {
		Items json.RawMessage `json:"items"`
		Location
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode work location: %w", err)
	}

	if len(raw.Items) > 0 && string(raw.Items) != "null" {
		return json.Unmarshal(raw.Items, &w.Items)
	}

	if raw.GeoLocation != nil || raw.Alias != "" || raw.Address != "" {
		w.Items = []Location{raw.Location}
	}

	return nil
}

type Assignee struct {
	LUID     string   `json:"lUId"`
	UserInfo UserInfo `json:"userInfo"`
}

type EmployeeUserInfo struct {
	EmployeeNumber string   `json:"employeeNumber"`
	Name           string   `json:"name"`
	PhoneNumber    string   `json:"phoneNumber"`
	Assignee       Assignee `json:"assignee"`
}

type JobDescription struct {
	Department     Named               `json:"department"`
	Position       Named               `json:"position"`
	Division       Named               `json:"division"`
	Branch         string              `json:"branch"`
	BasicWage      decimal.NullDecimal `json:"basicWage"`
	StartTimestamp *int64              `json:"startTimestamp"`
}

type TaskInfo struct {
	GUID        string `json:"gUId"`
	CreateBy    string `json:"createBy,omitempty"`
	IsCopied    bool   `json:"isCopied"`
	CreatedDate int64  `json:"createdDate,omitempty"`
}

type EmployeeDetail struct {
	UserInfo       EmployeeUserInfo `json:"userInfo"`
	JobDescription JobDescription   `json:"jobDescription"`
	WorkLocation   WorkLocations    `json:"workLocation"`
	TaskInfo       TaskInfo         `json:"taskInfo"`
}

// EmployeeHit is an EMPLOYEE workflow record.
type EmployeeHit struct {
	ID        string         `json:"id" validate:"required"`
	Company   string         `json:"company"`
	Timestamp int64          `json:"timestamp"`
	Detail    EmployeeDetail `json:"detail"`
}

type PunchInfo struct {
	Images    []string    `json:"images"`
	Location  *LatLng     `json:"location,omitempty"`
	Distance  json.Number `json:"distance,omitempty"`
	Timestamp int64       `json:"timestamp" validate:"required"`
}

type AttendanceDetail struct {
	CheckInInfo  *PunchInfo `json:"checkInInfo" validate:"required"`
	CheckOutInfo *PunchInfo `json:"checkOutInfo,omitempty"`
}

// AttendanceHit is an EMPLOYEE_CICO workflow record.
type AttendanceHit struct {
	ID        string           `json:"id" validate:"required"`
	Ref1      string           `json:"ref1"`
	Ref2      string           `json:"ref2"`
	Status    string           `json:"status"`
	Timestamp int64            `json:"timestamp"`
	Detail    AttendanceDetail `json:"detail"`
}

type WorkLocationRef struct {
	Address     string `json:"address"`
	GeoLocation LatLng `json:"geoLocation"`
	By          string `json:"by"`
	Alias       string `json:"alias"`
	GUID        string `json:"gUId"`
	ID          string `json:"id"`
	Timestamp   int64  `json:"timestamp"`
}

type RoleInfo struct {
	RoleEn string `json:"roleEn"`
	RoleTh string `json:"roleTh"`
}

type TaskAssignee struct {
	Index    string   `json:"index"`
	UserInfo UserInfo `json:"userInfo"`
	GUID     string   `json:"gUId"`
	Role     string   `json:"role"`
	RoleInfo RoleInfo `json:"roleInfo"`
	LUID     string   `json:"lUId"`
}

type TaskDetail struct {
	WorkLocation WorkLocationRef `json:"workLocation"`
	Assignees    []TaskAssignee  `json:"assignees"`
	TaskInfo     TaskInfo        `json:"taskInfo"`
	CheckInInfo  PunchInfo       `json:"checkInInfo"`
}

// Task is the document submitted to create an attendance record.
type Task struct {
	Company    string     `json:"company"`
	Ref1       string     `json:"ref1"`
	Ref2       string     `json:"ref2"`
	Status     string     `json:"status"`
	WorkflowID string     `json:"workflowId"`
	Detail     TaskDetail `json:"detail"`
}

// TaskCreated is the part of the create response the service relies on.
// Both fields are optional.
type TaskCreated struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}
