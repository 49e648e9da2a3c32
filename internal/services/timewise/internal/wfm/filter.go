package wfm

import (
	"fmt"
	"strings"
)

// Workflow tags used by the attendance flow.
const (
	WorkflowEmployee   = "EMPLOYEE"
	WorkflowAttendance = "EMPLOYEE_CICO"
	TypeTask           = "TASK"
)

// Eq builds an equality filter, e.g. `company = ACME`.
func Eq(field string, v any) string {
	return fmt.Sprintf("%s = %v", field, v)
}

// In builds a membership filter with double quoted values, e.g. `status IN [ "WORKING" ]`.
func In(field string, vs ...string) string {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = fmt.Sprintf("%q", v)
	}

	return fmt.Sprintf("%s IN [ %s ]", field, strings.Join(quoted, ", "))
}

// Desc sorts by field in descending order.
func Desc(field string) string {
	return field + ":desc"
}
