package jobs

import (
	"fmt"
	"strings"
)

// Status is the pipeline stage of an application.
type Status string

const (
	StatusApplied      Status = "Applied"
	StatusInterviewing Status = "Interviewing"
	StatusOffer        Status = "Offer"
	StatusRejected     Status = "Rejected"
	StatusWithdrawn    Status = "Withdrawn"
)

// Statuses lists every status in pipeline order.
var Statuses = []Status{StatusApplied, StatusInterviewing, StatusOffer, StatusRejected, StatusWithdrawn}

// ParseStatus matches s case-insensitively. An empty string is Applied.
func ParseStatus(s string) (Status, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusApplied, nil
	}
	for _, st := range Statuses {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// JobApplication is one tracked application. Date is YYYY-MM-DD or empty.
type JobApplication struct {
	ID       int64  `json:"id"`
	Company  string `json:"company" validate:"required"`
	Role     string `json:"role" validate:"required"`
	Location string `json:"location"`
	Status   Status `json:"status" validate:"required,oneof=Applied Interviewing Offer Rejected Withdrawn"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes    string `json:"notes"`
}

func (a JobApplication) Key() int64 { return a.ID }

func (a JobApplication) WithKey(id int64) JobApplication {
	a.ID = id
	return a
}

// Fields is the raw form input for one application.
type Fields struct {
	Company  string
	Role     string
	Location string
	Status   string
	Date     string
	Notes    string
}

func (f Fields) trimmed() Fields {
	return Fields{
		Company:  strings.TrimSpace(f.Company),
		Role:     strings.TrimSpace(f.Role),
		Location: strings.TrimSpace(f.Location),
		Status:   strings.TrimSpace(f.Status),
		Date:     strings.TrimSpace(f.Date),
		Notes:    strings.TrimSpace(f.Notes),
	}
}

func fieldsOf(a JobApplication) Fields {
	return Fields{
		Company:  a.Company,
		Role:     a.Role,
		Location: a.Location,
		Status:   string(a.Status),
		Date:     a.Date,
		Notes:    a.Notes,
	}
}
