package library

import (
	"encoding/json"
	"fmt"
	"time"
)

// Book is a title on the shelf and how many copies are currently available.
type Book struct {
	ID     int64  `json:"id"`
	Title  string `json:"title" validate:"required"`
	Author string `json:"author"`
	Copies int    `json:"copies" validate:"min=0"`
}

func (b Book) Key() int64 { return b.ID }

func (b Book) WithKey(id int64) Book {
	b.ID = id
	return b
}

// Student is a registered borrower.
type Student struct {
	ID     int64  `json:"id"`
	Name   string `json:"name" validate:"required"`
	Branch string `json:"branch"`
}

func (s Student) Key() int64 { return s.ID }

func (s Student) WithKey(id int64) Student {
	s.ID = id
	return s
}

// IssueState is OPEN until the book comes back, then RETURNED for good.
type IssueState string

const (
	IssueOpen     IssueState = "OPEN"
	IssueReturned IssueState = "RETURNED"
)

// Issue records one book lent to one student. Fine stays 0 while the issue
// is open and is fixed at return time.
type Issue struct {
	ID         int64 `json:"id"`
	BookID     int64 `json:"book_id" validate:"required"`
	StudentID  int64 `json:"student_id" validate:"required"`
	IssueDate  Date  `json:"issue_date"`
	DueDate    Date  `json:"due_date"`
	ReturnDate *Date `json:"return_date"`
	Fine       int   `json:"fine" validate:"min=0"`
}

func (i Issue) Key() int64 { return i.ID }

func (i Issue) WithKey(id int64) Issue {
	i.ID = id
	return i
}

// State reports whether the issue is still open.
func (i Issue) State() IssueState {
	if i.ReturnDate == nil {
		return IssueOpen
	}
	return IssueReturned
}

// OverdueIssue is an open issue past its due date together with the fine
// a return right now would incur.
type OverdueIssue struct {
	Issue
	DaysLate    int `json:"days_late"`
	AccruedFine int `json:"accrued_fine"`
}

// Date is a calendar day stored as UTC midnight and serialised as YYYY-MM-DD.
type Date struct {
	time.Time
}

// DateOf returns the UTC calendar day containing t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

func (d Date) String() string { return d.Format(time.DateOnly) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
