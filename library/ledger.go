// Package library keeps the circulation ledger of a small library: books
// with copy counts, registered students, and the issues that lend one to the
// other.
package library

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"recordbook/record"

	"go.uber.org/zap"
)

// Persistence keys of the three ledger stores.
const (
	BooksStore    = "books"
	StudentsStore = "students"
	IssuesStore   = "issues"
)

const (
	DefaultLoanDays   = 14
	DefaultFinePerDay = 5
)

const day = 24 * time.Hour

// Options configures a Ledger. Zero values fall back to the defaults above,
// the wall clock and a no-op logger.
type Options struct {
	Books    record.Persister[Book]
	Students record.Persister[Student]
	Issues   record.Persister[Issue]

	LoanDays   int
	FinePerDay int
	Now        func() time.Time
	Logger     *zap.Logger
}

// Ledger wraps the book, student and issue stores and keeps them consistent
// with each other. Every operation runs under one ledger lock, so no caller
// observes an issue half applied.
type Ledger struct {
	mu       sync.RWMutex
	books    *record.Store[Book]
	students *record.Store[Student]
	issues   *record.Store[Issue]

	loanDays   int
	finePerDay int
	now        func() time.Time
	logger     *zap.Logger
}

// NewLedger opens the three stores, loading them from their persisters.
func NewLedger(opts Options) (*Ledger, error) {
	l := &Ledger{
		loanDays:   opts.LoanDays,
		finePerDay: opts.FinePerDay,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if l.loanDays <= 0 {
		l.loanDays = DefaultLoanDays
	}
	if l.finePerDay < 0 {
		return nil, fmt.Errorf("fine per day must not be negative, got %d", l.finePerDay)
	}
	if l.finePerDay == 0 {
		l.finePerDay = DefaultFinePerDay
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}

	var err error
	l.books, err = record.NewStore[Book](BooksStore, record.Options[Book]{
		Kind: "book", Persister: opts.Books, Logger: l.logger,
	})
	if err != nil {
		return nil, err
	}
	l.students, err = record.NewStore[Student](StudentsStore, record.Options[Student]{
		Kind: "student", Persister: opts.Students, Logger: l.logger,
	})
	if err != nil {
		return nil, err
	}
	l.issues, err = record.NewStore[Issue](IssuesStore, record.Options[Issue]{
		Kind: "issue", Persister: opts.Issues, Logger: l.logger,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ------------------ Books & students ------------------

// AddBook shelves a new title. A non-positive copy count means one copy.
func (l *Ledger) AddBook(title, author string, copies int) (Book, error) {
	if copies <= 0 {
		copies = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books.Create(Book{
		Title:  strings.TrimSpace(title),
		Author: strings.TrimSpace(author),
		Copies: copies,
	})
}

// AddStudent registers a borrower.
func (l *Ledger) AddStudent(name, branch string) (Student, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.students.Create(Student{
		Name:   strings.TrimSpace(name),
		Branch: strings.TrimSpace(branch),
	})
}

// RemoveBook deletes a book nobody currently holds.
func (l *Ledger) RemoveBook(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.books.Find(id); !ok {
		return record.NotFound("book", id)
	}
	if n := l.countOpen(func(i Issue) bool { return i.BookID == id }); n > 0 {
		return record.Invalid("Book", fmt.Sprintf("Book has %d open issue(s)", n))
	}
	return l.books.Delete(id)
}

// RemoveStudent deletes a student with no books out. Returned issues keep
// their student id as history.
func (l *Ledger) RemoveStudent(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.students.Find(id); !ok {
		return record.NotFound("student", id)
	}
	if n := l.countOpen(func(i Issue) bool { return i.StudentID == id }); n > 0 {
		return record.Invalid("Student", fmt.Sprintf("Student has %d open issue(s)", n))
	}
	return l.students.Delete(id)
}

// ------------------ Circulation ------------------

// IssueBook lends one copy of a book to a student. The copy decrement and
// the new issue are applied together or not at all.
func (l *Ledger) IssueBook(bookID, studentID int64) (Issue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	book, ok := l.books.Find(bookID)
	if !ok {
		return Issue{}, record.NotFound("book", bookID)
	}
	if _, ok := l.students.Find(studentID); !ok {
		return Issue{}, record.NotFound("student", studentID)
	}
	if book.Copies <= 0 {
		return Issue{}, record.Invalid("Copies", "No copies available")
	}

	taken := book
	taken.Copies--
	if _, err := l.books.Update(book.ID, taken); err != nil {
		return Issue{}, err
	}

	today := DateOf(l.now())
	issue, err := l.issues.Create(Issue{
		BookID:    bookID,
		StudentID: studentID,
		IssueDate: today,
		DueDate:   today.AddDays(l.loanDays),
	})
	if err != nil {
		return Issue{}, l.revertBook(book, err)
	}
	l.logger.Info("book issued",
		zap.Int64("issue", issue.ID),
		zap.Int64("book", bookID),
		zap.Int64("student", studentID),
		zap.Stringer("due", issue.DueDate))
	return issue, nil
}

// ReturnBook closes an open issue, fixing its fine, and puts the copy back
// on the shelf if the book still exists.
func (l *Ledger) ReturnBook(issueID int64) (Issue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	issue, ok := l.issues.Find(issueID)
	if !ok {
		return Issue{}, record.NotFound("issue", issueID)
	}
	if issue.State() == IssueReturned {
		return Issue{}, record.Invalid("ReturnDate", "Already returned")
	}

	now := l.now()
	returned := issue
	today := DateOf(now)
	returned.ReturnDate = &today
	returned.Fine = l.fineAt(issue.DueDate, now)

	returned, err := l.issues.Update(issueID, returned)
	if err != nil {
		return Issue{}, err
	}

	book, ok := l.books.Find(issue.BookID)
	if !ok {
		l.logger.Warn("returned issue references a removed book",
			zap.Int64("issue", issueID), zap.Int64("book", issue.BookID))
		return returned, nil
	}
	shelved := book
	shelved.Copies++
	if _, err := l.books.Update(book.ID, shelved); err != nil {
		if _, rerr := l.issues.Update(issueID, issue); rerr != nil {
			l.logger.Error("rollback of return failed", zap.Int64("issue", issueID), zap.Error(rerr))
			return Issue{}, errors.Join(err, fmt.Errorf("rollback issue %d: %w", issueID, rerr))
		}
		l.logger.Warn("return rolled back", zap.Int64("issue", issueID), zap.Error(err))
		return Issue{}, err
	}
	l.logger.Info("book returned",
		zap.Int64("issue", issueID),
		zap.Int64("book", issue.BookID),
		zap.Int("fine", returned.Fine))
	return returned, nil
}

// revertBook restores book after a failed issue creation and returns cause,
// joined with the rollback failure if there was one.
func (l *Ledger) revertBook(book Book, cause error) error {
	if _, err := l.books.Update(book.ID, book); err != nil {
		l.logger.Error("rollback of issue failed", zap.Int64("book", book.ID), zap.Error(err))
		return errors.Join(cause, fmt.Errorf("rollback book %d: %w", book.ID, err))
	}
	l.logger.Warn("issue rolled back", zap.Int64("book", book.ID), zap.Error(cause))
	return cause
}

// daysLate counts whole days elapsed since due, never negative.
func daysLate(due Date, now time.Time) int {
	late := int(now.Sub(due.Time) / day)
	return max(late, 0)
}

func (l *Ledger) fineAt(due Date, now time.Time) int {
	return daysLate(due, now) * l.finePerDay
}

func (l *Ledger) countOpen(match func(Issue) bool) int {
	n := 0
	for _, i := range l.issues.List() {
		if i.State() == IssueOpen && match(i) {
			n++
		}
	}
	return n
}

// ------------------ Lookups ------------------

func (l *Ledger) Book(id int64) (Book, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.books.Find(id)
}

func (l *Ledger) Student(id int64) (Student, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.students.Find(id)
}

func (l *Ledger) Issue(id int64) (Issue, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issues.Find(id)
}

func (l *Ledger) Books() []Book {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.books.List()
}

func (l *Ledger) Students() []Student {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.students.List()
}

func (l *Ledger) Issues() []Issue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issues.List()
}

// SearchBooks matches query case-insensitively against title and author.
// An empty query returns every book.
func (l *Ledger) SearchBooks(query string) []Book {
	l.mu.RLock()
	defer l.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return l.books.List()
	}
	return l.books.Search(func(b Book) bool {
		return strings.Contains(strings.ToLower(b.Title+" "+b.Author), q)
	})
}

// OpenIssues returns the issues still out, oldest first.
func (l *Ledger) OpenIssues() []Issue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issues.Search(func(i Issue) bool { return i.State() == IssueOpen })
}

// StudentIssues returns every issue, open or returned, made to a student.
func (l *Ledger) StudentIssues(studentID int64) []Issue {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.issues.Search(func(i Issue) bool { return i.StudentID == studentID })
}

// Overdue returns open issues at least one whole day past due, with the
// fine a return right now would be charged.
func (l *Ledger) Overdue() []OverdueIssue {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	out := []OverdueIssue{}
	for _, i := range l.issues.List() {
		if i.State() != IssueOpen {
			continue
		}
		late := daysLate(i.DueDate, now)
		if late == 0 {
			continue
		}
		out = append(out, OverdueIssue{Issue: i, DaysLate: late, AccruedFine: late * l.finePerDay})
	}
	return out
}
