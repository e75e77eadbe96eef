package library

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"recordbook/record"
	"recordbook/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

var issuedAt = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func newLedger(t *testing.T, opts Options) (*Ledger, *clock) {
	t.Helper()
	c := &clock{now: issuedAt}
	if opts.Now == nil {
		opts.Now = c.Now
	}
	opts.Logger = zaptest.NewLogger(t)
	l, err := NewLedger(opts)
	require.NoError(t, err)
	return l, c
}

func seed(t *testing.T, l *Ledger, copies int) (Book, Student) {
	t.Helper()
	b, err := l.AddBook("T", "A", copies)
	require.NoError(t, err)
	s, err := l.AddStudent("Ada", "CS")
	require.NoError(t, err)
	return b, s
}

func TestAddBookDefaultsCopies(t *testing.T) {
	l, _ := newLedger(t, Options{})

	for _, copies := range []int{0, -3} {
		b, err := l.AddBook("Dune", "Herbert", copies)
		require.NoError(t, err)
		assert.Equal(t, 1, b.Copies)
	}
	b, err := l.AddBook("SICP", "Abelson", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Copies)
	assert.Equal(t, int64(3), b.ID)
}

func TestAddRequiresTitleAndName(t *testing.T) {
	l, _ := newLedger(t, Options{})

	_, err := l.AddBook("  ", "Nobody", 1)
	require.True(t, errors.Is(err, record.ErrValidation))
	assert.EqualError(t, err, "Title is required")

	_, err = l.AddStudent("", "CS")
	require.True(t, errors.Is(err, record.ErrValidation))
	assert.EqualError(t, err, "Name is required")

	assert.Empty(t, l.Books())
	assert.Empty(t, l.Students())
}

func TestIssueBookUsesUpCopies(t *testing.T) {
	l, _ := newLedger(t, Options{})
	b, s := seed(t, l, 1)

	issue, err := l.IssueBook(b.ID, s.ID)
	require.NoError(t, err)
	assert.Equal(t, IssueOpen, issue.State())
	assert.Equal(t, "2024-03-01", issue.IssueDate.String())
	assert.Equal(t, "2024-03-15", issue.DueDate.String())
	assert.Zero(t, issue.Fine)

	book, _ := l.Book(b.ID)
	assert.Equal(t, 0, book.Copies)

	_, err = l.IssueBook(b.ID, s.ID)
	require.True(t, errors.Is(err, record.ErrValidation))
	assert.EqualError(t, err, "No copies available")
	assert.Len(t, l.Issues(), 1)
}

func TestIssueBookUnknownIDs(t *testing.T) {
	l, _ := newLedger(t, Options{})
	b, s := seed(t, l, 2)

	_, err := l.IssueBook(99, s.ID)
	assert.True(t, errors.Is(err, record.ErrNotFound))
	assert.EqualError(t, err, "book 99 not found")

	_, err = l.IssueBook(b.ID, 42)
	assert.True(t, errors.Is(err, record.ErrNotFound))
	assert.EqualError(t, err, "student 42 not found")

	book, _ := l.Book(b.ID)
	assert.Equal(t, 2, book.Copies)
	assert.Empty(t, l.Issues())
}

func TestReturnBookFine(t *testing.T) {
	due := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		at   time.Time
		fine int
	}{
		{name: "early", at: due.AddDate(0, 0, -4), fine: 0},
		{name: "on due date", at: due, fine: 0},
		{name: "late same day", at: due.Add(23 * time.Hour), fine: 0},
		{name: "one day", at: due.Add(24 * time.Hour), fine: 5},
		{name: "three days", at: due.AddDate(0, 0, 3), fine: 15},
		{name: "partial fourth day", at: due.AddDate(0, 0, 3).Add(20 * time.Hour), fine: 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, c := newLedger(t, Options{})
			b, s := seed(t, l, 1)
			issue, err := l.IssueBook(b.ID, s.ID)
			require.NoError(t, err)
			require.Equal(t, due, issue.DueDate.Time)

			c.now = tt.at
			returned, err := l.ReturnBook(issue.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.fine, returned.Fine)
			assert.Equal(t, IssueReturned, returned.State())
			assert.Equal(t, DateOf(tt.at), *returned.ReturnDate)

			book, _ := l.Book(b.ID)
			assert.Equal(t, 1, book.Copies)
		})
	}
}

func TestReturnBookTwice(t *testing.T) {
	l, c := newLedger(t, Options{})
	b, s := seed(t, l, 1)
	issue, _ := l.IssueBook(b.ID, s.ID)

	c.now = issuedAt.AddDate(0, 0, 15)
	first, err := l.ReturnBook(issue.ID)
	require.NoError(t, err)
	require.Equal(t, 5, first.Fine)

	c.now = c.now.AddDate(0, 0, 10)
	_, err = l.ReturnBook(issue.ID)
	require.True(t, errors.Is(err, record.ErrValidation))
	assert.EqualError(t, err, "Already returned")

	book, _ := l.Book(b.ID)
	assert.Equal(t, 1, book.Copies)
	stored, _ := l.Issue(issue.ID)
	assert.Equal(t, 5, stored.Fine)
	assert.Equal(t, first.ReturnDate, stored.ReturnDate)

	_, err = l.ReturnBook(77)
	assert.True(t, errors.Is(err, record.ErrNotFound))
}

func TestCustomLoanAndFine(t *testing.T) {
	l, c := newLedger(t, Options{LoanDays: 7, FinePerDay: 2})
	b, s := seed(t, l, 1)
	issue, _ := l.IssueBook(b.ID, s.ID)
	assert.Equal(t, "2024-03-08", issue.DueDate.String())

	c.now = issue.DueDate.AddDays(4).Time
	returned, err := l.ReturnBook(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, returned.Fine)
}

func TestNewLedgerRejectsNegativeFine(t *testing.T) {
	_, err := NewLedger(Options{FinePerDay: -1})
	assert.Error(t, err)
}

func TestEndToEnd(t *testing.T) {
	l, c := newLedger(t, Options{})

	book, err := l.AddBook("Algorithms", "CLRS", 2)
	require.NoError(t, err)
	ada, err := l.AddStudent("Ada", "CS")
	require.NoError(t, err)
	alan, err := l.AddStudent("Alan", "Math")
	require.NoError(t, err)

	first, err := l.IssueBook(book.ID, ada.ID)
	require.NoError(t, err)
	got, _ := l.Book(book.ID)
	assert.Equal(t, 1, got.Copies)

	second, err := l.IssueBook(book.ID, alan.ID)
	require.NoError(t, err)
	got, _ = l.Book(book.ID)
	assert.Equal(t, 0, got.Copies)

	c.now = first.DueDate.AddDays(2).Time.Add(time.Hour)
	returned, err := l.ReturnBook(first.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, returned.Fine)
	got, _ = l.Book(book.ID)
	assert.Equal(t, 1, got.Copies)

	open := l.OpenIssues()
	require.Len(t, open, 1)
	assert.Equal(t, second.ID, open[0].ID)
	assert.Len(t, l.StudentIssues(ada.ID), 1)
}

func TestOverdue(t *testing.T) {
	l, c := newLedger(t, Options{})
	b, s := seed(t, l, 3)
	late, _ := l.IssueBook(b.ID, s.ID)
	c.now = issuedAt.AddDate(0, 0, 10)
	_, _ = l.IssueBook(b.ID, s.ID)
	returned, _ := l.IssueBook(b.ID, s.ID)
	_, err := l.ReturnBook(returned.ID)
	require.NoError(t, err)

	c.now = late.DueDate.AddDays(3).Time
	overdue := l.Overdue()
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
	assert.Equal(t, 3, overdue[0].DaysLate)
	assert.Equal(t, 15, overdue[0].AccruedFine)

	stored, _ := l.Issue(late.ID)
	assert.Zero(t, stored.Fine, "open issues carry no fine until returned")
}

func TestSearchBooks(t *testing.T) {
	l, _ := newLedger(t, Options{})
	_, _ = l.AddBook("Algorithms", "Cormen", 1)
	_, _ = l.AddBook("The Go Programming Language", "Donovan", 1)
	_, _ = l.AddBook("Compilers", "Aho", 1)

	tests := []struct {
		query string
		want  []string
	}{
		{query: "programming", want: []string{"The Go Programming Language"}},
		{query: "AHO", want: []string{"Compilers"}},
		{query: "o", want: []string{"Algorithms", "The Go Programming Language", "Compilers"}},
		{query: "rust", want: nil},
		{query: "", want: []string{"Algorithms", "The Go Programming Language", "Compilers"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var got []string
			for _, b := range l.SearchBooks(tt.query) {
				got = append(got, b.Title)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoveWithOpenIssues(t *testing.T) {
	l, _ := newLedger(t, Options{})
	b, s := seed(t, l, 1)
	issue, _ := l.IssueBook(b.ID, s.ID)

	err := l.RemoveBook(b.ID)
	assert.True(t, errors.Is(err, record.ErrValidation))
	err = l.RemoveStudent(s.ID)
	assert.True(t, errors.Is(err, record.ErrValidation))

	_, err = l.ReturnBook(issue.ID)
	require.NoError(t, err)
	require.NoError(t, l.RemoveBook(b.ID))
	require.NoError(t, l.RemoveStudent(s.ID))

	assert.True(t, errors.Is(l.RemoveBook(b.ID), record.ErrNotFound))
	assert.True(t, errors.Is(l.RemoveStudent(s.ID), record.ErrNotFound))
	assert.Len(t, l.StudentIssues(s.ID), 1, "history is kept")
}

// switchable fails every Save while failing is set.
type switchable[T any] struct {
	failing bool
	saved   []T
}

func (p *switchable[T]) Load() ([]T, error) { return nil, nil }

func (p *switchable[T]) Save(records []T) error {
	if p.failing {
		return errors.New("disk full")
	}
	p.saved = records
	return nil
}

func TestIssueBookRollsBackCopies(t *testing.T) {
	books := &switchable[Book]{}
	issues := &switchable[Issue]{failing: true}
	l, _ := newLedger(t, Options{Books: books, Issues: issues})
	b, s := seed(t, l, 2)

	_, err := l.IssueBook(b.ID, s.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	book, _ := l.Book(b.ID)
	assert.Equal(t, 2, book.Copies)
	require.Len(t, books.saved, 1)
	assert.Equal(t, 2, books.saved[0].Copies, "persisted copies restored")
	assert.Empty(t, l.Issues())
}

func TestReturnBookRollsBackIssue(t *testing.T) {
	books := &switchable[Book]{}
	l, c := newLedger(t, Options{Books: books})
	b, s := seed(t, l, 1)
	issue, err := l.IssueBook(b.ID, s.ID)
	require.NoError(t, err)

	books.failing = true
	c.now = issue.DueDate.AddDays(2).Time
	_, err = l.ReturnBook(issue.ID)
	require.Error(t, err)

	stored, _ := l.Issue(issue.ID)
	assert.Equal(t, IssueOpen, stored.State())
	assert.Zero(t, stored.Fine)
	book, _ := l.Book(b.ID)
	assert.Equal(t, 0, book.Copies)

	books.failing = false
	returned, err := l.ReturnBook(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, returned.Fine)
}

func TestReturnAfterBookRemovedByReload(t *testing.T) {
	kv := storage.NewMemory()
	opts := Options{
		Books:    storage.NewBucket[Book](kv, BooksStore),
		Students: storage.NewBucket[Student](kv, StudentsStore),
		Issues:   storage.NewBucket[Issue](kv, IssuesStore),
	}
	l, _ := newLedger(t, opts)
	b, s := seed(t, l, 1)
	issue, _ := l.IssueBook(b.ID, s.ID)

	// Books cleared outside the ledger.
	require.NoError(t, kv.Put(BooksStore, []byte("[]")))
	reopened, _ := newLedger(t, opts)

	returned, err := reopened.ReturnBook(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, IssueReturned, returned.State())
	assert.Empty(t, reopened.Books())
}

func TestRemovedIDsNotReusedAfterReload(t *testing.T) {
	kv := storage.NewMemory()
	opts := Options{
		Books:    storage.NewBucket[Book](kv, BooksStore),
		Students: storage.NewBucket[Student](kv, StudentsStore),
		Issues:   storage.NewBucket[Issue](kv, IssuesStore),
	}
	l, _ := newLedger(t, opts)
	_, err := l.AddBook("Dune", "Herbert", 1)
	require.NoError(t, err)
	emma, err := l.AddBook("Emma", "Austen", 1)
	require.NoError(t, err)
	s, err := l.AddStudent("Ada", "CS")
	require.NoError(t, err)
	issue, err := l.IssueBook(emma.ID, s.ID)
	require.NoError(t, err)
	_, err = l.ReturnBook(issue.ID)
	require.NoError(t, err)
	require.NoError(t, l.RemoveBook(emma.ID))
	require.NoError(t, l.RemoveStudent(s.ID))

	reopened, _ := newLedger(t, opts)
	book, err := reopened.AddBook("Necronomicon", "Alhazred", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), book.ID)
	student, err := reopened.AddStudent("Alan", "Math")
	require.NoError(t, err)
	assert.Equal(t, int64(2), student.ID)

	history, ok := reopened.Issue(issue.ID)
	require.True(t, ok)
	_, ok = reopened.Book(history.BookID)
	assert.False(t, ok, "returned issue must not resolve to a new book")
	_, ok = reopened.Student(history.StudentID)
	assert.False(t, ok, "returned issue must not resolve to a new student")
}

func TestNewLedgerRejectsInvalidStoredRecords(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Put(BooksStore, []byte(`[{"id":1,"title":"Dune","copies":-1}]`)))

	_, err := NewLedger(Options{Books: storage.NewBucket[Book](kv, BooksStore)})
	require.ErrorContains(t, err, "load books: record 1: Copies must be at least 0")
	assert.True(t, errors.Is(err, record.ErrValidation))
}

func TestLedgerPersistsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	open := func() (*Ledger, *clock, *storage.Database) {
		db, err := storage.NewDatabase(path)
		require.NoError(t, err)
		l, c := newLedger(t, Options{
			Books:    storage.NewBucket[Book](db, BooksStore),
			Students: storage.NewBucket[Student](db, StudentsStore),
			Issues:   storage.NewBucket[Issue](db, IssuesStore),
		})
		return l, c, db
	}

	l, _, db := open()
	b, s := seed(t, l, 2)
	issue, err := l.IssueBook(b.ID, s.ID)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	l, c, db := open()
	defer db.Close()
	book, ok := l.Book(b.ID)
	require.True(t, ok)
	assert.Equal(t, 1, book.Copies)
	stored, ok := l.Issue(issue.ID)
	require.True(t, ok)
	assert.Equal(t, issue.DueDate, stored.DueDate)
	assert.Nil(t, stored.ReturnDate)

	c.now = stored.DueDate.AddDays(1).Time
	returned, err := l.ReturnBook(issue.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, returned.Fine)

	next, err := l.AddBook("Another", "Author", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID)
}

func TestConcurrentIssuesNeverOverdraw(t *testing.T) {
	l, _ := newLedger(t, Options{})
	b, err := l.AddBook("Popular", "Author", 3)
	require.NoError(t, err)
	var students []Student
	for i := 0; i < 10; i++ {
		s, err := l.AddStudent("Reader", "CS")
		require.NoError(t, err)
		students = append(students, s)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		issued int
	)
	for _, s := range students {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.IssueBook(b.ID, s.ID); err == nil {
				mu.Lock()
				issued++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, issued)
	book, _ := l.Book(b.ID)
	assert.Equal(t, 0, book.Copies)
	assert.Len(t, l.OpenIssues(), 3)
}

func TestDateJSON(t *testing.T) {
	var d Date
	require.NoError(t, d.UnmarshalJSON([]byte(`"2024-02-29"`)))
	assert.Equal(t, "2024-02-29", d.String())
	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-29"`, string(out))

	assert.Error(t, d.UnmarshalJSON([]byte(`"29/02/2024"`)))
	assert.Equal(t, DateOf(time.Date(2024, 2, 29, 23, 59, 0, 0, time.FixedZone("X", -5*3600))).String(), "2024-03-01")
}
