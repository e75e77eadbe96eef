package cli

import (
	"fmt"
	"io"
	"strings"

	"recordbook/library"

	"github.com/spf13/cobra"
)

func (a *app) libraryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Books, students and circulation",
	}
	cmd.AddCommand(
		a.addBookCommand(),
		a.addStudentCommand(),
		a.issueCommand(),
		a.returnCommand(),
		a.booksCommand(),
		a.studentsCommand(),
		a.issuesCommand(),
		a.overdueCommand(),
		a.removeCommand("remove-book", "Remove a book with no copies out", (*library.Ledger).RemoveBook, "book"),
		a.removeCommand("remove-student", "Remove a student with no books out", (*library.Ledger).RemoveStudent, "student"),
		a.searchBooksCommand(),
	)
	return cmd
}

// withLedger opens the ledger for a single command.
func (a *app) withLedger(fn func(l *library.Ledger, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		l, err := a.ledger()
		if err != nil {
			return err
		}
		return fn(l, args)
	}
}

func (a *app) addBookCommand() *cobra.Command {
	var (
		title, author string
		copies        int
	)
	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Add a title to the shelf",
		Args:  cobra.NoArgs,
		RunE: a.withLedger(func(l *library.Ledger, _ []string) error {
			b, err := l.AddBook(title, author, copies)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added book ID %d '%s' (%d copies)\n", b.ID, b.Title, b.Copies)
			return nil
		}),
	}
	cmd.Flags().StringVar(&title, "title", "", "book title")
	cmd.Flags().StringVar(&author, "author", "", "book author")
	cmd.Flags().IntVar(&copies, "copies", 1, "number of copies")
	return cmd
}

func (a *app) addStudentCommand() *cobra.Command {
	var name, branch string
	cmd := &cobra.Command{
		Use:   "add-student",
		Short: "Register a student",
		Args:  cobra.NoArgs,
		RunE: a.withLedger(func(l *library.Ledger, _ []string) error {
			s, err := l.AddStudent(name, branch)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added student '%s' with ID %d\n", s.Name, s.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "student name")
	cmd.Flags().StringVar(&branch, "branch", "", "branch of study")
	return cmd
}

func (a *app) issueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "issue <book-id> <student-id>",
		Short: "Lend a copy of a book to a student",
		Args:  cobra.ExactArgs(2),
		RunE: a.withLedger(func(l *library.Ledger, args []string) error {
			bookID, err := parseID(args[0])
			if err != nil {
				return err
			}
			studentID, err := parseID(args[1])
			if err != nil {
				return err
			}
			issue, err := l.IssueBook(bookID, studentID)
			if err != nil {
				return err
			}
			book, _ := l.Book(bookID)
			student, _ := l.Student(studentID)
			fmt.Fprintf(a.out, "Issue #%d: '%s' to %s, due %s\n", issue.ID, book.Title, student.Name, issue.DueDate)
			return nil
		}),
	}
}

func (a *app) returnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "return <issue-id>",
		Short: "Take a book back and settle its fine",
		Args:  cobra.ExactArgs(1),
		RunE: a.withLedger(func(l *library.Ledger, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			issue, err := l.ReturnBook(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Issue #%d returned on %s", issue.ID, issue.ReturnDate)
			if issue.Fine > 0 {
				fmt.Fprintf(a.out, ", fine %d", issue.Fine)
			}
			fmt.Fprintln(a.out)
			return nil
		}),
	}
}

func (a *app) booksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List books",
		Args:  cobra.NoArgs,
		RunE: a.withLedger(func(l *library.Ledger, _ []string) error {
			printBooks(a.out, l.Books(), "No books in library.")
			return nil
		}),
	}
}

func (a *app) searchBooksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find books by title or author",
		RunE: a.withLedger(func(l *library.Ledger, args []string) error {
			query := strings.Join(args, " ")
			printBooks(a.out, l.SearchBooks(query), fmt.Sprintf("No books found matching '%s'.", query))
			return nil
		}),
	}
}

func (a *app) studentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "students",
		Short: "List students",
		Args:  cobra.NoArgs,
		RunE: a.withLedger(func(l *library.Ledger, _ []string) error {
			students := l.Students()
			if len(students) == 0 {
				fmt.Fprintln(a.out, "No students registered.")
				return nil
			}
			t := newTable("ID", "Name", "Branch")
			for _, s := range students {
				t.add(s.ID, s.Name, s.Branch)
			}
			t.render(a.out)
			return nil
		}),
	}
}

func (a *app) issuesCommand() *cobra.Command {
	var (
		open    bool
		student int64
	)
	cmd := &cobra.Command{
		Use:   "issues",
		Short: "List issues",
		Args:  cobra.NoArgs,
		RunE: a.withLedger(func(l *library.Ledger, _ []string) error {
			var issues []library.Issue
			switch {
			case student > 0:
				issues = l.StudentIssues(student)
			case open:
				issues = l.OpenIssues()
			default:
				issues = l.Issues()
			}
			if student > 0 && open {
				kept := issues[:0]
				for _, i := range issues {
					if i.State() == library.IssueOpen {
						kept = append(kept, i)
					}
				}
				issues = kept
			}
			printIssues(a.out, l, issues)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&open, "open", false, "only issues not yet returned")
	cmd.Flags().Int64Var(&student, "student", 0, "only issues of this student id")
	return cmd
}

func (a *app) overdueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open issues past their due date with the fine owed so far",
		Args:  cobra.NoArgs,
		RunE: a.withLedger(func(l *library.Ledger, _ []string) error {
			overdue := l.Overdue()
			if len(overdue) == 0 {
				fmt.Fprintln(a.out, "Nothing overdue.")
				return nil
			}
			t := newTable("Issue", "Book", "Student", "Due", "Days late", "Fine")
			for _, o := range overdue {
				t.add(o.ID, bookTitle(l, o.BookID), studentName(l, o.StudentID), o.DueDate, o.DaysLate, o.AccruedFine)
			}
			t.render(a.out)
			return nil
		}),
	}
}

func (a *app) removeCommand(use, short string, remove func(*library.Ledger, int64) error, kind string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: a.withLedger(func(l *library.Ledger, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := remove(l, id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed %s %d\n", kind, id)
			return nil
		}),
	}
}

func printBooks(w io.Writer, books []library.Book, empty string) {
	if len(books) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	t := newTable("ID", "Title", "Author", "Copies")
	for _, b := range books {
		t.add(b.ID, b.Title, b.Author, b.Copies)
	}
	t.render(w)
}

func printIssues(w io.Writer, l *library.Ledger, issues []library.Issue) {
	if len(issues) == 0 {
		fmt.Fprintln(w, "No issues.")
		return
	}
	t := newTable("ID", "Book", "Student", "Issued", "Due", "Returned", "Fine", "State")
	for _, i := range issues {
		returned := ""
		if i.ReturnDate != nil {
			returned = i.ReturnDate.String()
		}
		t.add(i.ID, bookTitle(l, i.BookID), studentName(l, i.StudentID), i.IssueDate, i.DueDate, returned, i.Fine, i.State())
	}
	t.render(w)
}

func bookTitle(l *library.Ledger, id int64) string {
	if b, ok := l.Book(id); ok {
		return b.Title
	}
	return fmt.Sprintf("#%d (removed)", id)
}

func studentName(l *library.Ledger, id int64) string {
	if s, ok := l.Student(id); ok {
		return s.Name
	}
	return fmt.Sprintf("#%d (removed)", id)
}
