package cli

import (
	"fmt"
	"io"
	"strings"

	"recordbook/jobs"

	"github.com/spf13/cobra"
)

func (a *app) jobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Track job applications",
	}
	cmd.AddCommand(
		a.jobsAddCommand(),
		a.jobsUpdateCommand(),
		a.jobsDeleteCommand(),
		a.jobsListCommand(),
		a.jobsSearchCommand(),
		a.jobsShellCommand(),
	)
	return cmd
}

func bindFields(cmd *cobra.Command, f *jobs.Fields) {
	flags := cmd.Flags()
	flags.StringVar(&f.Company, "company", "", "company name")
	flags.StringVar(&f.Role, "role", "", "role applied for")
	flags.StringVar(&f.Location, "location", "", "location")
	flags.StringVar(&f.Status, "status", "", "Applied, Interviewing, Offer, Rejected or Withdrawn")
	flags.StringVar(&f.Date, "date", "", "application date, YYYY-MM-DD")
	flags.StringVar(&f.Notes, "notes", "", "free-form notes")
}

func (a *app) jobsAddCommand() *cobra.Command {
	var f jobs.Fields
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := a.tracker()
			if err != nil {
				return err
			}
			created, err := tr.Submit(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added application #%d (%s, %s)\n", created.ID, created.Company, created.Role)
			return nil
		},
	}
	bindFields(cmd, &f)
	return cmd
}

// update edits through the tracker's edit mode: only flags that were given
// replace the stored values.
func (a *app) jobsUpdateCommand() *cobra.Command {
	var f jobs.Fields
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			tr, err := a.tracker()
			if err != nil {
				return err
			}
			current, err := tr.BeginEdit(id)
			if err != nil {
				return err
			}
			changed := cmd.Flags().Changed
			if changed("company") {
				current.Company = f.Company
			}
			if changed("role") {
				current.Role = f.Role
			}
			if changed("location") {
				current.Location = f.Location
			}
			if changed("status") {
				current.Status = f.Status
			}
			if changed("date") {
				current.Date = f.Date
			}
			if changed("notes") {
				current.Notes = f.Notes
			}
			updated, err := tr.Submit(current)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated application #%d\n", updated.ID)
			return nil
		},
	}
	bindFields(cmd, &f)
	return cmd
}

func (a *app) jobsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Remove an application",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			tr, err := a.tracker()
			if err != nil {
				return err
			}
			if err := tr.Remove(id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted application #%d\n", id)
			return nil
		},
	}
}

func (a *app) jobsListCommand() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List applications, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := a.tracker()
			if err != nil {
				return err
			}
			if summary {
				printStatusSummary(a.out, tr.CountByStatus())
				return nil
			}
			printApplications(a.out, tr.List(), "No applications yet.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "show counts per status instead")
	return cmd
}

func (a *app) jobsSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Find applications by company or role",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := a.tracker()
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			printApplications(a.out, tr.Search(query), fmt.Sprintf("No applications matching '%s'.", query))
			return nil
		},
	}
}

func printApplications(w io.Writer, apps []jobs.JobApplication, empty string) {
	if len(apps) == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	t := newTable("ID", "Company", "Role", "Location", "Status", "Date", "Notes")
	for _, ja := range apps {
		t.add(ja.ID, ja.Company, ja.Role, ja.Location, ja.Status, ja.Date, ja.Notes)
	}
	t.render(w)
}

func printStatusSummary(w io.Writer, counts map[jobs.Status]int) {
	t := newTable("Status", "Count")
	for _, st := range jobs.Statuses {
		t.add(st, counts[st])
	}
	t.render(w)
}
