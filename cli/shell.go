package cli

import (
	"bufio"
	"fmt"
	"strings"

	"recordbook/jobs"

	"github.com/spf13/cobra"
)

func (a *app) jobsShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive application form that keeps edit mode between commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := a.tracker()
			if err != nil {
				return err
			}
			a.runShell(bufio.NewScanner(a.in), tr)
			return nil
		},
	}
}

func (a *app) shellHelp() {
	fmt.Fprintln(a.out, "Available commands:")
	fmt.Fprintln(a.out, "  add            fill in the form; saves a new application or the one being edited")
	fmt.Fprintln(a.out, "  edit <id>      load an application into the form")
	fmt.Fprintln(a.out, "  cancel         leave edit mode")
	fmt.Fprintln(a.out, "  delete <id>    remove an application")
	fmt.Fprintln(a.out, "  list           show all applications")
	fmt.Fprintln(a.out, "  search <text>  filter by company or role")
	fmt.Fprintln(a.out, "  summary        counts per status")
	fmt.Fprintln(a.out, "  exit")
}

func (a *app) runShell(sc *bufio.Scanner, tr *jobs.Tracker) {
	a.shellHelp()
	for {
		if id, editing := tr.Editing(); editing {
			fmt.Fprintf(a.out, "\n[editing #%d] > ", id)
		} else {
			fmt.Fprint(a.out, "\n> ")
		}
		if !sc.Scan() {
			fmt.Fprintln(a.out)
			return
		}
		cmd, arg, _ := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(cmd) {
		case "":
		case "add", "submit":
			a.handleSubmit(sc, tr)
		case "edit":
			a.handleEdit(tr, arg)
		case "cancel":
			tr.CancelEdit()
			fmt.Fprintln(a.out, "Edit cancelled.")
		case "delete":
			a.handleDelete(tr, arg)
		case "list":
			printApplications(a.out, tr.List(), "No applications yet.")
		case "search":
			printApplications(a.out, tr.Search(arg), fmt.Sprintf("No applications matching '%s'.", arg))
		case "summary":
			printStatusSummary(a.out, tr.CountByStatus())
		case "help":
			a.shellHelp()
		case "exit", "quit":
			fmt.Fprintln(a.out, "Goodbye!")
			return
		default:
			fmt.Fprintln(a.out, "Unknown command. Type 'help' to see the available commands.")
		}
	}
}

// handleSubmit prompts for every field. While editing, the current value
// is offered and an empty answer keeps it.
func (a *app) handleSubmit(sc *bufio.Scanner, tr *jobs.Tracker) {
	var current jobs.Fields
	if id, editing := tr.Editing(); editing {
		if ja, ok := tr.Find(id); ok {
			current = jobs.Fields{
				Company:  ja.Company,
				Role:     ja.Role,
				Location: ja.Location,
				Status:   string(ja.Status),
				Date:     ja.Date,
				Notes:    ja.Notes,
			}
		}
	}

	var f jobs.Fields
	for _, field := range []struct {
		label string
		dst   *string
		def   string
	}{
		{"Company", &f.Company, current.Company},
		{"Role", &f.Role, current.Role},
		{"Location", &f.Location, current.Location},
		{"Status", &f.Status, current.Status},
		{"Date (YYYY-MM-DD)", &f.Date, current.Date},
		{"Notes", &f.Notes, current.Notes},
	} {
		v, ok := a.prompt(sc, field.label, field.def)
		if !ok {
			return
		}
		*field.dst = v
	}

	_, wasEditing := tr.Editing()
	saved, err := tr.Submit(f)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if wasEditing {
		fmt.Fprintf(a.out, "Updated application #%d\n", saved.ID)
	} else {
		fmt.Fprintf(a.out, "Added application #%d\n", saved.ID)
	}
}

func (a *app) prompt(sc *bufio.Scanner, label, def string) (string, bool) {
	if def != "" {
		fmt.Fprintf(a.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(a.out, "%s: ", label)
	}
	if !sc.Scan() {
		return "", false
	}
	v := strings.TrimSpace(sc.Text())
	if v == "" {
		v = def
	}
	return v, true
}

func (a *app) handleEdit(tr *jobs.Tracker, arg string) {
	id, err := parseID(arg)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	f, err := tr.BeginEdit(id)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Editing #%d: %s, %s (%s). Type 'add' to change it or 'cancel'.\n", id, f.Company, f.Role, f.Status)
}

func (a *app) handleDelete(tr *jobs.Tracker, arg string) {
	id, err := parseID(arg)
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	if err := tr.Remove(id); err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Deleted application #%d\n", id)
}
