// Package cli is the command-line front end: cobra commands for the job
// tracker and the library ledger plus an interactive jobs shell.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"recordbook/config"
	"recordbook/jobs"
	"recordbook/library"
	"recordbook/logging"
	"recordbook/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what every command needs once the root pre-run has loaded
// configuration and opened storage.
type app struct {
	in  io.Reader
	out io.Writer

	cfgPath  string
	dbPath   string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
	kv     storage.KV
	db     *storage.Database
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	root, a := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	err := root.Execute()
	if cerr := a.teardown(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newRootCommand builds the recordbook command tree reading from in and
// writing command output to out. The caller runs a.teardown afterwards,
// whether or not the command failed.
func newRootCommand(in io.Reader, out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{in: in, out: out}

	root := &cobra.Command{
		Use:           "recordbook",
		Short:         "Track job applications and a small library's circulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file (default recordbook.yaml)")
	flags.StringVar(&a.dbPath, "db", "", "SQLite database path, overrides storage.path")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(a.jobsCommand(), a.libraryCommand(), a.storageCommand())
	return root, a
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Storage.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		a.kv = storage.NewMemory()
	default:
		db, err := storage.NewDatabase(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.db, a.kv = db, db
	}
	a.logger.Debug("storage ready", zap.String("driver", cfg.Storage.Driver), zap.String("path", cfg.Storage.Path))
	return nil
}

// teardown closes storage and flushes the logger. It is safe to call more
// than once or before setup.
func (a *app) teardown() error {
	var err error
	if a.db != nil {
		err = a.db.Close()
		a.db = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func (a *app) tracker() (*jobs.Tracker, error) {
	return jobs.NewTracker(jobs.Options{
		Persister: storage.NewBucket[jobs.JobApplication](a.kv, jobs.StoreName),
		Logger:    a.logger.Named("jobs"),
	})
}

func (a *app) ledger() (*library.Ledger, error) {
	return library.NewLedger(library.Options{
		Books:      storage.NewBucket[library.Book](a.kv, library.BooksStore),
		Students:   storage.NewBucket[library.Student](a.kv, library.StudentsStore),
		Issues:     storage.NewBucket[library.Issue](a.kv, library.IssuesStore),
		LoanDays:   a.cfg.Library.LoanDays,
		FinePerDay: a.cfg.Library.FinePerDay,
		Logger:     a.logger.Named("library"),
	})
}

func (a *app) storageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Inspect the SQLite state buckets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "buckets",
		Short: "List stored buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.db == nil {
				return errors.New("storage commands need the sqlite driver")
			}
			names, err := a.db.Buckets()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(a.out, n)
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "clear <bucket>",
		Short: "Delete one bucket; its store starts empty with ids from 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.db == nil {
				return errors.New("storage commands need the sqlite driver")
			}
			if err := a.db.Clear(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Cleared %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
