// Command import_books loads a CSV of title,author,copies rows into the
// library ledger of the configured SQLite database.
package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"recordbook/config"
	"recordbook/library"
	"recordbook/logging"
	"recordbook/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var cfgPath, dbPath string
	cmd := &cobra.Command{
		Use:           "import_books <file.csv>",
		Short:         "Bulk-add books from a title,author,copies CSV",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Storage.Path = dbPath
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			db, err := storage.NewDatabase(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			ledger, err := library.NewLedger(library.Options{
				Books:      storage.NewBucket[library.Book](db, library.BooksStore),
				Students:   storage.NewBucket[library.Student](db, library.StudentsStore),
				Issues:     storage.NewBucket[library.Issue](db, library.IssuesStore),
				LoanDays:   cfg.Library.LoanDays,
				FinePerDay: cfg.Library.FinePerDay,
				Logger:     logger.Named("library"),
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Importing books from %s into %s...\n", args[0], cfg.Storage.Path)
			res, err := importBooks(ledger, f, cmd.OutOrStdout(), logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nImport complete!\nSuccessfully imported: %d books\nErrors: %d\n", res.imported, res.failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file (default recordbook.yaml)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path, overrides storage.path")
	return cmd
}

type result struct {
	imported int
	failed   int
}

// importBooks adds one book per CSV row. A header row starting with
// "title" is skipped; a missing or unparsable copies column means one
// copy. Bad rows are reported and counted, not fatal.
func importBooks(l *library.Ledger, r io.Reader, out io.Writer, logger *zap.Logger) (result, error) {
	var res result
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "title") {
			continue
		}

		title := field(row, 0)
		author := field(row, 1)
		copies, convErr := strconv.Atoi(field(row, 2))
		if convErr != nil {
			copies = 1
		}

		fmt.Fprintf(out, "Importing: %s by %s... ", title, author)
		b, err := l.AddBook(title, author, copies)
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			logger.Warn("row skipped", zap.Int("line", line), zap.Error(err))
			res.failed++
			continue
		}
		fmt.Fprintf(out, "SUCCESS (ID: %d)\n", b.ID)
		res.imported++
	}
}

func field(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}
