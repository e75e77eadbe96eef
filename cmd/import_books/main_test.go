package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recordbook/library"
	"recordbook/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sample = `title,author,copies
1984,George Orwell,3
"The Art of War",Sun Tzu,
,Nobody,2
Animal Farm,George Orwell,many
`

func TestImportBooks(t *testing.T) {
	l, err := library.NewLedger(library.Options{})
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := importBooks(l, strings.NewReader(sample), &out, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 3, res.imported)
	assert.Equal(t, 1, res.failed)
	assert.Contains(t, out.String(), "ERROR - Title is required")

	books := l.Books()
	require.Len(t, books, 3)
	assert.Equal(t, "1984", books[0].Title)
	assert.Equal(t, 3, books[0].Copies)
	assert.Equal(t, "The Art of War", books[1].Title)
	assert.Equal(t, 1, books[1].Copies)
	assert.Equal(t, 1, books[2].Copies)
}

func TestImportBooksRejectsBrokenCSV(t *testing.T) {
	l, err := library.NewLedger(library.Options{})
	require.NoError(t, err)

	_, err = importBooks(l, strings.NewReader("a,\"unterminated\n"), &bytes.Buffer{}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "read csv")
}

func TestCommandWritesDatabase(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	t.Setenv("RECORDBOOK_LOG_LEVEL", "error")
	csvPath := filepath.Join(dir, "books.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sample), 0o644))
	dbPath := filepath.Join(dir, "library.db")

	cmd := newCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--db", dbPath, csvPath})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Successfully imported: 3 books")

	db, err := storage.NewDatabase(dbPath)
	require.NoError(t, err)
	defer db.Close()
	l, err := library.NewLedger(library.Options{Books: storage.NewBucket[library.Book](db, library.BooksStore)})
	require.NoError(t, err)
	assert.Len(t, l.Books(), 3)
}
