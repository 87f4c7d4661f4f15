package dbm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func withFile(t testing.TB, suffix string, f func(string)) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	f(filepath.Join(tmpDir, fmt.Sprintf("test%s", suffix)))
}

func withDB[T io.Closer](t testing.TB, suffix string, open func(string) (T, error), f func(T)) {
	t.Helper()
	withFile(t, suffix, func(path string) {
		db, err := open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				t.Fatal(err)
			}
		}()
		f(db)
	})
}

// WithHash opens a throwaway Hash database for the duration of f.
func WithHash(t testing.TB, f func(*Hash)) {
	t.Helper()
	withDB(t, ".tkh", OpenHash, f)
}

// WithTree opens a throwaway Tree database for the duration of f.
func WithTree(t testing.TB, f func(*Tree)) {
	t.Helper()
	withDB(t, ".tkt", OpenTree, f)
}
