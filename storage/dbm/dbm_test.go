package dbm

import (
	"os"
	"testing"

	"github.com/bxcodec/faker/v4"
	"github.com/google/go-cmp/cmp"
)

func TestHashGetSetDel(t *testing.T) {
	WithHash(t, func(h *Hash) {
		if _, err := h.Get("missing"); !os.IsNotExist(err) {
			t.Fatalf("got %v, want os.ErrNotExist", err)
		}
		if err := h.Set("k", []byte("v")); err != nil {
			t.Fatal(err)
		}
		got, err := h.Get("k")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "v" {
			t.Fatalf("got %q", got)
		}
		if !h.Has("k") {
			t.Fatal("expected Has to report true")
		}
		if err := h.Del("k"); err != nil {
			t.Fatal(err)
		}
		if h.Has("k") {
			t.Fatal("expected key gone")
		}
		if err := h.Del("k"); !os.IsNotExist(err) {
			t.Fatalf("got %v, want os.ErrNotExist", err)
		}
	})
}

func TestHashGetMulti(t *testing.T) {
	WithHash(t, func(h *Hash) {
		var want string
		if err := faker.FakeData(&want); err != nil {
			t.Fatal(err)
		}
		if err := h.Set("a", []byte(want)); err != nil {
			t.Fatal(err)
		}
		if err := h.Set("b", []byte("b-value")); err != nil {
			t.Fatal(err)
		}
		got := h.GetMulti([]string{"a", "b", "missing"})
		if len(got) != 2 {
			t.Fatalf("got %d entries: %+v", len(got), got)
		}
		if string(got["a"]) != want {
			t.Fatalf("got %q, want %q", got["a"], want)
		}
	})
}

func TestTreeOrdering(t *testing.T) {
	WithTree(t, func(tr *Tree) {
		for _, k := range []string{"c", "a", "b"} {
			if err := tr.Set(k, []byte(k)); err != nil {
				t.Fatal(err)
			}
		}
		var keys []string
		for entry, err := range tr.Each() {
			if err != nil {
				t.Fatal(err)
			}
			keys = append(keys, entry.K)
		}
		if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestHashProcAtomicBatch(t *testing.T) {
	WithHash(t, func(h *Hash) {
		if err := h.Set("a", []byte("1")); err != nil {
			t.Fatal(err)
		}
		if err := h.Set("b", []byte("2")); err != nil {
			t.Fatal(err)
		}
		err := h.Proc([]Proc{
			&BProc{K: "a", F: func(string, []byte) ([]byte, error) { return nil, nil }},
			&BProc{K: "b", F: func(string, []byte) ([]byte, error) { return nil, nil }},
		})
		if err != nil {
			t.Fatal(err)
		}
		if h.Has("a") || h.Has("b") {
			t.Fatal("expected both keys deleted by the batch")
		}
	})
}

func TestHashProcAbortsOnError(t *testing.T) {
	WithHash(t, func(h *Hash) {
		if err := h.Set("a", []byte("1")); err != nil {
			t.Fatal(err)
		}
		wantErr := os.ErrInvalid
		err := h.Proc([]Proc{
			&BProc{K: "a", F: func(string, []byte) ([]byte, error) { return []byte("2"), nil }},
			&BProc{K: "missing-doesnt-matter", F: func(string, []byte) ([]byte, error) { return nil, wantErr }},
		})
		if err == nil {
			t.Fatal("expected error")
		}
		got, gerr := h.Get("a")
		if gerr != nil {
			t.Fatal(gerr)
		}
		if string(got) != "1" {
			t.Fatalf("got %q, want unchanged %q (proc should not partially apply)", got, "1")
		}
	})
}
