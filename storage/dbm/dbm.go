// Package dbm wraps tkrzw-go, the embedded ordered key-value engine spec.md
// treats as a black box: a durable sorted map of byte keys to byte values
// with atomic single-key writes and atomic multi-key write-batches.
package dbm

import (
	"bytes"
	"fmt"
	"iter"
	"os"
	"sync"

	"github.com/estraier/tkrzw-go"

	diskdb "github.com/transybao1393/diskdb-go"
)

// checkStatus converts a tkrzw status to an error. A not-found status
// becomes an error wrapping os.ErrNotExist, matching the storage façade's
// KeyNotFound contract; any other non-OK status is returned as-is.
func checkStatus(stat *tkrzw.Status, notFoundMsg string) error {
	if stat.GetCode() == tkrzw.StatusNotFoundError {
		return diskdb.WithStack(fmt.Errorf("%s: %w", notFoundMsg, os.ErrNotExist))
	}
	if !stat.IsOK() {
		return diskdb.WithStack(stat)
	}
	return nil
}

// Hash wraps a tkrzw database for key-value storage. All operations are
// thread-safe via an internal mutex — callers never need an outer lock, and
// must not add one (that would serialize every command, see spec §9).
type Hash struct {
	dbm   *tkrzw.DBM
	mutex sync.RWMutex
}

// Close closes the underlying database file.
func (h *Hash) Close() error {
	if stat := h.dbm.Close(); !stat.IsOK() {
		return diskdb.WithStack(stat)
	}
	return nil
}

// BEntry is a byte-level key-value pair used for iteration.
type BEntry struct {
	K string
	V []byte
}

// Each iterates over all entries in key order.
func (h *Hash) Each() iter.Seq2[BEntry, error] {
	return func(yield func(BEntry, error) bool) {
		h.mutex.RLock()
		defer h.mutex.RUnlock()
		it := h.dbm.MakeIterator()
		defer it.Destruct()
		it.First()
		for {
			key, value, status := it.Get()
			if status.GetCode() == tkrzw.StatusNotFoundError {
				break
			} else if !status.IsOK() {
				yield(BEntry{}, diskdb.WithStack(status))
				break
			}
			if !yield(BEntry{K: string(key), V: value}, nil) {
				break
			}
			it.Next()
		}
	}
}

// Has returns true if the key exists.
func (h *Hash) Has(k string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.dbm.Check(k)
}

// Get retrieves a value by key. Returns an error wrapping os.ErrNotExist if
// the key doesn't exist.
func (h *Hash) Get(k string) ([]byte, error) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	b, stat := h.dbm.Get(k)
	if err := checkStatus(stat, fmt.Sprintf("key %q", k)); err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores a key-value pair, overwriting any existing value.
func (h *Hash) Set(k string, v []byte) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if stat := h.dbm.Set(k, v, true); !stat.IsOK() {
		return diskdb.WithStack(stat)
	}
	return nil
}

// Del removes a key. Returns an error wrapping os.ErrNotExist if the key
// doesn't exist.
func (h *Hash) Del(k string) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return checkStatus(h.dbm.Remove(k), fmt.Sprintf("key %q", k))
}

// GetMulti retrieves multiple values. Missing keys are omitted from the
// result.
func (h *Hash) GetMulti(keys []string) map[string][]byte {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.dbm.GetMulti(keys)
}

// Proc is an atomic read-modify-write operation over one key, used with
// Hash.Proc for batched multi-key transactions.
type Proc interface {
	Key() string
	Proc(key string, value []byte) ([]byte, error)
}

// BProc is a byte-level Proc implementation: F receives the current value
// (nil if absent) and returns the new value, or nil to delete the key.
type BProc struct {
	K string
	F func(key string, value []byte) ([]byte, error)
}

func (p *BProc) Key() string { return p.K }

func (p *BProc) Proc(k string, v []byte) ([]byte, error) { return p.F(k, v) }

// Proc atomically reads values, applies transformations, then writes
// results, using tkrzw's ProcessMulti for transactional semantics — this is
// the primitive DeleteMany/batched writes rely on for spec §4.3's "single
// atomic write-batch" requirement.
func (h *Hash) Proc(pairs []Proc) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	outputs := make([][]byte, len(pairs))
	procs := make([]tkrzw.KeyProcPair, len(pairs)*2)
	var abort error

	for index, pair := range pairs {
		index := index
		pair := pair
		procs[index] = tkrzw.KeyProcPair{
			Key: pair.Key(),
			Proc: func(key []byte, value []byte) any {
				if abort != nil {
					return nil
				}
				b, err := pair.Proc(string(key), value)
				if err != nil {
					abort = err
					return nil
				}
				outputs[index] = b
				return nil
			},
		}
	}
	for index, pair := range pairs {
		index := index
		procs[index+len(pairs)] = tkrzw.KeyProcPair{
			Key: pair.Key(),
			Proc: func(key []byte, value []byte) any {
				if abort != nil {
					return nil
				}
				if outputs[index] == nil {
					return tkrzw.RemoveBytes
				} else if !bytes.Equal(value, outputs[index]) {
					return outputs[index]
				}
				return nil
			},
		}
	}
	if stat := h.dbm.ProcessMulti(procs, true); !stat.IsOK() {
		return diskdb.WithStack(stat)
	}
	return diskdb.WithStack(abort)
}

// Tree wraps a tkrzw B-tree for ordered key-value storage, the "ordered
// key-value engine" spec §1 requires.
type Tree struct {
	*Hash
}

// OpenHash opens or creates a hash database file (appends .tkh).
func OpenHash(path string) (*Hash, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkh", path), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"restore_mode":     "RESTORE_SYNC|RESTORE_NO_SHORTCUTS|RESTORE_WITH_HARDSYNC",
	})
	if !stat.IsOK() {
		return nil, diskdb.WithStack(stat)
	}
	return &Hash{dbm: dbm}, nil
}

// OpenTree opens or creates a B-tree database file (appends .tkt), ordered
// by lexicographic key comparison.
func OpenTree(path string) (*Tree, error) {
	dbm := tkrzw.NewDBM()
	stat := dbm.Open(fmt.Sprintf("%s.tkt", path), true, map[string]string{
		"update_mode":      "UPDATE_APPENDING",
		"record_comp_mode": "RECORD_COMP_NONE",
		"key_comparator":   "LexicalKeyComparator",
	})
	if !stat.IsOK() {
		return nil, diskdb.WithStack(stat)
	}
	return &Tree{&Hash{dbm: dbm}}, nil
}
