// Package storage implements the typed storage façade (C3): get/set/delete
// over the embedded engine, with type-checked accessors that create empty
// values on demand.
package storage

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	diskdb "github.com/transybao1393/diskdb-go"
	"github.com/transybao1393/diskdb-go/storage/dbm"
	"github.com/transybao1393/diskdb-go/values"
)

// Storage is stateless apart from its reference to the engine; it is
// trivially shareable across concurrent connection tasks — there is no
// outer mutex here, because that would serialize every command (see
// spec.md §9).
type Storage struct {
	engine *dbm.Tree
}

// New opens (or creates) the engine's on-disk files under dir.
func New(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, diskdb.WithStack(err)
	}
	tree, err := dbm.OpenTree(filepath.Join(dir, "keys"))
	if err != nil {
		return nil, diskdb.WithStack(err)
	}
	return &Storage{engine: tree}, nil
}

// Close releases the underlying engine handle.
func (s *Storage) Close() error {
	return s.engine.Close()
}

// Get returns the decoded value stored under k, or (nil, false) if absent.
func (s *Storage) Get(k string) (values.Value, bool, error) {
	b, err := s.engine.Get(k)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, diskdb.WithStack(err)
	}
	v, err := values.Decode(b)
	if err != nil {
		return nil, false, diskdb.WithStack(err)
	}
	return v, true, nil
}

// Set encodes and atomically persists v under k.
func (s *Storage) Set(k string, v values.Value) error {
	b, err := values.Encode(v)
	if err != nil {
		return diskdb.WithStack(err)
	}
	return diskdb.WithStack(s.engine.Set(k, b))
}

// Delete removes k, reporting whether it existed.
func (s *Storage) Delete(k string) (bool, error) {
	err := s.engine.Del(k)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, diskdb.WithStack(err)
	}
	return true, nil
}

// Exists reports whether k is present.
func (s *Storage) Exists(k string) bool {
	return s.engine.Has(k)
}

// TypeOf returns the variant stored under k, decoding only the tag byte —
// not the whole value — to keep TYPE cheap.
func (s *Storage) TypeOf(k string) (values.Tag, bool, error) {
	b, err := s.engine.Get(k)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, diskdb.WithStack(err)
	}
	if len(b) < 1 {
		return 0, false, diskdb.WithStack(errors.New("storage: corrupt empty value"))
	}
	return values.Tag(b[0]), true, nil
}

// DeleteMany deletes every key in keys as a single atomic write-batch (per
// spec §4.3), returning the count actually deleted.
func (s *Storage) DeleteMany(keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	deleted := make([]bool, len(keys))
	procs := make([]dbm.Proc, len(keys))
	for i, k := range keys {
		i := i
		procs[i] = &dbm.BProc{
			K: k,
			F: func(_ string, v []byte) ([]byte, error) {
				deleted[i] = v != nil
				return nil, nil
			},
		}
	}
	if err := s.engine.Proc(procs); err != nil {
		return 0, diskdb.WithStack(err)
	}
	count := 0
	for _, d := range deleted {
		if d {
			count++
		}
	}
	return count, nil
}

// ExistsCount returns how many of keys are present. Independent reads, as
// permitted by spec §4.4 (only delete requires the batch primitive).
func (s *Storage) ExistsCount(keys []string) int {
	count := 0
	for _, k := range keys {
		if s.engine.Has(k) {
			count++
		}
	}
	return count
}

// FlushAll removes every key, backing FLUSHDB.
func (s *Storage) FlushAll() error {
	var keys []string
	for entry, err := range s.engine.Each() {
		if err != nil {
			return diskdb.WithStack(err)
		}
		keys = append(keys, entry.K)
	}
	_, err := s.DeleteMany(keys)
	return err
}

// getOrCreate loads the value at k, type-checks it against want, and
// returns a freshly constructed empty value of that variant if k is absent.
func (s *Storage) getOrCreate(k string, want values.Tag, empty func() values.Value) (values.Value, error) {
	v, found, err := s.Get(k)
	if err != nil {
		return nil, err
	}
	if !found {
		return empty(), nil
	}
	if v.Tag() != want {
		return nil, values.ErrWrongType
	}
	return v, nil
}

func (s *Storage) GetOrCreateString(k string) (*values.String, error) {
	v, err := s.getOrCreate(k, values.TagString, func() values.Value { return values.NewString("") })
	if err != nil {
		return nil, err
	}
	return v.(*values.String), nil
}

func (s *Storage) GetOrCreateList(k string) (*values.List, error) {
	v, err := s.getOrCreate(k, values.TagList, func() values.Value { return values.NewList() })
	if err != nil {
		return nil, err
	}
	return v.(*values.List), nil
}

func (s *Storage) GetOrCreateSet(k string) (*values.Set, error) {
	v, err := s.getOrCreate(k, values.TagSet, func() values.Value { return values.NewSet() })
	if err != nil {
		return nil, err
	}
	return v.(*values.Set), nil
}

func (s *Storage) GetOrCreateHash(k string) (*values.Hash, error) {
	v, err := s.getOrCreate(k, values.TagHash, func() values.Value { return values.NewHash() })
	if err != nil {
		return nil, err
	}
	return v.(*values.Hash), nil
}

func (s *Storage) GetOrCreateSortedSet(k string) (*values.SortedSet, error) {
	v, err := s.getOrCreate(k, values.TagSortedSet, func() values.Value { return values.NewSortedSet() })
	if err != nil {
		return nil, err
	}
	return v.(*values.SortedSet), nil
}

func (s *Storage) GetOrCreateJSON(k string) (*values.JSON, error) {
	v, err := s.getOrCreate(k, values.TagJSON, func() values.Value { return values.NewJSON() })
	if err != nil {
		return nil, err
	}
	return v.(*values.JSON), nil
}

func (s *Storage) GetOrCreateStream(k string) (*values.Stream, error) {
	v, err := s.getOrCreate(k, values.TagStream, func() values.Value { return values.NewStream() })
	if err != nil {
		return nil, err
	}
	return v.(*values.Stream), nil
}
