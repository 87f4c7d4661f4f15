// Package values implements the seven typed values DiskDB stores under each
// key, their in-place mutators, and the opaque byte encoding used to persist
// them through the storage façade.
package values

import (
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Tag identifies which of the seven variants a Value is.
type Tag byte

const (
	TagString Tag = iota + 1
	TagList
	TagSet
	TagHash
	TagSortedSet
	TagJSON
	TagStream
)

func (t Tag) String() string {
	switch t {
	case TagString:
		return "string"
	case TagList:
		return "list"
	case TagSet:
		return "set"
	case TagHash:
		return "hash"
	case TagSortedSet:
		return "zset"
	case TagJSON:
		return "json"
	case TagStream:
		return "stream"
	default:
		return "none"
	}
}

// Value is implemented by every concrete variant. Tag identifies the
// variant for type-checking and wire TYPE responses; Empty reports whether
// the executor should delete the key (cleanup-on-empty rule).
type Value interface {
	Tag() Tag
	Empty() bool
}

// ErrWrongType is returned when a command targets a variant other than the
// one stored under the key.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// ErrNotInteger is returned when a String op requires the stored bytes to
// parse as a signed 64-bit decimal integer and they don't.
var ErrNotInteger = errors.New("value is not an integer or out of range")

// ErrNotImplemented is returned for JSON paths other than "$"/".".
var ErrNotImplemented = errors.New("not implemented")

// ErrStreamIDBackward is returned by Stream.XAdd under the STREAM_ID_BACKWARD
// policy when a caller-supplied ID is not greater than the last emitted one.
var ErrStreamIDBackward = errors.New("STREAM_ID_BACKWARD")

// clampRange normalizes Redis-style start/stop indices (negative counts from
// the tail, stop inclusive) against a collection of length n. Returns
// lo==hi==0, ok=false when the resulting range is empty.
func clampRange(start, stop, n int) (lo, hi int, ok bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n || stop < 0 {
		return 0, 0, false
	}
	return start, stop, true
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return n, nil
}

// --- String ---

type String struct {
	Bytes string
}

func NewString(s string) *String { return &String{Bytes: s} }

func (*String) Tag() Tag       { return TagString }
func (s *String) Empty() bool  { return false }

// Incr parses the current bytes as a decimal i64, adds delta, stores the
// textual form, and returns the new value.
func (s *String) Incr(delta int64) (int64, error) {
	var cur int64
	if s.Bytes != "" {
		v, err := parseInt(s.Bytes)
		if err != nil {
			return 0, err
		}
		cur = v
	}
	next := cur + delta
	s.Bytes = strconv.FormatInt(next, 10)
	return next, nil
}

// Append concatenates suffix onto the stored bytes and returns the new
// length.
func (s *String) Append(suffix string) int {
	s.Bytes += suffix
	return len(s.Bytes)
}

// --- List ---

type List struct {
	Items []string
}

func NewList() *List { return &List{} }

func (*List) Tag() Tag      { return TagList }
func (l *List) Empty() bool { return len(l.Items) == 0 }

// LPush inserts each value at the head in argument order, so the LAST
// argument ends up at index 0.
func (l *List) LPush(values ...string) int {
	for _, v := range values {
		l.Items = append([]string{v}, l.Items...)
	}
	return len(l.Items)
}

func (l *List) RPush(values ...string) int {
	l.Items = append(l.Items, values...)
	return len(l.Items)
}

func (l *List) LPop() (string, bool) {
	if len(l.Items) == 0 {
		return "", false
	}
	v := l.Items[0]
	l.Items = l.Items[1:]
	return v, true
}

func (l *List) RPop() (string, bool) {
	if len(l.Items) == 0 {
		return "", false
	}
	v := l.Items[len(l.Items)-1]
	l.Items = l.Items[:len(l.Items)-1]
	return v, true
}

// LRange returns the inclusive [start, stop] slice, Redis-style negative
// indices allowed; out-of-range always yields a possibly-empty slice, never
// an error.
func (l *List) LRange(start, stop int) []string {
	lo, hi, ok := clampRange(start, stop, len(l.Items))
	if !ok {
		return []string{}
	}
	out := make([]string, hi-lo+1)
	copy(out, l.Items[lo:hi+1])
	return out
}

func (l *List) LLen() int { return len(l.Items) }

// --- Set ---

type Set struct {
	Members map[string]struct{}
}

func NewSet() *Set { return &Set{Members: map[string]struct{}{}} }

func (*Set) Tag() Tag      { return TagSet }
func (s *Set) Empty() bool { return len(s.Members) == 0 }

// SAdd returns the number of newly added members.
func (s *Set) SAdd(members ...string) int {
	added := 0
	for _, m := range members {
		if _, found := s.Members[m]; !found {
			s.Members[m] = struct{}{}
			added++
		}
	}
	return added
}

// SRem returns the number of members actually removed.
func (s *Set) SRem(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, found := s.Members[m]; found {
			delete(s.Members, m)
			removed++
		}
	}
	return removed
}

func (s *Set) SIsMember(m string) bool {
	_, found := s.Members[m]
	return found
}

func (s *Set) SMembers() []string {
	out := make([]string, 0, len(s.Members))
	for m := range s.Members {
		out = append(out, m)
	}
	return out
}

func (s *Set) SCard() int { return len(s.Members) }

// --- Hash ---

type Hash struct {
	Fields map[string]string
}

func NewHash() *Hash { return &Hash{Fields: map[string]string{}} }

func (*Hash) Tag() Tag      { return TagHash }
func (h *Hash) Empty() bool { return len(h.Fields) == 0 }

// HSet returns true iff field was newly created.
func (h *Hash) HSet(field, value string) bool {
	_, existed := h.Fields[field]
	h.Fields[field] = value
	return !existed
}

func (h *Hash) HGet(field string) (string, bool) {
	v, found := h.Fields[field]
	return v, found
}

// HDel returns the number of fields actually removed.
func (h *Hash) HDel(fields ...string) int {
	removed := 0
	for _, f := range fields {
		if _, found := h.Fields[f]; found {
			delete(h.Fields, f)
			removed++
		}
	}
	return removed
}

func (h *Hash) HGetAll() map[string]string {
	out := make(map[string]string, len(h.Fields))
	for k, v := range h.Fields {
		out[k] = v
	}
	return out
}

func (h *Hash) HExists(field string) bool {
	_, found := h.Fields[field]
	return found
}

// --- SortedSet ---

// ScoredMember is one (member, score) pair within a SortedSet.
type ScoredMember struct {
	Member string
	Score  float64
}

type SortedSet struct {
	byMember map[string]float64
}

func NewSortedSet() *SortedSet { return &SortedSet{byMember: map[string]float64{}} }

func (*SortedSet) Tag() Tag      { return TagSortedSet }
func (z *SortedSet) Empty() bool { return len(z.byMember) == 0 }

// ZAdd sets each (member, score) pair, returning the count of newly added
// members (score updates on existing members are not counted).
func (z *SortedSet) ZAdd(pairs []ScoredMember) int {
	added := 0
	for _, p := range pairs {
		if _, found := z.byMember[p.Member]; !found {
			added++
		}
		z.byMember[p.Member] = p.Score
	}
	return added
}

func (z *SortedSet) ZRem(members ...string) int {
	removed := 0
	for _, m := range members {
		if _, found := z.byMember[m]; found {
			delete(z.byMember, m)
			removed++
		}
	}
	return removed
}

func (z *SortedSet) ZScore(member string) (float64, bool) {
	s, found := z.byMember[member]
	return s, found
}

func (z *SortedSet) ZCard() int { return len(z.byMember) }

// ordered returns members sorted by score ascending, ties broken by member
// lexicographic order.
func (z *SortedSet) ordered() []ScoredMember {
	out := make([]ScoredMember, 0, len(z.byMember))
	for m, s := range z.byMember {
		out = append(out, ScoredMember{Member: m, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// ZRange returns the inclusive [start, stop] slice of the score-ascending,
// member-lexicographic order. Indices behave like List.LRange.
func (z *SortedSet) ZRange(start, stop int) []ScoredMember {
	all := z.ordered()
	lo, hi, ok := clampRange(start, stop, len(all))
	if !ok {
		return []ScoredMember{}
	}
	out := make([]ScoredMember, hi-lo+1)
	copy(out, all[lo:hi+1])
	return out
}

// --- JSON ---

// JSON stores a whole-document JSON value as its text, per spec's note that
// the stored bytes are textual form. The text is stored and returned as
// given; Set and Get do not parse or validate it.
type JSON struct {
	Text string
	set  bool
}

func NewJSON() *JSON { return &JSON{} }

func (*JSON) Tag() Tag      { return TagJSON }
func (j *JSON) Empty() bool { return false }

func normalizeJSONPath(path string) error {
	if path != "$" && path != "." {
		return ErrNotImplemented
	}
	return nil
}

func (j *JSON) Set(path, text string) error {
	if err := normalizeJSONPath(path); err != nil {
		return err
	}
	j.Text = text
	j.set = true
	return nil
}

func (j *JSON) Get(path string) (string, bool, error) {
	if err := normalizeJSONPath(path); err != nil {
		return "", false, err
	}
	return j.Text, j.set, nil
}

// Del accepts only the whole-document paths "$"/"." and leaves the value
// unchanged; the executor deletes the whole key afterwards.
func (j *JSON) Del(path string) error {
	return normalizeJSONPath(path)
}

// --- Stream ---

// StreamEntry is one appended record.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

type Stream struct {
	Entries []StreamEntry
	lastMS  int64
	lastSeq int64
	has     bool
}

func NewStream() *Stream { return &Stream{} }

func (*Stream) Tag() Tag      { return TagStream }
func (s *Stream) Empty() bool { return len(s.Entries) == 0 }

// XAdd appends an entry and returns its ID. The current time in milliseconds
// is passed in by the caller (the executor) as nowMS, so Stream stays
// deterministic and dependency-free.
func (s *Stream) XAdd(id string, nowMS int64, fields map[string]string) (string, error) {
	ms, seq, err := s.nextID(id, nowMS)
	if err != nil {
		return "", err
	}
	genID := formatStreamID(ms, seq)
	s.Entries = append(s.Entries, StreamEntry{ID: genID, Fields: fields})
	s.lastMS, s.lastSeq, s.has = ms, seq, true
	return genID, nil
}

func (s *Stream) nextID(id string, nowMS int64) (int64, int64, error) {
	if id == "" || id == "*" {
		ms, seq := nowMS, int64(0)
		if s.has && ms <= s.lastMS {
			// Clock regression / same-millisecond burst: advance ms to the
			// predecessor and bump seq (policy (a), see DESIGN.md).
			ms = s.lastMS
			seq = s.lastSeq + 1
		}
		return ms, seq, nil
	}
	ms, seq, err := parseStreamID(id)
	if err != nil {
		return 0, 0, err
	}
	if s.has && (ms < s.lastMS || (ms == s.lastMS && seq <= s.lastSeq)) {
		return 0, 0, ErrStreamIDBackward
	}
	return ms, seq, nil
}

func (s *Stream) XLen() int { return len(s.Entries) }

// XRange filters by lexicographic string comparison on the ID — this is the
// faithfully-preserved source behavior (see DESIGN.md Open Question #1): it
// gives the wrong order across ms-digit-width boundaries (e.g. "9-0" sorts
// after "10-0").
func (s *Stream) XRange(start, end string, count int) []StreamEntry {
	out := make([]StreamEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if (start == "-" || e.ID >= start) && (end == "+" || e.ID <= end) {
			out = append(out, e)
			if count > 0 && len(out) >= count {
				break
			}
		}
	}
	return out
}

func formatStreamID(ms, seq int64) string {
	return strconv.FormatInt(ms, 10) + "-" + strconv.FormatInt(seq, 10)
}

func parseStreamID(id string) (int64, int64, error) {
	for i := 0; i < len(id); i++ {
		if id[i] == '-' {
			ms, err := strconv.ParseInt(id[:i], 10, 64)
			if err != nil {
				return 0, 0, errors.Wrap(ErrNotInteger, "stream id ms")
			}
			seq, err := strconv.ParseInt(id[i+1:], 10, 64)
			if err != nil {
				return 0, 0, errors.Wrap(ErrNotInteger, "stream id seq")
			}
			return ms, seq, nil
		}
	}
	ms, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, 0, errors.Wrap(ErrNotInteger, "stream id")
	}
	return ms, 0, nil
}
