package values

import (
	"github.com/pkg/errors"

	goccy "github.com/goccy/go-json"
)

// wireSortedSet/wireStream/wireJSON are the JSON-friendly shapes the
// variants with unexported state encode to; kept separate from the variant
// structs themselves so internal field names (e.g. SortedSet's unexported
// byMember) stay free to evolve. List, Set and Hash encode their exported
// field directly, and String is stored as its raw bytes.

type wireSortedSet struct {
	Members []ScoredMember `json:"members"`
}

type wireStream struct {
	Entries []StreamEntry `json:"entries"`
	LastMS  int64         `json:"last_ms"`
	LastSeq int64         `json:"last_seq"`
	Has     bool          `json:"has"`
}

type wireJSON struct {
	Text string `json:"text"`
	Set  bool   `json:"set"`
}

// Encode serializes v as a one-byte tag prefix followed by a JSON-encoded
// payload of its variant fields. This is an internal implementation detail;
// only the round-trip law (Decode(Encode(v)) == v) is a contract.
func Encode(v Value) ([]byte, error) {
	var payload []byte
	var err error

	switch t := v.(type) {
	case *String:
		payload = []byte(t.Bytes)
	case *List:
		payload, err = goccy.Marshal(t.Items)
	case *Set:
		payload, err = goccy.Marshal(t.Members)
	case *Hash:
		payload, err = goccy.Marshal(t.Fields)
	case *SortedSet:
		payload, err = goccy.Marshal(wireSortedSet{Members: t.ordered()})
	case *JSON:
		payload, err = goccy.Marshal(wireJSON{Text: t.Text, Set: t.set})
	case *Stream:
		payload, err = goccy.Marshal(wireStream{
			Entries: t.Entries,
			LastMS:  t.lastMS,
			LastSeq: t.lastSeq,
			Has:     t.has,
		})
	default:
		return nil, errors.Errorf("values: unknown variant %T", v)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	out := make([]byte, 1+len(payload))
	out[0] = byte(v.Tag())
	copy(out[1:], payload)
	return out, nil
}

// Decode is the inverse of Encode. Bytes that do not decode (empty input,
// an unknown tag, a malformed payload) yield an error; a decode failure
// surfaces as a Database error at the storage façade, per spec §7:
// corrupted bytes are never silently substituted.
func Decode(b []byte) (Value, error) {
	if len(b) < 1 {
		return nil, errors.New("values: empty encoding")
	}
	tag := Tag(b[0])
	payload := b[1:]

	switch tag {
	case TagString:
		return &String{Bytes: string(payload)}, nil
	case TagList:
		items := []string{}
		if err := goccy.Unmarshal(payload, &items); err != nil {
			return nil, errors.WithStack(err)
		}
		return &List{Items: items}, nil
	case TagSet:
		members := map[string]struct{}{}
		if err := goccy.Unmarshal(payload, &members); err != nil {
			return nil, errors.WithStack(err)
		}
		return &Set{Members: members}, nil
	case TagHash:
		fields := map[string]string{}
		if err := goccy.Unmarshal(payload, &fields); err != nil {
			return nil, errors.WithStack(err)
		}
		return &Hash{Fields: fields}, nil
	case TagSortedSet:
		var w wireSortedSet
		if err := goccy.Unmarshal(payload, &w); err != nil {
			return nil, errors.WithStack(err)
		}
		z := NewSortedSet()
		z.ZAdd(w.Members)
		return z, nil
	case TagJSON:
		var w wireJSON
		if err := goccy.Unmarshal(payload, &w); err != nil {
			return nil, errors.WithStack(err)
		}
		return &JSON{Text: w.Text, set: w.Set}, nil
	case TagStream:
		var w wireStream
		if err := goccy.Unmarshal(payload, &w); err != nil {
			return nil, errors.WithStack(err)
		}
		return &Stream{Entries: w.Entries, lastMS: w.LastMS, lastSeq: w.LastSeq, has: w.Has}, nil
	default:
		return nil, errors.Errorf("values: unknown tag %d", tag)
	}
}
