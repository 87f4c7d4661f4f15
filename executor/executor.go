// Package executor implements the command executor (C4): the only path
// that mutates persistent state. It dispatches a parsed protocol.Command to
// the storage façade and the value model, and renders the typed response.
package executor

import (
	"strconv"
	"strings"
	"time"

	diskdb "github.com/transybao1393/diskdb-go"
	"github.com/transybao1393/diskdb-go/protocol"
	"github.com/transybao1393/diskdb-go/storage"
	"github.com/transybao1393/diskdb-go/values"
)

// Executor holds a storage façade reference and exposes Execute. Per
// spec.md §5, no per-key locking is performed by default: two concurrent
// mutations of the same key can interleave their load/store halves. Pass
// WithKeyLocks to opt into per-key serialization.
type Executor struct {
	storage  *storage.Storage
	keyLocks *diskdb.SyncMap[string, bool]
}

// Option configures an Executor.
type Option func(*Executor)

// WithKeyLocks enables per-key serialization of the read-modify-write cycle
// (spec.md §9 Open Question #3), via a lock-by-key map keyed on the
// command's target key. Unlike a single global mutex, keys are serialized
// independently of each other.
func WithKeyLocks() Option {
	return func(e *Executor) {
		e.keyLocks = diskdb.NewSyncMap[string, bool]()
	}
}

// New builds an Executor over s.
func New(s *storage.Storage, opts ...Option) *Executor {
	e := &Executor{storage: s}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one command end to end and returns its wire response. It
// never panics on a domain error — all storage/value errors are translated
// to protocol.Err responses; only a structural bug would escape as a panic.
func (e *Executor) Execute(cmd *protocol.Command) protocol.Response {
	if e.keyLocks != nil {
		if key := lockKey(cmd); key != "" {
			e.keyLocks.Lock(key)
			defer e.keyLocks.Unlock(key)
		}
	}

	switch cmd.Name {
	case "PING":
		if len(cmd.Args) == 1 {
			return protocol.Bulk{Value: cmd.Args[0]}
		}
		return protocol.Bulk{Value: "PONG"}
	case "ECHO":
		return protocol.Bulk{Value: cmd.Args[0]}
	case "FLUSHDB":
		return e.flushdb()
	case "INFO":
		return e.info()
	case "TYPE":
		return e.typeOf(cmd.Args[0])
	case "DEL":
		return e.del(cmd.Args)
	case "EXISTS":
		return e.exists(cmd.Args)

	case "GET":
		return e.get(cmd.Args[0])
	case "SET":
		return e.set(cmd.Args[0], cmd.Args[1])
	case "INCR":
		return e.incrBy(cmd.Args[0], 1)
	case "DECR":
		return e.incrBy(cmd.Args[0], -1)
	case "INCRBY":
		return e.incrByArg(cmd.Args[0], cmd.Args[1], 1)
	case "DECRBY":
		return e.incrByArg(cmd.Args[0], cmd.Args[1], -1)
	case "APPEND":
		return e.appendString(cmd.Args[0], cmd.Args[1])

	case "LPUSH":
		return e.push(cmd.Args[0], cmd.Args[1:], true)
	case "RPUSH":
		return e.push(cmd.Args[0], cmd.Args[1:], false)
	case "LPOP":
		return e.pop(cmd.Args[0], true)
	case "RPOP":
		return e.pop(cmd.Args[0], false)
	case "LRANGE":
		return e.lrange(cmd.Args[0], cmd.Args[1], cmd.Args[2])
	case "LLEN":
		return e.llen(cmd.Args[0])

	case "SADD":
		return e.sadd(cmd.Args[0], cmd.Args[1:])
	case "SREM":
		return e.srem(cmd.Args[0], cmd.Args[1:])
	case "SMEMBERS":
		return e.smembers(cmd.Args[0])
	case "SISMEMBER":
		return e.sismember(cmd.Args[0], cmd.Args[1])
	case "SCARD":
		return e.scard(cmd.Args[0])

	case "HSET":
		return e.hset(cmd.Args[0], cmd.Args[1], cmd.Args[2])
	case "HGET":
		return e.hget(cmd.Args[0], cmd.Args[1])
	case "HDEL":
		return e.hdel(cmd.Args[0], cmd.Args[1:])
	case "HGETALL":
		return e.hgetall(cmd.Args[0])
	case "HEXISTS":
		return e.hexists(cmd.Args[0], cmd.Args[1])

	case "ZADD":
		return e.zadd(cmd.Args[0], cmd.Args[1:])
	case "ZREM":
		return e.zrem(cmd.Args[0], cmd.Args[1:])
	case "ZRANGE":
		return e.zrange(cmd.Args)
	case "ZSCORE":
		return e.zscore(cmd.Args[0], cmd.Args[1])
	case "ZCARD":
		return e.zcard(cmd.Args[0])

	case "JSON.SET":
		return e.jsonSet(cmd.Args[0], cmd.Args[1], cmd.Args[2])
	case "JSON.GET":
		return e.jsonGet(cmd.Args[0], cmd.Args[1])
	case "JSON.DEL":
		return e.jsonDel(cmd.Args[0], cmd.Args[1])

	case "XADD":
		return e.xadd(cmd.Args[0], cmd.Args[1], cmd.Args[2:])
	case "XRANGE":
		return e.xrange(cmd.Args)
	case "XLEN":
		return e.xlen(cmd.Args[0])
	}

	return protocol.Err{Message: "unknown command " + cmd.Name}
}

// lockKey returns the storage key a command targets, or "" if it targets
// none (control commands) or more than one (DEL/EXISTS skip per-key locking:
// DEL uses the engine's own atomic batch primitive, EXISTS only reads).
func lockKey(cmd *protocol.Command) string {
	switch cmd.Name {
	case "PING", "ECHO", "FLUSHDB", "INFO", "DEL", "EXISTS":
		return ""
	default:
		if len(cmd.Args) == 0 {
			return ""
		}
		return cmd.Args[0]
	}
}

func wrongType(err error) (protocol.Response, bool) {
	if err == values.ErrWrongType {
		return protocol.Err{Message: err.Error()}, true
	}
	if err == values.ErrNotInteger {
		return protocol.Err{Message: err.Error()}, true
	}
	if err == values.ErrNotImplemented {
		return protocol.Err{Message: err.Error()}, true
	}
	return nil, false
}

func (e *Executor) dbErr(err error) protocol.Response {
	return protocol.Err{Message: "Database: " + err.Error()}
}

func (e *Executor) flushdb() protocol.Response {
	if err := e.storage.FlushAll(); err != nil {
		return e.dbErr(err)
	}
	return protocol.OK{}
}

func (e *Executor) info() protocol.Response {
	return protocol.Bulk{Value: "diskdb_version:1\r\nrole:standalone"}
}

func (e *Executor) typeOf(key string) protocol.Response {
	tag, found, err := e.storage.TypeOf(key)
	if err != nil {
		return e.dbErr(err)
	}
	if !found {
		return protocol.Bulk{Value: "none"}
	}
	return protocol.Bulk{Value: tag.String()}
}

func (e *Executor) del(keys []string) protocol.Response {
	n, err := e.storage.DeleteMany(keys)
	if err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) exists(keys []string) protocol.Response {
	return protocol.Int{Value: int64(e.storage.ExistsCount(keys))}
}

func (e *Executor) get(key string) protocol.Response {
	v, found, err := e.storage.Get(key)
	if err != nil {
		return e.dbErr(err)
	}
	if !found {
		return protocol.Nil{}
	}
	s, ok := v.(*values.String)
	if !ok {
		return protocol.Err{Message: values.ErrWrongType.Error()}
	}
	return protocol.Bulk{Value: s.Bytes}
}

func (e *Executor) set(key, value string) protocol.Response {
	if err := e.storage.Set(key, values.NewString(value)); err != nil {
		return e.dbErr(err)
	}
	return protocol.OK{}
}

func (e *Executor) incrBy(key string, delta int64) protocol.Response {
	s, err := e.storage.GetOrCreateString(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	n, err := s.Incr(delta)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	if err := e.storage.Set(key, s); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: n}
}

func (e *Executor) incrByArg(key, arg string, sign int64) protocol.Response {
	delta, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return protocol.Err{Message: "value is not an integer or out of range"}
	}
	return e.incrBy(key, sign*delta)
}

func (e *Executor) appendString(key, suffix string) protocol.Response {
	s, err := e.storage.GetOrCreateString(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	n := s.Append(suffix)
	if err := e.storage.Set(key, s); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) push(key string, vals []string, head bool) protocol.Response {
	l, err := e.storage.GetOrCreateList(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	var n int
	if head {
		n = l.LPush(vals...)
	} else {
		n = l.RPush(vals...)
	}
	if err := e.storage.Set(key, l); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) pop(key string, head bool) protocol.Response {
	l, err := e.storage.GetOrCreateList(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	var v string
	var ok bool
	if head {
		v, ok = l.LPop()
	} else {
		v, ok = l.RPop()
	}
	if !ok {
		return protocol.Nil{}
	}
	if err := e.cleanupOrSet(key, l); err != nil {
		return e.dbErr(err)
	}
	return protocol.Bulk{Value: v}
}

func (e *Executor) lrange(key, startArg, stopArg string) protocol.Response {
	start, _ := strconv.Atoi(startArg)
	stop, _ := strconv.Atoi(stopArg)
	l, err := e.storage.GetOrCreateList(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	return protocol.Array{Values: l.LRange(start, stop)}
}

func (e *Executor) llen(key string) protocol.Response {
	l, err := e.storage.GetOrCreateList(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(l.LLen())}
}

func (e *Executor) sadd(key string, members []string) protocol.Response {
	s, err := e.storage.GetOrCreateSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	n := s.SAdd(members...)
	if err := e.storage.Set(key, s); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) srem(key string, members []string) protocol.Response {
	s, err := e.storage.GetOrCreateSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	n := s.SRem(members...)
	if err := e.cleanupOrSet(key, s); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) smembers(key string) protocol.Response {
	s, err := e.storage.GetOrCreateSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	return protocol.Array{Values: s.SMembers()}
}

func (e *Executor) sismember(key, member string) protocol.Response {
	s, err := e.storage.GetOrCreateSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	if s.SIsMember(member) {
		return protocol.Int{Value: 1}
	}
	return protocol.Int{Value: 0}
}

func (e *Executor) scard(key string) protocol.Response {
	s, err := e.storage.GetOrCreateSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(s.SCard())}
}

func (e *Executor) hset(key, field, value string) protocol.Response {
	h, err := e.storage.GetOrCreateHash(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	created := h.HSet(field, value)
	if err := e.storage.Set(key, h); err != nil {
		return e.dbErr(err)
	}
	if created {
		return protocol.Int{Value: 1}
	}
	return protocol.Int{Value: 0}
}

func (e *Executor) hget(key, field string) protocol.Response {
	h, err := e.storage.GetOrCreateHash(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	v, found := h.HGet(field)
	if !found {
		return protocol.Nil{}
	}
	return protocol.Bulk{Value: v}
}

func (e *Executor) hdel(key string, fields []string) protocol.Response {
	h, err := e.storage.GetOrCreateHash(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	n := h.HDel(fields...)
	if err := e.cleanupOrSet(key, h); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) hgetall(key string) protocol.Response {
	h, err := e.storage.GetOrCreateHash(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	fields := h.HGetAll()
	out := make([]string, 0, len(fields)*2)
	for f, v := range fields {
		out = append(out, f, v)
	}
	return protocol.Array{Values: out}
}

func (e *Executor) hexists(key, field string) protocol.Response {
	h, err := e.storage.GetOrCreateHash(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	if h.HExists(field) {
		return protocol.Int{Value: 1}
	}
	return protocol.Int{Value: 0}
}

func (e *Executor) zadd(key string, tail []string) protocol.Response {
	pairs := make([]values.ScoredMember, 0, len(tail)/2)
	for i := 0; i < len(tail); i += 2 {
		score, err := strconv.ParseFloat(tail[i], 64)
		if err != nil {
			return protocol.Err{Message: "value is not a valid float"}
		}
		pairs = append(pairs, values.ScoredMember{Score: score, Member: tail[i+1]})
	}
	z, err := e.storage.GetOrCreateSortedSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	n := z.ZAdd(pairs)
	if err := e.storage.Set(key, z); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) zrem(key string, members []string) protocol.Response {
	z, err := e.storage.GetOrCreateSortedSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	n := z.ZRem(members...)
	if err := e.cleanupOrSet(key, z); err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(n)}
}

func (e *Executor) zrange(args []string) protocol.Response {
	key := args[0]
	start, _ := strconv.Atoi(args[1])
	stop, _ := strconv.Atoi(args[2])
	withScores := len(args) == 4 && strings.EqualFold(args[3], "WITHSCORES")

	z, err := e.storage.GetOrCreateSortedSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	members := z.ZRange(start, stop)
	out := make([]string, 0, len(members)*2)
	for _, m := range members {
		out = append(out, m.Member)
		if withScores {
			out = append(out, strconv.FormatFloat(m.Score, 'g', -1, 64))
		}
	}
	return protocol.Array{Values: out}
}

func (e *Executor) zscore(key, member string) protocol.Response {
	z, err := e.storage.GetOrCreateSortedSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	score, found := z.ZScore(member)
	if !found {
		return protocol.Nil{}
	}
	return protocol.Bulk{Value: strconv.FormatFloat(score, 'g', -1, 64)}
}

func (e *Executor) zcard(key string) protocol.Response {
	z, err := e.storage.GetOrCreateSortedSet(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(z.ZCard())}
}

func (e *Executor) jsonSet(key, path, doc string) protocol.Response {
	j, err := e.storage.GetOrCreateJSON(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	if err := j.Set(path, doc); err != nil {
		if r, ok := wrongType(err); ok {
			return r
		}
		return e.dbErr(err)
	}
	if err := e.storage.Set(key, j); err != nil {
		return e.dbErr(err)
	}
	return protocol.OK{}
}

func (e *Executor) jsonGet(key, path string) protocol.Response {
	j, err := e.storage.GetOrCreateJSON(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	text, found, err := j.Get(path)
	if err != nil {
		if r, ok := wrongType(err); ok {
			return r
		}
		return e.dbErr(err)
	}
	if !found {
		return protocol.Nil{}
	}
	return protocol.Bulk{Value: text}
}

func (e *Executor) jsonDel(key, path string) protocol.Response {
	j, err := e.storage.GetOrCreateJSON(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	if err := j.Del(path); err != nil {
		if r, ok := wrongType(err); ok {
			return r
		}
		return e.dbErr(err)
	}
	existed, err := e.storage.Delete(key)
	if err != nil {
		return e.dbErr(err)
	}
	if existed {
		return protocol.Int{Value: 1}
	}
	return protocol.Int{Value: 0}
}

func (e *Executor) xadd(key, id string, tail []string) protocol.Response {
	fields := make(map[string]string, len(tail)/2)
	for i := 0; i < len(tail); i += 2 {
		fields[tail[i]] = tail[i+1]
	}
	s, err := e.storage.GetOrCreateStream(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	nowMS := time.Now().UnixMilli()
	genID, err := s.XAdd(id, nowMS, fields)
	if err != nil {
		if err == values.ErrStreamIDBackward {
			return protocol.Err{Message: err.Error()}
		}
		return e.dbErr(err)
	}
	if err := e.storage.Set(key, s); err != nil {
		return e.dbErr(err)
	}
	return protocol.Bulk{Value: genID}
}

func (e *Executor) xrange(args []string) protocol.Response {
	key, start, end := args[0], args[1], args[2]
	count := 0
	if len(args) == 4 {
		count, _ = strconv.Atoi(args[3])
	}
	s, err := e.storage.GetOrCreateStream(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	entries := s.XRange(start, end, count)
	out := make([]string, 0, len(entries)*2)
	for _, en := range entries {
		out = append(out, en.ID)
		for f, v := range en.Fields {
			out = append(out, f, v)
		}
	}
	return protocol.Array{Values: out}
}

func (e *Executor) xlen(key string) protocol.Response {
	s, err := e.storage.GetOrCreateStream(key)
	if r, ok := wrongType(err); ok {
		return r
	} else if err != nil {
		return e.dbErr(err)
	}
	return protocol.Int{Value: int64(s.XLen())}
}

// cleanupOrSet implements the cleanup-on-empty rule: a collection that
// became empty is deleted rather than persisted, so EXISTS reflects
// emptiness (spec.md invariant #9).
func (e *Executor) cleanupOrSet(key string, v values.Value) error {
	if v.Empty() {
		_, err := e.storage.Delete(key)
		return err
	}
	return e.storage.Set(key, v)
}
