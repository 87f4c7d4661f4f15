// Package protocol implements the DiskDB line protocol: parsing request
// lines into a typed Command and rendering typed Responses back to text.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrProtocol marks a request line that failed to parse: unknown command,
// wrong arity, or a non-numeric token where a number was required.
var ErrProtocol = errors.New("PROTOCOL error")

// variadicTail names commands whose final argument is the rest of the line,
// whitespace preserved, rather than a single whitespace-delimited token.
var variadicTail = map[string]int{
	"SET":      2, // SET k <value...>
	"APPEND":   2, // APPEND k <value...>
	"JSON.SET": 3, // JSON.SET k path <value...>
	"ECHO":     1, // ECHO <value...>
}

// spec gives a command's minimum and maximum token count (command name
// included) and whether it takes a variable-length tail of plain tokens
// (e.g. LPUSH k v...). A max of -1 means "no upper bound".
type spec struct {
	min      int
	max      int // -1 = unbounded
	variadic bool
}

var commands = map[string]spec{
	"GET":        {2, 2, false},
	"SET":        {3, -1, false}, // variadic tail handled specially
	"INCR":       {2, 2, false},
	"DECR":       {2, 2, false},
	"INCRBY":     {3, 3, false},
	"DECRBY":     {3, 3, false},
	"APPEND":     {3, -1, false},
	"LPUSH":      {3, -1, true},
	"RPUSH":      {3, -1, true},
	"LPOP":       {2, 2, false},
	"RPOP":       {2, 2, false},
	"LRANGE":     {4, 4, false},
	"LLEN":       {2, 2, false},
	"SADD":       {3, -1, true},
	"SREM":       {3, -1, true},
	"SMEMBERS":   {2, 2, false},
	"SISMEMBER":  {3, 3, false},
	"SCARD":      {2, 2, false},
	"HSET":       {4, 4, false},
	"HGET":       {3, 3, false},
	"HDEL":       {3, -1, true},
	"HGETALL":    {2, 2, false},
	"HEXISTS":    {3, 3, false},
	"ZADD":       {4, -1, true}, // k (score member)... — odd tail checked separately
	"ZREM":       {3, -1, true},
	"ZRANGE":     {4, 5, false},
	"ZSCORE":     {3, 3, false},
	"ZCARD":      {2, 2, false},
	"JSON.SET":   {4, -1, false},
	"JSON.GET":   {3, 3, false},
	"JSON.DEL":   {3, 3, false},
	"XADD":       {5, -1, false}, // k id field value [field value ...]
	"XRANGE":     {4, 5, false},
	"XLEN":       {2, 2, false},
	"TYPE":       {2, 2, false},
	"DEL":        {2, -1, true},
	"EXISTS":     {2, -1, true},
	"PING":       {1, 2, false},
	"ECHO":       {2, -1, false},
	"FLUSHDB":    {1, 1, false},
	"INFO":       {1, 1, false},
}

// Command is a parsed request: the upper-cased command name and its
// argument tokens (not including the name itself).
type Command struct {
	Name string
	Args []string
}

// Parse parses one request line. Empty or whitespace-only lines return
// (nil, nil) — they are ignored, not an error.
func Parse(line string) (*Command, error) {
	trimmed := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(trimmed) == "" {
		return nil, nil
	}

	nameEnd := indexWhitespace(trimmed, 0)
	var name, rest string
	if nameEnd == -1 {
		name = trimmed
		rest = ""
	} else {
		name = trimmed[:nameEnd]
		rest = trimmed[nameEnd:]
	}
	upper := strings.ToUpper(name)

	sp, found := commands[upper]
	if !found {
		return nil, errors.Wrapf(ErrProtocol, "unknown command %q", name)
	}

	var args []string
	if tailFrom, ok := variadicTail[upper]; ok {
		args = splitWithTail(rest, tailFrom-1)
	} else {
		args = splitFields(rest)
	}

	total := 1 + len(args)
	if total < sp.min || (sp.max != -1 && total > sp.max) {
		return nil, errors.Wrapf(ErrProtocol, "wrong number of arguments for %q", upper)
	}

	if err := checkShape(upper, args); err != nil {
		return nil, err
	}

	return &Command{Name: upper, Args: args}, nil
}

// checkShape validates the numeric/pairing constraints §4.2 calls out
// beyond simple arity: numeric tokens where required, and the
// ZADD/XADD paired-tail constraints.
func checkShape(name string, args []string) error {
	switch name {
	case "INCRBY", "DECRBY":
		if _, err := strconv.ParseInt(args[1], 10, 64); err != nil {
			return errors.Wrapf(ErrProtocol, "%s: non-numeric argument", name)
		}
	case "LRANGE":
		if _, err := strconv.Atoi(args[1]); err != nil {
			return errors.Wrapf(ErrProtocol, "%s: non-numeric start", name)
		}
		if _, err := strconv.Atoi(args[2]); err != nil {
			return errors.Wrapf(ErrProtocol, "%s: non-numeric stop", name)
		}
	case "ZRANGE":
		if _, err := strconv.Atoi(args[1]); err != nil {
			return errors.Wrapf(ErrProtocol, "%s: non-numeric start", name)
		}
		if _, err := strconv.Atoi(args[2]); err != nil {
			return errors.Wrapf(ErrProtocol, "%s: non-numeric stop", name)
		}
		if len(args) == 4 && !strings.EqualFold(args[3], "WITHSCORES") {
			return errors.Wrapf(ErrProtocol, "%s: unknown option %q", name, args[3])
		}
	case "ZADD":
		tail := args[1:]
		if len(tail)%2 != 0 {
			return errors.Wrapf(ErrProtocol, "%s: unpaired score/member tail", name)
		}
		for i := 0; i < len(tail); i += 2 {
			if _, err := strconv.ParseFloat(tail[i], 64); err != nil {
				return errors.Wrapf(ErrProtocol, "%s: non-numeric score %q", name, tail[i])
			}
		}
	case "XADD":
		tail := args[2:]
		if len(tail)%2 != 0 {
			return errors.Wrapf(ErrProtocol, "%s: unpaired field/value tail", name)
		}
	}
	return nil
}

func indexWhitespace(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t':
			return i
		}
	}
	return -1
}

// splitFields splits on runs of whitespace, dropping empty tokens.
func splitFields(s string) []string {
	return strings.Fields(s)
}

// splitWithTail splits the first `fixedTokens` whitespace-delimited tokens
// normally, then takes the remainder of the line — from the first byte of
// the next token to end-of-line, whitespace preserved — as the final
// argument. This is the codec's only way to carry a value containing
// spaces.
func splitWithTail(s string, fixedTokens int) []string {
	out := make([]string, 0, fixedTokens+1)
	pos := 0
	for i := 0; i < fixedTokens; i++ {
		pos = skipWhitespace(s, pos)
		if pos >= len(s) {
			return out
		}
		end := indexWhitespace(s, pos)
		if end == -1 {
			out = append(out, s[pos:])
			return out
		}
		out = append(out, s[pos:end])
		pos = end
	}
	pos = skipWhitespace(s, pos)
	if pos < len(s) {
		out = append(out, s[pos:])
	}
	return out
}

func skipWhitespace(s string, from int) int {
	i := from
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return i
}

// Render writes one logical response to w, terminated by a single LF.
func Render(w io.Writer, r Response) error {
	bw := bufio.NewWriter(w)
	if err := r.render(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// Response is implemented by every response kind; render writes the
// response body (without trailing newline management beyond its own single
// terminator).
type Response interface {
	render(w *bufio.Writer) error
}

type OK struct{}

func (OK) render(w *bufio.Writer) error {
	_, err := fmt.Fprint(w, "OK\n")
	return err
}

type Bulk struct{ Value string }

func (b Bulk) render(w *bufio.Writer) error {
	_, err := fmt.Fprintf(w, "%s\n", b.Value)
	return err
}

type Int struct{ Value int64 }

func (n Int) render(w *bufio.Writer) error {
	_, err := fmt.Fprintf(w, "%d\n", n.Value)
	return err
}

type Array struct{ Values []string }

func (a Array) render(w *bufio.Writer) error {
	if len(a.Values) == 0 {
		_, err := fmt.Fprint(w, "(empty array)\n")
		return err
	}
	_, err := fmt.Fprintf(w, "%s\n", strings.Join(a.Values, "\n"))
	return err
}

type Nil struct{}

func (Nil) render(w *bufio.Writer) error {
	_, err := fmt.Fprint(w, "(nil)\n")
	return err
}

type Err struct{ Message string }

func (e Err) render(w *bufio.Writer) error {
	_, err := fmt.Fprintf(w, "ERROR: %s\n", e.Message)
	return err
}
