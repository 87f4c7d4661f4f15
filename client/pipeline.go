package client

import (
	"bufio"
	"strings"

	diskdb "github.com/transybao1393/diskdb-go"
)

// Pipeline buffers request lines over a single Conn and flushes them as one
// combined write, reading back responses in the same order — the
// client-side half of spec.md §4.8's optional request pipelining.
type Pipeline struct {
	conn   *Conn
	reader *bufio.Reader
	depth  int
	lines  []string
}

// NewPipeline wraps conn with a buffer that auto-flush-triggers once depth
// lines have accumulated (the caller still decides when to call Flush;
// Enqueue merely reports whether depth has been reached).
func NewPipeline(conn *Conn, depth int) *Pipeline {
	if depth <= 0 {
		depth = 1
	}
	return &Pipeline{conn: conn, reader: bufio.NewReader(conn), depth: depth}
}

// Enqueue appends one request line (without its trailing newline) to the
// pending batch. It returns true once the batch has reached its configured
// depth, signaling the caller should Flush.
func (p *Pipeline) Enqueue(line string) bool {
	p.lines = append(p.lines, line)
	return len(p.lines) >= p.depth
}

// Flush writes every pending line in a single Write call and reads back one
// response line per request, in the same order. The pending batch is
// cleared whether or not an error occurs partway through.
func (p *Pipeline) Flush() ([]string, error) {
	if len(p.lines) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	for _, l := range p.lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	n := len(p.lines)
	p.lines = p.lines[:0]

	if _, err := p.conn.Write([]byte(sb.String())); err != nil {
		return nil, diskdb.WithStack(err)
	}

	responses := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return responses, diskdb.WithStack(err)
		}
		responses = append(responses, strings.TrimRight(line, "\r\n"))
	}
	return responses, nil
}
