package server

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/transybao1393/diskdb-go/bufpool"
	"github.com/transybao1393/diskdb-go/executor"
	"github.com/transybao1393/diskdb-go/storage"
)

func withServer(t *testing.T, f func(addr string)) {
	t.Helper()
	dir, err := os.MkdirTemp("", "diskdb-server-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	st, err := storage.New(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	srv, err := Listen(Config{Addr: "127.0.0.1:0"}, executor.New(st), bufpool.New())
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	go srv.Serve()

	f(srv.Addr().String())
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return conn, bufio.NewReader(conn)
}

func TestSingleRequestResponse(t *testing.T) {
	withServer(t, func(addr string) {
		conn, r := dial(t, addr)
		defer conn.Close()

		if _, err := conn.Write([]byte("SET foo bar\n")); err != nil {
			t.Fatal(err)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line != "OK\n" {
			t.Fatalf("got %q, want \"OK\\n\"", line)
		}

		if _, err := conn.Write([]byte("GET foo\n")); err != nil {
			t.Fatal(err)
		}
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line != "bar\n" {
			t.Fatalf("got %q, want \"bar\\n\"", line)
		}
	})
}

func TestPipelinedRequestsFlushOnControlCommand(t *testing.T) {
	withServer(t, func(addr string) {
		conn, r := dial(t, addr)
		defer conn.Close()

		// Three plain commands followed by a control command: the whole
		// batch should flush together, in order.
		req := "SET a 1\nSET b 2\nINCR a\nPING\n"
		if _, err := conn.Write([]byte(req)); err != nil {
			t.Fatal(err)
		}
		want := []string{"OK\n", "OK\n", "2\n", "PONG\n"}
		for _, w := range want {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatal(err)
			}
			if line != w {
				t.Fatalf("got %q, want %q", line, w)
			}
		}
	})
}

func TestEmptyLinesAreSkipped(t *testing.T) {
	withServer(t, func(addr string) {
		conn, r := dial(t, addr)
		defer conn.Close()

		if _, err := conn.Write([]byte("\n\nPING\n")); err != nil {
			t.Fatal(err)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line != "PONG\n" {
			t.Fatalf("got %q", line)
		}
	})
}

func TestOversizedLineClosesConnection(t *testing.T) {
	withServer(t, func(addr string) {
		conn, r := dial(t, addr)
		defer conn.Close()

		// A line with no newline within readBufferSize: the connection must
		// report an error and close rather than buffer it indefinitely.
		huge := make([]byte, readBufferSize+1024)
		for i := range huge {
			huge[i] = 'x'
		}
		if _, err := conn.Write(huge); err != nil {
			t.Fatal(err)
		}
		if _, err := conn.Write([]byte("\n")); err != nil {
			t.Fatal(err)
		}

		line, err := r.ReadString('\n')
		if err == nil {
			if len(line) < 5 || line[:5] != "ERROR" {
				t.Fatalf("got %q, want an ERROR line or a closed connection", line)
			}
		}
		// Either a protocol error line, or the connection closing first, both
		// satisfy the bound: the server must not keep accumulating past
		// readBufferSize.
	})
}

func TestProtocolErrorIsReportedInOrder(t *testing.T) {
	withServer(t, func(addr string) {
		conn, r := dial(t, addr)
		defer conn.Close()

		if _, err := conn.Write([]byte("BOGUSCOMMAND\n")); err != nil {
			t.Fatal(err)
		}
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if len(line) < 5 || line[:5] != "ERROR" {
			t.Fatalf("got %q, want an ERROR line", line)
		}
	})
}
