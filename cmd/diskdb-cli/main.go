// Command diskdb-cli is a small interactive line-protocol client, reading
// commands from stdin and printing responses, in the spirit of redis-cli.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/rodaine/table"

	"github.com/transybao1393/diskdb-go/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6380", "DiskDB server address")
	flag.Parse()

	pool := client.New(client.Config{MaxConnections: 1})
	ctx := context.Background()

	conn, err := pool.Acquire(ctx, *addr)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Release()

	reader := bufio.NewReader(conn)
	stdin := bufio.NewScanner(os.Stdin)

	fmt.Printf("connected to %s\n", *addr)
	for {
		fmt.Print("diskdb> ")
		if !stdin.Scan() {
			return
		}
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return
		}

		if _, err := conn.Write([]byte(line + "\n")); err != nil {
			log.Printf("write: %v", err)
			return
		}
		resp, err := reader.ReadString('\n')
		// INFO separates its fields with "\r\n": keep reading until a line
		// ends in a bare "\n", so the whole response is consumed.
		for err == nil && strings.HasSuffix(resp, "\r\n") {
			var more string
			more, err = reader.ReadString('\n')
			resp += more
		}
		if err != nil {
			log.Printf("read: %v", err)
			return
		}
		resp = strings.TrimRight(resp, "\r\n")

		if strings.EqualFold(strings.Fields(line)[0], "INFO") {
			printInfoTable(resp)
			continue
		}
		fmt.Println(resp)
	}
}

// printInfoTable renders the server's INFO response (carriage-return
// separated key:value pairs) as a two-column table, in the shape the
// teacher's admin commands print with rodaine/table.
func printInfoTable(resp string) {
	t := table.New("Field", "Value").WithWriter(os.Stdout)
	for _, field := range strings.Split(resp, "\r\n") {
		k, v, found := strings.Cut(field, ":")
		if !found {
			continue
		}
		t.AddRow(k, v)
	}
	t.Print()
}
