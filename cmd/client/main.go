// Command client is the thin client console of spec.md §1's out-of-scope
// collaborators: it registers with the bootstrap replica via
// CLIENT_HELLO, submits CLIENT_TX payloads to whichever replica it is
// told is the current primary, and tallies REPLY messages as they
// arrive.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"pbft/configs"
	"pbft/network"
	"pbft/network/transport"
)

var (
	host     string
	port     int
	bootHost string
	bootPort int
)

func init() {
	flag.StringVar(&host, "host", "127.0.0.1", "this client's listen host, for receiving REPLYs")
	flag.IntVar(&port, "port", 6000, "this client's listen port")
	flag.StringVar(&bootHost, "boot-host", "127.0.0.1", "bootstrap replica host")
	flag.IntVar(&bootPort, "boot-port", 5000, "bootstrap replica port")
}

type tally struct {
	mu      sync.Mutex
	replies map[string][]string // txid -> results observed, in arrival order
}

func newTally() *tally {
	return &tally{replies: make(map[string][]string)}
}

func (t *tally) record(rec *network.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies[rec.TxID] = append(t.replies[rec.TxID], rec.Result)
}

func (t *tally) snapshot(txid string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.replies[txid]))
	copy(out, t.replies[txid])
	return out
}

func main() {
	flag.Parse()
	t := newTally()
	tuning := configs.DefaultTuning()

	comm, err := transport.Listen(fmt.Sprintf("%s:%d", host, port), tuning, func(_ net.Addr, rec *network.Record) {
		if rec.Type == configs.MsgReply {
			t.record(rec)
			fmt.Printf("REPLY %s %s\n", rec.TxID, rec.Result)
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to listen:", err)
		os.Exit(1)
	}
	defer comm.Close()

	bootAddr := fmt.Sprintf("%s:%d", bootHost, bootPort)
	comm.Send(bootAddr, &network.Record{Type: configs.MsgClientHello, Host: host, Port: port})

	fmt.Println("commands: tx <primary-host:port> key=value...   |   tally <txid>   |   quit")
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("client> ")
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Print("client> ")
			continue
		}
		switch fields[0] {
		case "tx":
			if len(fields) < 2 {
				fmt.Println("error: expected a primary address")
				break
			}
			payload := make(map[string]string)
			for _, kv := range fields[2:] {
				k, v, found := strings.Cut(kv, "=")
				if found {
					payload[k] = v
				}
			}
			comm.Send(fields[1], &network.Record{Type: configs.MsgClientTx, Data: payload, FromPort: port})
		case "tally":
			if len(fields) < 2 {
				fmt.Println("error: expected a txid")
				break
			}
			fmt.Println(t.snapshot(fields[1]))
		case "quit":
			fmt.Println("bye")
			return
		default:
			fmt.Println("error: unknown command")
		}
		fmt.Print("client> ")
	}
}
