// Command loadgen is the benchmark driver of SPEC_FULL.md §1 [ADD]: it
// opens its own client-console connection and submits a stream of
// CLIENT_TX requests to the current primary, drawing accounts from a
// Zipfian distribution the way the teacher's benchmark/ycsb.go drives
// key selection.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pingcap/go-ycsb/pkg/generator"

	"pbft/configs"
	"pbft/network"
	"pbft/network/transport"
)

var (
	host       string
	port       int
	primary    string
	accounts   int64
	skew       float64
	n          int
	durationMs int
)

func init() {
	flag.StringVar(&host, "host", "127.0.0.1", "this driver's listen host, for receiving REPLYs")
	flag.IntVar(&port, "port", 6100, "this driver's listen port")
	flag.StringVar(&primary, "primary", "127.0.0.1:5000", "address of the current primary replica")
	flag.Int64Var(&accounts, "accounts", 100, "number of distinct accounts in the Zipfian key space")
	flag.Float64Var(&skew, "skew", 0.99, "Zipfian skew factor")
	flag.IntVar(&n, "n", 1000, "number of transactions to submit")
	flag.IntVar(&durationMs, "interval-ms", 5, "milliseconds to wait between submissions")
}

func main() {
	flag.Parse()

	var committed, aborted int64
	tuning := configs.DefaultTuning()
	comm, err := transport.Listen(fmt.Sprintf("%s:%d", host, port), tuning, func(_ net.Addr, rec *network.Record) {
		if rec.Type != configs.MsgReply {
			return
		}
		if rec.Result == configs.ResultCommitted {
			atomic.AddInt64(&committed, 1)
		} else {
			atomic.AddInt64(&aborted, 1)
		}
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to listen:", err)
		os.Exit(1)
	}
	defer comm.Close()

	comm.Send(primary, &network.Record{Type: configs.MsgClientHello, Host: host, Port: port})
	time.Sleep(100 * time.Millisecond) // let CLIENT_HELLO/CLIENT_JOIN settle before the first submission

	zipf := generator.NewZipfianWithRange(0, accounts-1, skew)
	rng := rand.New(rand.NewSource(1))
	ops := []string{configs.OpDeposit, configs.OpWithdraw}

	for i := 0; i < n; i++ {
		account := "acct" + strconv.FormatInt(zipf.Next(rng), 10)
		amount := strconv.Itoa(1 + rng.Intn(100))
		op := ops[rng.Intn(len(ops))]
		comm.Send(primary, &network.Record{
			Type: configs.MsgClientTx,
			Data: map[string]string{
				"account":   account,
				"amount":    amount,
				"operation": op,
			},
			FromPort: port,
		})
		time.Sleep(time.Duration(durationMs) * time.Millisecond)
	}

	time.Sleep(500 * time.Millisecond) // drain in-flight REPLYs
	fmt.Printf("submitted=%d committed=%d aborted=%d\n", n, atomic.LoadInt64(&committed), atomic.LoadInt64(&aborted))
}
