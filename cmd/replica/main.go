// Command replica boots one PBFT node: the bootstrap replica "P0" on
// the well-known port, or any other replica joining by REGISTERing
// with it. Flag-driven startup and the debug/trace toggles follow the
// teacher's fc-server/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"pbft/checkpoint"
	"pbft/configs"
	"pbft/network"
	"pbft/network/transport"
	"pbft/replica"
)

var (
	id          string
	host        string
	port        int
	bootHost    string
	bootPort    int
	propsPath   string
	debug       bool
	store       string
	postgresDSN string
	mongoURI    string
	mongoDB     string
)

func init() {
	flag.StringVar(&id, "id", configs.BootstrapID, "this replica's id; P0 is the bootstrap replica")
	flag.StringVar(&host, "host", "127.0.0.1", "this replica's listen host")
	flag.IntVar(&port, "port", 5000, "this replica's listen port; 5000 is the well-known bootstrap port")
	flag.StringVar(&bootHost, "boot-host", "127.0.0.1", "bootstrap replica host, for non-P0 nodes")
	flag.IntVar(&bootPort, "boot-port", 5000, "bootstrap replica port, for non-P0 nodes")
	flag.StringVar(&propsPath, "props", "", "path to a node-local .properties tuning file")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.StringVar(&store, "store", "file", "checkpoint store: file, postgres, or mongo")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "postgres DSN, when -store=postgres")
	flag.StringVar(&mongoURI, "mongo-uri", "mongodb://127.0.0.1:27017", "mongo URI, when -store=mongo")
	flag.StringVar(&mongoDB, "mongo-db", "pbft", "mongo database name, when -store=mongo")
}

func main() {
	flag.Parse()
	configs.ShowDebugInfo = debug
	configs.ShowTestInfo = debug

	tuning := configs.LoadTuning(propsPath)

	ckptStore, err := openStore(tuning)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open checkpoint store:", err)
		os.Exit(1)
	}

	r := replica.New(id, host, port, tuning, ckptStore)

	comm, err := transport.Listen(fmt.Sprintf("%s:%d", host, port), tuning, r.Dispatch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to listen:", err)
		os.Exit(1)
	}
	r.Comm = comm
	defer comm.Close()

	if id != configs.BootstrapID {
		bootAddr := fmt.Sprintf("%s:%d", bootHost, bootPort)
		comm.Send(bootAddr, &network.Record{Type: configs.MsgRegister, ID: id, Host: host, Port: port})
		configs.DPrintf("%s registering with bootstrap at %s", id, bootAddr)
	} else {
		configs.DPrintf("%s listening on %s:%d as bootstrap replica", id, host, port)
	}

	r.RunConsole(os.Stdin, os.Stdout)
}

func openStore(tuning *configs.NodeTuning) (checkpoint.Store, error) {
	switch store {
	case "postgres":
		return checkpoint.NewPostgresStore(context.Background(), postgresDSN)
	case "mongo":
		return checkpoint.NewMongoStore(context.Background(), mongoURI, mongoDB)
	default:
		return checkpoint.NewFileStore(tuning.CheckpointDir), nil
	}
}
