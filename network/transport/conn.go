// Package transport is the point-to-point, best-effort delivery layer
// shared by every replica and client process. It frames one
// self-describing JSON record per line on a plain TCP connection,
// grounded on the teacher's network/coordinator/conn.go: a
// bufio.NewReader(conn).ReadString('\n') dispatch loop, a connection
// cache keyed by address, and a write deadline per send. Connection
// concurrency is capped with golang.org/x/net/netutil.LimitListener,
// the library equivalent of the teacher's hand-rolled semaphore
// channel.
package transport

import (
	"bufio"
	"github.com/goccy/go-json"
	"golang.org/x/net/netutil"
	"io"
	"net"
	"pbft/configs"
	"pbft/network"
	"sync"
	"time"
)

// Handler processes one inbound Record. It must not block on a reply
// from another node; all protocol progress is message-driven.
type Handler func(from net.Addr, rec *network.Record)

// Comm owns the listener and the map of outbound connections for one
// node (a replica or a client).
type Comm struct {
	listener net.Listener
	connMap  sync.Map // address -> net.Conn
	done     chan struct{}
	tuning   *configs.NodeTuning
	handler  Handler
	wg       sync.WaitGroup
}

// Listen opens the node's inbound endpoint. handler is invoked once per
// received record, from a short-lived per-connection goroutine.
func Listen(addr string, tuning *configs.NodeTuning, handler Handler) (*Comm, error) {
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Comm{
		listener: netutil.LimitListener(raw, tuning.MaxConns),
		done:     make(chan struct{}),
		tuning:   tuning,
		handler:  handler,
	}
	c.wg.Add(1)
	go c.acceptLoop()
	return c, nil
}

func (c *Comm) acceptLoop() {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
				configs.Warn(false, "accept failed: "+err.Error())
				return
			}
		}
		c.wg.Add(1)
		go c.handleConn(conn)
	}
}

func (c *Comm) handleConn(conn net.Conn) {
	defer c.wg.Done()
	defer conn.Close()
	reader := bufio.NewReader(conn)
	remote := conn.RemoteAddr()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.tuning.ReadTimeout))
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			rec := &network.Record{}
			if jerr := json.Unmarshal([]byte(line), rec); jerr != nil {
				configs.Warn(false, "malformed record from "+remote.String()+": "+jerr.Error())
			} else {
				c.handler(remote, rec)
			}
		}
		if err != nil {
			if err != io.EOF {
				configs.TPrintf("connection from %v closed: %v", remote, err)
			}
			return
		}
	}
}

// Close stops accepting connections and closes every cached outbound
// connection. Inbound connections already being served drain naturally.
func (c *Comm) Close() {
	close(c.done)
	_ = c.listener.Close()
	c.connMap.Range(func(key, value interface{}) bool {
		_ = value.(net.Conn).Close()
		return true
	})
}

// Send delivers one record to addr, dialing and caching the connection
// on first use. Failures are swallowed here per spec.md §7 - the
// caller's protocol-level retry (view change, re-proposal) absorbs them.
func (c *Comm) Send(addr string, rec *network.Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		configs.Warn(false, "failed to marshal record: "+err.Error())
		return
	}
	body = append(body, '\n')

	conn, ok := c.dial(addr)
	if !ok {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.tuning.SendTimeout))
	if _, err := conn.Write(body); err != nil {
		configs.Warn(false, "send to "+addr+" failed: "+err.Error())
		c.connMap.Delete(addr)
		_ = conn.Close()
	}
}

func (c *Comm) dial(addr string) (net.Conn, bool) {
	if cur, ok := c.connMap.Load(addr); ok {
		return cur.(net.Conn), true
	}
	conn, err := net.DialTimeout("tcp", addr, c.tuning.SendTimeout)
	if err != nil {
		configs.Warn(false, "dial "+addr+" failed: "+err.Error())
		return nil, false
	}
	actual, loaded := c.connMap.LoadOrStore(addr, conn)
	if loaded {
		_ = conn.Close()
		return actual.(net.Conn), true
	}
	return conn, true
}
