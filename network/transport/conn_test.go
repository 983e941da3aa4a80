package transport

import (
	"net"
	"pbft/configs"
	"pbft/network"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSendDeliversRecordToListener(t *testing.T) {
	tuning := configs.DefaultTuning()
	received := make(chan *network.Record, 1)

	listener, err := Listen("127.0.0.1:0", tuning, func(_ net.Addr, rec *network.Record) {
		received <- rec
	})
	assert.NoError(t, err)
	defer listener.Close()

	addr := listener.listener.Addr().String()

	sender, err := Listen("127.0.0.1:0", tuning, func(net.Addr, *network.Record) {})
	assert.NoError(t, err)
	defer sender.Close()

	sender.Send(addr, &network.Record{Type: configs.MsgRegister, ID: "P1", Host: "127.0.0.1", Port: 5001})

	select {
	case rec := <-received:
		assert.Equal(t, configs.MsgRegister, rec.Type)
		assert.Equal(t, "P1", rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record")
	}
}

func TestSendToUnreachableAddressDoesNotPanic(t *testing.T) {
	tuning := configs.DefaultTuning()
	sender, err := Listen("127.0.0.1:0", tuning, func(net.Addr, *network.Record) {})
	assert.NoError(t, err)
	defer sender.Close()

	assert.NotPanics(t, func() {
		sender.Send("127.0.0.1:1", &network.Record{Type: configs.MsgRegister})
	})
}
