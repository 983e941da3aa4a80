package replica

import (
	"pbft/configs"
	"pbft/network"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewChangeElectsDeterministicNextPrimary(t *testing.T) {
	// Scenario: N=4, P1 is the deterministic next primary for v=0->1
	// (sorted [P0,P1,P2,P3], index 1 mod 4).
	p1 := New("P1", "127.0.0.1", 5001, nil, nil)
	p1.AddMember(configs.BootstrapID, "127.0.0.1", 5000)
	p1.AddMember("P2", "127.0.0.1", 5002)
	p1.AddMember("P3", "127.0.0.1", 5003)

	p1.OnViewChange(&network.Record{Type: configs.MsgViewChange, From: configs.BootstrapID, View: 0})
	assert.Equal(t, 0, p1.CurrentView(), "2 votes do not reach the quorum of 3")

	p1.OnViewChange(&network.Record{Type: configs.MsgViewChange, From: "P2", View: 0})
	assert.Equal(t, 1, p1.CurrentView())
	assert.Equal(t, "P1", p1.PrimaryFor(p1.CurrentView()))
}

func TestViewChangeDoesNotActTwice(t *testing.T) {
	p1 := New("P1", "127.0.0.1", 5001, nil, nil)
	p1.AddMember(configs.BootstrapID, "127.0.0.1", 5000)
	p1.AddMember("P2", "127.0.0.1", 5002)
	p1.AddMember("P3", "127.0.0.1", 5003)

	p1.OnViewChange(&network.Record{Type: configs.MsgViewChange, From: configs.BootstrapID, View: 0})
	p1.OnViewChange(&network.Record{Type: configs.MsgViewChange, From: "P2", View: 0})
	assert.Equal(t, 1, p1.CurrentView())

	p1.OnViewChange(&network.Record{Type: configs.MsgViewChange, From: "P3", View: 0})
	assert.Equal(t, 1, p1.CurrentView(), "a second quorum for the same view must not re-emit NEW_VIEW")
}

func TestNewViewAdoptionIsUnconditional(t *testing.T) {
	p2 := New("P2", "127.0.0.1", 5002, nil, nil)
	p2.AddMember(configs.BootstrapID, "127.0.0.1", 5000)
	p2.AddMember("P1", "127.0.0.1", 5001)
	p2.AddMember("P3", "127.0.0.1", 5003)

	p2.OnNewView(&network.Record{
		Type: configs.MsgNewView, NewView: 1, From: "P1",
		PrimaryHost: "127.0.0.1", PrimaryPort: 5001,
		Members: map[string]network.MemberAddr{
			configs.BootstrapID: {Host: "127.0.0.1", Port: 5000},
			"P1":                {Host: "127.0.0.1", Port: 5001},
			"P2":                {Host: "127.0.0.1", Port: 5002},
			"P3":                {Host: "127.0.0.1", Port: 5003},
		},
		ByzantineID: "P3",
	})
	assert.Equal(t, 1, p2.CurrentView())
	assert.Equal(t, "P1", p2.PrimaryFor(p2.CurrentView()))
	assert.Equal(t, "P3", p2.ByzantineID)
}
