package transport

import (
	"strconv"
	"sync"

	"github.com/codership/gcs/gcstypes"
)

// dummyHub is the shared loopback fabric a group of dummy backends
// registers with; broadcasting on one node's dummy delivers to every node
// sharing the same hub name, the sender included, in call order. This mirrors the
// teacher's in-process msgCh fan-out (mpserverv2/replica.go mainLoop)
// generalized from one process's internal dispatch to a whole group.
type dummyHub struct {
	mu      sync.Mutex
	members []*Dummy
	primary bool
}

var hubs = struct {
	mu sync.Mutex
	m  map[string]*dummyHub
}{m: make(map[string]*dummyHub)}

func hubFor(name string) *dummyHub {
	hubs.mu.Lock()
	defer hubs.mu.Unlock()
	h, ok := hubs.m[name]
	if !ok {
		h = &dummyHub{primary: true}
		hubs.m[name] = h
	}
	return h
}

// Dummy is a fully in-process loopback GroupTransport for tests: no
// sockets, no serialization, just channels. Address selects a named hub
// so multiple independent groups can coexist in one test binary.
type Dummy struct {
	self     gcstypes.NodeID
	hub      *dummyHub
	messages chan gcstypes.Fragment
	memb     chan MembershipEvent
	closed   chan struct{}
	closeOne sync.Once
}

func init() {
	Register("dummy", func(address string) (GroupTransport, error) {
		return NewDummy(address, gcstypes.NodeID(nextDummyID())), nil
	})
}

var dummyIDCounter struct {
	mu sync.Mutex
	n  int
}

func nextDummyID() string {
	dummyIDCounter.mu.Lock()
	defer dummyIDCounter.mu.Unlock()
	dummyIDCounter.n++
	return strconv.Itoa(dummyIDCounter.n)
}

// NewDummy joins the named in-process hub as self. Tests typically call
// this directly (rather than going through Open) so they can control
// node identities.
func NewDummy(hubName string, self gcstypes.NodeID) *Dummy {
	h := hubFor(hubName)
	d := &Dummy{
		self:     self,
		hub:      h,
		messages: make(chan gcstypes.Fragment, 4096),
		memb:     make(chan MembershipEvent, 16),
		closed:   make(chan struct{}),
	}
	h.mu.Lock()
	h.members = append(h.members, d)
	h.mu.Unlock()
	h.announceLocked()
	return d
}

// announceLocked recomputes membership and pushes a MembershipEvent to
// every current member. Callers must not hold h.mu.
func (h *dummyHub) announceLocked() {
	h.mu.Lock()
	members := make([]gcstypes.NodeID, len(h.members))
	targets := make([]*Dummy, len(h.members))
	for i, m := range h.members {
		members[i] = m.self
		targets[i] = m
	}
	primary := h.primary
	h.mu.Unlock()

	for i, d := range targets {
		ev := MembershipEvent{Members: members, MyIdx: i, Primary: primary}
		select {
		case d.memb <- ev:
		case <-d.closed:
		}
	}
}

// Partition flips the hub to a non-primary configuration, exercising
// scenario S5 (spec.md §8).
func (h *dummyHub) Partition() { h.setPrimary(false) }

// Heal restores a primary configuration.
func (h *dummyHub) Heal() { h.setPrimary(true) }

func (h *dummyHub) setPrimary(p bool) {
	h.mu.Lock()
	h.primary = p
	h.mu.Unlock()
	h.announceLocked()
}

// Hub exposes the underlying hub for tests that need to drive
// Partition/Heal without threading a *dummyHub type through package
// boundaries.
func (d *Dummy) Hub() *DummyHubHandle { return &DummyHubHandle{h: d.hub} }

// DummyHubHandle is the exported control surface for a dummy hub.
type DummyHubHandle struct{ h *dummyHub }

func (h *DummyHubHandle) Partition() { h.h.Partition() }
func (h *DummyHubHandle) Heal()      { h.h.Heal() }

func (d *Dummy) Broadcast(f gcstypes.Fragment) error {
	d.hub.mu.Lock()
	targets := make([]*Dummy, len(d.hub.members))
	copy(targets, d.hub.members)
	d.hub.mu.Unlock()

	for _, m := range targets {
		select {
		case m.messages <- f:
		case <-m.closed:
		}
	}
	return nil
}

func (d *Dummy) Messages() <-chan gcstypes.Fragment { return d.messages }
func (d *Dummy) Membership() <-chan MembershipEvent { return d.memb }
func (d *Dummy) Self() gcstypes.NodeID              { return d.self }

func (d *Dummy) Close() error {
	d.closeOne.Do(func() {
		d.hub.mu.Lock()
		for i, m := range d.hub.members {
			if m == d {
				d.hub.members = append(d.hub.members[:i], d.hub.members[i+1:]...)
				break
			}
		}
		d.hub.mu.Unlock()
		close(d.closed)
	})
	return nil
}
