package gcs

import (
	"github.com/codership/gcs/configh"
	"github.com/codership/gcs/gcslog"
	"github.com/codership/gcs/replwait"
	"github.com/codership/gcs/transport"
)

// dispatchLoop is the single ordered-delivery thread of spec.md §4.5: it
// consumes the transport, feeds the Assembler, assigns seqnos, and routes
// completed actions to their handler. Exactly one goroutine per Conn runs
// this, so lastGlobal/lastLocal/members/myIdx/confID/pausedOrdered need no
// lock of their own (spec.md §5's "no lock exposed to caller" extends to
// "single writer, no lock needed" for the delivery thread's own state).
func (c *Conn) dispatchLoop() {
	defer close(c.dispatchDone)
	for {
		select {
		case f, ok := <-c.tr.Messages():
			if !ok {
				c.onTransportFatal()
				return
			}
			c.handleFragment(f)
		case ev, ok := <-c.tr.Membership():
			if !ok {
				c.onTransportFatal()
				return
			}
			c.handleMembership(ev)
		case <-c.dispatchStop:
			return
		}
	}
}

// handleFragment feeds one fragment to the Assembler and routes the
// completed action, if any (spec.md §4.5 steps 1-3). While ordered
// delivery is paused (a NON_PRIMARY configuration is in effect) incoming
// fragments are dropped: the transport itself gives no ordering guarantee
// outside a primary configuration, so there is nothing meaningful to
// assemble against (spec.md §4.5 step 4, §6.3).
func (c *Conn) handleFragment(f Fragment) {
	if c.pausedOrdered {
		return
	}
	act, err := c.asm.Feed(f)
	if err != nil {
		c.deliverAssemblyError(err, f.Source)
		return
	}
	if act == nil {
		return
	}
	c.deliverAction(act)
}

// deliverAssemblyError surfaces a Protocol/Assembly error as an ordered
// ERROR action instead of tearing the connection down (spec.md §7's
// propagation policy).
func (c *Conn) deliverAssemblyError(err error, source NodeID) {
	act := &Action{Type: ActERROR, Payload: []byte(err.Error()), Origin: source}
	c.assignSeqno(act)
	c.log.Logf(gcslog.CatAssembly, "assembly error from %s: %v", source, err)
	c.pushRecv(*act)
}

// pushRecv delivers act to the receive queue, logging (rather than
// blocking the delivery thread or dropping silently) if the application
// isn't draining recv() fast enough for the queue's bound. A full queue
// here means flow control upstream failed to throttle senders in time;
// this is a diagnostic signal, not a new failure mode the caller of
// deliverAction/handleMembership needs to react to.
func (c *Conn) pushRecv(act Action) {
	if err := c.recvQ.Push(act); err != nil {
		c.log.Logf(gcslog.CatError, "receive queue: %v", err)
	}
}

// assignSeqno implements spec.md §4.5 step 1.
func (c *Conn) assignSeqno(act *Action) {
	if !act.Type.IsOrdered() {
		act.GlobalSeqno = SeqnoIll
		act.LocalSeqno = SeqnoIll
		return
	}
	c.lastGlobal++
	c.lastLocal++
	act.GlobalSeqno = c.lastGlobal
	act.LocalSeqno = c.lastLocal
}

// deliverAction routes a fully assembled action by type (spec.md §4.5
// step 3).
func (c *Conn) deliverAction(act *Action) {
	switch act.Type {
	case ActFLOW:
		c.assignSeqno(act)
		d := decodeFlow(act.Payload)
		c.sendQ.SetFlow(d.Stop, d.Target)
		c.log.Logf(gcslog.CatFlow, "flow directive stop=%v target=%q", d.Stop, d.Target)
	case ActCOMMIT_CUT, ActJOIN, ActSYNC, ActSERVICE:
		c.assignSeqno(act)
		c.handleServiceAction(act)
	case ActSTATE_REQ:
		c.assignSeqno(act)
		c.handleStateReq(act)
	default: // ActDATA, ActERROR, ActUNKNOWN
		c.assignSeqno(act)
		c.routeDataAction(act)
	}
}

// routeDataAction fulfills a matching repl wait on self-delivery, or
// otherwise enqueues the action for recv() (spec.md §4.5 step 3, §4.3
// "repl bypasses the receive queue on self-delivery").
func (c *Conn) routeDataAction(act *Action) {
	if act.ReplTag != "" && c.replTbl.Fulfill(act.ReplTag, replwait.Result{
		GlobalSeqno: act.GlobalSeqno,
		LocalSeqno:  act.LocalSeqno,
	}) {
		return
	}
	c.pushRecv(*act)
}

// handleServiceAction implements the "Service Dispatch" component of
// spec.md §2: commit-cut/last-applied gossip, join, and sync.
func (c *Conn) handleServiceAction(act *Action) {
	switch act.Type {
	case ActCOMMIT_CUT:
		if c.confH != nil {
			c.confH.SetLastApplied(act.Origin, Seqno(decodeInt64(act.Payload)))
		}
	case ActJOIN:
		status := decodeInt32(act.Payload)
		c.mu.Lock()
		if c.state == StateJoiner && status >= 0 {
			c.state = StateJoined
		}
		c.mu.Unlock()
	case ActSYNC:
		c.mu.Lock()
		if c.state == StateJoined {
			c.state = StateSynced
		}
		c.mu.Unlock()
	case ActSERVICE:
		c.log.Logf(gcslog.CatRecv, "service action from %s", act.Origin)
	}
}

// handleStateReq implements spec.md §4.4's request_state_transfer
// delivery-time resolution: pick a donor deterministically from the
// current membership and, if this delivery corresponds to a request this
// Conn itself issued, wake the caller with the donor index and the
// action's own seqno as the skip seqno. Every member, donor included,
// still sees the STATE_REQ through Recv() (spec.md §4.5 step 3, scenario
// S6: "On node D, recv delivers a STATE_REQ action at seqno K"), so the
// requester's own wakeup is the only case that skips the Receive Queue.
func (c *Conn) handleStateReq(act *Action) {
	donor := c.chooseDonor(act.Origin)
	c.log.Logf(gcslog.CatStateXfer, "state transfer requested by %s, donor idx=%d", act.Origin, donor)

	if act.ReplTag != "" {
		c.stateReqMu.Lock()
		ch, ok := c.stateReqs[act.ReplTag]
		if ok {
			delete(c.stateReqs, act.ReplTag)
		}
		c.stateReqMu.Unlock()
		if ok {
			ch <- stateReqResult{donorIdx: donor, skipSeqno: act.GlobalSeqno, err: nil}
			return
		}
	}
	c.pushRecv(*act)
}

// chooseDonor deterministically picks the lowest-indexed member other
// than requester from the current, quorum-ordered membership. Every
// member computes the same donor from the same delivered STATE_REQ and
// CONF history, so the donor "observes itself as donor" simply by
// comparing donor against its own myIdx (spec.md §4.4).
func (c *Conn) chooseDonor(requester NodeID) int {
	for i, m := range c.members {
		if m != requester {
			return i
		}
	}
	return -1
}

// handleMembership implements the Configuration Handler hookup of
// spec.md §4.5/§4.6: turn a raw membership event into a CONF action,
// update local membership bookkeeping, and drive the OPEN_NON_PRIMARY /
// OPEN_PRIMARY transition and NON_PRIMARY repl-abort behavior of
// spec.md §4.4/§4.5 step 4.
func (c *Conn) handleMembership(ev transport.MembershipEvent) {
	raw := c.confH.Apply(ev, c.lastGlobal)
	conf, err := configh.DecodeConf(raw.Payload)
	if err != nil {
		c.log.Logf(gcslog.CatError, "malformed self-generated CONF payload: %v", err)
		return
	}

	c.members = conf.Members
	c.myIdx = conf.MyIdx
	c.confID = conf.ConfID

	c.lastLocal++
	act := raw
	act.LocalSeqno = c.lastLocal

	c.mu.Lock()
	if conf.ConfID >= 0 {
		c.pausedOrdered = false
		if c.state == StateOpenNonPrimary {
			c.state = StateOpenPrimary
		}
	} else {
		c.pausedOrdered = true
		if c.state != StateClosed {
			c.state = StateOpenNonPrimary
		}
	}
	c.mu.Unlock()

	if conf.ConfID < 0 {
		c.replTbl.AbortAll(newError(KindNotConnected, "non-primary configuration"))
		c.abortStateReqs(newError(KindNotConnected, "non-primary configuration"))
	}

	c.log.Logf(gcslog.CatConf, "conf_id=%d members=%v my_idx=%d st_required=%v",
		conf.ConfID, conf.Members, conf.MyIdx, conf.StRequired)
	c.pushRecv(act)
}

// onTransportFatal implements spec.md §7's Fatal propagation policy: the
// delivery thread synthesizes a NON_PRIMARY CONF, fails outstanding
// waiters, and the connection moves toward CLOSED.
func (c *Conn) onTransportFatal() {
	c.mu.Lock()
	c.pausedOrdered = true
	c.state = StateClosed
	c.mu.Unlock()

	c.log.Logf(gcslog.CatError, "transport reported fatal, closing connection")
	c.replTbl.AbortAll(newError(KindFatal, "transport gone"))
	c.abortStateReqs(newError(KindFatal, "transport gone"))
	c.pushRecv(Action{
		Type:        ActCONF,
		Payload:     configh.EncodeConf(c.lastGlobal, -1, c.confH.GroupUUID(), false, c.members, c.myIdx),
		GlobalSeqno: c.lastGlobal,
		LocalSeqno:  c.lastLocal,
	})
}

// encodeFlow/decodeFlow serialize a FlowDirective onto a FLOW action's
// payload (spec.md §4.3).
func encodeFlow(stop bool, target NodeID) []byte {
	b := make([]byte, 1+len(target))
	if stop {
		b[0] = 1
	}
	copy(b[1:], target)
	return b
}

func decodeFlow(b []byte) FlowDirective {
	if len(b) == 0 {
		return FlowDirective{}
	}
	return FlowDirective{Stop: b[0] != 0, Target: NodeID(b[1:])}
}
