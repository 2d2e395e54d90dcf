package gcs

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/codership/gcs/assembler"
	"github.com/codership/gcs/configh"
	"github.com/codership/gcs/gcslog"
	"github.com/codership/gcs/recvqueue"
	"github.com/codership/gcs/replwait"
	"github.com/codership/gcs/sendqueue"
	"github.com/codership/gcs/transport"
)

// backendScheme extracts the "type" of a "type://address" backend URL
// (spec.md §6.2), since Open only needs the scheme to combine with its
// own channel argument.
func backendScheme(backendURL string) (string, error) {
	u, err := url.Parse(backendURL)
	if err != nil || u.Scheme == "" {
		return "", NewConfigError(fmt.Sprintf("malformed backend url %q", backendURL))
	}
	return u.Scheme, nil
}

// State is one node of the connection state machine (spec.md §4.4).
type State int

const (
	StateCreated State = iota
	StateInited
	StateOpenNonPrimary
	StateOpenPrimary
	StateJoiner
	StateJoined
	StateSynced
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateInited:
		return "INITED"
	case StateOpenNonPrimary:
		return "OPEN_NON_PRIMARY"
	case StateOpenPrimary:
		return "OPEN_PRIMARY"
	case StateJoiner:
		return "JOINER"
	case StateJoined:
		return "JOINED"
	case StateSynced:
		return "SYNCED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DefaultPktSize matches the original's GCS_DEFAULT_PKT_SIZE (gu_to.h).
const DefaultPktSize = 64500

// DefaultMaxActionSize bounds a single reassembled action (spec.md §4.2)
// well above any realistic single write while still catching a
// runaway/malicious source before it grows the assembly buffer without
// bound: matches the original's GCS_MAX_ACT_SIZE default of 2GB scaled
// down to a saner default for the fragment sizes this package targets.
const DefaultMaxActionSize = 128 * 1024 * 1024

// Config carries the ambient knobs of spec.md §6.2. The zero value is not
// usable; build one with DefaultConfig and override fields, or construct
// directly supplying every field.
type Config struct {
	PktSize       int
	MaxActionSize int
	Debug         bool
	SelfTstamp    bool
	LogSink       *gcslog.Sink
	FlowPolicy    sendqueue.FlowPolicy
	LagThreshold  Seqno
}

// DefaultConfig returns a Config with spec.md §6.2's documented defaults.
func DefaultConfig() Config {
	return Config{
		PktSize:       DefaultPktSize,
		MaxActionSize: DefaultMaxActionSize,
		FlowPolicy:    sendqueue.FlowBlock,
		LagThreshold:  1000,
	}
}

// Conn is one application's handle onto the group: it owns the send/recv
// path, the repl-wait table, the Configuration Handler, and the transport
// backend, and drives the connection state machine of spec.md §4.4.
type Conn struct {
	cfg        Config
	log        *gcslog.Sink
	backendURL string

	mu    sync.Mutex
	state State

	self     NodeID
	initUUID GroupUUID
	tr       transport.GroupTransport

	asm     *assembler.Assembler
	sendQ   *sendqueue.Queue
	recvQ   *recvqueue.Queue
	replTbl *replwait.Table
	confH   *configh.Handler

	lastGlobal    Seqno
	lastLocal     Seqno
	members       []NodeID
	myIdx         int
	confID        int64
	pausedOrdered bool

	stateReqMu sync.Mutex
	stateReqs  map[string]chan stateReqResult
	nextTagID  uint64

	dispatchStop chan struct{}
	dispatchDone chan struct{}
}

type stateReqResult struct {
	donorIdx  int
	skipSeqno Seqno
	err       error
}

// Create allocates a Conn (spec.md §6.1's create(backend_url)) but does
// not start the transport; call Init then Open. backendURL is retained
// rather than dialed here, and Open uses only its "type" scheme: a
// malformed URL or an unknown backend type is reported by Open, not by
// Create.
func Create(backendURL string, cfg Config) (*Conn, error) {
	if cfg.PktSize <= 0 {
		cfg.PktSize = DefaultPktSize
	}
	if cfg.MaxActionSize <= 0 {
		cfg.MaxActionSize = DefaultMaxActionSize
	}
	log := cfg.LogSink
	if log == nil {
		log = gcslog.New(gcslog.WithDebug(cfg.Debug), gcslog.WithSelfTstamp(cfg.SelfTstamp))
	}
	return &Conn{
		cfg:        cfg,
		log:        log,
		state:      StateCreated,
		confID:     -1,
		backendURL: backendURL,
		stateReqs:  make(map[string]chan stateReqResult),
	}, nil
}

// Init sets the starting seqno/uuid hint the connection announces to the
// group (spec.md §6.1 init(conn, seqno, uuid)). Only legal in
// CREATED/CLOSED.
func (c *Conn) Init(seqno Seqno, uuid GroupUUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateCreated && c.state != StateClosed {
		return newError(KindBusy, "init: connection is open")
	}
	c.lastGlobal = seqno
	c.lastLocal = SeqnoNil
	c.state = StateInited
	c.initUUID = uuid
	return nil
}

// Open dials the backend type chosen at Create on channel, moves the
// connection to OPEN_NON_PRIMARY, and
// starts the ordered-delivery loop (spec.md §4.4 open(channel)). The
// first delivered CONF with conf_id >= 0 promotes the connection to
// OPEN_PRIMARY.
//
// channel names the group to join within the backend selected at Create
// (spec.md §4.4 open(channel)); for the "dummy" backend it is the shared
// in-process hub name, for "gcomm" the listen/peers address string.
func (c *Conn) Open(channel string) error {
	c.mu.Lock()
	if c.state != StateInited {
		c.mu.Unlock()
		return newError(KindBadState, "open: connection not inited")
	}
	scheme, err := backendScheme(c.backendURL)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	tr, err := transport.Open(scheme + "://" + channel)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tr = tr
	c.self = tr.Self()
	c.confH = configh.New(c.self, c.initUUID, c.cfg.LagThreshold)
	c.asm = assembler.New(c.cfg.MaxActionSize)
	c.sendQ = sendqueue.New(c.self, c.cfg.PktSize, c.cfg.FlowPolicy, tr)
	c.recvQ = recvqueue.New(1024)
	c.replTbl = replwait.New()
	c.state = StateOpenNonPrimary
	c.dispatchStop = make(chan struct{})
	c.dispatchDone = make(chan struct{})
	c.mu.Unlock()

	go c.dispatchLoop()
	return nil
}

func (c *Conn) nextTag() string {
	id := atomic.AddUint64(&c.nextTagID, 1)
	return fmt.Sprintf("%s-%d", c.self, id)
}

// Send injects a DATA (or application-chosen) action without waiting for
// its ordered delivery (spec.md §6.1 send(conn, buf, size, type)).
func (c *Conn) Send(buf []byte, typ ActionType) (int, error) {
	c.mu.Lock()
	q := c.sendQ
	open := c.state == StateOpenPrimary || c.state == StateJoiner || c.state == StateJoined || c.state == StateSynced
	c.mu.Unlock()
	if q == nil || !open {
		return 0, newError(KindNotConnected, "send: not in a primary configuration")
	}
	return q.Send(buf, typ, "")
}

// Repl injects an action and blocks until its self-delivery through the
// ordered stream fills in its seqnos (spec.md §6.1 repl, §4.3's "repl
// bypasses the receive queue on self-delivery" note).
func (c *Conn) Repl(buf []byte, typ ActionType) (Seqno, Seqno, error) {
	c.mu.Lock()
	q := c.sendQ
	tbl := c.replTbl
	open := c.state == StateOpenPrimary || c.state == StateJoiner || c.state == StateJoined || c.state == StateSynced
	c.mu.Unlock()
	if q == nil || tbl == nil || !open {
		return SeqnoIll, SeqnoIll, newError(KindNotConnected, "repl: not in a primary configuration")
	}

	tag := c.nextTag()
	waitCh := tbl.Register(tag)
	if _, err := q.Send(buf, typ, tag); err != nil {
		tbl.Cancel(tag)
		return SeqnoIll, SeqnoIll, err
	}
	res := <-waitCh
	return res.GlobalSeqno, res.LocalSeqno, res.Err
}

// Recv blocks until the next non-repl ordered action is available or the
// connection closes (spec.md §6.1 recv(conn)).
func (c *Conn) Recv() (Action, error) {
	c.mu.Lock()
	q := c.recvQ
	c.mu.Unlock()
	if q == nil {
		return Action{}, newError(KindNotConnected, "recv: connection not open")
	}
	return q.Pop()
}

// RequestStateTransfer broadcasts a STATE_REQ and blocks until its
// ordered delivery assigns a donor and a skip seqno (spec.md §4.4, §6.1
// request_state_transfer). Only valid in OPEN_PRIMARY.
func (c *Conn) RequestStateTransfer(req []byte) (int, Seqno, error) {
	c.mu.Lock()
	if c.state != StateOpenPrimary {
		c.mu.Unlock()
		return -1, SeqnoIll, newError(KindBadState, "request_state_transfer: not OPEN_PRIMARY")
	}
	q := c.sendQ
	c.state = StateJoiner
	c.mu.Unlock()

	tag := c.nextTag()
	ch := make(chan stateReqResult, 1)
	c.stateReqMu.Lock()
	c.stateReqs[tag] = ch
	c.stateReqMu.Unlock()

	if _, err := q.Send(req, ActSTATE_REQ, tag); err != nil {
		c.stateReqMu.Lock()
		delete(c.stateReqs, tag)
		c.stateReqMu.Unlock()
		return -1, SeqnoIll, err
	}
	res := <-ch
	return res.donorIdx, res.skipSeqno, res.err
}

// Join broadcasts a JOIN action carrying status, called by the donor once
// state transfer to the joiner completes (spec.md §4.4 join(status)).
func (c *Conn) Join(status int) error {
	c.mu.Lock()
	q := c.sendQ
	c.mu.Unlock()
	if q == nil {
		return newError(KindNotConnected, "join: connection not open")
	}
	_, err := q.Send(encodeInt32(status), ActJOIN, "")
	return err
}

func encodeInt32(v int) []byte {
	b := make([]byte, 4)
	u := uint32(v)
	b[0] = byte(u >> 24)
	b[1] = byte(u >> 16)
	b[2] = byte(u >> 8)
	b[3] = byte(u)
	return b
}

func decodeInt32(b []byte) int {
	if len(b) < 4 {
		return 0
	}
	return int(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// SetLastApplied gossips this node's applied progress by broadcasting a
// COMMIT_CUT action (spec.md §6.1 set_last_applied, feeding §13's slave-queue-lag
// and st_required checks).
func (c *Conn) SetLastApplied(seqno Seqno) error {
	c.mu.Lock()
	q := c.sendQ
	c.mu.Unlock()
	if q == nil {
		return newError(KindNotConnected, "set_last_applied: connection not open")
	}
	_, err := q.Send(encodeInt64(int64(seqno)), ActCOMMIT_CUT, "")
	return err
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	u := uint64(v)
	for i := 7; i >= 0; i-- {
		b[i] = byte(u)
		u >>= 8
	}
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) < 8 {
		return 0
	}
	var u uint64
	for i := 0; i < 8; i++ {
		u = u<<8 | uint64(b[i])
	}
	return int64(u)
}

// Wait implements spec.md §6.1 wait(conn): 1 if this node's own applied
// seqno lags the highest applied seqno reported in the group by more than
// Config.LagThreshold, 0 if not. Lag of other members is not considered.
func (c *Conn) Wait() (int, error) {
	c.mu.Lock()
	h := c.confH
	c.mu.Unlock()
	if h == nil {
		return 0, newError(KindNotConnected, "wait: connection not inited")
	}
	if h.Wait() {
		return 1, nil
	}
	return 0, nil
}

// SetFlow broadcasts a FLOW directive (spec.md §4.3). It is not itself
// ordered (FLOW carries SeqnoIll, per spec.md §4.5 step 1) but still
// travels the ordered stream so every member applies it at the same
// point relative to DATA traffic.
func (c *Conn) SetFlow(stop bool, target NodeID) error {
	c.mu.Lock()
	q := c.sendQ
	c.mu.Unlock()
	if q == nil {
		return newError(KindNotConnected, "set_flow: connection not open")
	}
	_, err := q.Send(encodeFlow(stop, target), ActFLOW, "")
	return err
}

// SetPktSize overrides the fragmentation target (spec.md §13's
// gcs_conf_set_pkt_size supplement).
func (c *Conn) SetPktSize(n int) {
	c.mu.Lock()
	c.cfg.PktSize = n
	q := c.sendQ
	c.mu.Unlock()
	if q != nil {
		q.SetPktSize(n)
	}
}

// Self returns this connection's own node identity, valid once Open has
// returned successfully.
func (c *Conn) Self() NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// State reports the connection's current state machine node.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close drains the transport, fails outstanding repls with Fatal
// (ECONNABORTED) and state-transfer waiters with NotConnected, empties
// the receive queue, and transitions
// to CLOSED (spec.md §4.4 close()). Idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	tr := c.tr
	stop := c.dispatchStop
	done := c.dispatchDone
	c.state = StateClosed
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if tr != nil {
		tr.Close()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	tbl := c.replTbl
	q := c.recvQ
	c.mu.Unlock()
	if tbl != nil {
		tbl.AbortAll(newError(KindFatal, "close: connection aborted"))
	}
	c.abortStateReqs(newError(KindNotConnected, "close: connection aborted"))
	if q != nil {
		q.Close()
	}
	return nil
}

// Destroy releases the Conn. Only legal in CLOSED (spec.md §4.4).
func (c *Conn) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		return newError(KindBusy, "destroy: connection not closed")
	}
	return nil
}

func (c *Conn) abortStateReqs(err error) {
	c.stateReqMu.Lock()
	reqs := c.stateReqs
	c.stateReqs = make(map[string]chan stateReqResult)
	c.stateReqMu.Unlock()
	for _, ch := range reqs {
		ch <- stateReqResult{donorIdx: -1, skipSeqno: SeqnoIll, err: err}
	}
}
