package transport

import (
	"encoding/gob"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/codership/gcs/gcstypes"
)

// Gcomm is a real TCP-based GroupTransport. It follows the reactor/socket-
// registry design note of spec.md §9 (abstracted from
// original_source/gcomm/src/asio_protonet.cpp): a single registry maps
// SocketId -> socket, owned exclusively by the connection-handling
// goroutines; nothing outside this file ever touches a net.Conn directly.
//
// Address form: "listen=HOST:PORT;peers=HOST1:PORT1,HOST2:PORT2". There is
// no sequencer: Broadcast delivers to the local node and writes directly to
// every connected peer, so fragments keep per-source FIFO order but
// fragments from different sources are not totally ordered across nodes.
type Gcomm struct {
	self gcstypes.NodeID

	mu       sync.Mutex
	sockets  map[uint64]*gcommSocket
	nextID   uint64
	byPeer   map[gcstypes.NodeID]uint64
	primary  bool
	wantPeer int // number of configured peers, for a naive quorum check

	messages chan gcstypes.Fragment
	memb     chan MembershipEvent
	closed   chan struct{}
	closeOne sync.Once
	ln       net.Listener
}

type gcommSocket struct {
	id     uint64
	conn   net.Conn
	peer   gcstypes.NodeID
	enc    *gob.Encoder
	mu     sync.Mutex // serializes writes to enc, per spec.md §5 "transport ... internally serialises writes"
}

type handshake struct {
	NodeID gcstypes.NodeID
}

func init() {
	Register("gcomm", func(address string) (GroupTransport, error) {
		listenAddr, peerAddrs, self, err := parseGcommAddress(address)
		if err != nil {
			return nil, err
		}
		return NewGcomm(listenAddr, peerAddrs, self)
	})
}

func parseGcommAddress(address string) (listen string, peers []string, self gcstypes.NodeID, err error) {
	parts := strings.Split(address, ";")
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p, "listen="):
			listen = strings.TrimPrefix(p, "listen=")
		case strings.HasPrefix(p, "peers="):
			rest := strings.TrimPrefix(p, "peers=")
			if rest != "" {
				peers = strings.Split(rest, ",")
			}
		}
	}
	if listen == "" {
		return "", nil, "", gcstypes.NewConfigError("gcomm backend requires listen=HOST:PORT")
	}
	self = gcstypes.NodeID(listen)
	return listen, peers, self, nil
}

// NewGcomm starts listening on listenAddr and dials each address in
// peerAddrs, exchanging a handshake so both ends learn the other's node
// identity (spec.md §6.3 membership callback).
func NewGcomm(listenAddr string, peerAddrs []string, self gcstypes.NodeID) (*Gcomm, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, gcstypes.NewError(gcstypes.KindFatal, "gcomm: listen: "+err.Error())
	}
	g := &Gcomm{
		self:     self,
		sockets:  make(map[uint64]*gcommSocket),
		byPeer:   make(map[gcstypes.NodeID]uint64),
		wantPeer: len(peerAddrs),
		messages: make(chan gcstypes.Fragment, 4096),
		memb:     make(chan MembershipEvent, 16),
		closed:   make(chan struct{}),
		ln:       ln,
	}

	go g.acceptLoop()
	for _, addr := range peerAddrs {
		go g.dial(addr)
	}
	return g, nil
}

func (g *Gcomm) acceptLoop() {
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			return // listener closed
		}
		go g.handshakeInbound(conn)
	}
}

func (g *Gcomm) dial(addr string) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return // best-effort; real deployments retry, out of scope here
	}
	g.handshakeOutbound(conn)
}

func (g *Gcomm) handshakeOutbound(conn net.Conn) {
	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)
	if err := enc.Encode(&handshake{NodeID: g.self}); err != nil {
		conn.Close()
		return
	}
	var hs handshake
	if err := dec.Decode(&hs); err != nil {
		conn.Close()
		return
	}
	g.registerSocket(conn, hs.NodeID, enc, dec)
}

func (g *Gcomm) handshakeInbound(conn net.Conn) {
	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)
	var hs handshake
	if err := dec.Decode(&hs); err != nil {
		conn.Close()
		return
	}
	if err := enc.Encode(&handshake{NodeID: g.self}); err != nil {
		conn.Close()
		return
	}
	g.registerSocket(conn, hs.NodeID, enc, dec)
}

func (g *Gcomm) registerSocket(conn net.Conn, peer gcstypes.NodeID, enc *gob.Encoder, dec *gob.Decoder) {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	sock := &gcommSocket{id: id, conn: conn, peer: peer, enc: enc}
	g.sockets[id] = sock
	g.byPeer[peer] = id
	g.mu.Unlock()

	g.announceMembership()
	go g.readLoop(sock, dec)
}

func (g *Gcomm) readLoop(sock *gcommSocket, dec *gob.Decoder) {
	for {
		var f gcstypes.Fragment
		if err := dec.Decode(&f); err != nil {
			g.dropSocket(sock.id)
			return
		}
		select {
		case g.messages <- f:
		case <-g.closed:
			return
		}
	}
}

func (g *Gcomm) dropSocket(id uint64) {
	g.mu.Lock()
	sock, ok := g.sockets[id]
	if ok {
		delete(g.sockets, id)
		delete(g.byPeer, sock.peer)
	}
	g.mu.Unlock()
	if ok {
		sock.conn.Close()
		g.announceMembership()
	}
}

func (g *Gcomm) announceMembership() {
	g.mu.Lock()
	members := make([]gcstypes.NodeID, 0, len(g.byPeer)+1)
	members = append(members, g.self)
	for peer := range g.byPeer {
		members = append(members, peer)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	myIdx := 0
	for i, m := range members {
		if m == g.self {
			myIdx = i
			break
		}
	}
	// naive liveness rule: primary once self plus its connected peers form
	// a strict majority of the configured group (self plus every
	// configured peer), matching spec.md §6.3's requirement that
	// the backend itself decides primary-ness.
	primary := len(g.byPeer) >= (g.wantPeer+1)/2
	g.primary = primary
	g.mu.Unlock()

	select {
	case g.memb <- MembershipEvent{Members: members, MyIdx: myIdx, Primary: primary}:
	case <-g.closed:
	}
}

func (g *Gcomm) Broadcast(f gcstypes.Fragment) error {
	select {
	case g.messages <- f: // self-delivery: broadcast includes the sender
	case <-g.closed:
		return gcstypes.NewError(gcstypes.KindFatal, "gcomm: transport closed")
	}

	g.mu.Lock()
	targets := make([]*gcommSocket, 0, len(g.sockets))
	for _, s := range g.sockets {
		targets = append(targets, s)
	}
	g.mu.Unlock()

	var firstErr error
	for _, s := range targets {
		s.mu.Lock()
		err := s.enc.Encode(&f)
		s.mu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return gcstypes.NewError(gcstypes.KindFatal, "gcomm: broadcast: "+firstErr.Error())
	}
	return nil
}

func (g *Gcomm) Messages() <-chan gcstypes.Fragment { return g.messages }
func (g *Gcomm) Membership() <-chan MembershipEvent { return g.memb }
func (g *Gcomm) Self() gcstypes.NodeID              { return g.self }

func (g *Gcomm) Close() error {
	g.closeOne.Do(func() {
		close(g.closed)
		g.ln.Close()
		g.mu.Lock()
		for _, s := range g.sockets {
			s.conn.Close()
		}
		g.mu.Unlock()
	})
	return nil
}
