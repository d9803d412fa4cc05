package raknet

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/araex/railgunnet-go/internal/railtransport"
)

// AcceptFunc is called once per remote address that completes the
// handshake, handing the caller a ready Conn and Inbox pair to wire into
// railroom.Server.AddClient alongside a stable per-session identifier.
type AcceptFunc func(conn *Conn, inbox *railtransport.Inbox, identifier string)

// handshaking is the state kept for a remote address that has started but
// not finished the four-step handshake.
type handshaking struct {
	connectionId uint64
	startedAt    time.Time
}

// Listener binds one shared UDP socket and demuxes incoming datagrams by
// remote address into per-address Conns, the teacher's
// source/server/server.go one-socket-ReadFromUDP-loop shape generalized
// away from its single global game-packet dispatch switch.
type Listener struct {
	socket   *net.UDPConn
	onAccept AcceptFunc

	nextConnectionId atomic.Uint64

	mu         sync.Mutex
	sessions   map[string]*Conn
	handshakes map[string]*handshaking
	running    bool
}

// Listen binds addr and returns a Listener. Call Start to begin serving.
func Listen(addr string, onAccept AcceptFunc) (*Listener, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("raknet: resolve %s: %w", addr, err)
	}
	socket, err := net.ListenUDP("udp", raddr)
	if err != nil {
		return nil, fmt.Errorf("raknet: listen %s: %w", addr, err)
	}
	return &Listener{
		socket:     socket,
		onAccept:   onAccept,
		sessions:   make(map[string]*Conn),
		handshakes: make(map[string]*handshaking),
	}, nil
}

// Start launches the read loop and the session-cleanup sweep. It returns
// once Close is called.
func (l *Listener) Start() error {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()

	go l.cleanupLoop()
	return l.readLoop()
}

// Addr returns the local address the listener is bound to, e.g. for a
// client that dialed port 0 to discover the port the kernel assigned.
func (l *Listener) Addr() string { return l.socket.LocalAddr().String() }

// Close stops the read loop and closes every live session.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.running = false
	sessions := make([]*Conn, 0, len(l.sessions))
	for _, c := range l.sessions {
		sessions = append(sessions, c)
	}
	l.mu.Unlock()

	for _, c := range sessions {
		_ = c.Close()
	}
	return l.socket.Close()
}

func (l *Listener) readLoop() error {
	buf := make([]byte, DefaultMTU)
	for {
		n, raddr, err := l.socket.ReadFromUDP(buf)
		if err != nil {
			l.mu.Lock()
			running := l.running
			l.mu.Unlock()
			if !running {
				return nil
			}
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		l.dispatch(data, raddr)
	}
}

func (l *Listener) dispatch(data []byte, raddr *net.UDPAddr) {
	if len(data) == 0 {
		return
	}
	key := raddr.String()

	l.mu.Lock()
	conn, established := l.sessions[key]
	l.mu.Unlock()
	if established {
		conn.handleIncoming(data)
		return
	}

	l.handleHandshake(data, raddr, key)
}

func (l *Listener) handleHandshake(data []byte, raddr *net.UDPAddr, key string) {
	switch data[0] {
	case packetOpenConnectionRequest1:
		connectionId := l.nextConnectionId.Add(1)
		l.mu.Lock()
		l.handshakes[key] = &handshaking{connectionId: connectionId, startedAt: time.Now()}
		l.mu.Unlock()

		reply := make([]byte, 3)
		reply[0] = packetOpenConnectionReply1
		reply[1] = byte(DefaultMTU >> 8)
		reply[2] = byte(DefaultMTU & 0xFF)
		l.writeTo(reply, raddr)

	case packetOpenConnectionRequest2:
		l.mu.Lock()
		hs, ok := l.handshakes[key]
		if ok {
			delete(l.handshakes, key)
		}
		l.mu.Unlock()
		if !ok {
			return
		}

		reply := make([]byte, 9)
		reply[0] = packetOpenConnectionReply2
		putUint64BE(reply[1:9], hs.connectionId)
		l.writeTo(reply, raddr)

		l.acceptSession(raddr, key)
	}
}

func (l *Listener) acceptSession(raddr *net.UDPAddr, key string) {
	inbox := &railtransport.Inbox{}
	conn := newConn(
		func(data []byte) error { return l.writeTo(data, raddr) },
		func() error {
			l.mu.Lock()
			delete(l.sessions, key)
			l.mu.Unlock()
			return nil
		},
		inbox,
	)

	l.mu.Lock()
	l.sessions[key] = conn
	l.mu.Unlock()

	conn.startBackgroundLoops()
	if l.onAccept != nil {
		l.onAccept(conn, inbox, key)
	}
}

func (l *Listener) writeTo(data []byte, raddr *net.UDPAddr) error {
	_, err := l.socket.WriteToUDP(data, raddr)
	return err
}

func (l *Listener) cleanupLoop() {
	ticker := time.NewTicker(SessionTimeout / 3)
	defer ticker.Stop()
	for {
		l.mu.Lock()
		running := l.running
		l.mu.Unlock()
		if !running {
			return
		}
		<-ticker.C
		l.sweepStaleSessions()
	}
}

func (l *Listener) sweepStaleSessions() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, conn := range l.sessions {
		if conn.isClosed() || conn.idleSince() > SessionTimeout {
			delete(l.sessions, key)
			go conn.Close()
		}
	}
	for key, hs := range l.handshakes {
		if time.Since(hs.startedAt) > HandshakeTimeout {
			delete(l.handshakes, key)
		}
	}
}
