package raknet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/araex/railgunnet-go/internal/railtransport"
)

// ErrClosed is returned by SendPayload once a Conn has been closed.
var ErrClosed = errors.New("raknet: connection closed")

// Conn is one established session, speaking to a single remote address.
// It implements railtransport.Transport. A client gets its own dedicated
// *net.UDPConn (via Dial); a server multiplexes many Conns over one shared
// socket, writing each through the address-bound writeTo closure a
// Listener hands it (source/server/server.go's one-socket-many-sessions
// shape, minus its game-packet dispatch switch).
type Conn struct {
	write func(data []byte) error
	close func() error
	inbox *railtransport.Inbox

	stopOnce sync.Once
	stopCh   chan struct{}

	mu           sync.Mutex
	closed       bool
	nextPingId   uint32
	pingSentAt   map[uint32]time.Time
	rttSeconds   float64
	haveRTT      bool
	lastActivity time.Time
}

func newConn(write func([]byte) error, closeFn func() error, inbox *railtransport.Inbox) *Conn {
	return &Conn{
		write:        write,
		close:        closeFn,
		inbox:        inbox,
		stopCh:       make(chan struct{}),
		pingSentAt:   make(map[uint32]time.Time),
		lastActivity: time.Now(),
	}
}

// startBackgroundLoops launches the periodic ping goroutine. Both Dial and
// Listener call this once the handshake completes.
func (c *Conn) startBackgroundLoops() {
	go c.pingLoop()
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sendPing()
		}
	}
}

func (c *Conn) sendPing() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.nextPingId++
	id := c.nextPingId
	c.pingSentAt[id] = time.Now()
	c.mu.Unlock()

	buf := make([]byte, 5)
	buf[0] = packetPing
	putUint32BE(buf[1:5], id)
	_ = c.write(buf)
}

// handleIncoming dispatches one demuxed, already-this-session datagram.
// Ping/pong/disconnect are handled here and never surfaced to the engine;
// packetUserData is handed to Inbox with its tag byte stripped, and any
// other tag is ignored.
func (c *Conn) handleIncoming(data []byte) {
	if len(data) == 0 {
		return
	}
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()

	switch data[0] {
	case packetPing:
		if len(data) < 5 {
			return
		}
		reply := make([]byte, 5)
		reply[0] = packetPong
		copy(reply[1:5], data[1:5])
		_ = c.write(reply)
	case packetPong:
		if len(data) < 5 {
			return
		}
		id := uint32BE(data[1:5])
		c.recordPong(id)
	case packetDisconnect:
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	case packetUserData:
		c.inbox.Push(append([]byte(nil), data[1:]...))
	}
}

func (c *Conn) recordPong(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sentAt, ok := c.pingSentAt[id]
	if !ok {
		return
	}
	delete(c.pingSentAt, id)
	rtt := time.Since(sentAt).Seconds()
	if !c.haveRTT {
		c.rttSeconds = rtt
		c.haveRTT = true
		return
	}
	// Exponential smoothing, the same shape as a typical RTT estimator:
	// fold in 1/8th of each new sample.
	c.rttSeconds += (rtt - c.rttSeconds) / 8
}

// SendPayload implements railtransport.Transport.
func (c *Conn) SendPayload(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	framed := make([]byte, len(data)+1)
	framed[0] = packetUserData
	copy(framed[1:], data)
	if err := c.write(framed); err != nil {
		return fmt.Errorf("raknet: send: %w", err)
	}
	return nil
}

// Ping implements railtransport.Transport.
func (c *Conn) Ping() (seconds float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rttSeconds, c.haveRTT
}

// Close implements railtransport.Transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.write([]byte{packetDisconnect})
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.close != nil {
		return c.close()
	}
	return nil
}

// idleSince reports how long it has been since the last received packet,
// for a Listener's session-cleanup sweep.
func (c *Conn) idleSince() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity)
}

// isClosed reports whether Close (locally) or a disconnect packet (from the
// remote) has already retired this Conn.
func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
