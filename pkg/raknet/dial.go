package raknet

import (
	"fmt"
	"net"
	"time"

	"github.com/araex/railgunnet-go/internal/railtransport"
)

// Dial opens a UDP socket to addr, runs the open-connection handshake
// (REQUEST_1/REPLY_1/REQUEST_2/REPLY_2, source/protocol/raknet.go's offline
// handshake shape minus its SA-MP GUID/security-cookie fields, which this
// engine has no use for), and returns a Conn ready to hand to
// railroom.Client.SetPeer alongside the returned Inbox.
func Dial(addr string) (*Conn, *railtransport.Inbox, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("raknet: resolve %s: %w", addr, err)
	}
	udpConn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, nil, fmt.Errorf("raknet: dial %s: %w", addr, err)
	}

	if _, err := handshakeClient(udpConn); err != nil {
		udpConn.Close()
		return nil, nil, err
	}

	inbox := &railtransport.Inbox{}
	conn := newConn(
		func(data []byte) error { _, err := udpConn.Write(data); return err },
		udpConn.Close,
		inbox,
	)
	conn.startBackgroundLoops()
	go conn.clientReadLoop(udpConn)

	return conn, inbox, nil
}

// handshakeClient drives the four-step handshake synchronously, before the
// Conn's async read loop exists. It returns the connection id the server
// assigned, echoed back in REPLY_2 purely so both sides can log a matching
// value; nothing downstream depends on it.
func handshakeClient(udpConn *net.UDPConn) (uint64, error) {
	deadline := time.Now().Add(HandshakeTimeout)
	if err := udpConn.SetDeadline(deadline); err != nil {
		return 0, fmt.Errorf("raknet: set handshake deadline: %w", err)
	}
	defer udpConn.SetDeadline(time.Time{})

	req1 := make([]byte, 3)
	req1[0] = packetOpenConnectionRequest1
	req1[1] = byte(DefaultMTU >> 8)
	req1[2] = byte(DefaultMTU & 0xFF)
	if _, err := udpConn.Write(req1); err != nil {
		return 0, fmt.Errorf("raknet: send request1: %w", err)
	}

	buf := make([]byte, 64)
	if err := readExpected(udpConn, buf, packetOpenConnectionReply1); err != nil {
		return 0, err
	}

	req2 := []byte{packetOpenConnectionRequest2}
	if _, err := udpConn.Write(req2); err != nil {
		return 0, fmt.Errorf("raknet: send request2: %w", err)
	}

	n, err := udpConn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("raknet: await reply2: %w", err)
	}
	if n < 9 || buf[0] != packetOpenConnectionReply2 {
		return 0, fmt.Errorf("raknet: unexpected handshake reply 0x%02x", buf[0])
	}
	return uint64BE(buf[1:9]), nil
}

func readExpected(udpConn *net.UDPConn, buf []byte, want byte) error {
	n, err := udpConn.Read(buf)
	if err != nil {
		return fmt.Errorf("raknet: handshake read: %w", err)
	}
	if n < 1 || buf[0] != want {
		return fmt.Errorf("raknet: expected handshake packet 0x%02x, got 0x%02x", want, buf[0])
	}
	return nil
}

// clientReadLoop is the receive goroutine for a dedicated client socket:
// every datagram on this socket belongs to this one Conn, so no address
// demuxing is needed (that's the Listener's job, server-side).
func (c *Conn) clientReadLoop(udpConn *net.UDPConn) {
	buf := make([]byte, DefaultMTU)
	for {
		n, err := udpConn.Read(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.handleIncoming(data)
	}
}
