package publish

import (
	"fmt"
	"net"

	"github.com/charmbracelet/log"

	"gnssrover/internal/gnss"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

// UDP sends each fix as one JSON datagram to a fixed destination.
type UDP struct {
	dest string
	conn udpConn
}

func NewUDP(dest string) (*UDP, error) {
	return newUDP(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newUDP(dest string,
	resolve func(network, address string) (*net.UDPAddr, error),
	dial func(network string, laddr, raddr *net.UDPAddr) (udpConn, error),
) (*UDP, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	return &UDP{dest: dest, conn: conn}, nil
}

func (u *UDP) Publish(p gnss.Position) {
	b, err := Encode(p)
	if err != nil {
		log.Warn("fix encode failed", "err", err)
		return
	}
	if _, err := u.conn.Write(b); err != nil {
		log.Warn("udp fix send failed", "dest", u.dest, "err", err)
	}
}

func (u *UDP) Close() error {
	if u.conn == nil {
		return nil
	}
	return u.conn.Close()
}
