// Package ntrip implements an NTRIP1-style client for CORS casters: plain
// HTTP GET handshake over TCP, streamed RTCM correction relay, and periodic
// GGA keep-alives.
package ntrip

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type State int

const (
	Stopped State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "stopped"
	}
}

// ErrNotStopped is returned by Start on a client that is already running.
var ErrNotStopped = errors.New("ntrip: client already started")

// ackMarker is the caster's acknowledgment that the correction stream
// follows. NTRIP1 casters answer with an ICY status line, not real HTTP.
const ackMarker = "ICY 200 OK"

const (
	defaultUserAgent   = "NTRIP gnssrover"
	defaultReadBuffer  = 1024
	defaultReadTimeout = 60 * time.Second
	defaultDialTimeout = 15 * time.Second
)

type Config struct {
	Host       string
	Port       int
	Mountpoint string

	// Optional credentials; when empty the request is sent unauthenticated.
	Username string
	Password string

	UserAgent      string
	ReadBufferSize int

	// ReadTimeout detects a silently dead caster; the deadline is re-armed
	// before every read.
	ReadTimeout time.Duration
	DialTimeout time.Duration
}

// Client relays correction bytes from one caster mountpoint. Lifecycle is
// Stopped → Connecting (Start) → Connected (on acknowledgment) → Stopped;
// any I/O failure is terminal and there is no automatic reconnect. Stop is
// idempotent and notifies the stop listener exactly once.
type Client struct {
	cfg           Config
	onCorrections func([]byte)
	onStopped     func(error)

	// dial is swapped out by tests.
	dial func(addr string, timeout time.Duration) (net.Conn, error)

	mu      sync.Mutex
	state   State
	conn    net.Conn
	done    chan struct{}
	writeCh chan []byte
}

func New(cfg Config, onCorrections func([]byte), onStopped func(error)) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBuffer
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Client{
		cfg:           cfg,
		onCorrections: onCorrections,
		onStopped:     onStopped,
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// Start begins the asynchronous connect and handshake. The caller learns
// the outcome through the state or the stop listener.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.state != Stopped {
		c.mu.Unlock()
		return ErrNotStopped
	}
	c.state = Connecting
	c.done = make(chan struct{})
	c.writeCh = make(chan []byte, 8)
	c.mu.Unlock()

	go c.run()
	return nil
}

// Stop closes the connection and notifies the stop listener once. Repeated
// calls are no-ops.
func (c *Client) Stop() {
	c.stop(nil)
}

// SendGGA queues one GGA sentence as a keep-alive. Only transmitted while
// Connected: sending during the handshake makes casters drop the
// connection. Write failures are swallowed.
func (c *Client) SendGGA(sentence string) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	ch := c.writeCh
	c.mu.Unlock()

	select {
	case ch <- []byte(sentence + "\r\n"):
	default:
		log.Warn("keep-alive backlog full, dropping GGA")
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// request builds the NTRIP1 request: a plain HTTP/1.0 GET for the
// mountpoint with either Basic credentials or an anonymous header set.
func (c *Client) request() string {
	req := "GET /" + c.cfg.Mountpoint + " HTTP/1.0\r\n" +
		"User-Agent: " + c.cfg.UserAgent + "\r\n"
	if c.cfg.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
		return req + "Authorization: Basic " + cred + "\r\n\r\n"
	}
	return req + "Accept: */*\r\nConnection: close\r\n\r\n"
}

func (c *Client) run() {
	conn, err := c.dial(c.addr(), c.cfg.DialTimeout)
	if err != nil {
		c.stop(fmt.Errorf("ntrip: connect %s: %w", c.addr(), err))
		return
	}

	c.mu.Lock()
	if c.state == Stopped {
		// Stopped while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	done, writeCh := c.done, c.writeCh
	c.mu.Unlock()

	go writeLoop(conn, writeCh, done)

	if _, err := conn.Write([]byte(c.request())); err != nil {
		c.stop(fmt.Errorf("ntrip: send request: %w", err))
		return
	}
	log.Info("ntrip request sent", "caster", c.addr(), "mountpoint", c.cfg.Mountpoint)

	buf := make([]byte, c.cfg.ReadBufferSize)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			c.stop(fmt.Errorf("ntrip: read: %w", err))
			return
		}
		if n == 0 {
			continue
		}
		chunk := buf[:n]

		if c.State() == Connecting && bytes.Contains(chunk, []byte(ackMarker)) {
			// The acknowledgment read is protocol, not correction payload.
			c.mu.Lock()
			if c.state == Connecting {
				c.state = Connected
			}
			c.mu.Unlock()
			log.Info("ntrip stream started", "caster", c.addr(), "mountpoint", c.cfg.Mountpoint)
			continue
		}

		if c.onCorrections != nil {
			c.onCorrections(append([]byte(nil), chunk...))
		}
	}
}

func (c *Client) stop(reason error) {
	c.mu.Lock()
	if c.state == Stopped {
		c.mu.Unlock()
		return
	}
	c.state = Stopped
	conn := c.conn
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if reason != nil {
		log.Error("ntrip session stopped", "caster", c.addr(), "reason", reason)
	} else {
		log.Info("ntrip session stopped", "caster", c.addr())
	}
	if c.onStopped != nil {
		c.onStopped(reason)
	}
}

func writeLoop(conn net.Conn, writeCh <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case b := <-writeCh:
			if _, err := conn.Write(b); err != nil {
				log.Warn("ntrip keep-alive write failed", "err", err)
			}
		}
	}
}
