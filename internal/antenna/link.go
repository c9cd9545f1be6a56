// Package antenna owns the serial connection to an external GNSS antenna:
// the connect/start/stop lifecycle, the blocking read loop feeding the NMEA
// pipeline, and the best-effort correction sink.
package antenna

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"

	"gnssrover/internal/gnss"
	"gnssrover/internal/nmea"
)

type State int

const (
	Stopped State = iota
	Connected
	Started
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Started:
		return "started"
	default:
		return "stopped"
	}
}

var (
	ErrNotStopped   = errors.New("antenna: link already connected")
	ErrNotConnected = errors.New("antenna: link not connected")
)

// Config describes the serial line and the antenna mount. The device path
// and line parameters come from the device-selection layer.
type Config struct {
	Device      string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string // none, odd, even, mark, space
	FlowControl string // none, rtscts, dsrdtr, xonxoff

	ReadBufferSize int

	// MountOffsetCM is the antenna's height above the surveyed point; it is
	// subtracted from reported heights.
	MountOffsetCM int
}

// openPort is swapped out by tests.
var openPort = func(cfg Config) (io.ReadWriteCloser, error) {
	parity, err := parityMode(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stop, err := stopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: stop,
	}
	return serial.Open(cfg.Device, mode)
}

func parityMode(s string) (serial.Parity, error) {
	switch s {
	case "", "none":
		return serial.NoParity, nil
	case "odd":
		return serial.OddParity, nil
	case "even":
		return serial.EvenParity, nil
	case "mark":
		return serial.MarkParity, nil
	case "space":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("antenna: unknown parity %q", s)
	}
}

func stopBits(n int) (serial.StopBits, error) {
	switch n {
	case 0, 1:
		return serial.OneStopBit, nil
	case 2:
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("antenna: unsupported stop bits %d", n)
	}
}

// Link is the serial antenna connection. Lifecycle is
// Stopped → Connected (Connect) → Started (Start) → Stopped (Stop); Stop is
// idempotent and notifies the stop listener exactly once.
type Link struct {
	cfg        Config
	onPosition func(gnss.Position)
	onStopped  func(error)
	metrics    gnss.Collector

	mu      sync.Mutex
	state   State
	port    io.ReadWriteCloser
	lastGGA string
	done    chan struct{}
	writeCh chan []byte
}

func New(cfg Config, onPosition func(gnss.Position), onStopped func(error), metrics gnss.Collector) *Link {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if metrics == nil {
		metrics = gnss.NopCollector{}
	}
	return &Link{
		cfg:        cfg,
		onPosition: onPosition,
		onStopped:  onStopped,
		metrics:    metrics,
	}
}

// Connect opens the serial device and applies the line parameters.
func (l *Link) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Stopped || l.port != nil {
		return ErrNotStopped
	}

	port, err := openPort(l.cfg)
	if err != nil {
		return fmt.Errorf("antenna: open %s: %w", l.cfg.Device, err)
	}
	if l.cfg.FlowControl != "" && l.cfg.FlowControl != "none" {
		// The serial driver does not expose flow-control configuration.
		log.Warn("flow control not supported, running without", "flow_control", l.cfg.FlowControl)
	}

	l.port = port
	l.state = Connected
	log.Info("antenna connected", "device", l.cfg.Device, "baud", l.cfg.BaudRate)
	return nil
}

// Start launches the read and write workers. Valid only from Connected.
func (l *Link) Start() error {
	l.mu.Lock()
	if l.state != Connected {
		l.mu.Unlock()
		return ErrNotConnected
	}
	l.state = Started
	l.done = make(chan struct{})
	l.writeCh = make(chan []byte, 32)
	port := l.port
	done, writeCh := l.done, l.writeCh
	l.mu.Unlock()

	go l.readLoop(port)
	go writeLoop(port, writeCh, done)
	return nil
}

// Stop closes the device and notifies the stop listener. reason is nil for
// a deliberate stop. Repeated calls are no-ops.
func (l *Link) Stop(reason error) {
	l.mu.Lock()
	if l.state == Stopped {
		l.mu.Unlock()
		return
	}
	l.state = Stopped
	port := l.port
	l.port = nil
	if l.done != nil {
		close(l.done)
		l.done = nil
	}
	l.mu.Unlock()

	if port != nil {
		_ = port.Close()
	}
	if reason != nil {
		log.Error("antenna link stopped", "device", l.cfg.Device, "reason", reason)
	} else {
		log.Info("antenna link stopped", "device", l.cfg.Device)
	}
	if l.onStopped != nil {
		l.onStopped(reason)
	}
}

// SendCorrections queues RTK correction bytes for the antenna. Valid only
// while Started. The write is asynchronous and failures are swallowed;
// losing a correction degrades accuracy but must not kill positioning.
func (l *Link) SendCorrections(b []byte) {
	l.mu.Lock()
	if l.state != Started {
		l.mu.Unlock()
		return
	}
	ch := l.writeCh
	l.mu.Unlock()

	cp := append([]byte(nil), b...)
	select {
	case ch <- cp:
	default:
		log.Warn("correction backlog full, dropping", "bytes", len(b))
	}
}

// LastGGA returns the most recently decoded raw GGA sentence, used as the
// NTRIP keep-alive payload. Empty until the first valid GGA arrives.
func (l *Link) LastGGA() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastGGA
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) readLoop(port io.ReadWriteCloser) {
	framer := nmea.NewFramer()
	asm := gnss.NewAssembler(l.onPosition, l.metrics)
	offsetM := float64(l.cfg.MountOffsetCM) / 100.0

	buf := make([]byte, l.cfg.ReadBufferSize)
	for {
		n, err := port.Read(buf)
		if err != nil {
			l.Stop(fmt.Errorf("antenna: read: %w", err))
			return
		}
		if n == 0 {
			l.Stop(errors.New("antenna: device closed"))
			return
		}

		for _, s := range framer.Feed(buf[:n]) {
			rep, derr := nmea.Decode(time.Now(), s)
			if derr != nil {
				log.Debug("dropping sentence", "err", derr)
				l.metrics.SentenceRejected()
				continue
			}
			if rep == nil {
				continue
			}
			if c, ok := rep.(nmea.Coordinates); ok {
				c.Alt -= offsetM
				rep = c
				l.mu.Lock()
				l.lastGGA = s
				l.mu.Unlock()
			}
			asm.Apply(rep)
		}
	}
}

func writeLoop(port io.Writer, writeCh <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case b := <-writeCh:
			if _, err := port.Write(b); err != nil {
				log.Warn("correction write failed", "err", err)
			}
		}
	}
}
