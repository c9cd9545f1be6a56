// Package session wires one antenna link to one NTRIP correction stream:
// it starts the correction client once the antenna is producing positions,
// relays correction bytes back to the antenna, sends periodic GGA
// keep-alives, and treats a stop from either side as terminal for the whole
// session. There is no automatic reconnect; restarting is the operator's
// decision.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"gnssrover/internal/gnss"
)

// Antenna is the serial link surface the session drives.
type Antenna interface {
	Connect() error
	Start() error
	Stop(reason error)
	SendCorrections(b []byte)
	LastGGA() string
}

// Corrections is the NTRIP client surface the session drives.
type Corrections interface {
	Start() error
	Stop()
	SendGGA(sentence string)
}

// Factories let the session own callback wiring: it hands its handlers to
// the constructors so reports flow back into the session.
type (
	AntennaFactory     func(onPosition func(gnss.Position), onStopped func(error)) Antenna
	CorrectionsFactory func(onCorrections func([]byte), onStopped func(error)) Corrections
)

type Config struct {
	// KeepAlivePeriod is how often the last decoded GGA sentence is sent to
	// the caster while the correction stream is up.
	KeepAlivePeriod time.Duration
}

type Session struct {
	cfg            Config
	newAntenna     AntennaFactory
	newCorrections CorrectionsFactory
	onPosition     func(gnss.Position)
	onStopped      func(error)

	mu          sync.Mutex
	antenna     Antenna
	corrections Corrections
	started     bool
	stopped     bool
	done        chan struct{}
}

// New builds a session. newCorrections may be nil for antenna-only
// positioning without an RTK stream.
func New(cfg Config, newAntenna AntennaFactory, newCorrections CorrectionsFactory,
	onPosition func(gnss.Position), onStopped func(error)) *Session {
	if cfg.KeepAlivePeriod <= 0 {
		cfg.KeepAlivePeriod = 10 * time.Second
	}
	return &Session{
		cfg:            cfg,
		newAntenna:     newAntenna,
		newCorrections: newCorrections,
		onPosition:     onPosition,
		onStopped:      onStopped,
	}
}

// Start connects and starts the antenna link. The correction stream is
// started lazily, on the first decoded position.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session: already started")
	}
	s.started = true
	s.done = make(chan struct{})
	ant := s.newAntenna(s.handlePosition, s.handleAntennaStopped)
	s.antenna = ant
	s.mu.Unlock()

	if err := ant.Connect(); err != nil {
		return err
	}
	return ant.Start()
}

// Stop tears the whole session down. Safe to call repeatedly.
func (s *Session) Stop() {
	s.shutdown(nil)
}

func (s *Session) handlePosition(p gnss.Position) {
	s.maybeStartCorrections()
	if s.onPosition != nil {
		s.onPosition(p)
	}
}

// maybeStartCorrections starts the NTRIP client and the keep-alive ticker
// the first time the antenna proves it is producing fixes.
func (s *Session) maybeStartCorrections() {
	s.mu.Lock()
	if s.newCorrections == nil || s.corrections != nil || s.stopped {
		s.mu.Unlock()
		return
	}
	corr := s.newCorrections(s.handleCorrections, s.handleCorrectionsStopped)
	s.corrections = corr
	ant := s.antenna
	done := s.done
	s.mu.Unlock()

	log.Info("starting correction stream")
	if err := corr.Start(); err != nil {
		s.shutdown(err)
		return
	}

	go s.keepAliveLoop(ant, corr, done)
}

func (s *Session) keepAliveLoop(ant Antenna, corr Corrections, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.KeepAlivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if gga := ant.LastGGA(); gga != "" {
				corr.SendGGA(gga)
			}
		}
	}
}

func (s *Session) handleCorrections(b []byte) {
	s.mu.Lock()
	ant := s.antenna
	s.mu.Unlock()
	if ant != nil {
		ant.SendCorrections(b)
	}
}

func (s *Session) handleAntennaStopped(reason error) {
	s.shutdown(reason)
}

func (s *Session) handleCorrectionsStopped(reason error) {
	s.shutdown(reason)
}

// shutdown runs exactly once; later calls (including the link stop
// notifications it provokes) are no-ops.
func (s *Session) shutdown(reason error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	ant, corr := s.antenna, s.corrections
	if s.done != nil {
		close(s.done)
	}
	s.mu.Unlock()

	if ant != nil {
		ant.Stop(nil)
	}
	if corr != nil {
		corr.Stop()
	}
	if reason != nil {
		log.Error("session ended", "reason", reason)
	} else {
		log.Info("session ended")
	}
	if s.onStopped != nil {
		s.onStopped(reason)
	}
}
