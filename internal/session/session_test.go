package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gnssrover/internal/gnss"
)

type fakeAntenna struct {
	mu          sync.Mutex
	connected   bool
	started     bool
	stopCalls   int
	corrections [][]byte
	lastGGA     string

	connectErr error

	onPosition func(gnss.Position)
	onStopped  func(error)
}

func (a *fakeAntenna) Connect() error {
	if a.connectErr != nil {
		return a.connectErr
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = true
	return nil
}

func (a *fakeAntenna) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	return nil
}

func (a *fakeAntenna) Stop(error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopCalls++
}

func (a *fakeAntenna) SendCorrections(b []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.corrections = append(a.corrections, append([]byte(nil), b...))
}

func (a *fakeAntenna) LastGGA() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastGGA
}

func (a *fakeAntenna) setLastGGA(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastGGA = s
}

func (a *fakeAntenna) correctionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.corrections)
}

type fakeCorrections struct {
	mu        sync.Mutex
	started   bool
	stopCalls int
	ggas      []string

	startErr error

	onCorrections func([]byte)
	onStopped     func(error)
}

func (c *fakeCorrections) Start() error {
	if c.startErr != nil {
		return c.startErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	return nil
}

func (c *fakeCorrections) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCalls++
}

func (c *fakeCorrections) SendGGA(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ggas = append(c.ggas, s)
}

func (c *fakeCorrections) ggaCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ggas)
}

type fixture struct {
	session   *Session
	antenna   *fakeAntenna
	ntrip     *fakeCorrections
	positions chan gnss.Position
	stops     chan error
}

func newFixture(t *testing.T, cfg Config, withNtrip bool) *fixture {
	t.Helper()
	f := &fixture{
		antenna:   &fakeAntenna{},
		ntrip:     &fakeCorrections{},
		positions: make(chan gnss.Position, 16),
		stops:     make(chan error, 16),
	}

	newAntenna := func(onPos func(gnss.Position), onStop func(error)) Antenna {
		f.antenna.onPosition = onPos
		f.antenna.onStopped = onStop
		return f.antenna
	}
	var newCorr CorrectionsFactory
	if withNtrip {
		newCorr = func(onCorr func([]byte), onStop func(error)) Corrections {
			f.ntrip.onCorrections = onCorr
			f.ntrip.onStopped = onStop
			return f.ntrip
		}
	}

	f.session = New(cfg, newAntenna, newCorr,
		func(p gnss.Position) { f.positions <- p },
		func(err error) { f.stops <- err })
	return f
}

func TestSession_StartConnectsAntenna(t *testing.T) {
	f := newFixture(t, Config{}, true)
	require.NoError(t, f.session.Start())
	require.True(t, f.antenna.connected)
	require.True(t, f.antenna.started)
	// No position yet, so no correction stream yet.
	require.False(t, f.ntrip.started)
}

func TestSession_FirstPositionStartsCorrections(t *testing.T) {
	f := newFixture(t, Config{KeepAlivePeriod: time.Hour}, true)
	require.NoError(t, f.session.Start())

	f.antenna.onPosition(gnss.Position{Latitude: 48.1})
	require.True(t, f.ntrip.started)
	require.Len(t, f.positions, 1)

	// Subsequent positions do not restart it.
	f.antenna.onPosition(gnss.Position{Latitude: 48.2})
	require.Len(t, f.positions, 2)
}

func TestSession_NoCorrectionsConfigured(t *testing.T) {
	f := newFixture(t, Config{}, false)
	require.NoError(t, f.session.Start())

	f.antenna.onPosition(gnss.Position{})
	require.Len(t, f.positions, 1)
	require.False(t, f.ntrip.started)
}

func TestSession_KeepAliveSendsLastGGA(t *testing.T) {
	f := newFixture(t, Config{KeepAlivePeriod: 10 * time.Millisecond}, true)
	require.NoError(t, f.session.Start())

	// No GGA yet: ticks must not send empty keep-alives.
	f.antenna.onPosition(gnss.Position{})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, f.ntrip.ggaCount())

	f.antenna.setLastGGA("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47")
	require.Eventually(t, func() bool { return f.ntrip.ggaCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_CorrectionsForwardedToAntenna(t *testing.T) {
	f := newFixture(t, Config{KeepAlivePeriod: time.Hour}, true)
	require.NoError(t, f.session.Start())
	f.antenna.onPosition(gnss.Position{})

	f.ntrip.onCorrections([]byte{0xD3, 0x01})
	require.Equal(t, 1, f.antenna.correctionCount())
}

func TestSession_AntennaStopIsTerminal(t *testing.T) {
	f := newFixture(t, Config{KeepAlivePeriod: time.Hour}, true)
	require.NoError(t, f.session.Start())
	f.antenna.onPosition(gnss.Position{})

	cause := errors.New("antenna: read: unplugged")
	f.antenna.onStopped(cause)

	select {
	case err := <-f.stops:
		require.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session stop")
	}
	require.Equal(t, 1, f.ntrip.stopCalls, "correction stream must be torn down too")
	require.Empty(t, f.stops, "exactly one terminal notification")
}

func TestSession_CorrectionsStopIsTerminal(t *testing.T) {
	f := newFixture(t, Config{KeepAlivePeriod: time.Hour}, true)
	require.NoError(t, f.session.Start())
	f.antenna.onPosition(gnss.Position{})

	f.ntrip.onStopped(errors.New("ntrip: read: timeout"))

	select {
	case err := <-f.stops:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session stop")
	}
	require.Equal(t, 1, f.antenna.stopCalls)
}

func TestSession_StopTwiceNotifiesOnce(t *testing.T) {
	f := newFixture(t, Config{}, true)
	require.NoError(t, f.session.Start())

	f.session.Stop()
	f.session.Stop()

	require.Len(t, f.stops, 1)
	require.NoError(t, <-f.stops)
}

func TestSession_ConnectFailurePropagates(t *testing.T) {
	f := newFixture(t, Config{}, true)
	f.antenna.connectErr = errors.New("antenna: open /dev/ttyUSB0: no such device")
	require.ErrorIs(t, f.session.Start(), f.antenna.connectErr)
}
