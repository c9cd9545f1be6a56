package publish

import (
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gnssrover/internal/gnss"
)

func TestEncode(t *testing.T) {
	p := gnss.Position{
		Time:              time.UnixMilli(1718190000123).UTC(),
		Latitude:          48.1173,
		Longitude:         11.516666,
		Altitude:          545.4,
		EllipsoidHeight:   592.3,
		LatitudeAccuracy:  0.3,
		LongitudeAccuracy: 0.4,
		VerticalAccuracy:  0.031,
	}

	b, err := Encode(p)
	require.NoError(t, err)

	var got map[string]float64
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, float64(1718190000123), got["timestamp_ms"])
	require.Equal(t, 48.1173, got["lat"])
	require.Equal(t, 11.516666, got["lon"])
	require.Equal(t, 545.4, got["alt_m"])
	require.Equal(t, 592.3, got["ellipsoid_height_m"])
	require.Equal(t, 0.3, got["lat_acc_m"])
	require.Equal(t, 0.4, got["lon_acc_m"])
	require.Equal(t, 0.031, got["vert_acc_m"])
	require.Equal(t, 0.5, got["horiz_acc_m"])
}

type fakeUDPConn struct {
	writes   [][]byte
	writeErr error
	closed   bool
}

func (c *fakeUDPConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeUDPConn) Close() error {
	c.closed = true
	return nil
}

func newTestUDP(t *testing.T, conn *fakeUDPConn) *UDP {
	t.Helper()
	u, err := newUDP("10.0.0.7:4352",
		net.ResolveUDPAddr,
		func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
			require.Equal(t, "udp", network)
			require.Nil(t, laddr)
			require.Equal(t, "10.0.0.7:4352", raddr.String())
			return conn, nil
		})
	require.NoError(t, err)
	return u
}

func TestUDP_PublishSendsOneDatagramPerFix(t *testing.T) {
	conn := &fakeUDPConn{}
	u := newTestUDP(t, conn)

	u.Publish(gnss.Position{Latitude: 48.1, Longitude: 11.5})
	u.Publish(gnss.Position{Latitude: 48.2, Longitude: 11.5})

	require.Len(t, conn.writes, 2)
	var fix Fix
	require.NoError(t, json.Unmarshal(conn.writes[1], &fix))
	require.Equal(t, 48.2, fix.Latitude)

	require.NoError(t, u.Close())
	require.True(t, conn.closed)
}

func TestUDP_WriteErrorDoesNotPanic(t *testing.T) {
	conn := &fakeUDPConn{writeErr: errors.New("network is unreachable")}
	u := newTestUDP(t, conn)

	u.Publish(gnss.Position{})
	require.Empty(t, conn.writes)
}

func TestUDP_ResolveFailure(t *testing.T) {
	_, err := newUDP("nope",
		func(network, address string) (*net.UDPAddr, error) {
			return nil, errors.New("missing port in address")
		},
		func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
			t.Fatalf("dial must not run when resolve fails")
			return nil, nil
		})
	require.Error(t, err)
}
