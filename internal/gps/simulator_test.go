package gps

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/gnss-reader/internal/nmea"
)

func TestDDMM(t *testing.T) {
	v, h := ddmm(48.1173, "N", "S", 2)
	assert.Equal(t, "4807.0380", v)
	assert.Equal(t, "N", h)

	v, h = ddmm(-79.3832, "E", "W", 3)
	assert.Equal(t, "07922.9920", v)
	assert.Equal(t, "W", h)

	// Minutes that round up to 60 carry into the degrees.
	v, _ = ddmm(43.99999999, "N", "S", 2)
	assert.Equal(t, "4400.0000", v)
	v, h = ddmm(-79.999999999, "E", "W", 3)
	assert.Equal(t, "08000.0000", v)
	assert.Equal(t, "W", h)

	s, err := nmea.Decode(nmea.Encode("GNGGA,123519,4360.0000,N,07922.9920,W,1,08,0.9,545.4,M,46.9,M,,"))
	require.ErrorIs(t, err, nmea.ErrInvalidField, "decoder rejects 60 minutes")
	assert.Nil(t, s)

	lat, _ := ddmm(43.99999999, "N", "S", 2)
	s, err = nmea.Decode(nmea.Encode("GNGGA,123519," + lat + ",N,07922.9920,W,1,08,0.9,545.4,M,46.9,M,,"))
	require.NoError(t, err)
	assert.InDelta(t, 44.0, s.(nmea.GGA).Latitude, 1e-6)
}

// readEpoch drains whatever the simulator has buffered for one epoch.
func readEpoch(t *testing.T, sim *Simulator) []string {
	t.Helper()
	var b strings.Builder
	buf := make([]byte, 64)
	for {
		n, err := sim.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		b.Write(buf[:n])
	}
	return strings.Split(strings.TrimSpace(b.String()), "\r\n")
}

func TestSimulatorEpochs(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 35, 19, 0, time.UTC)
	sim := NewSimulator()
	sim.now = func() time.Time { return clock }
	sim.wait = time.Millisecond

	_, err := sim.Write([]byte(nmea.Encode("PMTK220,500")))
	require.NoError(t, err)
	assert.Equal(t, []string{"PMTK220,500"}, sim.Commands())

	cold := readEpoch(t, sim)
	require.Len(t, cold, 2)
	for _, line := range cold {
		s, err := nmea.Decode(line)
		require.NoError(t, err)
		assert.IsType(t, nmea.Ignored{}, s)
	}

	// Nothing due until the interval elapses.
	n, err := sim.Read(make([]byte, 16))
	require.NoError(t, err)
	assert.Zero(t, n)

	clock = clock.Add(500 * time.Millisecond)
	lines := readEpoch(t, sim)
	require.Len(t, lines, 2)

	s, err := nmea.Decode(lines[0])
	require.NoError(t, err)
	gga, ok := s.(nmea.GGA)
	require.True(t, ok, "expected GGA, got %T", s)
	assert.True(t, gga.ChecksumOK)
	assert.Equal(t, "GN", gga.Talker)
	assert.Equal(t, "12:35:19.500", gga.Time.String())
	assert.InDelta(t, 43.6532, gga.Latitude, 0.006)
	assert.InDelta(t, -79.3832, gga.Longitude, 0.006)

	s, err = nmea.Decode(lines[1])
	require.NoError(t, err)
	rmc, ok := s.(nmea.RMC)
	require.True(t, ok, "expected RMC, got %T", s)
	assert.True(t, rmc.ChecksumOK)
	assert.Equal(t, "2024-05-01", rmc.Date.String())
	assert.InDelta(t, gga.Latitude, rmc.Latitude, 1e-9)
}

func TestSimulatorClose(t *testing.T) {
	sim := NewSimulator()
	require.NoError(t, sim.Close())

	_, err := sim.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
	_, err = sim.Write([]byte("$PQTMSAVEPAR*5A\r\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
