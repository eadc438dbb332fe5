package gps

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shaunagostinho/gnss-reader/internal/nmea"
)

// Simulator is a fake receiver transport. It accepts setup commands and
// emits framed GGA and RMC sentences for a point driving in a circle, mixed
// with the noise a real receiver produces: a no-fix epoch at power-up,
// unsupported sentences and partial binary frames.
type Simulator struct {
	mu       sync.Mutex
	t        float64
	seq      int
	interval time.Duration
	next     time.Time
	pending  []byte
	commands []string
	closed   bool

	now  func() time.Time
	wait time.Duration // longest a Read blocks with nothing due
}

// NewSimulator creates a simulator emitting one epoch per second until a
// PMTK220 or PQTMCFGPMODE command changes the interval.
func NewSimulator() *Simulator {
	return &Simulator{
		interval: time.Second,
		now:      time.Now,
		wait:     50 * time.Millisecond,
	}
}

func (s *Simulator) Name() string { return "Simulated GNSS" }

// Write records command sentences. Rate commands change the epoch interval.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	for _, line := range strings.Split(string(p), "\n") {
		fr, err := nmea.Unframe(line)
		if err != nil {
			continue
		}
		s.commands = append(s.commands, fr.Body)
		name, arg, _ := strings.Cut(fr.Body, ",")
		if name == "PMTK220" || name == "PQTMCFGPMODE" {
			if ms, err := strconv.Atoi(arg); err == nil && ms >= MinIntervalMs {
				s.interval = time.Duration(ms) * time.Millisecond
			}
		}
	}
	return len(p), nil
}

// Read returns buffered sentence bytes, generating a new epoch when one is
// due. With nothing due it waits briefly and returns (0, nil), the way a
// serial port read times out.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if len(s.pending) == 0 {
		now := s.now()
		if now.Before(s.next) {
			d := s.next.Sub(now)
			if d > s.wait {
				d = s.wait
			}
			s.mu.Unlock()
			time.Sleep(d)
			return 0, nil
		}
		s.pending = s.epoch(now.UTC())
		s.next = now.Add(s.interval)
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	s.mu.Unlock()
	return n, nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Commands returns the command bodies received so far.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// epoch renders one output burst. Caller holds mu.
func (s *Simulator) epoch(now time.Time) []byte {
	defer func() { s.seq++ }()
	hms := now.Format("150405.00")
	date := now.Format("020106")

	var b strings.Builder
	if s.seq == 0 {
		// Cold start: no fix yet.
		b.WriteString(nmea.Encode(fmt.Sprintf("GNGGA,%s,,,,,0,00,99.99,,,,,,", hms)))
		b.WriteString(nmea.Encode(fmt.Sprintf("GNRMC,%s,V,,,,,,,%s,,,N", hms, date)))
		return []byte(b.String())
	}

	s.t += s.interval.Seconds()

	// Simulate driving in a circle around a point
	centerLat := 43.6532 // Toronto
	centerLon := -79.3832
	radius := 0.005 // ~500m
	lat := centerLat + radius*math.Sin(s.t*0.1)
	lon := centerLon + radius*math.Cos(s.t*0.1)
	speed := 27 + 16*math.Sin(s.t*0.3) // knots
	course := math.Mod(s.t*10, 360)

	latS, latH := ddmm(lat, "N", "S", 2)
	lonS, lonH := ddmm(lon, "E", "W", 3)

	b.WriteString(nmea.Encode(fmt.Sprintf("GNGGA,%s,%s,%s,%s,%s,1,12,0.8,76.0,M,-35.8,M,,",
		hms, latS, latH, lonS, lonH)))
	b.WriteString(nmea.Encode(fmt.Sprintf("GNRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		hms, latS, latH, lonS, lonH, speed, course, date)))
	if s.seq%5 == 0 {
		b.WriteString(nmea.Encode("GNGSA,A,3,05,13,15,18,24,,,,,,,,1.4,0.8,1.1"))
		b.WriteString("\xb5\x62\x01\x07partial\r\n")
	}
	return []byte(b.String())
}

// ddmm renders decimal degrees as NMEA ddmm.mmmm (or dddmm.mmmm) plus the
// hemisphere letter.
func ddmm(v float64, pos, neg string, degDigits int) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	// Round before formatting so 59.99999 becomes 0 in the next degree,
	// never "60.0000".
	minutes := math.Round((v-deg)*60*1e4) / 1e4
	if minutes >= 60 {
		deg++
		minutes -= 60
	}
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(deg), minutes), hemi
}
