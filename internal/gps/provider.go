package gps

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shaunagostinho/gnss-reader/internal/log"
	"github.com/shaunagostinho/gnss-reader/internal/nmea"
)

// Fix is one actionable GGA or RMC sentence, flattened for sinks.
type Fix struct {
	Tag           string    `json:"tag"`    // "GGA" or "RMC"
	Talker        string    `json:"talker"` // GP, GN, ...
	FixQuality    int       `json:"fixQuality,omitempty"`
	Status        string    `json:"status,omitempty"` // RMC validity, always "A"
	Time          string    `json:"time"`             // UTC time of day
	Date          string    `json:"date,omitempty"`
	Latitude      float64   `json:"latitude"`  // Decimal degrees, negative south
	LatHemisphere string    `json:"latHemisphere"`
	Longitude     float64   `json:"longitude"` // Decimal degrees, negative west
	LonHemisphere string    `json:"lonHemisphere"`
	Altitude      float64   `json:"altitude,omitempty"`
	AltitudeUnit  string    `json:"altitudeUnit,omitempty"`
	Satellites    int       `json:"satellites,omitempty"`
	HDOP          float64   `json:"hdop,omitempty"`
	Speed         float64   `json:"speedKnots,omitempty"`
	Course        float64   `json:"course,omitempty"` // Degrees true
	Interval      float64   `json:"interval"`         // Seconds since the previous fix
	ChecksumOK    bool      `json:"checksumOk"`
	Received      time.Time `json:"received"`
}

// NewFix flattens an actionable sentence. It reports false for Ignored.
func NewFix(s nmea.Sentence, interval time.Duration, received time.Time) (Fix, bool) {
	f := Fix{Interval: interval.Seconds(), Received: received}
	switch v := s.(type) {
	case nmea.GGA:
		f.Tag, f.Talker, f.ChecksumOK = v.Type, v.Talker, v.ChecksumOK
		f.FixQuality = v.FixQuality
		f.Time = v.Time.String()
		f.Latitude, f.LatHemisphere = v.Latitude, v.LatHemisphere
		f.Longitude, f.LonHemisphere = v.Longitude, v.LonHemisphere
		f.Altitude, f.AltitudeUnit = v.Altitude, v.AltitudeUnit
		f.Satellites = v.Satellites
		f.HDOP = v.HDOP
	case nmea.RMC:
		f.Tag, f.Talker, f.ChecksumOK = v.Type, v.Talker, v.ChecksumOK
		f.Status = v.Status
		f.Time = v.Time.String()
		f.Date = v.Date.String()
		f.Latitude, f.LatHemisphere = v.Latitude, v.LatHemisphere
		f.Longitude, f.LonHemisphere = v.Longitude, v.LonHemisphere
		f.Speed = v.Speed
		f.Course = v.Course
	case nmea.Ignored:
		return Fix{}, false
	default:
		return Fix{}, false
	}
	return f, true
}

// String renders the fix as a single console line.
func (f Fix) String() string {
	pos := fmt.Sprintf("Lat: %s | Lon: %s",
		formatDeg(f.Latitude, f.LatHemisphere), formatDeg(f.Longitude, f.LonHemisphere))
	switch f.Tag {
	case nmea.TypeGGA:
		return fmt.Sprintf("[GGA] Fix: %d | Interval: %.2fs | Time: %s | %s | Alt: %.1f %s",
			f.FixQuality, f.Interval, f.Time, pos, f.Altitude, f.AltitudeUnit)
	case nmea.TypeRMC:
		return fmt.Sprintf("[RMC] Status: %s | Interval: %.2fs | Time: %s | %s | Speed: %.1f knots | Course: %.1f°",
			f.Status, f.Interval, f.Time, pos, f.Speed, f.Course)
	default:
		return fmt.Sprintf("[%s] Interval: %.2fs | Time: %s | %s", f.Tag, f.Interval, f.Time, pos)
	}
}

func formatDeg(v float64, hemi string) string {
	if hemi == "" {
		return fmt.Sprintf("%.6f", v)
	}
	return fmt.Sprintf("%.6f %s", math.Abs(v), hemi)
}

// Interval tracks the time of the last fix. It is a value: Next returns the
// updated state rather than mutating the receiver.
type Interval struct {
	last time.Time
}

// Next records a fix at now and returns the elapsed time since the previous
// one, or zero for the first fix.
func (iv Interval) Next(now time.Time) (Interval, time.Duration) {
	if iv.last.IsZero() {
		return Interval{last: now}, 0
	}
	return Interval{last: now}, now.Sub(iv.last)
}

// Last returns the time of the most recent fix, zero if none.
func (iv Interval) Last() time.Time { return iv.last }

// Sink consumes fixes: console, CSV recorder, live feed, MQTT.
type Sink interface {
	Name() string
	Publish(Fix) error
	Close() error
}

// Fanout publishes to every sink. A failing sink is logged and skipped.
type Fanout []Sink

func (f Fanout) Publish(fix Fix) {
	for _, s := range f {
		if err := s.Publish(fix); err != nil {
			log.Warn("sink publish failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

// Close closes every sink and returns all errors combined.
func (f Fanout) Close() error {
	var err error
	for _, s := range f {
		err = multierr.Append(err, s.Close())
	}
	return err
}

// ConsoleSink prints one line per fix.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink { return &ConsoleSink{w: w} }

func (c *ConsoleSink) Name() string { return "console" }

func (c *ConsoleSink) Publish(f Fix) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, f.String())
	return err
}

func (c *ConsoleSink) Close() error { return nil }
