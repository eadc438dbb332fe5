package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/gnss-reader/internal/gps"
	"github.com/shaunagostinho/gnss-reader/internal/log"
)

// Logger records fixes to CSV files with automatic rotation.
type Logger struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	enabled  bool

	file   *os.File
	writer *csv.Writer
	lastTs time.Time
	rows   int
	now    func() time.Time
}

// Config holds logger configuration.
type Config struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Path       string `yaml:"path" toml:"path" json:"path"`
	IntervalMs int    `yaml:"interval_ms" toml:"interval_ms" json:"intervalMs"` // 0 records every fix
}

const (
	maxRowsPerFile = 100_000 // Rotate after 100k rows (~28 hrs at 1 Hz GGA+RMC)
)

var csvHeader = []string{
	"received", "tag", "talker", "utc_time", "utc_date",
	"fix_quality", "status", "lat", "lon",
	"alt", "alt_unit", "sats", "hdop",
	"speed_kn", "course_deg", "interval_s", "checksum_ok",
}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/gnss-reader"
	}
	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	if interval < 0 {
		interval = 0
	}
	return &Logger{
		dir:      cfg.Path,
		interval: interval,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

func (l *Logger) Name() string { return "csv" }

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Publish writes a fix if the minimum interval has elapsed.
func (l *Logger) Publish(f gps.Fix) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return nil
	}

	now := l.now()
	if l.interval > 0 && now.Sub(l.lastTs) < l.interval {
		return nil
	}
	l.lastTs = now

	// Open/rotate file if needed
	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(now); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}

	if err := l.writer.Write(buildRow(f)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	l.writer.Flush()
	l.rows++
	return l.writer.Error()
}

// Close flushes and closes the current log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("gnss_%s.csv", now.Format("2006-01-02_150405.000"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	// Write header
	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Info("opened fix log", zap.String("path", path))
	return nil
}

func (l *Logger) closeFile() error {
	var err error
	if l.writer != nil {
		l.writer.Flush()
		err = l.writer.Error()
		l.writer = nil
	}
	if l.file != nil {
		if cerr := l.file.Close(); err == nil {
			err = cerr
		}
		l.file = nil
	}
	return err
}

func buildRow(f gps.Fix) []string {
	row := make([]string, len(csvHeader))

	row[0] = f.Received.UTC().Format(time.RFC3339Nano)
	row[1] = f.Tag
	row[2] = f.Talker
	row[3] = f.Time
	row[4] = f.Date
	row[5] = strconv.Itoa(f.FixQuality)
	row[6] = f.Status
	row[7] = fmt.Sprintf("%.6f", f.Latitude)
	row[8] = fmt.Sprintf("%.6f", f.Longitude)
	row[9] = fmt.Sprintf("%.1f", f.Altitude)
	row[10] = f.AltitudeUnit
	row[11] = strconv.Itoa(f.Satellites)
	row[12] = fmt.Sprintf("%.2f", f.HDOP)
	row[13] = fmt.Sprintf("%.1f", f.Speed)
	row[14] = fmt.Sprintf("%.1f", f.Course)
	row[15] = fmt.Sprintf("%.2f", f.Interval)
	row[16] = boolStr(f.ChecksumOK)

	return row
}

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
