package gps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/shaunagostinho/gnss-reader/internal/log"
	"github.com/shaunagostinho/gnss-reader/internal/nmea"
)

// ErrNotConnected is returned when no transport is attached.
var ErrNotConnected = errors.New("gps: not connected")

// TransportError wraps a failure of the serial transport. At startup it is
// fatal; it is never produced by decoding.
type TransportError struct {
	Op   string // "open", "configure", "write", "read"
	Port string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gps: %s %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config holds configuration for the receiver.
type Config struct {
	PortPath    string
	BaudRate    int
	ReadTimeout time.Duration // bounds each read so Run observes cancellation
	InitDelay   time.Duration // wait after open before the first command
	SettleDelay time.Duration // wait after each command
	Strict      bool          // reject sentences with a bad checksum
}

const (
	defaultBaudRate    = 115200
	defaultReadTimeout = 200 * time.Millisecond
	maxLineLen         = 1024 // NMEA caps sentences at 82 bytes; leave room for proprietary ones
)

// Stats counts what the read loop has seen.
type Stats struct {
	Lines              uint64 `json:"lines"`
	Noise              uint64 `json:"noise"` // lines not starting with '$'
	Sentences          uint64 `json:"sentences"`
	Fixes              uint64 `json:"fixes"`
	Ignored            uint64 `json:"ignored"`
	ParseErrors        uint64 `json:"parseErrors"`
	ChecksumMismatches uint64 `json:"checksumMismatches"`
}

// Receiver owns the transport to an NMEA GNSS receiver: it frames and writes
// setup commands and runs the read loop.
type Receiver struct {
	cfg     Config
	decoder nmea.Decoder

	// wmu serializes writes with Close so no command is ever cut short.
	wmu  sync.Mutex
	port io.ReadWriteCloser

	lines, noise, sentences, fixes, ignored, parseErrors, mismatches atomic.Uint64
}

// NewReceiver creates a receiver. Call Connect or Attach before use.
func NewReceiver(cfg Config) *Receiver {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	return &Receiver{
		cfg:     cfg,
		decoder: nmea.Decoder{Strict: cfg.Strict},
	}
}

func (r *Receiver) Name() string { return "NMEA GNSS" }

// Connect opens the serial port 8N1 with a bounded read timeout.
func (r *Receiver) Connect() error {
	mode := &serial.Mode{
		BaudRate: r.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(r.cfg.PortPath, mode)
	if err != nil {
		return &TransportError{Op: "open", Port: r.cfg.PortPath, Err: err}
	}
	if err := port.SetReadTimeout(r.cfg.ReadTimeout); err != nil {
		port.Close()
		return &TransportError{Op: "configure", Port: r.cfg.PortPath, Err: err}
	}
	r.Attach(port)
	log.Info("connected to receiver",
		zap.String("port", r.cfg.PortPath), zap.Int("baud", r.cfg.BaudRate))
	return nil
}

// Attach uses t as the transport. Reads from t must return within a bounded
// time, (0, nil) on timeout, like a serial port with a read timeout.
func (r *Receiver) Attach(t io.ReadWriteCloser) {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	r.port = t
}

// Close closes the transport. It waits for an in-flight command write.
func (r *Receiver) Close() error {
	r.wmu.Lock()
	defer r.wmu.Unlock()
	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	return err
}

// WaitReady sleeps the post-open init delay.
func (r *Receiver) WaitReady(ctx context.Context) error {
	return sleepCtx(ctx, r.cfg.InitDelay)
}

// Send frames body, writes the whole sentence and waits the settle delay.
// Cancellation is only observed before the write and during the settle
// delay, never mid-write.
func (r *Receiver) Send(ctx context.Context, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sentence := nmea.Encode(body)

	r.wmu.Lock()
	if r.port == nil {
		r.wmu.Unlock()
		return ErrNotConnected
	}
	err := writeFull(r.port, []byte(sentence))
	r.wmu.Unlock()
	if err != nil {
		return &TransportError{Op: "write", Port: r.cfg.PortPath, Err: err}
	}

	log.Info("sent command", zap.String("sentence", strings.TrimSpace(sentence)))
	return sleepCtx(ctx, r.cfg.SettleDelay)
}

// Configure sends the setup commands in order. It returns once the last
// command has been written and has settled, so the read loop never sees
// configuration replies as fix data before it starts.
func (r *Receiver) Configure(ctx context.Context, bodies []string) error {
	for _, body := range bodies {
		if err := r.Send(ctx, body); err != nil {
			return fmt.Errorf("gps: configure %q: %w", body, err)
		}
	}
	return nil
}

// Run reads lines until ctx is cancelled and hands every actionable sentence
// to handle. Per-line decode failures are counted and logged, never fatal.
// Run returns nil on cancellation and a *TransportError when the transport
// fails (io.EOF included).
func (r *Receiver) Run(ctx context.Context, handle func(nmea.Sentence)) error {
	r.wmu.Lock()
	port := r.port
	r.wmu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	log.Info("listening for NMEA data", zap.String("port", r.cfg.PortPath))
	lr := &lineReader{r: port, buf: make([]byte, 256), max: maxLineLen}
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := lr.next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &TransportError{Op: "read", Port: r.cfg.PortPath, Err: err}
		}
		if line == nil {
			continue
		}
		if s, ok := r.decodeLine(line); ok {
			handle(s)
		}
	}
}

// decodeLine decodes one raw line, updates counters and reports whether it
// carries an actionable fix.
func (r *Receiver) decodeLine(raw []byte) (nmea.Sentence, bool) {
	r.lines.Add(1)
	line := nmea.Sanitize(raw)

	s, err := r.decoder.Decode(line)
	if err != nil {
		r.parseErrors.Add(1)
		if errors.Is(err, nmea.ErrChecksum) {
			r.mismatches.Add(1)
		}
		log.Debug("skipping line", zap.String("line", line), zap.Error(err))
		return nil, false
	}

	switch v := s.(type) {
	case nmea.Ignored:
		if v.Reason == nmea.ReasonNotSentence {
			r.noise.Add(1)
			return nil, false
		}
		r.sentences.Add(1)
		r.ignored.Add(1)
		r.checkSum(v.Header, line)
		return nil, false
	case nmea.GGA:
		r.sentences.Add(1)
		r.fixes.Add(1)
		r.checkSum(v.Header, line)
	case nmea.RMC:
		r.sentences.Add(1)
		r.fixes.Add(1)
		r.checkSum(v.Header, line)
	}
	return s, true
}

func (r *Receiver) checkSum(h nmea.Header, line string) {
	if h.ChecksumOK {
		return
	}
	r.mismatches.Add(1)
	log.Warn("checksum mismatch", zap.String("line", line))
}

// Stats returns a snapshot of the read loop counters.
func (r *Receiver) Stats() Stats {
	return Stats{
		Lines:              r.lines.Load(),
		Noise:              r.noise.Load(),
		Sentences:          r.sentences.Load(),
		Fixes:              r.fixes.Load(),
		Ignored:            r.ignored.Load(),
		ParseErrors:        r.parseErrors.Load(),
		ChecksumMismatches: r.mismatches.Load(),
	}
}

// lineReader splits a byte stream into lines without ever blocking longer
// than one underlying Read.
type lineReader struct {
	r       io.Reader
	buf     []byte
	pending []byte
	max     int
	err     error
}

// next returns the next complete line, or nil when the last read produced
// no complete line. A trailing partial line is returned before the read
// error that ended the stream.
func (l *lineReader) next() ([]byte, error) {
	if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
		line := append([]byte(nil), l.pending[:i]...)
		l.pending = append(l.pending[:0], l.pending[i+1:]...)
		return line, nil
	}
	if l.err != nil {
		if len(l.pending) > 0 {
			line := l.pending
			l.pending = nil
			return line, nil
		}
		return nil, l.err
	}

	n, err := l.r.Read(l.buf)
	if n > 0 {
		l.pending = append(l.pending, l.buf[:n]...)
		if len(l.pending) > l.max && bytes.IndexByte(l.pending, '\n') < 0 {
			// Runaway binary data; resync on the next newline.
			l.pending = l.pending[:0]
		}
	}
	if err != nil {
		// Lines still buffered, the unterminated tail included, are drained
		// by the following calls before err is reported.
		l.err = err
	}
	return nil, nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
