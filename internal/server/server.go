package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shaunagostinho/gnss-reader/internal/gps"
	"github.com/shaunagostinho/gnss-reader/internal/log"
	"github.com/shaunagostinho/gnss-reader/internal/nmea"
)

// Server serves the live fix page and broadcasts each fix to WebSocket
// clients. It is a gps.Sink.
type Server struct {
	cfg   *Config
	stats func() gps.Stats
	webFS fs.FS

	// OnConfigChange runs after a config update has been applied.
	OnConfigChange func(*Config)

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	fixMu   sync.RWMutex
	lastFix map[string]gps.Fix // by tag

	// Odometer, persistent distance tracking
	odoMu        sync.Mutex
	odoTotal     float64 // Total km
	odoTrip      float64 // Trip km (resettable)
	lastLat      float64
	lastLon      float64
	lastPosValid bool
	odoPath      string // File path for persistence
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Fix   *gps.Fix `json:"fix,omitempty"`
	Odo   *OdoData `json:"odo,omitempty"`
	Stamp int64    `json:"stamp"` // Unix ms
}

// OdoData is the odometer info sent to clients.
type OdoData struct {
	Total float64 `json:"total"` // km
	Trip  float64 `json:"trip"`  // km
}

// Status is the /api/status response.
type Status struct {
	Stats   gps.Stats          `json:"stats"`
	Fixes   map[string]gps.Fix `json:"fixes"`
	Odo     OdoData            `json:"odo"`
	Clients int                `json:"clients"`
}

const (
	odoSaveInterval = 30 * time.Second
	minMovingKnots  = 0.5
)

// New creates a new Server. stats may be nil.
func New(cfg *Config, stats func() gps.Stats, webFS fs.FS) *Server {
	path := cfg.Path()
	odoPath := filepath.Join(filepath.Dir(path), "odometer.dat")
	if path == "" {
		odoPath = "/etc/gnss-reader/odometer.dat"
	}
	if stats == nil {
		stats = func() gps.Stats { return gps.Stats{} }
	}

	s := &Server{
		cfg:     cfg,
		stats:   stats,
		webFS:   webFS,
		clients: make(map[*wsClient]struct{}),
		lastFix: make(map[string]gps.Fix),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		odoPath: odoPath,
	}
	s.loadOdometer()
	return s
}

func (s *Server) Name() string { return "websocket" }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/status", s.handleStatus)

	// Odometer API
	mux.HandleFunc("/api/odo/reset-trip", s.handleResetTrip)
	return mux
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	_, _, srvCfg, _ := s.cfg.Snapshot()
	srv := &http.Server{
		Addr:    srvCfg.ListenAddr,
		Handler: s.Handler(),
	}

	// Persist odometer every 30 seconds
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(odoSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutCtx)
				s.closeClients()
				return
			case <-ticker.C:
				s.saveOdometer()
			}
		}
	}()

	log.Info("listening", zap.String("component", "server"), zap.String("addr", srvCfg.ListenAddr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

// Publish records the fix, advances the odometer and broadcasts the fix.
func (s *Server) Publish(f gps.Fix) error {
	s.fixMu.Lock()
	s.lastFix[f.Tag] = f
	s.fixMu.Unlock()

	if f.Tag == nmea.TypeRMC && f.Speed > minMovingKnots {
		s.updateOdometer(f.Latitude, f.Longitude)
	}

	odo := s.odometer()
	s.broadcast(Frame{Fix: &f, Odo: &odo, Stamp: f.Received.UnixMilli()})
	return nil
}

// Close saves the odometer and drops every client.
func (s *Server) Close() error {
	s.closeClients()
	return s.saveOdometer()
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for client := range s.clients {
		client.conn.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade error", zap.String("component", "ws"), zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Info("client connected", zap.String("component", "ws"), zap.Int("clients", n))

	// Send the odometer and the latest fixes so the page is not blank
	odo := s.odometer()
	initial := []Frame{{Odo: &odo, Stamp: time.Now().UnixMilli()}}
	s.fixMu.RLock()
	for _, tag := range []string{nmea.TypeGGA, nmea.TypeRMC} {
		if f, ok := s.lastFix[tag]; ok {
			initial = append(initial, Frame{Fix: &f, Stamp: f.Received.UnixMilli()})
		}
	}
	s.fixMu.RUnlock()
	for _, frame := range initial {
		if data, err := json.Marshal(frame); err == nil {
			client.send <- data
		}
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			close(client.send)
			n := len(s.clients)
			s.clientsMu.Unlock()
			log.Info("client disconnected", zap.String("component", "ws"), zap.Int("clients", n))
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Warn("config save failed", zap.String("component", "config"), zap.Error(err))
		}
		if s.OnConfigChange != nil {
			s.OnConfigChange(s.cfg)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	st := Status{
		Stats:   s.stats(),
		Fixes:   make(map[string]gps.Fix),
		Odo:     s.odometer(),
		Clients: s.clientCount(),
	}
	s.fixMu.RLock()
	for tag, f := range s.lastFix {
		st.Fixes[tag] = f
	}
	s.fixMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

func (s *Server) handleResetTrip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	s.odoMu.Lock()
	s.odoTrip = 0
	s.odoMu.Unlock()
	s.saveOdometer()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) odometer() OdoData {
	s.odoMu.Lock()
	defer s.odoMu.Unlock()
	return OdoData{Total: math.Round(s.odoTotal*10) / 10, Trip: math.Round(s.odoTrip*10) / 10}
}

// updateOdometer accumulates distance from position changes.
func (s *Server) updateOdometer(lat, lon float64) {
	s.odoMu.Lock()
	defer s.odoMu.Unlock()

	if !s.lastPosValid {
		// First moving fix, seed position, don't accumulate
		s.lastLat = lat
		s.lastLon = lon
		s.lastPosValid = true
		return
	}

	dist := haversineKm(s.lastLat, s.lastLon, lat, lon)

	// Sanity check: ignore jumps > 500m between fixes (receiver glitch)
	if dist > 0.5 {
		s.lastLat = lat
		s.lastLon = lon
		return
	}

	// Minimum movement threshold: ~2 meters
	if dist > 0.002 {
		s.odoTotal += dist
		s.odoTrip += dist
		s.lastLat = lat
		s.lastLon = lon
	}
}

// haversineKm calculates the great-circle distance between two lat/lon points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0 // Earth radius km
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// loadOdometer reads persisted odometer values from disk.
func (s *Server) loadOdometer() {
	data, err := os.ReadFile(s.odoPath)
	if err != nil {
		log.Info("no saved odometer, starting at 0", zap.String("component", "odo"), zap.String("path", s.odoPath))
		return
	}
	parts := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(parts) >= 1 {
		if v, err := strconv.ParseFloat(parts[0], 64); err == nil {
			s.odoTotal = v
		}
	}
	if len(parts) >= 2 {
		if v, err := strconv.ParseFloat(parts[1], 64); err == nil {
			s.odoTrip = v
		}
	}
	log.Info("loaded odometer", zap.String("component", "odo"),
		zap.Float64("total_km", s.odoTotal), zap.Float64("trip_km", s.odoTrip))
}

// saveOdometer persists odometer values to disk.
func (s *Server) saveOdometer() error {
	s.odoMu.Lock()
	total := s.odoTotal
	trip := s.odoTrip
	s.odoMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.odoPath), 0755); err != nil {
		log.Warn("odometer save failed", zap.String("component", "odo"), zap.Error(err))
		return err
	}

	data := fmt.Sprintf("%.6f\n%.6f\n", total, trip)
	if err := os.WriteFile(s.odoPath, []byte(data), 0644); err != nil {
		log.Warn("odometer save failed", zap.String("component", "odo"), zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
