package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/gnss-reader/internal/gps"
	"github.com/shaunagostinho/gnss-reader/internal/log"
	"github.com/shaunagostinho/gnss-reader/internal/logger"
	"github.com/shaunagostinho/gnss-reader/internal/publish"
)

// Config holds all reader configuration.
type Config struct {
	mu sync.RWMutex

	// Receiver
	GPS GPSConfig `yaml:"gps" toml:"gps" json:"gps"`

	// CSV fix recorder
	Logging logger.Config `yaml:"logging" toml:"logging" json:"logging"`

	// Live feed
	Server ServerConfig `yaml:"server" toml:"server" json:"server"`

	// Broker publisher
	MQTT publish.Config `yaml:"mqtt" toml:"mqtt" json:"mqtt"`

	Debug bool `yaml:"debug" toml:"debug" json:"debug"`

	path string // file path for save/load
}

type GPSConfig struct {
	Type          string `yaml:"type" toml:"type" json:"type"`                // "nmea" or "demo"
	PortPath      string `yaml:"port_path" toml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate      int    `yaml:"baud_rate" toml:"baud_rate" json:"baudRate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms" toml:"read_timeout_ms" json:"readTimeoutMs"`
	InitDelayMs   int    `yaml:"init_delay_ms" toml:"init_delay_ms" json:"initDelayMs"`
	SettleDelayMs int    `yaml:"settle_delay_ms" toml:"settle_delay_ms" json:"settleDelayMs"`
	IntervalMs    int    `yaml:"interval_ms" toml:"interval_ms" json:"intervalMs"` // fix rate, min 200

	// Constellations
	GPS     bool `yaml:"gps" toml:"gps" json:"gps"`
	GLONASS bool `yaml:"glonass" toml:"glonass" json:"glonass"`
	Galileo bool `yaml:"galileo" toml:"galileo" json:"galileo"`
	BeiDou  bool `yaml:"beidou" toml:"beidou" json:"beidou"`

	Save           bool `yaml:"save" toml:"save" json:"save"` // persist setup to receiver flash
	StrictChecksum bool `yaml:"strict_checksum" toml:"strict_checksum" json:"strictChecksum"`
}

type ServerConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GPS: GPSConfig{
			Type:          "nmea",
			PortPath:      "/dev/ttyUSB0",
			BaudRate:      115200,
			ReadTimeoutMs: 200,
			InitDelayMs:   2000,
			SettleDelayMs: 80,
			IntervalMs:    1000,
			GPS:           true,
			GLONASS:       true,
			Galileo:       true,
			BeiDou:        true,
			Save:          true,
		},
		Logging: logger.Config{
			Enabled:    false,
			Path:       "/var/log/gnss-reader",
			IntervalMs: 0,
		},
		Server: ServerConfig{
			Enabled:    true,
			ListenAddr: ":8080",
		},
		MQTT: publish.Config{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			Topic:    "gnss/fix",
			QoS:      0,
			Retained: true,
		},
	}
}

// LoadConfig reads config from a YAML or TOML file (chosen by extension),
// then applies .env and environment variable overrides. Falls back to
// defaults if the file is not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Info("no config file, using defaults", zap.String("path", path))
	} else if err := unmarshalConfig(path, data, cfg); err != nil {
		log.Warn("error parsing config, using defaults", zap.String("path", path), zap.Error(err))
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Info("loaded config", zap.String("path", path))
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()
	return cfg
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func unmarshalConfig(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Info("loading .env", zap.String("path", path))
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Strip surrounding quotes
		val = strings.Trim(val, `"'`)
		// Only set if not already set in real env (real env takes precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || v == "true" || v == "yes"
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: GPS_TYPE, GPS_PORT, GPS_BAUD, GPS_INTERVAL_MS, GPS_GPS,
// GPS_GLONASS, GPS_GALILEO, GPS_BEIDOU, GPS_SAVE, GPS_STRICT, LISTEN_ADDR,
// LOG_ENABLED, LOG_PATH, LOG_INTERVAL_MS, MQTT_ENABLED, MQTT_BROKER,
// MQTT_TOPIC, MQTT_CLIENT_ID, MQTT_USERNAME, MQTT_PASSWORD, DEBUG
func (c *Config) applyEnvOverrides() {
	envString("GPS_TYPE", &c.GPS.Type)
	envString("GPS_PORT", &c.GPS.PortPath)
	envInt("GPS_BAUD", &c.GPS.BaudRate)
	envInt("GPS_INTERVAL_MS", &c.GPS.IntervalMs)
	envBool("GPS_GPS", &c.GPS.GPS)
	envBool("GPS_GLONASS", &c.GPS.GLONASS)
	envBool("GPS_GALILEO", &c.GPS.Galileo)
	envBool("GPS_BEIDOU", &c.GPS.BeiDou)
	envBool("GPS_SAVE", &c.GPS.Save)
	envBool("GPS_STRICT", &c.GPS.StrictChecksum)

	envString("LISTEN_ADDR", &c.Server.ListenAddr)

	// Logging
	envBool("LOG_ENABLED", &c.Logging.Enabled)
	envString("LOG_PATH", &c.Logging.Path)
	envInt("LOG_INTERVAL_MS", &c.Logging.IntervalMs)

	// MQTT
	envBool("MQTT_ENABLED", &c.MQTT.Enabled)
	envString("MQTT_BROKER", &c.MQTT.Broker)
	envString("MQTT_TOPIC", &c.MQTT.Topic)
	envString("MQTT_CLIENT_ID", &c.MQTT.ClientID)
	envString("MQTT_USERNAME", &c.MQTT.Username)
	envString("MQTT_PASSWORD", &c.MQTT.Password)

	envBool("DEBUG", &c.Debug)
}

// Path returns the file the config was loaded from and saves to.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// Save writes the config to its file, as TOML when the path ends in .toml
// and YAML otherwise.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		c.path = "/etc/gnss-reader/config.yaml"
	}

	var (
		data []byte
		err  error
	)
	if isTOML(c.path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API. The MQTT password is never exposed.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := struct {
		GPS     GPSConfig      `json:"gps"`
		Logging logger.Config  `json:"logging"`
		Server  ServerConfig   `json:"server"`
		MQTT    publish.Config `json:"mqtt"`
		Debug   bool           `json:"debug"`
	}{c.GPS, c.Logging, c.Server, c.MQTT, c.Debug}
	if out.MQTT.Password != "" {
		out.MQTT.Password = "********"
	}
	return json.Marshal(out)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	// The masked password from ToJSON must not overwrite the real one.
	if m, ok := patch["mqtt"].(map[string]interface{}); ok {
		if p, ok := m["password"].(string); ok && strings.Trim(p, "*") == "" {
			delete(m, "password")
		}
	}

	// Deep merge patch into base
	deepMerge(base, patch)

	// Marshal merged result and unmarshal back into the config struct
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}

// ReceiverConfig converts the gps section into receiver settings.
func (c *Config) ReceiverConfig() gps.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return gps.Config{
		PortPath:    c.GPS.PortPath,
		BaudRate:    c.GPS.BaudRate,
		ReadTimeout: time.Duration(c.GPS.ReadTimeoutMs) * time.Millisecond,
		InitDelay:   time.Duration(c.GPS.InitDelayMs) * time.Millisecond,
		SettleDelay: time.Duration(c.GPS.SettleDelayMs) * time.Millisecond,
		Strict:      c.GPS.StrictChecksum,
	}
}

// Setup converts the gps section into the receiver setup sequence options.
func (c *Config) Setup() gps.Setup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return gps.Setup{
		GPS:        c.GPS.GPS,
		GLONASS:    c.GPS.GLONASS,
		Galileo:    c.GPS.Galileo,
		BeiDou:     c.GPS.BeiDou,
		IntervalMs: c.GPS.IntervalMs,
		Save:       c.GPS.Save,
	}
}

// Snapshot returns a copy of the config sections for read-only use.
func (c *Config) Snapshot() (GPSConfig, logger.Config, ServerConfig, publish.Config) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.GPS, c.Logging, c.Server, c.MQTT
}
