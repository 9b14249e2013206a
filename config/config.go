// Package config holds the runtime settings of the peripheral.
// Values come from Default(), an optional JSON file, BLECHAT_* environment
// variables and finally command-line flags, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Duration is a time.Duration that reads "1s" style strings from JSON.
type Duration struct{ time.Duration }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms int64
		if err2 := json.Unmarshal(b, &ms); err2 != nil {
			return fmt.Errorf("config: duration must be a string or milliseconds: %w", err)
		}
		d.Duration = time.Duration(ms) * time.Millisecond
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	d.Duration = v
	return nil
}

// ChatConfig configures the chat service.
type ChatConfig struct {
	InitialMessage string `json:"initial_message"`
	// EchoToWriter notifies the writing central of its own message as well.
	EchoToWriter bool `json:"echo_to_writer"`
	MaxLength    int  `json:"max_length"`
}

// BatteryConfig configures the battery countdown.
type BatteryConfig struct {
	InitialLevel int      `json:"initial_level"`
	Interval     Duration `json:"interval"`
	Step         int      `json:"step"`
	Terminal     int      `json:"terminal"`
	// AutoStart begins the countdown at startup instead of on first subscribe.
	AutoStart bool `json:"auto_start"`
	// StopWhenIdle halts the countdown when the last subscriber or the last
	// central goes away.
	StopWhenIdle bool `json:"stop_when_idle"`
}

// EventsConfig configures the event bridge.
type EventsConfig struct {
	QueueSize  int    `json:"queue_size"`
	RecordPath string `json:"record_path,omitempty"`
}

// UIConfig configures the websocket mirror.
type UIConfig struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Console    bool   `json:"console"`
}

// Config is the full peripheral configuration.
type Config struct {
	DeviceName string        `json:"device_name"`
	LogLevel   string        `json:"log_level"`
	Chat       ChatConfig    `json:"chat"`
	Battery    BatteryConfig `json:"battery"`
	Events     EventsConfig  `json:"events"`
	UI         UIConfig      `json:"ui"`
}

// Default returns the configuration matching the reference app: chat starts
// at "hello" with echo, battery counts 100 -> 0 once a second and stops when
// nobody listens.
func Default() *Config {
	return &Config{
		DeviceName: "BleChatServer",
		LogLevel:   "INFO",
		Chat: ChatConfig{
			InitialMessage: "hello",
			EchoToWriter:   true,
			MaxLength:      512,
		},
		Battery: BatteryConfig{
			InitialLevel: 100,
			Interval:     Duration{time.Second},
			Step:         -1,
			Terminal:     0,
			AutoStart:    false,
			StopWhenIdle: true,
		},
		Events: EventsConfig{
			QueueSize: 256,
		},
		UI: UIConfig{
			Console: true,
		},
	}
}

// Load reads a JSON file over the defaults. An empty path returns Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from BLECHAT_* variables.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	var firstErr error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("config: %s: %w", key, err)
				}
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("config: %s: %w", key, err)
				}
				return
			}
			*dst = b
		}
	}

	str("BLECHAT_DEVICE_NAME", &c.DeviceName)
	str("BLECHAT_LOG_LEVEL", &c.LogLevel)
	str("BLECHAT_CHAT_INITIAL_MESSAGE", &c.Chat.InitialMessage)
	flag("BLECHAT_CHAT_ECHO", &c.Chat.EchoToWriter)
	num("BLECHAT_BATTERY_INITIAL_LEVEL", &c.Battery.InitialLevel)
	flag("BLECHAT_BATTERY_AUTO_START", &c.Battery.AutoStart)
	flag("BLECHAT_BATTERY_STOP_WHEN_IDLE", &c.Battery.StopWhenIdle)
	str("BLECHAT_EVENTS_RECORD", &c.Events.RecordPath)
	str("BLECHAT_UI_LISTEN", &c.UI.ListenAddr)
	if v, ok := os.LookupEnv("BLECHAT_BATTERY_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		switch {
		case err == nil:
			c.Battery.Interval = Duration{d}
		case firstErr == nil:
			firstErr = fmt.Errorf("config: BLECHAT_BATTERY_INTERVAL: %w", err)
		}
	}
	return firstErr
}

// Validate checks ranges the services rely on.
func (c *Config) Validate() error {
	var problems []string
	b := c.Battery
	if b.InitialLevel < 0 || b.InitialLevel > 100 {
		problems = append(problems, fmt.Sprintf("battery.initial_level %d outside 0..100", b.InitialLevel))
	}
	if b.Terminal < 0 || b.Terminal > 100 {
		problems = append(problems, fmt.Sprintf("battery.terminal %d outside 0..100", b.Terminal))
	}
	if b.Step == 0 {
		problems = append(problems, "battery.step must not be 0")
	}
	if b.Step < 0 && b.Terminal > b.InitialLevel {
		problems = append(problems, "battery.terminal above initial_level for a countdown")
	}
	if b.Step > 0 && b.Terminal < b.InitialLevel {
		problems = append(problems, "battery.terminal below initial_level for a count-up")
	}
	if b.Interval.Duration <= 0 {
		problems = append(problems, "battery.interval must be positive")
	}
	if c.Chat.MaxLength <= 0 {
		problems = append(problems, "chat.max_length must be positive")
	}
	if len(c.Chat.InitialMessage) > c.Chat.MaxLength {
		problems = append(problems, "chat.initial_message longer than chat.max_length")
	}
	if !utf8.ValidString(c.Chat.InitialMessage) {
		problems = append(problems, "chat.initial_message is not valid UTF-8")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DataDir returns the directory used for event recordings.
func DataDir() string {
	if envDir := os.Getenv("BLECHAT_DIR"); envDir != "" {
		return envDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "blechat-peripheral")
	}
	return filepath.Join(home, ".blechat-peripheral")
}

// RecordPath resolves Events.RecordPath against DataDir when it is relative.
func (c *Config) RecordPath() string {
	p := c.Events.RecordPath
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(DataDir(), p)
}
