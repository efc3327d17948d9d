package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full bot configuration file.
type Config struct {
	APIKey         string    `toml:"api_key"`
	WatchedIDs     IDList    `toml:"monitor_id"`
	NeedDisconnect bool      `toml:"need_disconnect"`
	Server         Server    `toml:"server"`
	Monitor        Monitor   `toml:"monitor"`
	Companion      Companion `toml:"companion"`
}

// Server describes the voice server the bot should sit on.
type Server struct {
	Address    string `toml:"address"`
	Channel    string `toml:"channel"`
	Password   string `toml:"password"`
	TimeoutSec int64  `toml:"timeout"`
	SwitchWait int64  `toml:"switch_wait"`
}

func (s Server) Timeout() time.Duration {
	secs := s.TimeoutSec
	if secs < 3 {
		secs = 3
	}
	return time.Duration(secs) * time.Second
}

// SwitchSettle is the pause between joining a channel and editing it.
func (s Server) SwitchSettle() time.Duration {
	ms := s.SwitchWait
	if ms < 500 {
		ms = 500
	}
	return time.Duration(ms) * time.Millisecond
}

// Monitor describes the optional web roster probe used while the bot is
// not yet placed on the server.
type Monitor struct {
	WebEnabled  bool   `toml:"web"`
	Username    string `toml:"username"`
	Backend     string `toml:"backend"`
	IntervalMin int64  `toml:"interval"`
	PollMS      int64  `toml:"poll_ms"`
}

func (m Monitor) Interval() time.Duration {
	mins := m.IntervalMin
	if mins < 1 {
		mins = 1
	}
	return time.Duration(mins) * time.Minute
}

// Tick is the steady-state poll spacing.
func (m Monitor) Tick() time.Duration {
	ms := m.PollMS
	if ms < 5 {
		ms = 5
	}
	return time.Duration(ms) * time.Millisecond
}

// Companion locates the media player remote-control console.
type Companion struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
}

// IDList accepts either a single integer or an array of integers.
type IDList []int64

func (l *IDList) UnmarshalTOML(v any) error {
	switch value := v.(type) {
	case int64:
		*l = IDList{value}
		return nil
	case []any:
		out := make(IDList, 0, len(value))
		for _, item := range value {
			id, ok := item.(int64)
			if !ok {
				return fmt.Errorf("monitor_id entry %v is not an integer", item)
			}
			out = append(out, id)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("monitor_id must be an integer or an array of integers")
	}
}

func (l IDList) Contains(id int64) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if cfg.Companion.Addr == "" {
		cfg.Companion.Addr = "localhost:4212"
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("config missing api_key")
	}
	if len(cfg.WatchedIDs) == 0 {
		return fmt.Errorf("config missing monitor_id")
	}
	if strings.TrimSpace(cfg.Server.Address) == "" {
		return fmt.Errorf("server config missing address")
	}
	if strings.TrimSpace(cfg.Server.Channel) == "" {
		return fmt.Errorf("server config missing channel")
	}
	if cfg.Monitor.WebEnabled {
		if strings.TrimSpace(cfg.Monitor.Backend) == "" {
			return fmt.Errorf("monitor config web enabled but backend missing")
		}
		if strings.TrimSpace(cfg.Monitor.Username) == "" {
			return fmt.Errorf("monitor config web enabled but username missing")
		}
	}
	return nil
}
