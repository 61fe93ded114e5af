package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"

	"github.com/coldwine/intelwatch/internal/universe"
)

// Config holds intelwatch daemon configuration.
type Config struct {
	LogDir          string
	Rooms           []string
	MaxMessageAge   time.Duration
	Freshness       time.Duration
	AlarmDistance   int
	ShipParser      bool
	CharacterParser bool
	ESIBaseURL      string
	ShipDataURL     string
	MapPath         string
	DBPath          string
	OffsetsPath     string
	HistoryMaxAge   time.Duration
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	stateDir := filepath.Join(home, ".local", "share", "intelwatch")
	return &Config{
		LogDir:          filepath.Join(home, "Documents", "EVE", "logs", "Chatlogs"),
		Rooms:           []string{},
		MaxMessageAge:   20 * time.Minute,
		Freshness:       300 * time.Second,
		AlarmDistance:   2,
		ShipParser:      true,
		CharacterParser: false,
		ESIBaseURL:      "https://esi.evetech.net/latest",
		MapPath:         filepath.Join(stateDir, "map.json"),
		DBPath:          filepath.Join(stateDir, "intel.db"),
		OffsetsPath:     filepath.Join(stateDir, "offsets.json"),
		HistoryMaxAge:   7 * 24 * time.Hour,
	}
}

// fileConfig is the TOML file shape. Durations are strings in Go
// duration syntax; pointers distinguish unset keys from zero values.
type fileConfig struct {
	LogDir          *string  `toml:"log_dir"`
	Rooms           []string `toml:"rooms"`
	MaxMessageAge   *string  `toml:"max_message_age"`
	Freshness       *string  `toml:"freshness"`
	AlarmDistance   *int     `toml:"alarm_distance"`
	ShipParser      *bool    `toml:"ship_parser"`
	CharacterParser *bool    `toml:"character_parser"`
	ESIBaseURL      *string  `toml:"esi_base_url"`
	ShipDataURL     *string  `toml:"ship_data_url"`
	MapPath         *string  `toml:"map_path"`
	DBPath          *string  `toml:"db_path"`
	OffsetsPath     *string  `toml:"offsets_path"`
	HistoryMaxAge   *string  `toml:"history_max_age"`
}

// Load returns configuration from the TOML file at path (skipped when
// path is empty or missing), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := cfg.applyFile(raw, path); err != nil {
			return nil, err
		}
	}

	cfg.LogDir = envOr(cfg.LogDir, "INTELWATCH_LOG_DIR")
	overrideList(&cfg.Rooms, "INTELWATCH_ROOMS")
	overrideDuration(&cfg.MaxMessageAge, "INTELWATCH_MAX_MESSAGE_AGE")
	overrideDuration(&cfg.Freshness, "INTELWATCH_FRESHNESS")
	overrideInt(&cfg.AlarmDistance, "INTELWATCH_ALARM_DISTANCE")
	overrideBool(&cfg.ShipParser, "INTELWATCH_SHIP_PARSER")
	overrideBool(&cfg.CharacterParser, "INTELWATCH_CHARACTER_PARSER")
	cfg.ESIBaseURL = envOr(cfg.ESIBaseURL, "INTELWATCH_ESI_BASE_URL")
	cfg.ShipDataURL = envOr(cfg.ShipDataURL, "INTELWATCH_SHIP_DATA_URL")
	cfg.MapPath = envOr(cfg.MapPath, "INTELWATCH_MAP_PATH")
	cfg.DBPath = envOr(cfg.DBPath, "INTELWATCH_DB_PATH")
	cfg.OffsetsPath = envOr(cfg.OffsetsPath, "INTELWATCH_OFFSETS_PATH")
	overrideDuration(&cfg.HistoryMaxAge, "INTELWATCH_HISTORY_MAX_AGE")

	return cfg, nil
}

func (c *Config) applyFile(raw []byte, path string) error {
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	setString := func(dest *string, val *string) {
		if val != nil {
			*dest = *val
		}
	}
	setString(&c.LogDir, fc.LogDir)
	if fc.Rooms != nil {
		c.Rooms = fc.Rooms
	}
	setDuration := func(dest *time.Duration, val *string, key string) error {
		if val == nil {
			return nil
		}
		parsed, err := time.ParseDuration(*val)
		if err != nil {
			return fmt.Errorf("config %s: bad %s %q: %w", path, key, *val, err)
		}
		*dest = parsed
		return nil
	}
	if err := setDuration(&c.MaxMessageAge, fc.MaxMessageAge, "max_message_age"); err != nil {
		return err
	}
	if err := setDuration(&c.Freshness, fc.Freshness, "freshness"); err != nil {
		return err
	}
	if err := setDuration(&c.HistoryMaxAge, fc.HistoryMaxAge, "history_max_age"); err != nil {
		return err
	}
	if fc.AlarmDistance != nil {
		c.AlarmDistance = *fc.AlarmDistance
	}
	if fc.ShipParser != nil {
		c.ShipParser = *fc.ShipParser
	}
	if fc.CharacterParser != nil {
		c.CharacterParser = *fc.CharacterParser
	}
	setString(&c.ESIBaseURL, fc.ESIBaseURL)
	setString(&c.ShipDataURL, fc.ShipDataURL)
	setString(&c.MapPath, fc.MapPath)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.OffsetsPath, fc.OffsetsPath)
	return nil
}

// MapData is the decoded region map file: the known systems, the
// stargate topology, and any player-built jump bridges.
type MapData struct {
	Systems []string
	Gates   []universe.Gate
	Bridges []universe.Gate
}

// LoadMap reads the JSON map file at MapPath. Format:
//
//	{"systems": ["B-7DFU", "1DQ1-A", ...],
//	 "gates": [{"from": "B-7DFU", "to": "1DQ1-A"}, ...],
//	 "bridges": [{"from": "1DQ1-A", "to": "T5ZI-S"}, ...]}
func (c *Config) LoadMap() (*MapData, error) {
	raw, err := os.ReadFile(c.MapPath)
	if err != nil {
		return nil, fmt.Errorf("read map: %w", err)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.Get("systems").IsArray() {
		return nil, fmt.Errorf("map %s: missing systems array", c.MapPath)
	}

	data := &MapData{}
	doc.Get("systems").ForEach(func(_, s gjson.Result) bool {
		data.Systems = append(data.Systems, s.String())
		return true
	})
	collect := func(field string) []universe.Gate {
		var out []universe.Gate
		doc.Get(field).ForEach(func(_, g gjson.Result) bool {
			out = append(out, universe.Gate{
				From: g.Get("from").String(),
				To:   g.Get("to").String(),
			})
			return true
		})
		return out
	}
	data.Gates = collect("gates")
	data.Bridges = collect("bridges")
	return data, nil
}

// BuildGraph constructs the region graph from the map file, wiring
// bridges on top of the gate topology.
func (c *Config) BuildGraph() (*universe.Graph, error) {
	data, err := c.LoadMap()
	if err != nil {
		return nil, err
	}
	graph, err := universe.Build(data.Systems, data.Gates)
	if err != nil {
		return nil, err
	}
	for _, b := range data.Bridges {
		if err := graph.AddBridge(b.From, b.To); err != nil {
			return nil, fmt.Errorf("bridge %s-%s: %w", b.From, b.To, err)
		}
	}
	return graph, nil
}

func envOr(current, key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return current
}

func overrideList(dest *[]string, key string) {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dest = out
	}
}

func overrideDuration(dest *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			*dest = parsed
		}
	}
}

func overrideBool(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes", "y", "on":
			*dest = true
		case "0", "false", "no", "n", "off":
			*dest = false
		}
	}
}

func overrideInt(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*dest = parsed
		}
	}
}
