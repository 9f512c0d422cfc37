package adcsim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `json:"server" yaml:"server"`
	Log      LogConfig       `json:"log" yaml:"log"`
	Metrics  MetricsConfig   `json:"metrics" yaml:"metrics"`
	Redis    RedisConfig     `json:"redis" yaml:"redis"`
	Channels []ChannelConfig `json:"channels" yaml:"channels"`
}

type ServerConfig struct {
	Url     string `json:"url" yaml:"url"`
	Timeout int    `json:"timeout" yaml:"timeout"` // client timeout in milliseconds
}

type LogConfig struct {
	Level    string `json:"level" yaml:"level"`   // debug | info | warn | error
	Format   string `json:"format" yaml:"format"` // text | json
	Output   string `json:"output" yaml:"output"` // stdout | stderr | file
	FilePath string `json:"file_path" yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Channel  string `json:"channel" yaml:"channel"`
	Interval int    `json:"interval" yaml:"interval"` // publish period in milliseconds
}

// ChannelConfig describes one simulated converter input and where it lives in the Modbus
// address space. Signal takes the menu names ("4-20mA", "±10V", ...); Value is the initial
// engineering value and defaults to the midpoint of the range.
type ChannelConfig struct {
	Name    string   `json:"name" yaml:"name"`
	UnitID  uint8    `json:"unit_id" yaml:"unit_id"`
	Address uint16   `json:"address" yaml:"address"`
	Min     float64  `json:"min" yaml:"min"`
	Max     float64  `json:"max" yaml:"max"`
	Unit    string   `json:"unit" yaml:"unit"`
	Signal  string   `json:"signal" yaml:"signal"`
	Bits    int      `json:"bits" yaml:"bits"`
	Vref    float64  `json:"vref" yaml:"vref"`
	Value   *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

func (c ChannelConfig) Range() EngineeringRange {
	return EngineeringRange{Min: c.Min, Max: c.Max, Unit: c.Unit}
}

func (c ChannelConfig) ADC() AdcConfig {
	return AdcConfig{ResolutionBits: c.Bits, ReferenceVoltage: c.Vref}
}

// ParsedSignal returns the channel's signal standard; an empty name means DefaultSignal.
func (c ChannelConfig) ParsedSignal() (Signal, error) {
	if c.Signal == "" {
		return DefaultSignal, nil
	}
	return ParseSignal(c.Signal)
}

func (c ChannelConfig) withDefaults() ChannelConfig {
	if c.Bits == 0 {
		c.Bits = DefaultResolutionBits
	}
	if c.Vref == 0 {
		c.Vref = DefaultReferenceVoltage
	}
	if c.Unit == "" {
		c.Unit = DefaultUnit
	}
	if c.UnitID == 0 {
		c.UnitID = 1
	}
	if c.Signal == "" {
		c.Signal = DefaultSignal.String()
	}
	return c
}

// Duration returns the publish period, defaulting to one second.
func (c RedisConfig) Duration() time.Duration {
	if c.Interval <= 0 {
		return time.Second
	}
	return time.Duration(c.Interval) * time.Millisecond
}

// DefaultConfig returns a single temperature channel served on tcp://localhost:5502.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Url: "tcp://localhost:5502", Timeout: 1000},
		Log:    LogConfig{Level: "info", Format: "text", Output: "stdout"},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Channel:  "adcsim:samples",
			Interval: 1000,
		},
		Channels: []ChannelConfig{{
			Name:    "TT-101",
			UnitID:  1,
			Address: 0,
			Min:     DefaultRange.Min,
			Max:     DefaultRange.Max,
			Unit:    DefaultRange.Unit,
			Signal:  DefaultSignal.String(),
			Bits:    DefaultResolutionBits,
			Vref:    DefaultReferenceVoltage,
		}},
	}
}

// LoadConfig reads config.json from configPath, falling back to config.yaml or config.yml.
func LoadConfig(configPath string) (Config, error) {
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		file := path.Join(configPath, name)
		if !exists(file) {
			continue
		}
		bb, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("error reading file: %w", err)
		}
		config := DefaultConfig()
		config.Channels = nil
		if path.Ext(name) == ".json" {
			err = json.NewDecoder(bytes.NewReader(bb)).Decode(&config)
		} else {
			err = yaml.Unmarshal(bb, &config)
		}
		if err != nil {
			return Config{}, fmt.Errorf("error decoding file %s: %w", file, err)
		}
		for i := range config.Channels {
			config.Channels[i] = config.Channels[i].withDefaults()
		}
		return config, nil
	}
	return Config{}, fmt.Errorf("configuration file not found: %s", path.Join(configPath, "config.json"))
}

func exists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil || !os.IsNotExist(err)
}
