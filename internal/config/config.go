// Package config loads board and scheduler configuration.
//
// Files are CUE (JSON is valid CUE) unified against the embedded
// #Config schema, so unknown fields, out-of-range values and wrong types
// are rejected with a source position. Every field has a default.
package config

import (
	_ "embed"
	"fmt"
	"math/bits"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/spf13/afero"

	"github.com/roach88/tickloop/internal/engine"
	"github.com/roach88/tickloop/internal/hw"
)

//go:embed schema.cue
var schemaSrc string

const schemaFile = "schema.cue"

// Config is a decoded, validated configuration.
type Config struct {
	TickRate            int64          `json:"tick_rate"`
	TimestampBits       uint           `json:"timestamp_bits"`
	ReclaimThresholdMS  float64        `json:"reclaim_threshold_ms"`
	SleepCapMS          float64        `json:"sleep_cap_ms"`
	SleepAfterIdleSteps int            `json:"sleep_after_idle_steps"`
	MinIntervalMS       float64        `json:"min_interval_ms"`
	EventBuffer         int            `json:"event_buffer"`
	ConsoleDevice       int            `json:"console_device"`
	SerialByteSize      map[string]int `json:"serial_bytesize"`
	MaxTimers           int            `json:"max_timers"`
	MaxWatches          int            `json:"max_watches"`
	MaxQueue            int            `json:"max_queue"`
	OwnerCheck          bool           `json:"owner_check"`
}

// Error reports an invalid configuration.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration an empty file produces.
func Default() *Config {
	cfg, err := Parse("default.cue", nil)
	if err != nil {
		// The embedded schema is broken; nothing can run.
		panic(fmt.Sprintf("config: default configuration: %v", err))
	}
	return cfg
}

// Load reads and validates the file at path from fs.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates src (named filename in error positions).
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename(schemaFile))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// check covers what the schema cannot express.
func (c *Config) check() error {
	if bits.OnesCount(uint(c.EventBuffer)) != 1 {
		return &Error{Field: "event_buffer", Message: fmt.Sprintf("%d is not a power of two", c.EventBuffer)}
	}
	return nil
}

// Rate returns the configured tick rate.
func (c *Config) Rate() engine.TickRate {
	return engine.TickRate(c.TickRate)
}

// ByteSizes returns serial_bytesize keyed by device number, in device order.
func (c *Config) ByteSizes() []DeviceByteSize {
	out := make([]DeviceByteSize, 0, len(c.SerialByteSize))
	for key, size := range c.SerialByteSize {
		dev, err := strconv.Atoi(key)
		if err != nil {
			continue // the schema only admits numeric keys
		}
		out = append(out, DeviceByteSize{Device: dev, Bits: uint8(size)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// DeviceByteSize is one serial_bytesize entry.
type DeviceByteSize struct {
	Device int
	Bits   uint8
}

// EngineOptions converts the configuration into scheduler options.
func (c *Config) EngineOptions() []engine.Option {
	rate := c.Rate()
	opts := []engine.Option{
		engine.WithTickRate(rate),
		engine.WithTimestampBits(c.TimestampBits),
		engine.WithReclaimThreshold(rate.FromMillis(c.ReclaimThresholdMS)),
		engine.WithSleepCap(rate.FromMillis(c.SleepCapMS)),
		engine.WithSleepAfter(uint8(c.SleepAfterIdleSteps)),
		engine.WithMinInterval(rate.FromMillis(c.MinIntervalMS)),
		engine.WithConsoleDevice(c.ConsoleDevice),
		engine.WithCapacity(c.MaxTimers, c.MaxWatches, c.MaxQueue),
		engine.WithOwnerCheck(c.OwnerCheck),
	}
	for _, b := range c.ByteSizes() {
		opts = append(opts, engine.WithSerialByteSize(b.Device, b.Bits))
	}
	return opts
}

// SimOptions converts the configuration into simulated board options.
func (c *Config) SimOptions() []hw.SimOption {
	return []hw.SimOption{
		hw.WithTimestampBits(c.TimestampBits),
		hw.WithRingCapacity(c.EventBuffer),
		hw.WithConsoleDevice(c.ConsoleDevice),
	}
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	field := "cue"
	if path := first.Path(); len(path) > 0 {
		field = path[len(path)-1]
	}
	e := &Error{Field: field, Message: first.Error()}
	// Prefer a position in the user's file over one in the schema.
	for _, pos := range errors.Positions(first) {
		if !e.Pos.IsValid() || e.Pos.Filename() == schemaFile {
			e.Pos = pos
		}
	}
	return e
}
