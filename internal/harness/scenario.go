package harness

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tickloop/internal/ir"
)

// Scenario drives a scheduler over the simulated board and asserts on the
// resulting trace and final tables. All times are in ticks.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides configuration fields. The harness runs one tick
	// per millisecond with sleeping off unless overridden here.
	Config map[string]any `yaml:"config,omitempty"`

	// Setup creates timers, watches and queued calls before the first step.
	Setup Setup `yaml:"setup,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup lists what exists before the first step. Callbacks are named
// recording functions.
type Setup struct {
	Timers  []TimerSetup `yaml:"timers,omitempty"`
	Watches []WatchSetup `yaml:"watches,omitempty"`
	Calls   []CallSetup  `yaml:"calls,omitempty"`
}

// TimerSetup schedules a timer.
type TimerSetup struct {
	Callback  string `yaml:"callback"`
	Interval  int64  `yaml:"interval"`
	Recurring bool   `yaml:"recurring,omitempty"`

	// Fail makes every call to Callback fail.
	Fail bool `yaml:"fail,omitempty"`

	// Cancels names a setup timer this callback cancels when it runs.
	Cancels string `yaml:"cancels,omitempty"`
}

// WatchSetup adds a watch.
type WatchSetup struct {
	Callback string `yaml:"callback"`
	Pin      int    `yaml:"pin"`
	Edge     string `yaml:"edge,omitempty"`
	Repeat   bool   `yaml:"repeat,omitempty"`
	Debounce int64  `yaml:"debounce,omitempty"`
	Fail     bool   `yaml:"fail,omitempty"`
}

// CallSetup queues a deferred call.
type CallSetup struct {
	Callback string `yaml:"callback"`
	Args     []any  `yaml:"args,omitempty"`
	Fail     bool   `yaml:"fail,omitempty"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	// Advance moves virtual time forward and runs one idle step.
	Advance int64 `yaml:"advance,omitempty"`

	// Idle runs that many idle steps without moving time.
	Idle int `yaml:"idle,omitempty"`

	Edge      *EdgeStep   `yaml:"edge,omitempty"`
	Serial    *SerialStep `yaml:"serial,omitempty"`
	Console   string      `yaml:"console,omitempty"`
	Cancel    string      `yaml:"cancel,omitempty"`
	Remove    string      `yaml:"remove,omitempty"`
	Interrupt bool        `yaml:"interrupt,omitempty"`
}

// EdgeStep changes a pin level, now or at a later tick.
type EdgeStep struct {
	Pin  int    `yaml:"pin"`
	High bool   `yaml:"high"`
	At   *int64 `yaml:"at,omitempty"`
}

// SerialStep receives bytes on a device, now or at a later tick.
type SerialStep struct {
	Device int    `yaml:"device"`
	Data   string `yaml:"data"`
	At     *int64 `yaml:"at,omitempty"`
}

func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Advance != 0, s.Idle != 0, s.Edge != nil, s.Serial != nil,
		s.Console != "", s.Cancel != "", s.Remove != "", s.Interrupt,
	} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Callback is the callback name (trace_contains, trace_count).
	Callback string `yaml:"callback,omitempty"`

	// Args is matched against the first callback argument, subset
	// semantics (trace_contains).
	Args map[string]any `yaml:"args,omitempty"`

	// At is the tick the call must happen at (trace_contains).
	At *int64 `yaml:"at,omitempty"`

	// Count is the expected number of calls (trace_count).
	Count int `yaml:"count,omitempty"`

	// Callbacks is the expected call order (trace_order).
	Callbacks []string `yaml:"callbacks,omitempty"`

	// Message is a substring of a console report (report_contains).
	Message string `yaml:"message,omitempty"`

	// Device and Data describe a serial push (serial_data).
	Device int    `yaml:"device,omitempty"`
	Data   string `yaml:"data,omitempty"`

	// Timers, Watches and Queue are expected final counts (final_state).
	Timers  *int `yaml:"timers,omitempty"`
	Watches *int `yaml:"watches,omitempty"`
	Queue   *int `yaml:"queue,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertReportContains = "report_contains"
	AssertSerialData     = "serial_data"
	AssertFinalState     = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(fs afero.Fs, path string) (*Scenario, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	timers := make(map[string]bool)
	for i, t := range s.Setup.Timers {
		if t.Callback == "" {
			return fmt.Errorf("setup.timers[%d]: callback is required", i)
		}
		timers[t.Callback] = true
	}
	for i, t := range s.Setup.Timers {
		if t.Cancels != "" && !timers[t.Cancels] {
			return fmt.Errorf("setup.timers[%d]: cancels unknown timer %q", i, t.Cancels)
		}
	}
	for i, w := range s.Setup.Watches {
		if w.Callback == "" {
			return fmt.Errorf("setup.watches[%d]: callback is required", i)
		}
		if _, err := ir.ParseEdge(w.Edge); err != nil {
			return fmt.Errorf("setup.watches[%d]: %w", i, err)
		}
	}
	for i, c := range s.Setup.Calls {
		if c.Callback == "" {
			return fmt.Errorf("setup.calls[%d]: callback is required", i)
		}
		if len(c.Args) > ir.MaxArgs {
			return fmt.Errorf("setup.calls[%d]: at most %d args allowed", i, ir.MaxArgs)
		}
	}

	for i, step := range s.Steps {
		if n := step.actions(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action required, got %d", i, n)
		}
		if step.Advance < 0 || step.Idle < 0 {
			return fmt.Errorf("steps[%d]: advance and idle must be positive", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Callback == "" {
			return fmt.Errorf("assertions[%d]: callback is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Callbacks) == 0 {
			return fmt.Errorf("assertions[%d]: callbacks list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Callback == "" {
			return fmt.Errorf("assertions[%d]: callback is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertReportContains:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for report_contains", index)
		}
	case AssertSerialData:
		if a.Data == "" {
			return fmt.Errorf("assertions[%d]: data is required for serial_data", index)
		}
	case AssertFinalState:
		if a.Timers == nil && a.Watches == nil && a.Queue == nil {
			return fmt.Errorf("assertions[%d]: final_state needs timers, watches or queue", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
