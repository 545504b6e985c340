package harness

// Trace event types.
const (
	EventCall    = "call"
	EventReport  = "report"
	EventData    = "data"
	EventConsole = "console"
)

// TraceEvent is one observable effect of the scheduler: a callback
// invocation, a console report, a serial push or a console line.
type TraceEvent struct {
	Seq      int64  `json:"seq"`
	Tick     int64  `json:"tick"`
	Type     string `json:"type"`
	Callback string `json:"callback,omitempty"`
	Args     []any  `json:"args,omitempty"`
	Message  string `json:"message,omitempty"`
	Device   int    `json:"device,omitempty"`
	Data     string `json:"data,omitempty"`
}

// FinalState holds table sizes after the last step.
type FinalState struct {
	Timers  int `json:"timers"`
	Watches int `json:"watches"`
	Queue   int `json:"queue"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State FinalState `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Calls returns the call events in order.
func (r *Result) Calls() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventCall {
			out = append(out, ev)
		}
	}
	return out
}
