package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TargetKind tags the variant held by a Target.
type TargetKind uint8

const (
	TargetFunction TargetKind = iota + 1
	TargetSource
	TargetList
)

func (k TargetKind) String() string {
	switch k {
	case TargetFunction:
		return "function"
	case TargetSource:
		return "source"
	case TargetList:
		return "list"
	}
	return "unknown"
}

// Func is a native callback body.
type Func func(args Args) error

// Target is what a deferred call, timer or watch invokes: a function, a
// piece of source text, or a list of targets. A nil *Target is absent.
//
// Function targets may carry a native Func, a Name, or both. Persisted
// targets keep only the Name; invokers resolve it at call time. An
// anonymous function may also keep its Source, which is persisted in
// place of the missing name.
type Target struct {
	Kind   TargetKind
	Name   string
	Func   Func
	Source string
	List   []*Target
}

// Function returns a function target.
func Function(name string, fn Func) *Target {
	return &Target{Kind: TargetFunction, Name: name, Func: fn}
}

// Closure returns an anonymous function target that remembers its source
// text. It runs fn while live and persists as a source target.
func Closure(text string, fn Func) *Target {
	return &Target{Kind: TargetFunction, Func: fn, Source: norm.NFC.String(text)}
}

// Source returns a source-text target. Text is NFC normalised.
func Source(text string) *Target {
	return &Target{Kind: TargetSource, Source: norm.NFC.String(text)}
}

// List returns a list target. Nil members are dropped.
func List(members ...*Target) *Target {
	kept := make([]*Target, 0, len(members))
	for _, m := range members {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Target{Kind: TargetList, List: kept}
}

// Flatten expands nested lists depth-first, preserving order.
func (t *Target) Flatten() []*Target {
	if t == nil {
		return nil
	}
	if t.Kind != TargetList {
		return []*Target{t}
	}
	var out []*Target
	for _, m := range t.List {
		out = append(out, m.Flatten()...)
	}
	return out
}

// String renders the target the way a script would spell it.
func (t *Target) String() string {
	if t == nil {
		return "undefined"
	}
	switch t.Kind {
	case TargetFunction:
		switch {
		case t.Name != "":
			return t.Name
		case t.Source != "":
			return t.Source
		}
		return "function () { [native code] }"
	case TargetSource:
		return strconv.Quote(t.Source)
	case TargetList:
		parts := make([]string, len(t.List))
		for i, m := range t.List {
			parts[i] = m.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "undefined"
}

// MarshalJSON encodes {"fn":name}, {"src":text} or an array of targets.
// Source text is not HTML-escaped.
func (t *Target) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	switch t.Kind {
	case TargetFunction:
		if t.Name == "" && t.Source != "" {
			return marshalNoEscape(map[string]string{"src": t.Source})
		}
		return marshalNoEscape(map[string]string{"fn": t.Name})
	case TargetSource:
		return marshalNoEscape(map[string]string{"src": t.Source})
	case TargetList:
		if t.List == nil {
			return []byte("[]"), nil
		}
		return marshalNoEscape(t.List)
	}
	return nil, fmt.Errorf("unknown target kind %d", t.Kind)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes the forms written by MarshalJSON.
func (t *Target) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty target")
	}
	if data[0] == '[' {
		var members []*Target
		if err := json.Unmarshal(data, &members); err != nil {
			return fmt.Errorf("target list: %w", err)
		}
		*t = *List(members...)
		return nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if name, ok := raw["fn"]; ok {
		*t = Target{Kind: TargetFunction, Name: name}
		return nil
	}
	if src, ok := raw["src"]; ok {
		*t = *Source(src)
		return nil
	}
	return fmt.Errorf("target: expected \"fn\" or \"src\" key")
}
