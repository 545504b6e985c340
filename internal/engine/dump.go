package engine

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/roach88/tickloop/internal/ir"
)

// DumpState writes the live tables as script calls that would recreate
// them. Debounce timers are omitted; they belong to their watch.
func (s *Scheduler) DumpState(w io.Writer) error {
	return WriteDump(w, s.Snapshot(), s.tickRate)
}

// WriteDump renders a snapshot as script text.
func WriteDump(w io.Writer, snap ir.Snapshot, rate TickRate) error {
	var b strings.Builder
	for _, t := range snap.Timers {
		if t.Watch != 0 {
			continue
		}
		fn := "setTimeout"
		ticks := t.Remaining
		if t.Recurring {
			fn = "setInterval"
			ticks = t.Interval
		}
		fmt.Fprintf(&b, "%s(%s, %s);\n", fn, t.Callback.String(), millis(rate, ticks))
	}
	for _, wr := range snap.Watches {
		fmt.Fprintf(&b, "setWatch(%s, %d, { repeat:%t, edge:'%s'", wr.Callback.String(), wr.Pin, wr.Recurring, wr.Edge)
		if wr.Debounce > 0 {
			fmt.Fprintf(&b, ", debounce:%s", millis(rate, wr.Debounce))
		}
		b.WriteString(" });\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func millis(rate TickRate, ticks int64) string {
	return strconv.FormatFloat(rate.ToMillis(ticks), 'f', -1, 64)
}
