package engine

import "github.com/roach88/tickloop/internal/ir"

// EdgeMatches reports whether a pin now at level high satisfies policy:
// rising wants high, falling wants low, both accepts either.
func EdgeMatches(policy ir.Edge, high bool) bool {
	switch policy {
	case ir.EdgeRising:
		return high
	case ir.EdgeFalling:
		return !high
	case ir.EdgeBoth:
		return true
	}
	return false
}

func validEdge(policy ir.Edge) bool {
	switch policy {
	case ir.EdgeRising, ir.EdgeFalling, ir.EdgeBoth:
		return true
	}
	return false
}
