package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tickloop/internal/ir"
)

func TestEdgeMatches(t *testing.T) {
	tests := []struct {
		edge ir.Edge
		high bool
		want bool
	}{
		{ir.EdgeRising, true, true},
		{ir.EdgeRising, false, false},
		{ir.EdgeFalling, true, false},
		{ir.EdgeFalling, false, true},
		{ir.EdgeBoth, true, true},
		{ir.EdgeBoth, false, true},
		{ir.Edge("sideways"), true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EdgeMatches(tt.edge, tt.high), "%s/%v", tt.edge, tt.high)
	}
}
