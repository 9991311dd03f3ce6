package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(p Plan) []Command {
	var cmds []Command
	for {
		c, ok := p.Next()
		if !ok {
			return cmds
		}
		cmds = append(cmds, c)
	}
}

func TestScan1DThreePoints(t *testing.T) {
	p := NewScan1D("scan", nil, "mover.x", []string{"det.a"}, 0.0, 10.0, 3, "primary")
	assert.Equal(t, 3, p.NumPoints())
	assert.Equal(t, []string{"mover.x"}, p.Movers())

	cmds := drain(p)
	// move, trigger, read, emit -- per point, 3 points
	require.Len(t, cmds, 12)

	var moves []float64
	var emits, triggers, reads int
	for _, c := range cmds {
		switch c.Kind {
		case MoveTo:
			moves = append(moves, c.Target)
		case EmitEvent:
			emits++
		case Trigger:
			triggers++
			assert.Equal(t, "det.a", c.DeviceID)
		case Read:
			reads++
			assert.Equal(t, "det.a", c.DeviceID)
		}
	}
	assert.Equal(t, []float64{0.0, 5.0, 10.0}, moves)
	assert.Equal(t, 3, emits)
	assert.Equal(t, 3, triggers)
	assert.Equal(t, 3, reads)
}

func TestScan1DExhaustedReturnsFalseImmediately(t *testing.T) {
	p := NewScan1D("scan", nil, "mover.x", nil, 0, 1, 1, "primary")
	_ = drain(p)
	_, ok := p.Next()
	assert.False(t, ok)
	_, ok = p.Next()
	assert.False(t, ok)
}

func TestScan1DResetReplaysIdentically(t *testing.T) {
	p := NewScan1D("scan", nil, "mover.x", []string{"det.a"}, 0.0, 10.0, 3, "primary")
	first := drain(p)
	p.Reset()
	second := drain(p)
	assert.Equal(t, first, second)
}

func TestScan1DSinglePointUsesStart(t *testing.T) {
	p := NewScan1D("scan", nil, "mover.x", nil, 5.0, 99.0, 1, "primary")
	cmds := drain(p)
	require.Len(t, cmds, 2) // move + emit, no detectors
	assert.Equal(t, MoveTo, cmds[0].Kind)
	assert.Equal(t, 5.0, cmds[0].Target)
}

func TestScan2DOuterSlowest(t *testing.T) {
	p := NewScan2D("grid", nil, "mover.y", 0, 1, 2, "mover.x", 0, 1, 2, []string{"det.a"}, "primary")
	assert.Equal(t, 4, p.NumPoints())

	cmds := drain(p)
	var outerMoves, innerMoves []float64
	for _, c := range cmds {
		if c.Kind == MoveTo && c.DeviceID == "mover.y" {
			outerMoves = append(outerMoves, c.Target)
		}
		if c.Kind == MoveTo && c.DeviceID == "mover.x" {
			innerMoves = append(innerMoves, c.Target)
		}
	}
	// outer changes once per 2 inner iterations: 0,0,1,1
	assert.Equal(t, []float64{0, 0, 1, 1}, outerMoves)
	assert.Equal(t, []float64{0, 1, 0, 1}, innerMoves)
}

func TestTimeSeriesNoWaitBeforeFirstPoint(t *testing.T) {
	p := NewTimeSeries("ts", nil, []string{"det.a"}, 0.5, 3, "primary")
	cmds := drain(p)

	require.GreaterOrEqual(t, len(cmds), 1)
	assert.NotEqual(t, Wait, cmds[0].Kind)

	var waits int
	for _, c := range cmds {
		if c.Kind == Wait {
			waits++
			assert.Equal(t, 0.5, c.Seconds)
		}
	}
	assert.Equal(t, 2, waits) // one less than Count
}

func TestImperativePlanReplaysGivenCommands(t *testing.T) {
	want := []Command{
		{Kind: MoveTo, DeviceID: "mover.x", Target: 1},
		{Kind: Trigger, DeviceID: "det.a"},
		{Kind: EmitEvent, StreamName: "primary"},
	}
	p := NewImperativePlan("manual", nil, []string{"mover.x"}, []string{"det.a"}, want)
	assert.Equal(t, 3, p.NumPoints())
	assert.Equal(t, want, drain(p))

	_, ok := p.Next()
	assert.False(t, ok)
	p.Reset()
	assert.Equal(t, want, drain(p))
}
