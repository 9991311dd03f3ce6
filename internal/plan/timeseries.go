package plan

// TimeSeries triggers and reads one or more detectors at a fixed interval
// for a fixed number of points, with no mover involved (spec.md §4.6 "time
// series"). The first point fires immediately; a Wait command precedes
// every subsequent one.
type TimeSeries struct {
	Name       string
	Args       map[string]string
	DetIDs     []string
	IntervalS  float64
	Count      int
	StreamName string

	point  int
	detIdx int
	stage  stage3
}

type stage3 int

const (
	stage3Wait stage3 = iota
	stage3TriggerDet
	stage3ReadDet
	stage3Emit
	stage3Done
)

func NewTimeSeries(name string, args map[string]string, detIDs []string, intervalS float64, count int, streamName string) *TimeSeries {
	if count < 1 {
		count = 1
	}
	return &TimeSeries{Name: name, Args: args, DetIDs: detIDs, IntervalS: intervalS, Count: count, StreamName: streamName}
}

func (p *TimeSeries) PlanType() string            { return "TimeSeries" }
func (p *TimeSeries) PlanName() string            { return p.Name }
func (p *TimeSeries) PlanArgs() map[string]string { return p.Args }
func (p *TimeSeries) Movers() []string            { return nil }
func (p *TimeSeries) Detectors() []string         { return append([]string(nil), p.DetIDs...) }
func (p *TimeSeries) NumPoints() int              { return p.Count }

func (p *TimeSeries) Next() (Command, bool) {
	if p.point >= p.Count {
		return Command{}, false
	}

	switch p.stage {
	case stage3Wait:
		p.detIdx = 0
		p.stage = stage3TriggerDet
		if p.point == 0 {
			return p.Next() // no wait before the first point
		}
		return Command{Kind: Wait, Seconds: p.IntervalS}, true

	case stage3TriggerDet:
		if p.detIdx >= len(p.DetIDs) {
			p.stage = stage3Emit
			return p.Next()
		}
		p.stage = stage3ReadDet
		return Command{Kind: Trigger, DeviceID: p.DetIDs[p.detIdx]}, true

	case stage3ReadDet:
		id := p.DetIDs[p.detIdx]
		p.detIdx++
		p.stage = stage3TriggerDet
		return Command{Kind: Read, DeviceID: id}, true

	case stage3Emit:
		p.stage = stage3Done
		return p.emitEvent(), true

	default: // stage3Done
		p.point++
		p.stage = stage3Wait
		return p.Next()
	}
}

// emitEvent carries the point index as a position so consumers can
// correlate events in a stream with no mover of its own; detector values
// are merged in by the engine from its read accumulator.
func (p *TimeSeries) emitEvent() Command {
	return Command{Kind: EmitEvent, StreamName: p.StreamName, Positions: map[string]float64{"point": float64(p.point)}}
}

func (p *TimeSeries) Reset() {
	p.point = 0
	p.detIdx = 0
	p.stage = stage3Wait
}
