package plan

// Scan2D sweeps two movers over a rectangular grid, outer axis slowest
// (spec.md §4.6 "2-D grid scan"). Grid coordinates are computed lazily
// from each axis's Start/Stop/Steps, mirroring Scan1D.
type Scan2D struct {
	Name             string
	Args             map[string]string
	OuterID, InnerID string
	DetIDs           []string

	OuterStart, OuterStop float64
	OuterSteps            int
	InnerStart, InnerStop float64
	InnerSteps            int
	StreamName            string

	outer, inner int
	detIdx       int
	stage        stage2
}

type stage2 int

const (
	stage2MoveOuter stage2 = iota
	stage2MoveInner
	stage2TriggerDet
	stage2ReadDet
	stage2Emit
	stage2Done
)

func NewScan2D(name string, args map[string]string, outerID string, outerStart, outerStop float64, outerSteps int,
	innerID string, innerStart, innerStop float64, innerSteps int, detIDs []string, streamName string) *Scan2D {
	if outerSteps < 1 {
		outerSteps = 1
	}
	if innerSteps < 1 {
		innerSteps = 1
	}
	return &Scan2D{
		Name: name, Args: args, OuterID: outerID, InnerID: innerID, DetIDs: detIDs,
		OuterStart: outerStart, OuterStop: outerStop, OuterSteps: outerSteps,
		InnerStart: innerStart, InnerStop: innerStop, InnerSteps: innerSteps,
		StreamName: streamName,
	}
}

func (p *Scan2D) PlanType() string            { return "Scan2D" }
func (p *Scan2D) PlanName() string            { return p.Name }
func (p *Scan2D) PlanArgs() map[string]string { return p.Args }
func (p *Scan2D) Movers() []string            { return []string{p.OuterID, p.InnerID} }
func (p *Scan2D) Detectors() []string         { return append([]string(nil), p.DetIDs...) }
func (p *Scan2D) NumPoints() int              { return p.OuterSteps * p.InnerSteps }

func axisPos(start, stop float64, steps, i int) float64 {
	if steps == 1 {
		return start
	}
	frac := float64(i) / float64(steps-1)
	return start + frac*(stop-start)
}

func (p *Scan2D) Next() (Command, bool) {
	if p.outer >= p.OuterSteps {
		return Command{}, false
	}

	switch p.stage {
	case stage2MoveOuter:
		op := axisPos(p.OuterStart, p.OuterStop, p.OuterSteps, p.outer)
		p.stage = stage2MoveInner
		return Command{Kind: MoveTo, DeviceID: p.OuterID, Target: op}, true

	case stage2MoveInner:
		ip := axisPos(p.InnerStart, p.InnerStop, p.InnerSteps, p.inner)
		p.detIdx = 0
		p.stage = stage2TriggerDet
		return Command{Kind: MoveTo, DeviceID: p.InnerID, Target: ip}, true

	case stage2TriggerDet:
		if p.detIdx >= len(p.DetIDs) {
			p.stage = stage2Emit
			return p.Next()
		}
		p.stage = stage2ReadDet
		return Command{Kind: Trigger, DeviceID: p.DetIDs[p.detIdx]}, true

	case stage2ReadDet:
		id := p.DetIDs[p.detIdx]
		p.detIdx++
		p.stage = stage2TriggerDet
		return Command{Kind: Read, DeviceID: id}, true

	case stage2Emit:
		p.stage = stage2Done
		return p.emitEvent(), true

	default: // stage2Done
		p.inner++
		if p.inner >= p.InnerSteps {
			p.inner = 0
			p.outer++
		}
		p.stage = stage2MoveOuter
		return p.Next()
	}
}

// emitEvent carries only the two axis positions; detector values are
// merged in by the engine from its read accumulator.
func (p *Scan2D) emitEvent() Command {
	op := axisPos(p.OuterStart, p.OuterStop, p.OuterSteps, p.outer)
	ip := axisPos(p.InnerStart, p.InnerStop, p.InnerSteps, p.inner)
	return Command{
		Kind:       EmitEvent,
		StreamName: p.StreamName,
		Positions:  map[string]float64{p.OuterID: op, p.InnerID: ip},
	}
}

func (p *Scan2D) Reset() {
	p.outer, p.inner = 0, 0
	p.detIdx = 0
	p.stage = stage2MoveOuter
}
