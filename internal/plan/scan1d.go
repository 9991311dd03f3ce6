package plan

// Scan1D sweeps a single mover across an inclusive linear range, reading
// one or more detectors and emitting one event at each point (spec.md
// §4.6 "1-D scan"). Points are computed lazily from Start/Stop/Steps
// rather than pre-materialized, so a scan with a large step count costs
// no more memory than a three-point one.
type Scan1D struct {
	Name       string
	Args       map[string]string
	MoverID    string
	DetIDs     []string
	Start      float64
	Stop       float64
	Steps      int // number of points, inclusive of both ends; Steps>=1
	StreamName string

	point  int    // index into the logical point sequence
	detIdx int     // index into DetIDs for the trigger/read sub-loop
	stage  stage1 // sub-step within the current point
}

type stage1 int

const (
	stage1Move stage1 = iota
	stage1TriggerDet
	stage1ReadDet
	stage1Emit
	stage1Done
)

func NewScan1D(name string, args map[string]string, moverID string, detIDs []string, start, stop float64, steps int, streamName string) *Scan1D {
	if steps < 1 {
		steps = 1
	}
	return &Scan1D{
		Name: name, Args: args, MoverID: moverID, DetIDs: detIDs,
		Start: start, Stop: stop, Steps: steps, StreamName: streamName,
	}
}

func (p *Scan1D) PlanType() string            { return "Scan1D" }
func (p *Scan1D) PlanName() string            { return p.Name }
func (p *Scan1D) PlanArgs() map[string]string { return p.Args }
func (p *Scan1D) Movers() []string            { return []string{p.MoverID} }
func (p *Scan1D) Detectors() []string         { return append([]string(nil), p.DetIDs...) }
func (p *Scan1D) NumPoints() int              { return p.Steps }

func (p *Scan1D) positionAt(i int) float64 {
	if p.Steps == 1 {
		return p.Start
	}
	frac := float64(i) / float64(p.Steps-1)
	return p.Start + frac*(p.Stop-p.Start)
}

// Next walks move -> (trigger, read) per detector -> emit for the current
// point, then advances to the next one (spec.md §4.6/§4.7: a Read command
// per detector, merged into the event by the engine's accumulator; see
// RunEngine.dispatch).
func (p *Scan1D) Next() (Command, bool) {
	if p.point >= p.Steps {
		return Command{}, false
	}

	switch p.stage {
	case stage1Move:
		pos := p.positionAt(p.point)
		p.detIdx = 0
		p.stage = stage1TriggerDet
		return Command{Kind: MoveTo, DeviceID: p.MoverID, Target: pos}, true

	case stage1TriggerDet:
		if p.detIdx >= len(p.DetIDs) {
			p.stage = stage1Emit
			return p.Next()
		}
		p.stage = stage1ReadDet
		return Command{Kind: Trigger, DeviceID: p.DetIDs[p.detIdx]}, true

	case stage1ReadDet:
		id := p.DetIDs[p.detIdx]
		p.detIdx++
		p.stage = stage1TriggerDet
		return Command{Kind: Read, DeviceID: id}, true

	case stage1Emit:
		p.stage = stage1Done
		return p.emitEvent(), true

	default: // stage1Done
		p.point++
		p.stage = stage1Move
		return p.Next()
	}
}

// emitEvent carries only the mover's position (Positions); detector values
// are merged in by the engine from its read accumulator.
func (p *Scan1D) emitEvent() Command {
	pos := p.positionAt(p.point)
	return Command{
		Kind:       EmitEvent,
		StreamName: p.StreamName,
		Positions:  map[string]float64{p.MoverID: pos},
	}
}

func (p *Scan1D) Reset() {
	p.point = 0
	p.detIdx = 0
	p.stage = stage1Move
}
