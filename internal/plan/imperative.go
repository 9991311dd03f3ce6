package plan

// ImperativePlan replays a pre-built command slice once, in order, for
// scripted/replayed plans — a feature named in
// original_source/crates/experiment/src/plans_imperative.rs. A single device
// action followed by one EmitEvent (spec.md §4.6's "imperative-command
// wrappers") is the two-command case of the same slice; there is no separate
// constructor for it.
type ImperativePlan struct {
	Name     string
	Args     map[string]string
	MoverIDs []string
	DetIDs   []string
	Commands []Command

	pos int
}

// NewImperativePlan builds a plan that replays exactly the given commands,
// in order, once.
func NewImperativePlan(name string, args map[string]string, movers, detectors []string, cmds []Command) *ImperativePlan {
	return &ImperativePlan{Name: name, Args: args, MoverIDs: movers, DetIDs: detectors, Commands: cmds}
}

func (p *ImperativePlan) PlanType() string            { return "ImperativePlan" }
func (p *ImperativePlan) PlanName() string            { return p.Name }
func (p *ImperativePlan) PlanArgs() map[string]string { return p.Args }
func (p *ImperativePlan) Movers() []string            { return p.MoverIDs }
func (p *ImperativePlan) Detectors() []string         { return p.DetIDs }
func (p *ImperativePlan) NumPoints() int              { return len(p.Commands) }

func (p *ImperativePlan) Next() (Command, bool) {
	if p.pos >= len(p.Commands) {
		return Command{}, false
	}
	c := p.Commands[p.pos]
	p.pos++
	return c, true
}

func (p *ImperativePlan) Reset() { p.pos = 0 }
