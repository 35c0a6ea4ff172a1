package pipeline

// OutputPort is a named output of one stage soldered to another stage's
// input. Stages may have more than one OutputPort (e.g. the PCES sequencer
// solders to both the linker and the writer, spec §2's topology diagram).
type OutputPort struct {
	name   string
	dst    func() *Stage
	inject bool
}

// Solder connects a named output to a destination stage. dst is a getter
// rather than a *Stage value so that cyclic topologies (event-creation's
// INJECT feedback into the internal validator) can be wired before every
// stage variable has been assigned — the getter is only invoked once the
// whole topology is constructed and Start() has been called.
func Solder(name string, dst func() *Stage, mode SolderMode) *OutputPort {
	return &OutputPort{name: name, dst: dst, inject: mode == Inject}
}

type SolderMode int

const (
	Normal SolderMode = iota
	Inject
)

// Emit sends an item downstream, honoring the port's solder mode.
func (p *OutputPort) Emit(item Item) error {
	dst := p.dst()
	if dst == nil {
		return nil
	}
	if p.inject {
		dst.Inject(item)
		return nil
	}
	return dst.Enqueue(item)
}

// Topology records stages in the order they were wired: producers before
// their consumers, source stages first. Flush and Stop both rely on this
// order rather than re-deriving a topological sort on every call.
type Topology struct {
	stages []*Stage
}

func (t *Topology) Add(s *Stage) *Stage {
	t.stages = append(t.stages, s)
	return s
}

func (t *Topology) Start() {
	for _, s := range t.stages {
		s.Start()
	}
}

// Flush flushes every stage in the order it was registered: a stage only
// stops feeding items downstream once its own queue and in-flight work
// have drained, so producers must be flushed, in registration order,
// before the consumers waiting on them (spec §4.1).
func (t *Topology) Flush() {
	for _, s := range t.stages {
		s.Flush()
	}
}

func (t *Topology) Stop() {
	// reverse order: consumers are stopped before their producers, so a
	// producer still sending after its consumer stopped gets an error from
	// Enqueue.
	for i := len(t.stages) - 1; i >= 0; i-- {
		t.stages[i].Stop()
	}
}

func (t *Topology) Stages() []*Stage { return t.stages }
