// Package platform implements the top-level platformCoordinator spec §4.1/
// §9 describes: it constructs every stage named in spec §2's topology
// diagram, solders the wires between them, and owns the run/flush/shutdown
// lifecycle. Grounded on the teacher's node.Node.Run select loop (single
// top-level goroutine dispatching on channels) and node.Node.Shutdown
// (mutex-guarded, idempotent channel close); the status enum and
// stats/metrics HTTP server are grounded on service.Service.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/swirlchain/swirlnode/addressbook"
	"github.com/swirlchain/swirlnode/appstate"
	"github.com/swirlchain/swirlnode/config"
	"github.com/swirlchain/swirlnode/consensus"
	"github.com/swirlchain/swirlnode/creation"
	"github.com/swirlchain/swirlnode/cryptosig"
	"github.com/swirlchain/swirlnode/dedup"
	"github.com/swirlchain/swirlnode/event"
	"github.com/swirlchain/swirlnode/futurebuffer"
	"github.com/swirlchain/swirlnode/gossip"
	"github.com/swirlchain/swirlnode/linker"
	"github.com/swirlchain/swirlnode/metrics"
	"github.com/swirlchain/swirlnode/orphan"
	"github.com/swirlchain/swirlnode/pces"
	"github.com/swirlchain/swirlnode/pipeline"
	"github.com/swirlchain/swirlnode/shadowgraph"
	"github.com/swirlchain/swirlnode/statefile"
	"github.com/swirlchain/swirlnode/validation"
	"github.com/swirlchain/swirlnode/window"
)

// Status is the coordinator's lifecycle state, spec §2's "STARTING_UP ->
// REPLAYING_PCES -> GOSSIPING -> DOWN".
type Status int32

const (
	StartingUp Status = iota
	ReplayingPCES
	Gossiping
	Down
)

func (s Status) String() string {
	switch s {
	case StartingUp:
		return "STARTING_UP"
	case ReplayingPCES:
		return "REPLAYING_PCES"
	case Gossiping:
		return "GOSSIPING"
	case Down:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

// hashJob carries an unhashed event plus the sequence number it was
// admitted with, so the post-hash collector can restore FIFO order after
// the hasher's concurrent workers finish out of order (spec §4.2).
type hashJob struct {
	seq uint64
	ev  *event.Event
}

// reorderBuffer restores the submission order of items the hasher's
// worker pool may finish out of order — the "post-hash collector" of spec
// §4.2, implemented as a small holding map keyed by expected sequence
// number.
type reorderBuffer struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]*event.Event
}

func newReorderBuffer() *reorderBuffer {
	// Sequence numbers come from atomic.AddUint64 on a zero counter, so the
	// first one handed out is 1.
	return &reorderBuffer{next: 1, pending: make(map[uint64]*event.Event)}
}

// admit records a hashed event at its original sequence number and
// returns every event now releasable in order.
func (b *reorderBuffer) admit(seq uint64, e *event.Event) []*event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[seq] = e
	var out []*event.Event
	for {
		ev, ok := b.pending[b.next]
		if !ok {
			break
		}
		out = append(out, ev)
		delete(b.pending, b.next)
		b.next++
	}
	return out
}

var registerMetricsOnce sync.Once

// Coordinator wires every stage in spec §2's topology diagram and owns the
// Start/Stop/FlushIntakePipeline lifecycle. Not safe for concurrent calls
// to Start/Stop — mirrors the teacher's single-owner Node.
type Coordinator struct {
	cfg *config.Config
	log *logrus.Entry

	nodeID   uint64
	signer   cryptosig.Signer
	hasher   cryptosig.Hasher
	verifier cryptosig.Verifier

	books     *addressbook.Manager
	winMgr    *window.Manager
	dedupe    *dedup.Deduplicator
	orphanBuf *orphan.Buffer
	linker    *linker.Linker
	shadow    *shadowgraph.Shadowgraph
	futureBuf *futurebuffer.Buffer
	creation  *creation.Manager
	consensus *consensus.Engine

	segIndex *pces.Index
	seq      *pces.Sequencer
	writer   *pces.Writer
	nexus    *pces.DurabilityNexus
	replayer *pces.Replayer

	stateMgr *statefile.Manager
	appState appstate.StateMachine
	transport gossip.Transport

	internalValidator *validation.InternalValidator
	sigValidator      *validation.SignatureValidator

	topo pipeline.Topology

	hasherStage    *pipeline.Stage
	collectorStage *pipeline.Stage
	validatorStage *pipeline.Stage
	dedupStage     *pipeline.Stage
	sigStage       *pipeline.Stage
	orphanStage    *pipeline.Stage
	sequencerStage *pipeline.Stage
	linkerStage    *pipeline.Stage
	consensusStage *pipeline.Stage
	writerStage    *pipeline.Stage
	shadowStage    *pipeline.Stage
	futureStage    *pipeline.Stage
	creationStage  *pipeline.Stage

	reorder  *reorderBuffer
	hashSeq  uint64
	hashSpan *pipeline.BackpressureObjectCounter

	status     int32
	statusSrv  *http.Server
	cancelRead context.CancelFunc
	wg         sync.WaitGroup
}

// Deps bundles the external collaborators a Coordinator cannot construct
// for itself (spec §1's "treats cryptographic primitives, gossip transport
// and the state machine as external collaborators").
type Deps struct {
	NodeID    uint64
	Signer    cryptosig.Signer
	Verifier  cryptosig.Verifier
	Books     *addressbook.Manager
	Transport gossip.Transport
	AppState  appstate.StateMachine
}

// NewCoordinator constructs every stage and solders the topology, but does
// not start any goroutines — call Start for that.
func NewCoordinator(cfg *config.Config, deps Deps) (*Coordinator, error) {
	log := cfg.Logger()
	registerMetricsOnce.Do(func() { metrics.Register(prometheus.DefaultRegisterer) })

	segIndex, err := pces.OpenIndex(cfg.BadgerDir())
	if err != nil {
		return nil, fmt.Errorf("platform: opening pces index: %w", err)
	}

	stateMgr := statefile.NewManager(cfg.StateFilePath())
	snap, err := stateMgr.LatestSnapshot()
	if err != nil {
		return nil, fmt.Errorf("platform: reading state file: %w", err)
	}

	mode := window.GenerationMode
	if cfg.AncientModeBirthRound {
		mode = window.BirthRoundMode
	}

	c := &Coordinator{
		cfg:       cfg,
		log:       log,
		nodeID:    deps.NodeID,
		signer:    deps.Signer,
		hasher:    cryptosig.NewSHA256Hasher(),
		verifier:  deps.Verifier,
		books:     deps.Books,
		transport: deps.Transport,
		appState:  deps.AppState,
		segIndex:  segIndex,
		stateMgr:  stateMgr,
		nexus:     pces.NewDurabilityNexus(),
		reorder:   newReorderBuffer(),
		hashSpan:  pipeline.NewBackpressureObjectCounter(cfg.HasherCapacity),
		winMgr:    window.NewManager(mode),
	}
	atomic.StoreInt32(&c.status, int32(StartingUp))

	c.seq = pces.NewSequencer(snap.LastDurableSequenceNumber)
	c.writer = pces.NewWriter(cfg.SegmentDir(), segIndex, pces.AncientMode(mode), pces.RotationLimit{
		MaxGenerationSpan: cfg.MaxGenerationSpan,
		MaxBirthRoundSpan: cfg.MaxBirthRoundSpan,
	}, c.nexus)
	if err := os.MkdirAll(cfg.SegmentDir(), 0755); err != nil {
		return nil, fmt.Errorf("platform: creating pces segment directory: %w", err)
	}
	if err := c.writer.Open(snap.LastDurableSequenceNumber+1, 0); err != nil {
		return nil, fmt.Errorf("platform: opening pces segment: %w", err)
	}
	c.replayer = pces.NewReplayer(segIndex)

	initialWindow := c.winMgr.Current()
	c.internalValidator = validation.NewInternalValidator(int64(cfg.MaxClockDriftFuture), cfg.MaxTransactionBytes, cfg.BirthRoundTolerance, c.winMgr.Subscribe(), initialWindow, func() int64 { return time.Now().UnixNano() })
	c.sigValidator = validation.NewSignatureValidator(deps.Verifier, deps.Books)

	dd, err := dedup.New(cfg.CacheSize, c.winMgr.Subscribe(), initialWindow)
	if err != nil {
		return nil, fmt.Errorf("platform: building deduplicator: %w", err)
	}
	c.dedupe = dd

	c.orphanBuf = orphan.New(c.winMgr.Subscribe(), initialWindow)
	c.linker = linker.New(c.winMgr.Subscribe(), initialWindow)
	c.shadow = shadowgraph.New(c.winMgr.Subscribe(), initialWindow)
	initialRound := snap.Round
	if initialRound < 0 {
		initialRound = 0
	}
	c.futureBuf = futurebuffer.New(uint64(initialRound))
	c.consensus = consensus.NewEngine(deps.Books, c.linker, log)

	c.creation = creation.NewManager(deps.NodeID, deps.Signer, c.hasher, c.otherParentSelector, c.emitSelfEvent, cfg.EventCreationRate, cfg.EventCreationBurst)

	c.buildStages()
	return c, nil
}

func (c *Coordinator) buildStages() {
	log := c.log

	c.hasherStage = pipeline.NewStage("hasher", pipeline.Concurrent, c.cfg.HasherCapacity, c.handleHash, log)
	c.collectorStage = pipeline.NewStage("post-hash-collector", pipeline.Sequential, c.cfg.HasherCapacity, c.handlePassthrough(c.validatorStageEnqueue), log)
	c.validatorStage = pipeline.NewStage("internal-validator", pipeline.Sequential, c.cfg.ValidatorCapacity, c.handleInternalValidate, log)
	c.dedupStage = pipeline.NewStage("deduplicator", pipeline.Sequential, c.cfg.ValidatorCapacity, c.handleDedup, log)
	c.sigStage = pipeline.NewStage("signature-validator", pipeline.Sequential, c.cfg.ValidatorCapacity, c.handleSignature, log)
	c.orphanStage = pipeline.NewStage("orphan-buffer", pipeline.Sequential, c.cfg.ValidatorCapacity, c.handleOrphan, log)
	c.sequencerStage = pipeline.NewStage("pces-sequencer", pipeline.Sequential, c.cfg.ValidatorCapacity, c.handleSequence, log)
	c.linkerStage = pipeline.NewStage("in-order-linker", pipeline.Sequential, c.cfg.LinkerCapacity, c.handleLink, log)
	c.consensusStage = pipeline.NewStage("linked-event-intake", pipeline.Sequential, c.cfg.ConsensusCapacity, c.handleConsensus, log)
	c.writerStage = pipeline.NewStage("pces-writer", pipeline.SequentialThread, c.cfg.ConsensusCapacity, c.handleWrite, log)
	c.shadowStage = pipeline.NewStage("shadowgraph", pipeline.Sequential, c.cfg.LinkerCapacity, c.handleShadow, log)
	c.futureStage = pipeline.NewStage("future-event-buffer", pipeline.Sequential, c.cfg.ValidatorCapacity, c.handleFuture, log)
	c.creationStage = pipeline.NewStage("event-creation-manager", pipeline.Direct, 0, c.handleCreationTick, log)

	// Producers before their consumers, matching spec §4.1's flush-ordering
	// requirement: flushing a stage guarantees it enqueues nothing further
	// downstream, so downstream stages must flush afterward, not before.
	c.topo.Add(c.hasherStage)
	c.topo.Add(c.collectorStage)
	c.topo.Add(c.creationStage)
	c.topo.Add(c.validatorStage)
	c.topo.Add(c.dedupStage)
	c.topo.Add(c.sigStage)
	c.topo.Add(c.orphanStage)
	c.topo.Add(c.futureStage)
	c.topo.Add(c.sequencerStage)
	c.topo.Add(c.linkerStage)
	c.topo.Add(c.writerStage)
	c.topo.Add(c.shadowStage)
	c.topo.Add(c.consensusStage)
}

// --- stage handlers -------------------------------------------------------

func (c *Coordinator) handleHash(item pipeline.Item) error {
	job := item.(*hashJob)
	if _, err := job.ev.Hash(c.hasher); err != nil {
		c.log.WithField("error", err).Error("hasher: computing hash")
		return nil
	}
	for _, ev := range c.reorder.admit(job.seq, job.ev) {
		metrics.StageProcessed.WithLabelValues("hasher").Inc()
		if err := c.collectorStage.Enqueue(ev); err != nil {
			c.log.WithField("error", err).Error("hasher: enqueue to collector")
		}
	}
	return nil
}

// handlePassthrough builds a handler that simply forwards whatever it
// receives to next — used for the post-hash collector, which does its
// real work (reordering) inside handleHash/admit and just needs a
// sequential stage to own FIFO delivery into the validator.
func (c *Coordinator) handlePassthrough(next func(*event.Event) error) pipeline.Handler {
	return func(item pipeline.Item) error {
		return next(item.(*event.Event))
	}
}

func (c *Coordinator) validatorStageEnqueue(e *event.Event) error {
	defer c.hashSpan.OffRamp()
	metrics.StageProcessed.WithLabelValues("post-hash-collector").Inc()
	return c.validatorStage.Enqueue(e)
}

func (c *Coordinator) handleInternalValidate(item pipeline.Item) error {
	e := item.(*event.Event)
	res := c.internalValidator.Validate(e)
	if !res.Valid() {
		metrics.StageDrops.WithLabelValues("internal-validator", string(res.Reason)).Inc()
		return nil
	}
	metrics.StageProcessed.WithLabelValues("internal-validator").Inc()
	return c.dedupStage.Enqueue(e)
}

func (c *Coordinator) handleDedup(item pipeline.Item) error {
	e := item.(*event.Event)
	if c.dedupe.Seen(e.Hex(), e.Generation(), e.BirthRound()) {
		metrics.StageDrops.WithLabelValues("deduplicator", "duplicate").Inc()
		return nil
	}
	metrics.StageProcessed.WithLabelValues("deduplicator").Inc()
	return c.sigStage.Enqueue(e)
}

func (c *Coordinator) handleSignature(item pipeline.Item) error {
	e := item.(*event.Event)
	res := c.sigValidator.Validate(e)
	if !res.Valid() {
		metrics.StageDrops.WithLabelValues("signature-validator", string(res.Reason)).Inc()
		return nil
	}
	metrics.StageProcessed.WithLabelValues("signature-validator").Inc()
	return c.orphanStage.Enqueue(e)
}

func (c *Coordinator) handleOrphan(item pipeline.Item) error {
	e := item.(*event.Event)
	ready := c.orphanBuf.Offer(e)
	if !ready {
		metrics.StageDrops.WithLabelValues("orphan-buffer", "buffered").Inc()
		return nil
	}
	metrics.StageProcessed.WithLabelValues("orphan-buffer").Inc()
	if err := c.futureStage.Enqueue(e); err != nil {
		return err
	}
	for _, released := range c.orphanBuf.Admit(e.Hex()) {
		metrics.StageProcessed.WithLabelValues("orphan-buffer").Inc()
		if err := c.futureStage.Enqueue(released); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) handleSequence(item pipeline.Item) error {
	e := item.(*event.Event)
	e.SetStreamSequence(c.seq.Next())
	metrics.StageProcessed.WithLabelValues("pces-sequencer").Inc()
	if err := c.writerStage.Enqueue(e); err != nil {
		return err
	}
	return c.linkerStage.Enqueue(e)
}

func (c *Coordinator) handleLink(item pipeline.Item) error {
	e := item.(*event.Event)
	linked, err := c.linker.Link(e)
	if err != nil {
		// Fatal invariant violation per spec §4.8: the orphan buffer should
		// have guaranteed parents are resolvable. Log, count, skip.
		c.log.WithField("error", err).Error("in-order-linker: unresolved parent")
		metrics.StageDrops.WithLabelValues("in-order-linker", "unresolved_parent").Inc()
		return nil
	}
	metrics.StageProcessed.WithLabelValues("in-order-linker").Inc()
	if err := c.shadowStage.Enqueue(e); err != nil {
		return err
	}
	return c.consensusStage.Enqueue(linked)
}

func (c *Coordinator) handleShadow(item pipeline.Item) error {
	c.shadow.Insert(item.(*event.Event))
	metrics.StageProcessed.WithLabelValues("shadowgraph").Inc()
	return nil
}

func (c *Coordinator) handleConsensus(item pipeline.Item) error {
	linked := item.(*linker.Linked)
	c.consensus.AddEvent(linked)
	c.consensus.DecideFame()
	c.consensus.DecideRoundReceived()

	rounds := c.consensus.FindOrder()
	for _, round := range rounds {
		keystone := round.Events[len(round.Events)-1]
		keystoneSeq, _ := keystone.StreamSequence()
		round.KeystoneSequenceNo = keystoneSeq

		if err := c.writer.FlushRequest(keystoneSeq); err != nil {
			c.log.WithField("error", err).Error("pces-writer: flush request")
		}

		w := c.winMgr.Advance(round.RoundNumber, minNonAncientOf(round), round.RoundNumber)
		for _, fe := range c.futureBuf.Advance(uint64(w.LatestConsensusRound)) {
			if err := c.sequencerStage.Enqueue(fe); err != nil {
				c.log.WithField("error", err).Error("future-event-buffer: releasing event")
			}
		}
		c.creation.SetBirthRound(uint64(round.RoundNumber))
		c.linker.Evict()
		c.shadow.Evict()
		c.orphanBuf.ExpireAncient()
		c.dedupe.EvictAncient()

		metrics.ConsensusRoundsEmitted.Inc()
		metrics.NonAncientWindowMin.Set(float64(w.MinNonAncientGenerationOrBirthRound))

		if c.appState != nil {
			go c.commitWhenDurable(round, keystoneSeq)
		}
	}
	metrics.StageProcessed.WithLabelValues("linked-event-intake").Inc()
	return nil
}

// minNonAncientOf derives the window floor a just-decided round implies:
// the oldest generation still represented among its events,
// mirroring the teacher's LastConsensusRound bookkeeping.
func minNonAncientOf(round *consensus.ConsensusRound) uint64 {
	var min uint64
	first := true
	for _, e := range round.Events {
		if first || e.Generation() < min {
			min = e.Generation()
			first = false
		}
	}
	return min
}

// commitWhenDurable blocks until the round's keystone event is durable,
// then submits it to the application state machine — spec §4.10's gate:
// "no consensus effect escapes until the causing events are durable".
func (c *Coordinator) commitWhenDurable(round *consensus.ConsensusRound, keystoneSeq uint64) {
	if !c.nexus.WaitDurable(keystoneSeq, 30*time.Second) {
		c.log.WithField("round", round.RoundNumber).Warn("timed out waiting for durability before committing round")
		return
	}
	metrics.LatestDurableSequenceNumber.Set(float64(c.nexus.Latest()))
	if _, err := c.appState.CommitRound(round); err != nil {
		c.log.WithField("error", err).Error("appstate: commit round")
	}
}

func (c *Coordinator) handleWrite(item pipeline.Item) error {
	e := item.(*event.Event)
	if err := c.writer.Append(e); err != nil {
		c.log.WithField("error", err).Error("pces-writer: append")
		return err
	}
	metrics.StageProcessed.WithLabelValues("pces-writer").Inc()
	return nil
}

func (c *Coordinator) handleFuture(item pipeline.Item) error {
	e := item.(*event.Event)
	if !c.futureBuf.Offer(e) {
		// Held back: birth round too far ahead of the current round.
		// Released later by handleConsensus via futureBuf.Advance as the
		// window moves. The buffer never drops or expires a held event,
		// however far ahead its birth round is.
		metrics.StageDrops.WithLabelValues("future-event-buffer", "buffered").Inc()
		return nil
	}
	metrics.StageProcessed.WithLabelValues("future-event-buffer").Inc()
	return c.sequencerStage.Enqueue(e)
}

func (c *Coordinator) handleCreationTick(item pipeline.Item) error {
	ctx := item.(context.Context)
	c.creation.Tick(ctx)
	return nil
}

// emitSelfEvent is the creation manager's Emit callback: it re-injects the
// freshly signed, already-hashed event into the internal validator,
// bypassing backpressure, closing the feedback loop spec §2's diagram
// describes.
func (c *Coordinator) emitSelfEvent(e *event.Event) {
	c.validatorStage.Inject(e)
}

// otherParentSelector picks the other-parent for a self-created event: the
// least-recently-chosen active creator with a known non-ancient witness
// (spec §4.14's heuristic), approximated via the shadowgraph's per-creator
// latest-known event.
func (c *Coordinator) otherParentSelector() *event.Descriptor {
	known := c.shadow.Known()
	book := c.books.Current()
	var bestCreator uint64
	var bestGen uint64
	found := false
	for _, entry := range book.Entries() {
		if !entry.Active || entry.ID == c.nodeID {
			continue
		}
		gen, ok := known[entry.ID]
		if !ok {
			continue
		}
		if !found || gen < bestGen {
			bestGen = gen
			bestCreator = entry.ID
			found = true
		}
	}
	if !found {
		return nil
	}
	ev, ok := c.shadow.LatestOf(bestCreator)
	if !ok {
		return nil
	}
	return ev.Descriptor()
}

// --- lifecycle -------------------------------------------------------------

// Start replays durable PCES segments (admitting no gossip meanwhile),
// then starts every stage and the gossip-ingest loop. Mirrors the
// teacher's Node.Init + Node.RunAsync sequence.
func (c *Coordinator) Start(ctx context.Context) error {
	c.topo.Start()

	atomic.StoreInt32(&c.status, int32(ReplayingPCES))
	if _, err := c.replayer.Replay(c.seq.Peek(), c.forwardReplayedEvent); err != nil {
		return fmt.Errorf("platform: pces replay: %w", err)
	}
	c.FlushIntakePipeline()

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelRead = cancel

	if c.transport != nil {
		c.wg.Add(1)
		go c.readGossip(runCtx)
	}
	c.wg.Add(1)
	go c.runCreationLoop(runCtx)

	atomic.StoreInt32(&c.status, int32(Gossiping))
	return nil
}

func (c *Coordinator) forwardReplayedEvent(e *event.Event) error {
	c.hashSpan.OnRamp()
	seq := atomic.AddUint64(&c.hashSeq, 1)
	return c.hasherStage.Enqueue(&hashJob{seq: seq, ev: e})
}

func (c *Coordinator) readGossip(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.transport.Consumer():
			if !ok {
				return
			}
			e, err := event.Unmarshal(msg.Payload)
			if err != nil {
				c.log.WithField("error", err).Warn("gossip-in: malformed payload")
				continue
			}
			c.hashSpan.OnRamp()
			seq := atomic.AddUint64(&c.hashSeq, 1)
			if err := c.hasherStage.Enqueue(&hashJob{seq: seq, ev: e}); err != nil {
				c.log.WithField("error", err).Error("gossip-in: enqueue to hasher")
			}
		}
	}
}

func (c *Coordinator) runCreationLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			c.creationStage.Inject(ctx)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// FlushIntakePipeline blocks until every stage's queue is empty and every
// enqueued handler has returned, in the order the stages were registered
// (producers before their consumers) — spec §4.1.
func (c *Coordinator) FlushIntakePipeline() {
	c.topo.Flush()
}

// Stop halts every stage (reverse topological order), closes the PCES
// writer and segment index, and stops the status server. Mirrors the
// teacher's Node.Shutdown idempotent-close pattern via sync.Once-like
// status guard.
func (c *Coordinator) Stop(ctx context.Context) error {
	if Status(atomic.LoadInt32(&c.status)) == Down {
		return nil
	}
	if c.cancelRead != nil {
		c.cancelRead()
	}
	c.wg.Wait()
	c.hashSpan.Close()

	var result *multierror.Error
	c.topo.Stop()

	if err := c.writer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("pces writer close: %w", err))
	}
	if err := c.segIndex.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("pces index close: %w", err))
	}
	if err := c.stateMgr.Save(statefile.Snapshot{
		Round:                           c.lastRound(),
		MinimumAncientIdentifierToStore: c.winMgr.Current().MinNonAncientGenerationOrBirthRound,
		LastDurableSequenceNumber:       c.nexus.Latest(),
	}); err != nil {
		result = multierror.Append(result, fmt.Errorf("state file save: %w", err))
	}
	if c.statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := c.statusSrv.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("status server shutdown: %w", err))
		}
	}

	atomic.StoreInt32(&c.status, int32(Down))
	return result.ErrorOrNil()
}

func (c *Coordinator) lastRound() int64 {
	return c.winMgr.Current().LatestConsensusRound
}

func (c *Coordinator) Status() Status {
	return Status(atomic.LoadInt32(&c.status))
}

// --- status/metrics HTTP server --------------------------------------------

// StartStatusServer serves spec's supplemented stats endpoint plus
// /metrics (promhttp), grounded on the teacher's service.Service.
func (c *Coordinator) StartStatusServer(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", c.serveStats)
	mux.Handle("/metrics", promhttp.Handler())

	c.statusSrv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := c.statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.log.WithField("error", err).Error("status server")
		}
	}()
	return nil
}

func (c *Coordinator) serveStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]string{
		"status":                   c.Status().String(),
		"last_consensus_round":     fmt.Sprintf("%d", c.lastRound()),
		"latest_durable_sequence":  fmt.Sprintf("%d", c.nexus.Latest()),
		"undetermined_events":      fmt.Sprintf("%d", c.linker.Len()),
		"shadowgraph_size":         fmt.Sprintf("%d", c.shadow.Len()),
		"orphan_buffer_size":       fmt.Sprintf("%d", c.orphanBuf.Len()),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
