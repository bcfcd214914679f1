package statewire

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/basinlabs/statewire/internal/ir"
	"github.com/basinlabs/statewire/internal/timer"
)

const defaultMailboxCapacity = 64

// OutboxHandler delivers an event a running machine requested via
// Ctx.RequestSend to its target, after the macrostep that queued it
// has fully committed. The orchestrator package supplies the real
// implementation; interpreters used standalone can leave it unset, in
// which case requested sends are logged and dropped.
type OutboxHandler func(targetID string, event Event)

// Option configures an Interpreter at construction time.
type Option[C any] func(*Interpreter[C])

// WithID overrides the interpreter's id, otherwise taken from the
// machine configuration's ID. The orchestrator uses this id to route
// events.
func WithID[C any](id string) Option[C] {
	return func(i *Interpreter[C]) { i.id = id }
}

// WithLogger sets the *slog.Logger used for action/guard panics and
// dropped outbound sends. A nil logger is ignored.
func WithLogger[C any](logger *slog.Logger) Option[C] {
	return func(i *Interpreter[C]) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithOutboxHandler wires RequestSend delivery to an orchestrator (or
// any other router).
func WithOutboxHandler[C any](h OutboxHandler) Option[C] {
	return func(i *Interpreter[C]) { i.onSend = h }
}

// WithMailboxCapacity overrides the default buffered mailbox size.
func WithMailboxCapacity[C any](n int) Option[C] {
	return func(i *Interpreter[C]) {
		if n > 0 {
			i.mailboxCapacity = n
		}
	}
}

type envelope[C any] struct {
	event Event
	reply chan error
}

type outboundEvent struct {
	target string
	event  Event
}

// ctxImpl is the concrete ir.Ctx[C] passed to every Action closure
// during one macrostep.
type ctxImpl[C any] struct {
	ctx    *C
	outbox *[]outboundEvent
	source string
}

func (c *ctxImpl[C]) Context() *C { return c.ctx }

func (c *ctxImpl[C]) RequestSend(targetID, eventName string, payload any) {
	*c.outbox = append(*c.outbox, outboundEvent{
		target: targetID,
		event:  Event{Name: ir.EventType(eventName), Payload: payload, Source: c.source},
	})
}

// Interpreter is the statechart runtime: a frozen MachineConfig plus
// the mutable Configuration/context/history it owns. Every event is
// processed by a single goroutine (started by Start, stopped by
// Stop), so a machine never observes two events concurrently; all
// suspension happens between events, never mid-transition.
type Interpreter[C any] struct {
	id      string
	machine *ir.MachineConfig[C]
	logger  *slog.Logger
	onSend  OutboxHandler

	mailboxCapacity int

	// Owned exclusively by the loop goroutine once Start returns.
	config  ir.Configuration
	context C
	history *ir.HistoryMemory
	epoch   map[ir.StateID]uint64
	timers  *timer.Service

	mailbox  chan *envelope[C]
	updateCh chan func(*C)
	firedCh  chan timer.Fired
	stopCh   chan struct{}
	doneCh   chan struct{}

	startMu  sync.Mutex
	stopOnce sync.Once
	running  atomic.Bool
	fault    atomic.Pointer[ActionError]

	snapshot atomic.Pointer[Snapshot[C]]
}

// NewInterpreter creates an Interpreter for machine. Call Start before
// sending any events.
func NewInterpreter[C any](machine *ir.MachineConfig[C], opts ...Option[C]) *Interpreter[C] {
	i := &Interpreter[C]{
		id:              machine.ID,
		machine:         machine,
		context:         machine.Context,
		logger:          slog.Default(),
		mailboxCapacity: defaultMailboxCapacity,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ID returns the interpreter's machine id, used by the orchestrator's
// registry to route events.
func (i *Interpreter[C]) ID() string { return i.id }

// Start enters the machine's initial configuration and launches the
// event-processing goroutine. Returns ErrAlreadyRunning if called more
// than once.
func (i *Interpreter[C]) Start() error {
	i.startMu.Lock()
	defer i.startMu.Unlock()
	if i.running.Load() {
		return ErrAlreadyRunning
	}

	i.epoch = make(map[ir.StateID]uint64)
	i.history = ir.NewHistoryMemory()
	i.mailbox = make(chan *envelope[C], i.mailboxCapacity)
	i.updateCh = make(chan func(*C))
	i.firedCh = make(chan timer.Fired, defaultMailboxCapacity)
	i.stopCh = make(chan struct{})
	i.doneCh = make(chan struct{})
	i.timers = timer.NewService(func(f timer.Fired) {
		select {
		case i.firedCh <- f:
		case <-i.stopCh:
		}
	}, i.logger)

	leaves := i.machine.InitialLeafSet(i.machine.Initial)
	entryStates := i.entryStatesForLeaves("", leaves)

	var outbox []outboundEvent
	var entryErr error
	for _, st := range entryStates {
		sc := i.machine.GetState(st)
		if err := i.runActions(sc.Entry, Event{}, PhaseEntry, st, &outbox); err != nil && entryErr == nil {
			entryErr = err
		}
		i.armAfter(sc)
	}
	i.config = ir.NewConfiguration(leaves...)
	if entryErr != nil {
		i.fault.Store(entryErr.(*ActionError))
	}
	i.publishSnapshot()
	i.drainOutbox(outbox)

	if entryErr != nil {
		i.timers.Stop()
		close(i.stopCh)
		close(i.doneCh)
		return entryErr
	}

	i.running.Store(true)
	go i.loop()
	return nil
}

// Stop halts the event-processing goroutine and cancels every pending
// delayed transition. Safe to call more than once or before Start.
func (i *Interpreter[C]) Stop() error {
	if i.doneCh == nil {
		return nil
	}
	i.stopOnce.Do(func() {
		i.running.Store(false)
		close(i.stopCh)
		i.timers.Stop()
	})
	<-i.doneCh
	return nil
}

// checkAlive reports why the interpreter cannot currently accept a new
// event: the ActionError that faulted it, ErrNotRunning if it was
// never started or has been stopped, or nil if it is Running.
func (i *Interpreter[C]) checkAlive() error {
	if f := i.fault.Load(); f != nil {
		return f
	}
	if !i.running.Load() {
		return ErrNotRunning
	}
	return nil
}

// Phase reports the interpreter's own lifecycle state. Only Running
// accepts Send, SendFireAndForget, or UpdateContext.
func (i *Interpreter[C]) Phase() InterpreterPhase {
	if i.fault.Load() != nil {
		return Fault
	}
	if i.running.Load() {
		return Running
	}
	if i.doneCh != nil {
		select {
		case <-i.doneCh:
			return Stopped
		default:
		}
	}
	return Uninitialized
}

// Err returns the ActionError that put the interpreter into Fault, or
// nil if it never faulted.
func (i *Interpreter[C]) Err() error {
	if f := i.fault.Load(); f != nil {
		return f
	}
	return nil
}

// enterFault records the action panic that failed a transition,
// stops accepting further events, and cancels every pending delayed
// transition. Idempotent: the first recorded cause wins.
func (i *Interpreter[C]) enterFault(err *ActionError) {
	i.fault.CompareAndSwap(nil, err)
	i.running.Store(false)
	i.timers.Stop()
}

// Send enqueues event and blocks until the resulting macrostep has
// been fully processed, or ctx is done first.
func (i *Interpreter[C]) Send(ctx context.Context, event Event) error {
	if err := i.checkAlive(); err != nil {
		return err
	}
	env := &envelope[C]{event: event, reply: make(chan error, 1)}
	select {
	case i.mailbox <- env:
	case <-i.stopCh:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ErrTimeout
	case <-i.doneCh:
		return ErrNotRunning
	}
}

// SendFireAndForget enqueues event without waiting for it to be
// processed. Returns ErrMailboxFull if the mailbox has no room.
func (i *Interpreter[C]) SendFireAndForget(event Event) error {
	if err := i.checkAlive(); err != nil {
		return err
	}
	select {
	case i.mailbox <- &envelope[C]{event: event}:
		return nil
	default:
		return ErrMailboxFull
	}
}

// UpdateContext applies fn to the machine's context from within the
// event loop, so it never races with an in-flight macrostep, then
// publishes the resulting snapshot. Intended for context changes that
// originate outside the statechart itself (e.g. hydrating from
// storage), not as a substitute for actions.
func (i *Interpreter[C]) UpdateContext(fn func(*C)) error {
	if err := i.checkAlive(); err != nil {
		return err
	}
	done := make(chan struct{})
	wrapped := func(c *C) {
		fn(c)
		close(done)
	}
	select {
	case i.updateCh <- wrapped:
	case <-i.stopCh:
		return ErrNotRunning
	}
	select {
	case <-done:
		return nil
	case <-i.doneCh:
		return ErrNotRunning
	}
}

// QuerySnapshot returns the most recently committed Snapshot. Safe to
// call from any goroutine; it never blocks on the event loop.
func (i *Interpreter[C]) QuerySnapshot() Snapshot[C] {
	if s := i.snapshot.Load(); s != nil {
		return *s
	}
	return Snapshot[C]{}
}

// Matches reports whether id is active, either as a leaf or as an
// ancestor of an active leaf.
func (i *Interpreter[C]) Matches(id StateID) bool {
	snap := i.QuerySnapshot()
	for _, leaf := range snap.Leaves {
		if leaf == id || i.machine.IsDescendantOf(leaf, id) {
			return true
		}
	}
	return false
}

// Done reports whether every active leaf is a final state.
func (i *Interpreter[C]) Done() bool {
	return i.QuerySnapshot().Done
}

func (i *Interpreter[C]) loop() {
	defer close(i.doneCh)
	for {
		select {
		case <-i.stopCh:
			return
		case env := <-i.mailbox:
			i.processEvent(env.event)
			if env.reply != nil {
				env.reply <- i.Err()
			}
			if i.fault.Load() != nil {
				return
			}
		case fn := <-i.updateCh:
			fn(&i.context)
			i.publishSnapshot()
		case f := <-i.firedCh:
			i.processFired(f)
			if i.fault.Load() != nil {
				return
			}
		}
	}
}

type candidate struct {
	leaf   ir.StateID
	source *ir.StateConfig
	trans  *ir.TransitionConfig
}

// processEvent runs one full macrostep for event: find every enabled
// transition across the active configuration (step 1), drop any that
// conflict with an earlier-in-document-order transition over the same
// exit region (step 2), apply the survivors, then drain the outbox.
func (i *Interpreter[C]) processEvent(event Event) {
	var candidates []candidate
	for _, leaf := range i.machine.SortByDocumentOrder(i.config.Leaves()) {
		cur := i.machine.GetState(leaf)
		for cur != nil {
			matched := false
			for _, t := range cur.FindTransitions(event.Name) {
				if !i.guardPasses(t, event) {
					continue
				}
				candidates = append(candidates, candidate{leaf: leaf, source: cur, trans: t})
				matched = true
				break
			}
			if matched || cur.Parent == "" {
				break
			}
			cur = i.machine.GetState(cur.Parent)
		}
	}
	if len(candidates) == 0 {
		return
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return i.machine.DocumentOrderLess(candidates[a].source.ID, candidates[b].source.ID)
	})

	claimed := make(map[ir.StateID]struct{})
	var outbox []outboundEvent
	for _, c := range candidates {
		domain, exitLeaves := i.transitionScope(c.source, c.trans)

		conflict := false
		for _, l := range exitLeaves {
			if _, ok := claimed[l]; ok {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		for _, l := range exitLeaves {
			claimed[l] = struct{}{}
		}

		if err := i.applyTransition(c.source, c.trans, domain, exitLeaves, event, &outbox); err != nil {
			i.enterFault(err.(*ActionError))
			i.drainOutbox(outbox)
			i.publishSnapshot()
			return
		}
	}

	i.drainOutbox(outbox)
	i.publishSnapshot()
}

// processFired applies a delayed transition whose timer elapsed. A
// stale epoch (the state was re-entered or exited since the timer was
// armed) or an inactive state silently discards it.
func (i *Interpreter[C]) processFired(f timer.Fired) {
	stateID := ir.StateID(f.StateID)
	if i.epoch[stateID] != f.Epoch {
		return
	}
	if !i.isActive(stateID) {
		return
	}
	sc := i.machine.GetState(stateID)
	if sc == nil {
		return
	}
	for _, t := range sc.After {
		if t.Event != ir.EventType(f.EventName) {
			continue
		}
		event := Event{Name: t.Event}
		if !i.guardPasses(t, event) {
			return
		}
		domain, exitLeaves := i.transitionScope(sc, t)
		var outbox []outboundEvent
		if err := i.applyTransition(sc, t, domain, exitLeaves, event, &outbox); err != nil {
			i.enterFault(err.(*ActionError))
		}
		i.drainOutbox(outbox)
		i.publishSnapshot()
		return
	}
}

// transitionScope resolves the domain (the LCA used for both conflict
// detection and as the exit/entry boundary) and the set of currently
// active leaves it affects. A forbidden or untargeted internal
// transition never leaves its source, so it reports no exit leaves. A
// targeted internal transition keeps its source itself from exiting,
// so its domain is the source state, not the source's LCA with the
// target.
func (i *Interpreter[C]) transitionScope(source *ir.StateConfig, trans *ir.TransitionConfig) (ir.StateID, []ir.StateID) {
	if trans.Target == "" {
		return source.ID, nil
	}
	var domain ir.StateID
	if trans.Internal {
		domain = source.ID
	} else {
		domain = i.domainFor(source.ID, trans.Target)
	}
	return domain, i.leavesUnder(domain)
}

func (i *Interpreter[C]) isActive(id ir.StateID) bool {
	for _, leaf := range i.config.Leaves() {
		if leaf == id || i.machine.IsDescendantOf(leaf, id) {
			return true
		}
	}
	return false
}

func (i *Interpreter[C]) guardPasses(t *ir.TransitionConfig, event Event) bool {
	if t.Guard == "" {
		return true
	}
	g := i.machine.GetGuard(t.Guard)
	if g == nil {
		return false
	}
	return i.safeGuard(g, event)
}

func (i *Interpreter[C]) safeGuard(g ir.Guard[C], event Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("guard panicked, treating as false", "recovered", r)
			ok = false
		}
	}()
	return g(i.context, event)
}

// domainFor resolves the LCA used both to pick the exit/entry scope
// and to detect conflicts with another candidate transition. A
// self-transition (source == target) always exits and re-enters the
// source, so its domain is the source's own parent.
func (i *Interpreter[C]) domainFor(sourceID, targetID ir.StateID) ir.StateID {
	if sourceID == targetID {
		if p := i.machine.Parent(sourceID); p != nil {
			return p.ID
		}
		return ""
	}
	return i.machine.FindLCA(sourceID, targetID)
}

// leavesUnder returns the active leaves that are domain itself or a
// descendant of it. An empty domain (the root) covers every active leaf.
func (i *Interpreter[C]) leavesUnder(domain ir.StateID) []ir.StateID {
	var out []ir.StateID
	for _, leaf := range i.config.Leaves() {
		if domain == "" || leaf == domain || i.machine.IsDescendantOf(leaf, domain) {
			out = append(out, leaf)
		}
	}
	return out
}

// applyTransition runs one non-conflicting transition: a forbidden or
// untargeted internal transition (empty Target) only runs its
// actions, never touching Configuration; every other transition exits
// up to domain, runs the transition's own actions, then enters back
// down to the resolved target leaves.
//
// An action panic during exit or entry does not abort the rest of
// that set — every remaining exit (or entry) action still runs — but
// the transition as a whole fails, returned as an *ActionError. A
// failure during exit leaves Configuration with the exited leaves
// already removed and the target never entered (a consistent
// post-exit, pre-entry state); the caller is expected to fault the
// interpreter on any non-nil return.
func (i *Interpreter[C]) applyTransition(source *ir.StateConfig, trans *ir.TransitionConfig, domain ir.StateID, exitLeaves []ir.StateID, event Event, outbox *[]outboundEvent) error {
	if trans.Target == "" {
		return i.runActions(trans.Actions, event, PhaseTransition, source.ID, outbox)
	}

	exitStates := i.combinedExitStates(exitLeaves, domain)
	i.recordHistoryFor(exitStates)

	var exitErr error
	for _, st := range exitStates {
		sc := i.machine.GetState(st)
		if err := i.runActions(sc.Exit, event, PhaseExit, st, outbox); err != nil && exitErr == nil {
			exitErr = err
		}
		i.epoch[st]++
		i.timers.CancelState(string(st))
	}
	for _, l := range exitLeaves {
		i.config.Remove(l)
	}
	if exitErr != nil {
		return exitErr
	}

	if err := i.runActions(trans.Actions, event, PhaseTransition, source.ID, outbox); err != nil {
		return err
	}

	targetLeaves := i.resolveTargetLeaves(trans.Target)
	entryStates := i.entryStatesForLeaves(domain, targetLeaves)
	var entryErr error
	for _, st := range entryStates {
		sc := i.machine.GetState(st)
		if err := i.runActions(sc.Entry, event, PhaseEntry, st, outbox); err != nil && entryErr == nil {
			entryErr = err
		}
		i.armAfter(sc)
	}

	for _, l := range targetLeaves {
		i.config.Add(l)
	}
	return entryErr
}

func (i *Interpreter[C]) combinedExitStates(leaves []ir.StateID, domain ir.StateID) []ir.StateID {
	seen := make(map[ir.StateID]struct{})
	var out []ir.StateID
	for _, leaf := range i.machine.SortByDocumentOrder(leaves) {
		for _, st := range i.getExitStates(leaf, domain) {
			if _, ok := seen[st]; ok {
				continue
			}
			seen[st] = struct{}{}
			out = append(out, st)
		}
	}
	return out
}

// getExitStates walks from leaf up to (excluding) domain, leaf-first.
func (i *Interpreter[C]) getExitStates(leaf, domain ir.StateID) []ir.StateID {
	var out []ir.StateID
	cur := leaf
	for cur != "" {
		if cur == domain {
			break
		}
		out = append(out, cur)
		s := i.machine.GetState(cur)
		if s == nil {
			break
		}
		cur = s.Parent
	}
	return out
}

func (i *Interpreter[C]) entryStatesForLeaves(domain ir.StateID, leaves []ir.StateID) []ir.StateID {
	seen := make(map[ir.StateID]struct{})
	var out []ir.StateID
	for _, leaf := range i.machine.SortByDocumentOrder(leaves) {
		for _, st := range i.getEntryStates(domain, leaf) {
			if _, ok := seen[st]; ok {
				continue
			}
			seen[st] = struct{}{}
			out = append(out, st)
		}
	}
	return out
}

// getEntryStates returns the path from below domain down to leaf,
// root-first. An empty domain means "enter the whole path".
func (i *Interpreter[C]) getEntryStates(domain, leaf ir.StateID) []ir.StateID {
	path := i.machine.Path(leaf)
	var out []ir.StateID
	found := domain == ""
	for _, id := range path {
		if id == domain {
			found = true
			continue
		}
		if found {
			out = append(out, id)
		}
	}
	return out
}

// resolveTargetLeaves expands a transition target into the leaf set it
// actually enters: itself if atomic/final, the recorded or default
// history leaves for a history pseudo-state, or the initial leaf set
// for a compound/parallel state.
func (i *Interpreter[C]) resolveTargetLeaves(target ir.StateID) []ir.StateID {
	s := i.machine.GetState(target)
	if s != nil && s.IsHistory() {
		parent := s.Parent
		if s.HistoryKind == ir.HistoryKindDeep {
			if leaves, ok := i.history.Deep(parent); ok {
				return leaves.Leaves()
			}
		} else if child, ok := i.history.Shallow(parent); ok {
			return i.machine.InitialLeafSet(child)
		}
	}
	return i.machine.InitialLeafSet(target)
}

func hasHistoryChild[C any](m *ir.MachineConfig[C], s *ir.StateConfig) bool {
	for _, childID := range s.Children {
		if child := m.GetState(childID); child != nil && child.IsHistory() {
			return true
		}
	}
	return false
}

// recordHistoryFor remembers, for every ancestor among exitStates that
// declares a history child, the child being exited (shallow) and the
// full leaf set being exited from underneath it (deep). Must be
// called before Configuration is mutated.
func (i *Interpreter[C]) recordHistoryFor(exitStates []ir.StateID) {
	for _, st := range exitStates {
		sc := i.machine.GetState(st)
		if sc == nil || sc.Parent == "" {
			continue
		}
		parent := i.machine.GetState(sc.Parent)
		if parent == nil || !hasHistoryChild(i.machine, parent) {
			continue
		}
		i.history.RecordShallow(parent.ID, st)
		i.history.RecordDeep(parent.ID, ir.NewConfiguration(i.leavesUnder(parent.ID)...))
	}
}

func (i *Interpreter[C]) armAfter(sc *ir.StateConfig) {
	if sc == nil {
		return
	}
	epoch := i.epoch[sc.ID]
	for _, t := range sc.After {
		if t.Delay <= 0 {
			continue
		}
		i.timers.Schedule(string(sc.ID), epoch, string(t.Event), t.Delay)
	}
}

// runActions runs every named action in order, continuing through the
// rest of the list even after one panics, and reports the first
// panic (if any) as an *ActionError so the exit or entry set is
// always fully run before a transition is failed.
func (i *Interpreter[C]) runActions(actions []ir.ActionType, event Event, phase ActionPhase, state ir.StateID, outbox *[]outboundEvent) error {
	var first error
	for _, name := range actions {
		action := i.machine.GetAction(name)
		if action == nil {
			continue
		}
		if err := i.runAction(action, event, phase, state, outbox); err != nil {
			i.logger.Error("action panicked", "phase", phase, "state", state, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (i *Interpreter[C]) runAction(action ir.Action[C], event Event, phase ActionPhase, state ir.StateID, outbox *[]outboundEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ActionError{Phase: phase, State: state, Cause: r}
		}
	}()
	cctx := &ctxImpl[C]{ctx: &i.context, outbox: outbox, source: i.id}
	action(cctx, event)
	return nil
}

func (i *Interpreter[C]) drainOutbox(outbox []outboundEvent) {
	for _, o := range outbox {
		if i.onSend != nil {
			i.onSend(o.target, o.event)
			continue
		}
		i.logger.Warn("requested send dropped: no outbox handler configured",
			"target", o.target, "event", o.event.Name)
	}
}

func (i *Interpreter[C]) publishSnapshot() {
	leaves := i.config.Leaves()
	done := len(leaves) > 0
	for _, l := range leaves {
		sc := i.machine.GetState(l)
		if sc == nil || !sc.IsFinal() {
			done = false
			break
		}
	}
	var fault error
	if f := i.fault.Load(); f != nil {
		fault = f
	}
	snap := Snapshot[C]{Leaves: leaves, Context: i.context, Done: done, Fault: fault}
	i.snapshot.Store(&snap)
}
