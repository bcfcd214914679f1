package orchestrator

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/basinlabs/statewire"
	"github.com/google/uuid"
)

// RegistrationPolicy controls how Register behaves when id already
// names a registered machine.
type RegistrationPolicy int

const (
	// RejectDuplicate fails Register with statewire.ErrDuplicateID,
	// leaving the prior registration intact.
	RejectDuplicate RegistrationPolicy = iota
	// AppendIsolationSuffix registers under id plus a generated
	// suffix instead of failing, so concurrently-run tests that reuse
	// a machine id never collide.
	AppendIsolationSuffix
)

// Handler observes an event delivered to target, via SubscribeAll,
// SubscribeMachine, or SubscribeTopic.
type Handler func(target string, event statewire.Event)

// Token is an opaque handle returned by Register and the Subscribe*
// family, used to Unregister or unsubscribe later. For a registration
// made under AppendIsolationSuffix, Token carries the final
// (possibly-suffixed) machine id.
type Token string

type registration struct {
	mailbox *Mailbox
}

type subscription struct {
	token   Token
	handler Handler
	machine string
	pattern string
}

// Bus is the orchestrator: a registry of named machine mailboxes plus
// broadcast/topic subscriptions. The zero value is not usable; build
// one with New.
type Bus struct {
	mu            sync.RWMutex
	registrations map[string]*registration
	subsAll       []*subscription
	subsMachine   map[string][]*subscription
	subsTopic     []*subscription

	logger          *slog.Logger
	metrics         *Metrics
	defaultCapacity int
	defaultPolicy   OverflowPolicy
}

// New constructs a Bus. Options configure logging, metrics, and the
// default Mailbox capacity/policy RegisterNew uses.
func New(opts ...Option) *Bus {
	b := &Bus{
		registrations:   make(map[string]*registration),
		subsMachine:     make(map[string][]*subscription),
		logger:          slog.Default(),
		defaultCapacity: defaultMailboxCapacity,
		defaultPolicy:   Reject,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var (
	defaultBus     *Bus
	defaultBusOnce sync.Once
)

// Default returns a lazily-constructed package-level Bus, a
// convenience for callers that don't need an explicitly scoped
// instance (a quick example, a one-off script). Prefer New for
// anything that outlives a single process run or needs its own
// metrics/logging.
func Default() *Bus {
	defaultBusOnce.Do(func() { defaultBus = New() })
	return defaultBus
}

// Register associates id with mailbox as the sender-side handle of a
// MachineRegistration. Under RejectDuplicate a second registration for
// the same id fails with statewire.ErrDuplicateID; under
// AppendIsolationSuffix it succeeds under a generated id instead,
// returned via Token.
func (b *Bus) Register(id string, mailbox *Mailbox, policy RegistrationPolicy) (Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	finalID := id
	if _, exists := b.registrations[id]; exists {
		if policy != AppendIsolationSuffix {
			return "", statewire.ErrDuplicateID
		}
		finalID = id + "-" + uuid.NewString()[:8]
	}
	b.registrations[finalID] = &registration{mailbox: mailbox}
	if b.metrics != nil {
		b.metrics.MailboxDepth.WithLabelValues(finalID).Set(float64(mailbox.Size()))
	}
	return Token(finalID), nil
}

// RegisterNew allocates a Mailbox using the Bus's default capacity and
// overflow policy, then registers it under id.
func (b *Bus) RegisterNew(id string, policy RegistrationPolicy) (Token, *Mailbox, error) {
	b.mu.RLock()
	capacity, overflow := b.defaultCapacity, b.defaultPolicy
	b.mu.RUnlock()

	mb := NewMailbox(capacity, overflow)
	token, err := b.Register(id, mb, policy)
	if err != nil {
		return "", nil, err
	}
	return token, mb, nil
}

// Unregister removes a machine registration, closing its mailbox so
// any Pump draining it stops.
func (b *Bus) Unregister(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if reg, ok := b.registrations[string(token)]; ok {
		reg.mailbox.Close()
		delete(b.registrations, string(token))
	}
}

// Publish enqueues event on target's mailbox. Returns
// statewire.ErrUnknownTarget if target was never registered, or
// statewire.ErrMailboxFull if its mailbox is full under Reject.
func (b *Bus) Publish(target string, event statewire.Event) error {
	b.mu.RLock()
	reg, ok := b.registrations[target]
	subsAll := append([]*subscription(nil), b.subsAll...)
	subsMachine := append([]*subscription(nil), b.subsMachine[target]...)
	subsTopic := append([]*subscription(nil), b.subsTopic...)
	b.mu.RUnlock()

	if !ok {
		b.recordPublish("unknown_target")
		return statewire.ErrUnknownTarget
	}
	if err := reg.mailbox.Send(event); err != nil {
		b.recordPublish("mailbox_full")
		return err
	}
	b.recordPublish("ok")
	b.recordDelivered(target, reg.mailbox.Size())
	b.notify(target, event, subsAll, subsMachine, subsTopic)
	return nil
}

// Broadcast publishes event to every registered machine, in sorted id
// order for a deterministic delivery sequence. A full or missing
// mailbox for one target never stops delivery to the rest. Returns the
// number of machines the event was actually enqueued for.
func (b *Bus) Broadcast(event statewire.Event) int {
	b.mu.RLock()
	targets := make([]string, 0, len(b.registrations))
	for id := range b.registrations {
		targets = append(targets, id)
	}
	b.mu.RUnlock()
	sort.Strings(targets)

	delivered := 0
	for _, id := range targets {
		if err := b.Publish(id, event); err == nil {
			delivered++
		}
	}
	if b.metrics != nil {
		b.metrics.Broadcast.Inc()
	}
	return delivered
}

// SubscribeAll registers handler to observe every delivery made via
// Publish or Broadcast, regardless of target.
func (b *Bus) SubscribeAll(handler Handler) Token {
	sub := &subscription{token: Token(uuid.NewString()), handler: handler}
	b.mu.Lock()
	b.subsAll = append(b.subsAll, sub)
	b.mu.Unlock()
	return sub.token
}

// SubscribeMachine registers handler to observe deliveries addressed
// specifically to machine.
func (b *Bus) SubscribeMachine(machine string, handler Handler) Token {
	sub := &subscription{token: Token(uuid.NewString()), handler: handler, machine: machine}
	b.mu.Lock()
	b.subsMachine[machine] = append(b.subsMachine[machine], sub)
	b.mu.Unlock()
	return sub.token
}

// SubscribeTopic registers handler to observe deliveries whose target
// id matches pattern under the topic-pattern grammar ('+'/'#').
func (b *Bus) SubscribeTopic(pattern string, handler Handler) Token {
	sub := &subscription{token: Token(uuid.NewString()), handler: handler, pattern: pattern}
	b.mu.Lock()
	b.subsTopic = append(b.subsTopic, sub)
	b.mu.Unlock()
	return sub.token
}

// Unsubscribe cancels a subscription previously returned by
// SubscribeAll, SubscribeMachine, or SubscribeTopic. A no-op if token
// is unknown or already unsubscribed.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subsAll = removeToken(b.subsAll, token)
	for m, subs := range b.subsMachine {
		b.subsMachine[m] = removeToken(subs, token)
	}
	b.subsTopic = removeToken(b.subsTopic, token)
}

func removeToken(subs []*subscription, token Token) []*subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.token != token {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus) notify(target string, event statewire.Event, subsAll, subsMachine, subsTopic []*subscription) {
	for _, s := range subsAll {
		s.handler(target, event)
	}
	for _, s := range subsMachine {
		s.handler(target, event)
	}
	for _, s := range subsTopic {
		if MatchTopic(s.pattern, target) {
			s.handler(target, event)
		}
	}
}

func (b *Bus) recordPublish(result string) {
	if b.metrics != nil {
		b.metrics.Published.WithLabelValues(result).Inc()
	}
}

func (b *Bus) recordDelivered(target string, depth int) {
	if b.metrics != nil {
		b.metrics.Delivered.Inc()
		b.metrics.MailboxDepth.WithLabelValues(target).Set(float64(depth))
	}
}
