package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/event"
)

// Publisher fans emitted events out to external consumers; the Redis bus
// implements it.
type Publisher interface {
	PublishFinding(ctx context.Context, ev *event.Event) error
}

// Archiver persists the event DAG; the sqlite store implements it.
type Archiver interface {
	SaveEvent(ctx context.Context, ev *event.Event) error
}

// Manager owns the registered modules and routes events to them by their
// declared watched types. Events emitted by modules come back through
// Notify, are persisted and published, and feed the routing queue again;
// each module's dedup ledger keeps that cycle finite.
type Manager struct {
	mu      sync.RWMutex
	modules map[string]Module
	routes  map[event.Type][]Module

	publisher Publisher
	archiver  Archiver
	logger    *logrus.Entry

	qmu     sync.Mutex
	pending []*event.Event
	wake    chan struct{}
}

// NewManager builds a manager. publisher and archiver may be nil; the
// pipeline then runs purely in process.
func NewManager(publisher Publisher, archiver Archiver, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Manager{
		modules:   make(map[string]Module),
		routes:    make(map[event.Type][]Module),
		publisher: publisher,
		archiver:  archiver,
		logger:    logger.WithField("component", "manager"),
		wake:      make(chan struct{}, 1),
	}
}

// Register adds a module and indexes its watched event types for routing.
func (m *Manager) Register(mod Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := mod.Name()
	if _, exists := m.modules[name]; exists {
		return fmt.Errorf("module already registered: %s", name)
	}
	m.modules[name] = mod
	for _, t := range mod.WatchedEvents() {
		m.routes[t] = append(m.routes[t], mod)
	}
	m.logger.WithField("module", name).Info("registered module")
	return nil
}

// Modules returns the registered modules.
func (m *Manager) Modules() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mods := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		mods = append(mods, mod)
	}
	return mods
}

// Notify implements Notifier. Every event entering the pipeline — seed
// targets and module emissions alike — is archived, fanned out to the bus
// and queued for routing.
func (m *Manager) Notify(ctx context.Context, ev *event.Event) error {
	if m.archiver != nil {
		if err := m.archiver.SaveEvent(ctx, ev); err != nil {
			m.logger.WithError(err).WithField("event", string(ev.Type)).Error("archiving event failed")
		}
	}
	if m.publisher != nil {
		if err := m.publisher.PublishFinding(ctx, ev); err != nil {
			m.logger.WithError(err).WithField("event", string(ev.Type)).Error("publishing event failed")
		}
	}
	m.enqueue(ev)
	return nil
}

// Dispatch delivers ev to every module watching its type, synchronously.
// Module errors are logged and swallowed; the pipeline keeps going.
func (m *Manager) Dispatch(ctx context.Context, ev *event.Event) {
	m.mu.RLock()
	watchers := m.routes[ev.Type]
	m.mu.RUnlock()

	for _, mod := range watchers {
		if err := mod.HandleEvent(ctx, ev); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"module": mod.Name(),
				"event":  string(ev.Type),
			}).Error("module failed handling event")
		}
	}
}

// Run drains the event queue until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if ev := m.next(); ev != nil {
			m.Dispatch(ctx, ev)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
		}
	}
}

// Drain dispatches queued events until the queue is empty. Useful for
// one-shot runs and tests; Run is the long-lived equivalent.
func (m *Manager) Drain(ctx context.Context) {
	for {
		ev := m.next()
		if ev == nil {
			return
		}
		m.Dispatch(ctx, ev)
	}
}

// enqueue appends to the unbounded pending list. Growing a slice under a
// mutex rather than blocking on a channel keeps module emissions from ever
// deadlocking the dispatch loop that triggered them.
func (m *Manager) enqueue(ev *event.Event) {
	m.qmu.Lock()
	m.pending = append(m.pending, ev)
	m.qmu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) next() *event.Event {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	ev := m.pending[0]
	m.pending = m.pending[1:]
	return ev
}
