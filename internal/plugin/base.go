package plugin

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/cache"
	"github.com/Ashfaaq98/reconpipe/internal/event"
)

// Base carries the state every module shares: the dedup ledger, the error
// latch, logging and event emission. Modules embed it and call Init from
// their Setup.
type Base struct {
	name    string
	deps    Deps
	ledger  *Ledger
	latched atomic.Bool
	log     *logrus.Entry
}

// Init wires the base for one module instance. It must run before any
// event is handled.
func (b *Base) Init(name string, deps Deps) {
	b.name = name
	b.deps = deps
	b.ledger = NewLedger()
	b.log = deps.Logger
	if b.log == nil {
		b.log = logrus.NewEntry(logrus.New())
	}
	b.log = b.log.WithField("module", name)
}

// Name returns the module's short name.
func (b *Base) Name() string { return b.name }

// Log returns the module-scoped logger.
func (b *Base) Log() *logrus.Entry { return b.log }

// Cache returns this instance's fetch cache.
func (b *Base) Cache() *cache.Cache { return b.deps.Cache }

// Deps returns the infrastructure handed to Setup.
func (b *Base) Deps() Deps { return b.deps }

// Ledger returns this instance's dedup ledger.
func (b *Base) Ledger() *Ledger { return b.ledger }

// Latch moves the module into its terminal error state. Once latched the
// module performs no further network attempts or processing for the rest
// of its run. The flag is immediately visible to concurrent invocations.
func (b *Base) Latch() { b.latched.Store(true) }

// Latched reports whether the module has latched an error.
func (b *Base) Latched() bool { return b.latched.Load() }

// Emit builds a derived event carrying the module's identity and a
// provenance link to parent, and hands it to the notification fabric
// exactly once.
func (b *Base) Emit(ctx context.Context, t event.Type, data string, parent *event.Event) error {
	if b.deps.Notifier == nil {
		return nil
	}
	ev := event.NewChild(t, data, b.name, parent)
	return b.deps.Notifier.Notify(ctx, ev)
}
