package plugin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/cache"
	"github.com/Ashfaaq98/reconpipe/internal/event"
)

// Notifier receives the events a module emits. The pipeline manager
// implements it; tests substitute a recorder.
type Notifier interface {
	Notify(ctx context.Context, ev *event.Event) error
}

// Deps carries the shared infrastructure a module receives at Setup.
// Each module instance owns its cache; the notifier is shared.
type Deps struct {
	Cache    *cache.Cache
	Notifier Notifier
	Logger   *logrus.Entry

	// Network settings applied to every remote fetch a module performs.
	UserAgent    string
	FetchTimeout time.Duration
}

// Module is the contract every enrichment module implements.
//
// A module declares, statically, the event types it watches and produces;
// the manager routes on the watched set and never delivers anything outside
// it. Setup runs once, merges option overrides onto the module's documented
// defaults and freezes the result. HandleEvent is the single entry point
// for inbound events and must tolerate concurrent invocation.
type Module interface {
	Name() string
	WatchedEvents() []event.Type
	ProducedEvents() []event.Type
	Setup(deps Deps, overrides map[string]string) error
	HandleEvent(ctx context.Context, ev *event.Event) error
}
