package blocklist

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Ashfaaq98/reconpipe/internal/cache"
	"github.com/Ashfaaq98/reconpipe/internal/event"
	"github.com/Ashfaaq98/reconpipe/internal/plugin"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []*event.Event
}

func (c *captureNotifier) Notify(_ context.Context, ev *event.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureNotifier) emitted() []*event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*event.Event(nil), c.events...)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// newTestModule builds a module against a fake feed server.
func newTestModule(t *testing.T, listBody string, overrides map[string]string) (*Module, *captureNotifier, *int32) {
	t.Helper()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if listBody == "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, listBody)
	}))
	t.Cleanup(srv.Close)

	sink := &captureNotifier{}
	m := New(Feed{Name: "testfeed", URL: srv.URL, CacheKey: "mal_testfeed"})
	err := m.Setup(plugin.Deps{
		Cache:    cache.New(testLogger()),
		Notifier: sink,
		Logger:   testLogger(),
	}, overrides)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return m, sink, &hits
}

func TestHandleEventEmitsOnMatch(t *testing.T) {
	m, sink, _ := newTestModule(t, "198.51.100.7\n203.0.113.9\n", nil)

	parent := event.New(event.TypeIPAddress, "198.51.100.7", event.SeedModule)
	if err := m.HandleEvent(context.Background(), parent); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	emitted := sink.emitted()
	if len(emitted) != 1 {
		t.Fatalf("expected 1 emitted event, got %d", len(emitted))
	}
	ev := emitted[0]
	if ev.Type != event.TypeMaliciousIPAddr {
		t.Fatalf("emitted type = %s, want %s", ev.Type, event.TypeMaliciousIPAddr)
	}
	if ev.Module != "testfeed" {
		t.Fatalf("emitted module = %q, want testfeed", ev.Module)
	}
	if ev.ParentID != parent.ID {
		t.Fatalf("emitted event must link to the triggering event")
	}
	want := fmt.Sprintf("testfeed [198.51.100.7]\n%s", m.feed.URL)
	if ev.Data != want {
		t.Fatalf("emitted data = %q, want %q", ev.Data, want)
	}
}

func TestHandleEventNoMatchEmitsNothing(t *testing.T) {
	m, sink, _ := newTestModule(t, "203.0.113.9\n", nil)

	ev := event.New(event.TypeIPAddress, "198.51.100.7", event.SeedModule)
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if n := len(sink.emitted()); n != 0 {
		t.Fatalf("expected no emissions, got %d", n)
	}
}

func TestHandleEventDeduplicates(t *testing.T) {
	m, sink, hits := newTestModule(t, "198.51.100.7\n", nil)

	for i := 0; i < 3; i++ {
		ev := event.New(event.TypeIPAddress, "198.51.100.7", event.SeedModule)
		if err := m.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("handle failed: %v", err)
		}
	}

	if n := len(sink.emitted()); n != 1 {
		t.Fatalf("duplicate data must be processed once, got %d emissions", n)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("duplicate data must not refetch, got %d fetches", n)
	}
}

func TestHandleEventCachesAcrossData(t *testing.T) {
	m, _, hits := newTestModule(t, "198.51.100.7\n", nil)

	for _, ip := range []string{"198.51.100.7", "198.51.100.8", "198.51.100.9"} {
		ev := event.New(event.TypeIPAddress, ip, event.SeedModule)
		if err := m.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("handle failed: %v", err)
		}
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("one list download must serve many lookups, got %d fetches", n)
	}
}

func TestHandleEventFetchFailureLatches(t *testing.T) {
	m, sink, hits := newTestModule(t, "", nil) // server always 500s

	first := event.New(event.TypeIPAddress, "198.51.100.7", event.SeedModule)
	if err := m.HandleEvent(context.Background(), first); err != nil {
		t.Fatalf("handle must swallow fetch failures, got %v", err)
	}
	if !m.Latched() {
		t.Fatalf("fetch failure must latch the module")
	}

	// Latched modules ignore everything, without touching the network.
	second := event.New(event.TypeIPAddress, "198.51.100.8", event.SeedModule)
	if err := m.HandleEvent(context.Background(), second); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("latched module must not fetch again, got %d fetches", n)
	}
	if n := len(sink.emitted()); n != 0 {
		t.Fatalf("latched module must not emit, got %d", n)
	}
	if m.Ledger().Seen("198.51.100.8") {
		t.Fatalf("latched module must not record data in its ledger")
	}
}

func TestHandleEventDisabledCheckShortCircuits(t *testing.T) {
	m, sink, hits := newTestModule(t, "198.51.100.7\n", map[string]string{
		"checkaffiliates": "false",
	})

	ev := event.New(event.TypeAffiliateIPAddr, "198.51.100.7", event.SeedModule)
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	if n := atomic.LoadInt32(hits); n != 0 {
		t.Fatalf("disabled check must not fetch, got %d", n)
	}
	if n := len(sink.emitted()); n != 0 {
		t.Fatalf("disabled check must not emit, got %d", n)
	}
	// The datum is still recorded, so re-enabling later never reprocesses it.
	if !m.Ledger().Seen("198.51.100.7") {
		t.Fatalf("dedup record must be made before the enabled check")
	}
}

func TestHandleEventNetblockContainment(t *testing.T) {
	m, sink, _ := newTestModule(t, "10.0.0.5\n", nil)

	ev := event.New(event.TypeNetblockOwner, "10.0.0.0/24", event.SeedModule)
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	emitted := sink.emitted()
	if len(emitted) != 1 {
		t.Fatalf("expected 1 emission for containment hit, got %d", len(emitted))
	}
	if emitted[0].Type != event.TypeMaliciousNetblock {
		t.Fatalf("emitted type = %s, want %s", emitted[0].Type, event.TypeMaliciousNetblock)
	}

	miss := event.New(event.TypeNetblockMember, "10.0.1.0/24", event.SeedModule)
	if err := m.HandleEvent(context.Background(), miss); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if n := len(sink.emitted()); n != 1 {
		t.Fatalf("no entries inside the block, expected no new emission, got %d total", n)
	}
}

func TestHandleEventIgnoresUnroutedTypes(t *testing.T) {
	m, sink, hits := newTestModule(t, "198.51.100.7\n", nil)

	ev := event.New(event.TypePhoneNumber, "+33612345678", event.SeedModule)
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Fatalf("unrouted type must not fetch, got %d", n)
	}
	if n := len(sink.emitted()); n != 0 {
		t.Fatalf("unrouted type must not emit, got %d", n)
	}
}

func TestSetupOptionDefaults(t *testing.T) {
	m, _, _ := newTestModule(t, "x\n", nil)
	if !m.cfg.checkAffiliates || !m.cfg.checkNetblocks || !m.cfg.checkSubnets {
		t.Fatalf("all checks must default on: %+v", m.cfg)
	}
	if m.cfg.cachePeriod.Hours() != 18 {
		t.Fatalf("cache period default = %v, want 18h", m.cfg.cachePeriod)
	}
}
