package phonelocation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

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

// newAPIServer fakes the token endpoint and the location-retrieval endpoint.
func newAPIServer(t *testing.T, apiHits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/retrieve", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(apiHits, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if got := r.Header.Get("x-correlator"); got != "testrun" {
			t.Errorf("x-correlator = %q, want testrun", got)
		}
		var req retrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if req.Device.PhoneNumber == "" {
			t.Errorf("payload missing phone number")
		}
		if req.Area.AreaType != "CIRCLE" {
			t.Errorf("area type = %q, want CIRCLE", req.Area.AreaType)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"area": map[string]interface{}{
				"areaType": "CIRCLE",
				"center":   map[string]float64{"latitude": 50.7, "longitude": 7.1},
				"radius":   2000,
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestModule(t *testing.T, overrides map[string]string) (*Module, *captureNotifier) {
	t.Helper()
	sink := &captureNotifier{}
	m := New()
	err := m.Setup(plugin.Deps{Notifier: sink, Logger: testLogger()}, overrides)
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return m, sink
}

func TestHandleEventRetrievesLocation(t *testing.T) {
	var apiHits int32
	srv := newAPIServer(t, &apiHits)

	m, sink := newTestModule(t, map[string]string{
		"client_id":     "id",
		"client_secret": "secret",
		"token_url":     srv.URL + "/token",
		"api_url":       srv.URL + "/retrieve",
		"correlator":    "testrun",
	})

	parent := event.New(event.TypePhoneNumber, "+33612345678", event.SeedModule)
	if err := m.HandleEvent(context.Background(), parent); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	emitted := sink.emitted()
	if len(emitted) != 1 {
		t.Fatalf("expected 1 emission, got %d", len(emitted))
	}
	ev := emitted[0]
	if ev.Type != event.TypePhoneLocation {
		t.Fatalf("emitted type = %s, want %s", ev.Type, event.TypePhoneLocation)
	}
	if ev.ParentID != parent.ID {
		t.Fatalf("emitted event must link to the phone number event")
	}
	var loc map[string]interface{}
	if err := json.Unmarshal([]byte(ev.Data), &loc); err != nil {
		t.Fatalf("emitted data is not the JSON response: %v", err)
	}
	if _, ok := loc["area"]; !ok {
		t.Fatalf("emitted data missing area: %s", ev.Data)
	}
}

func TestHandleEventMissingCredentialsLatches(t *testing.T) {
	m, sink := newTestModule(t, nil) // no client_id/client_secret

	ev := event.New(event.TypePhoneNumber, "+33612345678", event.SeedModule)
	if err := m.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if !m.Latched() {
		t.Fatalf("missing credentials must latch the module")
	}
	if n := len(sink.emitted()); n != 0 {
		t.Fatalf("expected no emissions, got %d", n)
	}
}

func TestHandleEventAPIFailureLatches(t *testing.T) {
	var apiHits int32
	srv := newAPIServer(t, &apiHits)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	m, sink := newTestModule(t, map[string]string{
		"client_id":     "id",
		"client_secret": "secret",
		"token_url":     srv.URL + "/token",
		"api_url":       bad.URL,
		"correlator":    "testrun",
	})

	first := event.New(event.TypePhoneNumber, "+33612345678", event.SeedModule)
	if err := m.HandleEvent(context.Background(), first); err != nil {
		t.Fatalf("handle must swallow API failures, got %v", err)
	}
	if !m.Latched() {
		t.Fatalf("API failure must latch the module")
	}

	second := event.New(event.TypePhoneNumber, "+33698765432", event.SeedModule)
	if err := m.HandleEvent(context.Background(), second); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if n := len(sink.emitted()); n != 0 {
		t.Fatalf("latched module must not emit, got %d", n)
	}
}

func TestHandleEventDeduplicates(t *testing.T) {
	var apiHits int32
	srv := newAPIServer(t, &apiHits)

	m, sink := newTestModule(t, map[string]string{
		"client_id":     "id",
		"client_secret": "secret",
		"token_url":     srv.URL + "/token",
		"api_url":       srv.URL + "/retrieve",
		"correlator":    "testrun",
	})

	for i := 0; i < 3; i++ {
		ev := event.New(event.TypePhoneNumber, "+33612345678", event.SeedModule)
		if err := m.HandleEvent(context.Background(), ev); err != nil {
			t.Fatalf("handle failed: %v", err)
		}
	}

	if n := atomic.LoadInt32(&apiHits); n != 1 {
		t.Fatalf("duplicate numbers must hit the API once, got %d", n)
	}
	if n := len(sink.emitted()); n != 1 {
		t.Fatalf("duplicate numbers must emit once, got %d", n)
	}
}
