// Package blocklist checks IP addresses and netblocks against remote
// line-oriented blocklists of known-bad addresses. One module type serves
// every feed; the feed table below lists the ones enabled by default.
package blocklist

import (
	"context"
	"fmt"
	"time"

	"github.com/Ashfaaq98/reconpipe/internal/cache"
	"github.com/Ashfaaq98/reconpipe/internal/event"
	"github.com/Ashfaaq98/reconpipe/internal/ioc"
	"github.com/Ashfaaq98/reconpipe/internal/plugin"
)

// Feed identifies one remote blocklist resource.
type Feed struct {
	Name     string // short module name, also used in emitted payloads
	URL      string
	CacheKey string // cache identifier, namespaced so feeds never collide
}

// Feeds enabled by the default registry.
var (
	EmergingThreats = Feed{
		Name:     "emergingthreats",
		URL:      "https://rules.emergingthreats.net/blockrules/compromised-ips.txt",
		CacheKey: "mal_emergingthreats",
	}
	FeodoTracker = Feed{
		Name:     "feodotracker",
		URL:      "https://feodotracker.abuse.ch/downloads/ipblocklist.txt",
		CacheKey: "mal_feodotracker",
	}
)

// DefaultFeeds returns the feeds registered out of the box.
func DefaultFeeds() []Feed {
	return []Feed{EmergingThreats, FeodoTracker}
}

// Option keys.
const (
	optCheckAffiliates = "checkaffiliates"
	optCachePeriod     = "cacheperiod"
	optCheckNetblocks  = "checknetblocks"
	optCheckSubnets    = "checksubnets"
)

// Options documents the module's configuration surface.
func Options() plugin.Options {
	return plugin.Options{
		Defaults: map[string]string{
			optCheckAffiliates: "true",
			optCachePeriod:     "18",
			optCheckNetblocks:  "true",
			optCheckSubnets:    "true",
		},
		Descriptions: map[string]string{
			optCheckAffiliates: "Apply checks to affiliate IP addresses?",
			optCachePeriod:     "Hours to cache list data before re-fetching.",
			optCheckNetblocks:  "Report if any malicious IPs are found within owned netblocks?",
			optCheckSubnets:    "Check if any malicious IPs are found within the same subnet of the target?",
		},
	}
}

// config is built once at Setup and read-only afterwards.
type config struct {
	checkAffiliates bool
	checkNetblocks  bool
	checkSubnets    bool
	cachePeriod     time.Duration
}

// Module is the blocklist-membership enrichment module.
type Module struct {
	plugin.Base
	feed Feed
	cfg  config
}

// New returns a module for the given feed.
func New(feed Feed) *Module {
	return &Module{feed: feed}
}

func (m *Module) Name() string { return m.feed.Name }

func (m *Module) WatchedEvents() []event.Type {
	return []event.Type{
		event.TypeIPAddress,
		event.TypeAffiliateIPAddr,
		event.TypeNetblockOwner,
		event.TypeNetblockMember,
	}
}

func (m *Module) ProducedEvents() []event.Type {
	return []event.Type{
		event.TypeMaliciousIPAddr,
		event.TypeMaliciousAffiliateIPAddr,
		event.TypeMaliciousNetblock,
		event.TypeMaliciousSubnet,
	}
}

// Setup merges overrides onto the documented defaults and freezes them.
func (m *Module) Setup(deps plugin.Deps, overrides map[string]string) error {
	m.Init(m.feed.Name, deps)
	opts := Options().Merge(overrides)
	m.cfg = config{
		checkAffiliates: plugin.OptBool(opts, optCheckAffiliates),
		checkNetblocks:  plugin.OptBool(opts, optCheckNetblocks),
		checkSubnets:    plugin.OptBool(opts, optCheckSubnets),
		cachePeriod:     time.Duration(plugin.OptInt(opts, optCachePeriod, 18)) * time.Hour,
	}
	return nil
}

// route maps an inbound event type to whether its check is enabled, the
// matching kind to apply and the event type to emit on a hit. Event types
// outside the table are ignored.
type route struct {
	enabled func(config) bool
	kind    ioc.Kind
	out     event.Type
}

var routes = map[event.Type]route{
	event.TypeIPAddress: {
		enabled: func(config) bool { return true },
		kind:    ioc.Exact,
		out:     event.TypeMaliciousIPAddr,
	},
	event.TypeAffiliateIPAddr: {
		enabled: func(c config) bool { return c.checkAffiliates },
		kind:    ioc.Exact,
		out:     event.TypeMaliciousAffiliateIPAddr,
	},
	event.TypeNetblockOwner: {
		enabled: func(c config) bool { return c.checkNetblocks },
		kind:    ioc.Containment,
		out:     event.TypeMaliciousNetblock,
	},
	event.TypeNetblockMember: {
		enabled: func(c config) bool { return c.checkSubnets },
		kind:    ioc.Containment,
		out:     event.TypeMaliciousSubnet,
	},
}

// HandleEvent processes one inbound finding. Failures never propagate to
// the pipeline: a fetch failure latches the module and later events are
// ignored silently.
func (m *Module) HandleEvent(ctx context.Context, ev *event.Event) error {
	if m.Latched() {
		return nil
	}
	log := m.Log().WithField("data", ev.Data)

	if !m.Ledger().CheckAndRecord(ev.Data) {
		log.Debug("already checked, skipping")
		return nil
	}

	r, ok := routes[ev.Type]
	if !ok {
		return nil
	}
	if !r.enabled(m.cfg) {
		return nil
	}

	source, err := m.query(ctx, ev.Data, r.kind)
	if err != nil {
		log.WithError(err).Errorf("unable to fetch %s", m.feed.URL)
		m.Latch()
		return nil
	}
	if source == "" {
		return nil
	}

	log.Debug("datum found in blocklist")
	text := fmt.Sprintf("%s [%s]\n%s", m.feed.Name, ev.Data, source)
	return m.Emit(ctx, r.out, text, ev)
}

// query reports the feed URL when datum is present in the blocklist,
// fetching the list body through the shared cache.
func (m *Module) query(ctx context.Context, datum string, kind ioc.Kind) (string, error) {
	body, err := m.Cache().FetchAndCache(ctx, m.feed.CacheKey, cache.FetchOptions{
		URL:       m.feed.URL,
		TTL:       m.cfg.cachePeriod,
		Timeout:   m.Deps().FetchTimeout,
		UserAgent: m.Deps().UserAgent,
	})
	if err != nil {
		return "", err
	}
	list := ioc.ParseList(body, m.feed.URL, m.Log())
	return list.Match(datum, kind), nil
}
