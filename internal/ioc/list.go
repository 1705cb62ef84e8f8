package ioc

import (
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yl2chen/cidranger"
)

// Kind selects the comparison the matching engine applies to a query.
type Kind int

const (
	// Exact matches when the lower-cased query string equals a list line.
	// Entries are compared as written, not as numeric addresses.
	Exact Kind = iota

	// Containment matches when any list entry, taken as a single address,
	// falls inside the network range the query describes. The query is the
	// broad range; list entries are the narrow known-bad addresses.
	Containment
)

// List is a parsed view over one fetched blocklist body.
type List struct {
	// Source identifies where the list came from (usually its URL) and is
	// returned as the provenance of a match.
	Source string

	entries []Entry
	exact   map[string]struct{}
	logger  *logrus.Entry

	once   sync.Once
	ranger cidranger.Ranger
}

// ParseList splits body into lines and parses each as an indicator.
// Malformed lines are logged at debug level and skipped.
func ParseList(body []byte, source string, logger *logrus.Entry) *List {
	l := &List{
		Source: source,
		exact:  make(map[string]struct{}),
		logger: logger,
	}
	for _, line := range strings.Split(string(body), "\n") {
		e, err := ParseEntry(line)
		if err != nil {
			if logger != nil && strings.TrimSpace(line) != "" {
				logger.WithError(err).Debug("skipping list line")
			}
			continue
		}
		l.entries = append(l.entries, e)
		l.exact[e.Raw] = struct{}{}
	}
	return l
}

// Len reports how many entries parsed successfully.
func (l *List) Len() int {
	return len(l.entries)
}

// Match scans the list for query under the given kind and returns the
// list's source on a hit, or "" when nothing matches. A query that cannot
// be parsed for a containment check is a non-match, not an error.
func (l *List) Match(query string, kind Kind) string {
	switch kind {
	case Exact:
		q := strings.ToLower(strings.TrimSpace(query))
		if _, ok := l.exact[q]; ok {
			return l.Source
		}
	case Containment:
		qnet := parseQueryNetwork(query)
		if qnet == nil {
			if l.logger != nil {
				l.logger.WithField("query", query).Debug("unparsable containment query")
			}
			return ""
		}
		covered, err := l.containmentIndex().CoveredNetworks(*qnet)
		if err == nil && len(covered) > 0 {
			return l.Source
		}
	}
	return ""
}

// containmentIndex lazily builds a prefix trie over the list entries, each
// inserted as a host network of its base address. CoveredNetworks then
// answers "which entries lie inside this range" directly.
func (l *List) containmentIndex() cidranger.Ranger {
	l.once.Do(func() {
		l.ranger = cidranger.NewPCTrieRanger()
		for _, e := range l.entries {
			if n := hostNetwork(e.IP); n != nil {
				_ = l.ranger.Insert(cidranger.NewBasicRangerEntry(*n))
			}
		}
	})
	return l.ranger
}

// parseQueryNetwork accepts a CIDR, or a bare address treated as a host
// network, and returns nil for anything else.
func parseQueryNetwork(query string) *net.IPNet {
	q := strings.TrimSpace(query)
	if _, qnet, err := net.ParseCIDR(q); err == nil {
		return qnet
	}
	if ip := net.ParseIP(q); ip != nil {
		return hostNetwork(ip)
	}
	return nil
}

func hostNetwork(ip net.IP) *net.IPNet {
	if ip == nil {
		return nil
	}
	if v4 := ip.To4(); v4 != nil {
		return &net.IPNet{IP: v4, Mask: net.CIDRMask(32, 32)}
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
}
