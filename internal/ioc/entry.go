package ioc

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrNotIndicator marks a list line that cannot be parsed as an address or
// network. The scanning loop filters these out; they are never fatal.
var ErrNotIndicator = errors.New("not an address or network")

// Entry is a single parsed indicator from a blocklist: either a plain
// address or a network block. For containment comparisons a network entry
// is reduced to its base address.
type Entry struct {
	Raw string     // the line as compared: trimmed and lower-cased
	IP  net.IP     // the address, or the base address of a network entry
	Net *net.IPNet // non-nil when the entry is a CIDR
}

// ParseEntry parses one blocklist line. Blank lines and comments are
// rejected the same way malformed indicators are.
func ParseEntry(line string) (Entry, error) {
	raw := strings.ToLower(strings.TrimSpace(line))
	if raw == "" || strings.HasPrefix(raw, "#") {
		return Entry{}, ErrNotIndicator
	}
	if ip := net.ParseIP(raw); ip != nil {
		return Entry{Raw: raw, IP: ip}, nil
	}
	if ip, ipnet, err := net.ParseCIDR(raw); err == nil {
		return Entry{Raw: raw, IP: ip, Net: ipnet}, nil
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrNotIndicator, raw)
}
