package ingest

import (
	"net"
	"regexp"
	"strings"

	"github.com/Ashfaaq98/reconpipe/internal/event"
)

var phonePattern = regexp.MustCompile(`^\+[0-9][0-9 .\-]{5,18}[0-9]$`)

// Classify maps one seed-file line to the event type it should enter the
// pipeline as. Blank lines, comments and unrecognized targets are skipped.
func Classify(target string) (event.Type, bool) {
	t := strings.TrimSpace(target)
	if t == "" || strings.HasPrefix(t, "#") {
		return "", false
	}
	if ip := net.ParseIP(t); ip != nil {
		return event.TypeIPAddress, true
	}
	if _, _, err := net.ParseCIDR(t); err == nil {
		return event.TypeNetblockOwner, true
	}
	if phonePattern.MatchString(t) {
		return event.TypePhoneNumber, true
	}
	return "", false
}
