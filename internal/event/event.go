package event

import (
	"time"

	"github.com/google/uuid"
)

// Type tags the kind of finding an Event carries. The set is closed: modules
// declare which types they watch and produce, and the manager routes on that
// declaration alone.
type Type string

// Inbound finding types.
const (
	TypeIPAddress       Type = "IP_ADDRESS"
	TypeAffiliateIPAddr Type = "AFFILIATE_IPADDR"
	TypeNetblockOwner   Type = "NETBLOCK_OWNER"
	TypeNetblockMember  Type = "NETBLOCK_MEMBER"
	TypePhoneNumber     Type = "PHONE_NUMBER"
)

// Derived finding types.
const (
	TypeMaliciousIPAddr          Type = "MALICIOUS_IPADDR"
	TypeMaliciousAffiliateIPAddr Type = "MALICIOUS_AFFILIATE_IPADDR"
	TypeMaliciousNetblock        Type = "MALICIOUS_NETBLOCK"
	TypeMaliciousSubnet          Type = "MALICIOUS_SUBNET"
	TypePhoneLocation            Type = "PHONE_LOCATION"
)

// SeedModule is the module name carried by root events injected from outside
// the pipeline (seed files, the scan command, the targets stream).
const SeedModule = "seed"

// Event is a single finding flowing through the pipeline. Derived events
// keep a provenance link back to the event that triggered them, so a run's
// findings form a DAG rooted at the seed targets. A module only reads the
// events delivered to it and creates new leaf events; it never mutates an
// event it did not create.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Data      string    `json:"data"`
	Module    string    `json:"module"`
	ParentID  string    `json:"parent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Parent is the in-process provenance link. It is nil for root events
	// and for events reconstructed from the bus or the store, where only
	// ParentID survives.
	Parent *Event `json:"-"`
}

// New builds a root event with no parent.
func New(t Type, data, module string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      t,
		Data:      data,
		Module:    module,
		Timestamp: time.Now().UTC(),
	}
}

// NewChild builds a derived event pointing at the event that triggered it.
func NewChild(t Type, data, module string, parent *Event) *Event {
	ev := New(t, data, module)
	if parent != nil {
		ev.Parent = parent
		ev.ParentID = parent.ID
	}
	return ev
}
