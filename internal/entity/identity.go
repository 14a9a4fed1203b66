package entity

import (
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ProvisionalPrefix marks locally minted ids. The server never sees them.
const ProvisionalPrefix = "temp-"

// persistentID matches a server-assigned id: 24 lowercase hex characters.
var persistentID = regexp.MustCompile(`^[a-f0-9]{24}$`)

// IsPersistentID reports whether id is a server-confirmed identifier.
// Operations that require server-side existence (commenting, reacting)
// gate on this and fail fast with a not-ready outcome otherwise.
func IsPersistentID(id string) bool {
	return !strings.HasPrefix(id, ProvisionalPrefix) && persistentID.MatchString(id)
}

// IsProvisionalID reports whether id was minted locally.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, ProvisionalPrefix)
}

// Minter mints provisional ids and correlation refs.
// Implemented by UUIDMinter (production) and FixedMinter (tests).
type Minter interface {
	Mint() string
	MintRef() string
}

// UUIDMinter mints time-sortable UUIDv7 suffixes. UUIDv7 embeds a
// timestamp in the most significant bits, so provisional ids sort by
// creation time and are unique within (and across) sessions.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDMinter struct{}

// Mint returns a fresh provisional entity id.
func (UUIDMinter) Mint() string {
	return ProvisionalPrefix + uuid.Must(uuid.NewV7()).String()
}

// MintRef returns a fresh client correlation id for push reconciliation.
func (UUIDMinter) MintRef() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedMinter returns predetermined ids for deterministic tests.
// Mint and MintRef draw from the same sequence.
//
// Panics when exhausted: a test that mints more ids than it scripted is
// misconfigured and should fail loudly.
type FixedMinter struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedMinter creates a minter that returns ids in order.
func NewFixedMinter(ids ...string) *FixedMinter {
	return &FixedMinter{ids: ids}
}

// Mint returns the next predetermined id.
func (m *FixedMinter) Mint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idx >= len(m.ids) {
		panic("FixedMinter: all ids exhausted")
	}
	id := m.ids[m.idx]
	m.idx++
	return id
}

// MintRef returns the next predetermined id.
func (m *FixedMinter) MintRef() string { return m.Mint() }
