package device

import "sync"

// Record tracks the first-seen association between a user and a device,
// plus how many distinct users the device has been associated with.
type Record struct {
	UserID     string
	DeviceID   string
	FirstSeen  bool
	ReuseCount int
}

// MemoryRegistry is an in-memory device registry, safe for concurrent use.
// It satisfies feature.DeviceRegistry.
type MemoryRegistry struct {
	mu sync.Mutex
	// byUserDevice tracks which (user, device) pairs have already been seen.
	byUserDevice map[string]struct{}
	// usersByDevice counts distinct users per device, for reuse detection.
	usersByDevice map[string]map[string]struct{}
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byUserDevice:  make(map[string]struct{}),
		usersByDevice: make(map[string]map[string]struct{}),
	}
}

// IsKnown reports whether deviceID has previously been recorded for
// userID, and how many distinct users have used this device. Recording
// happens as a side effect of the first lookup for a given pair, so the
// registry learns as transactions flow through it.
func (r *MemoryRegistry) IsKnown(userID, deviceID string) (known bool, reuseCount int) {
	if deviceID == "" {
		return false, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := userID + "\x00" + deviceID
	_, known = r.byUserDevice[key]

	users, ok := r.usersByDevice[deviceID]
	if !ok {
		users = make(map[string]struct{})
		r.usersByDevice[deviceID] = users
	}
	users[userID] = struct{}{}
	reuseCount = len(users)

	if !known {
		r.byUserDevice[key] = struct{}{}
	}

	return known, reuseCount
}

// Seed marks (userID, deviceID) as already known and adds userID to the
// device's user set, so seeded pairs count toward later reuse counts.
// Used to preload test fixtures and warm caches from a durable backend
// at startup.
func (r *MemoryRegistry) Seed(userID, deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byUserDevice[userID+"\x00"+deviceID] = struct{}{}
	users, ok := r.usersByDevice[deviceID]
	if !ok {
		users = make(map[string]struct{})
		r.usersByDevice[deviceID] = users
	}
	users[userID] = struct{}{}
}
