package device

import "github.com/denisbrodbeck/machineid"

// localRegistryAppID scopes the machine-derived device identifier to this
// service, so the hashed ID cannot be correlated with other applications
// on the same host.
const localRegistryAppID = "sentinel-fraud-device-registry"

// LocalRegistry is a development/local-mode DeviceRegistry. It has no
// durable backend: it derives a single stable device identifier for the
// host it runs on (via machineid.ProtectedID) and treats every device ID
// equal to that identifier as known, deferring everything else to an
// in-memory MemoryRegistry. This lets a developer exercise the decision
// pipeline end to end without provisioning DynamoDB.
type LocalRegistry struct {
	localDeviceID string
	fallback      *MemoryRegistry
}

// NewLocalRegistry constructs a LocalRegistry. If the host's protected
// machine ID cannot be determined, localDeviceID is left empty and every
// device falls through to the in-memory fallback untouched.
func NewLocalRegistry() *LocalRegistry {
	id, _ := machineid.ProtectedID(localRegistryAppID)
	return &LocalRegistry{
		localDeviceID: id,
		fallback:      NewMemoryRegistry(),
	}
}

// IsKnown reports the device as known if it matches this host's derived
// identifier; otherwise it delegates to the in-memory fallback so repeat
// transactions within a single process still resolve as known.
func (r *LocalRegistry) IsKnown(userID, deviceID string) (known bool, reuseCount int) {
	if r.localDeviceID != "" && deviceID == r.localDeviceID {
		return true, 1
	}
	return r.fallback.IsKnown(userID, deviceID)
}
