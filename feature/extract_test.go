package feature

import (
	"testing"
	"time"

	"github.com/byteness/sentinel-fraud/device"
	"github.com/byteness/sentinel-fraud/txn"
)

func TestExtract_DefaultsWhenNoHistory(t *testing.T) {
	history := NewMemoryHistory()
	devices := device.NewMemoryRegistry()
	ips := NewMemoryIPReputation()

	tx := txn.Transaction{
		UserID:    "new-user",
		DeviceID:  "first-device",
		SourceIP:  "203.0.113.5",
		Amount:    45.99,
		Timestamp: time.Date(2026, 1, 2, 14, 30, 0, 0, time.UTC),
		Location:  "home",
	}

	fv := Extract(tx, history, devices, ips, nil)

	if fv[txn.FeatureIPRisk] != defaultIPRisk {
		t.Errorf("ip risk = %v, want default %v", fv[txn.FeatureIPRisk], defaultIPRisk)
	}
	if fv[txn.FeatureDeviceNew] != 1 {
		t.Errorf("device_new = %v, want 1 for first sighting", fv[txn.FeatureDeviceNew])
	}
	if fv[txn.FeatureAccountAgeDays] != 0 {
		t.Errorf("account_age_days = %v, want 0 with no history", fv[txn.FeatureAccountAgeDays])
	}
	if fv[txn.FeatureNeighbourRisk] != 0 {
		t.Errorf("neighbour_risk placeholder must stay 0, got %v", fv[txn.FeatureNeighbourRisk])
	}
}

func TestExtract_KnownDeviceAndIPReputation(t *testing.T) {
	history := NewMemoryHistory()
	devices := device.NewMemoryRegistry()
	ips := NewMemoryIPReputation()
	ips.Set("198.51.100.9", 0.9)
	devices.Seed("alice", "known-device")

	tx := txn.Transaction{
		UserID:    "alice",
		DeviceID:  "known-device",
		SourceIP:  "198.51.100.9",
		Amount:    20,
		Timestamp: time.Now(),
	}

	fv := Extract(tx, history, devices, ips, nil)

	if fv[txn.FeatureDeviceNew] != 0 {
		t.Errorf("device_new = %v, want 0 for known device", fv[txn.FeatureDeviceNew])
	}
	if fv[txn.FeatureIPRisk] != 0.9 {
		t.Errorf("ip risk = %v, want 0.9", fv[txn.FeatureIPRisk])
	}
}

func TestExtract_VelocityAndCaps(t *testing.T) {
	history := NewMemoryHistory()
	now := time.Now()
	for i := 0; i < 60; i++ {
		history.RecordTransaction("bob", "home", 10, now.Add(-time.Duration(i)*time.Minute))
	}

	tx := txn.Transaction{UserID: "bob", Amount: 10, Timestamp: now}
	fv := Extract(tx, history, device.NewMemoryRegistry(), NewMemoryIPReputation(), nil)

	if fv[txn.FeatureVelocity1h] > maxVelocity1h {
		t.Errorf("velocity_1h = %v exceeds cap %v", fv[txn.FeatureVelocity1h], maxVelocity1h)
	}
}

func TestExtract_DistanceFromMode(t *testing.T) {
	history := NewMemoryHistory()
	now := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		history.RecordTransaction("carol", "home", 50, now)
	}

	distance := StaticDistance(map[[2]string]float64{
		{"home", "far-away"}: 9000,
	})

	tx := txn.Transaction{UserID: "carol", Amount: 50, Location: "far-away", Timestamp: time.Now()}
	fv := Extract(tx, history, device.NewMemoryRegistry(), NewMemoryIPReputation(), distance)

	if fv[txn.FeatureDistanceFromMode] != 9000 {
		t.Errorf("distance = %v, want 9000", fv[txn.FeatureDistanceFromMode])
	}
}

func TestExtract_NoNaN(t *testing.T) {
	history := NewMemoryHistory()
	tx := txn.Transaction{UserID: "dave", Amount: 0, Timestamp: time.Now()}
	fv := Extract(tx, history, device.NewMemoryRegistry(), NewMemoryIPReputation(), nil)
	for i, v := range fv {
		if v != v { // NaN check
			t.Errorf("feature %d (%s) is NaN", i, txn.FeatureNames[i])
		}
	}
}
