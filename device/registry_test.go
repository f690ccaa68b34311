package device

import "testing"

func TestMemoryRegistry_FirstSeenIsNew(t *testing.T) {
	r := NewMemoryRegistry()

	known, reuse := r.IsKnown("alice", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if known {
		t.Fatal("first sighting should not be known")
	}
	if reuse != 1 {
		t.Fatalf("reuse count = %d, want 1", reuse)
	}

	known, reuse = r.IsKnown("alice", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if !known {
		t.Fatal("second sighting should be known")
	}
	if reuse != 1 {
		t.Fatalf("reuse count = %d, want 1", reuse)
	}
}

func TestMemoryRegistry_ReuseAcrossUsers(t *testing.T) {
	r := NewMemoryRegistry()
	device := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	r.IsKnown("alice", device)
	known, reuse := r.IsKnown("bob", device)
	if known {
		t.Fatal("bob has not seen this device before")
	}
	if reuse != 2 {
		t.Fatalf("reuse count = %d, want 2", reuse)
	}
}

func TestMemoryRegistry_EmptyDeviceIDNeverKnown(t *testing.T) {
	r := NewMemoryRegistry()
	known, reuse := r.IsKnown("alice", "")
	if known || reuse != 0 {
		t.Fatalf("empty device id should report known=false, reuse=0, got %v %d", known, reuse)
	}
}

func TestMemoryRegistry_Seed(t *testing.T) {
	r := NewMemoryRegistry()
	r.Seed("alice", "cccccccccccccccccccccccccccccccc")
	known, _ := r.IsKnown("alice", "cccccccccccccccccccccccccccccccc")
	if !known {
		t.Fatal("seeded pair should be known")
	}
}

func TestValidateDeviceID(t *testing.T) {
	if !ValidateDeviceID(NewDeviceID()) {
		t.Fatal("NewDeviceID should produce a valid ID")
	}
	if ValidateDeviceID("too-short") {
		t.Fatal("short id should be invalid")
	}
}

func TestLocalRegistry_FallsThroughToMemory(t *testing.T) {
	r := NewLocalRegistry()
	known, _ := r.IsKnown("alice", "dddddddddddddddddddddddddddddddd")
	if known {
		t.Fatal("unseen non-local device should not be known on first sighting")
	}
	known, _ = r.IsKnown("alice", "dddddddddddddddddddddddddddddddd")
	if !known {
		t.Fatal("repeat sighting should be known via fallback")
	}
}
