// internal/store/memory_test.go
package store

import (
	"context"
	"testing"

	"github.com/jason-s-yu/lobbyd/internal/models"
)

func TestMemoryRegistryRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if err := st.WriteRegistry(ctx, "alpha", "m1"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	id, ok, err := st.RoomMatch(ctx, "alpha")
	if err != nil || !ok || id != "m1" {
		t.Fatalf("room lookup: id=%q ok=%v err=%v", id, ok, err)
	}
	name, ok, err := st.MatchRoom(ctx, "m1")
	if err != nil || !ok || name != "alpha" {
		t.Fatalf("match lookup: name=%q ok=%v err=%v", name, ok, err)
	}

	if err := st.DeleteRegistry(ctx, "alpha", "m1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := st.RoomMatch(ctx, "alpha"); ok {
		t.Fatal("room record survived delete")
	}
	if _, ok, _ := st.MatchRoom(ctx, "m1"); ok {
		t.Fatal("match record survived delete")
	}
}

func TestMemoryRegistryMiss(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if _, ok, err := st.RoomMatch(ctx, "ghost"); ok || err != nil {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	// Deleting absent records is a no-op, not an error.
	if err := st.DeleteRegistry(ctx, "ghost", "m9"); err != nil {
		t.Fatalf("delete of absent records failed: %v", err)
	}
}

func TestMemoryPropertiesRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if _, ok, _ := st.Properties(ctx, "m1"); ok {
		t.Fatal("expected miss before write")
	}

	n := 2
	seed := map[string]models.UserProperty{"u1": {IsReady: true, PlayerNumber: &n}}
	if err := st.WriteProperties(ctx, "m1", seed); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	props, ok, err := st.Properties(ctx, "m1")
	if err != nil || !ok {
		t.Fatalf("read failed: ok=%v err=%v", ok, err)
	}
	if !props["u1"].IsReady || *props["u1"].PlayerNumber != 2 {
		t.Fatalf("unexpected props %+v", props)
	}

	if err := st.DeleteProperties(ctx, "m1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := st.Properties(ctx, "m1"); ok {
		t.Fatal("property record survived delete")
	}
}

func TestMemoryPropertiesReturnsCopies(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if err := st.WriteProperties(ctx, "m1", map[string]models.UserProperty{"u1": {}}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Mutating a read snapshot must not leak into the store.
	props, _, _ := st.Properties(ctx, "m1")
	props["u1"] = models.UserProperty{IsReady: true}
	props["u2"] = models.UserProperty{}

	stored, _, _ := st.Properties(ctx, "m1")
	if stored["u1"].IsReady {
		t.Fatal("snapshot mutation leaked into stored record")
	}
	if _, ok := stored["u2"]; ok {
		t.Fatal("snapshot insertion leaked into stored record")
	}
}
