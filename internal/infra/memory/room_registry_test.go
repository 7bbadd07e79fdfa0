package memory

import "testing"

func TestRoomRegistryLifecycle(t *testing.T) {
	registry := NewRoomRegistry()

	if !registry.PutIfAbsent("ABCDE", nil) {
		t.Fatalf("expected free code to be claimed")
	}
	if registry.PutIfAbsent("ABCDE", nil) {
		t.Fatalf("expected collision on a claimed code")
	}
	if _, ok := registry.Get("ABCDE"); !ok {
		t.Fatalf("expected room present")
	}

	registry.Remove("ABCDE")
	if _, ok := registry.Get("ABCDE"); ok {
		t.Fatalf("expected room removed")
	}
	if !registry.PutIfAbsent("ABCDE", nil) {
		t.Fatalf("expected code reusable after removal")
	}
}
