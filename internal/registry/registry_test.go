package registry

import "testing"

func TestRegisterUniqueness(t *testing.T) {
	r := New()
	if err := r.Register("mount", "handle1", true); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("mount", "handle2", true); err == nil {
		t.Fatalf("expected error registering duplicate name")
	}
}

func TestAllRequiredRunning(t *testing.T) {
	r := New()
	_ = r.Register("mount", nil, true)
	_ = r.Register("catalog", nil, false)

	if r.AllRequiredRunning() {
		t.Fatalf("expected false before any service is running")
	}

	r.SetStatus("mount", StatusRunning, "")
	if !r.AllRequiredRunning() {
		t.Fatalf("expected true: the only required service is running")
	}

	_ = r.Register("weather", nil, true)
	if r.AllRequiredRunning() {
		t.Fatalf("expected false: weather not yet running")
	}
}

func TestListRequiredPreservesOrder(t *testing.T) {
	r := New()
	_ = r.Register("a", nil, true)
	_ = r.Register("b", nil, false)
	_ = r.Register("c", nil, true)

	got := r.ListRequired()
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	_ = r.Register("mount", "h", true)
	r.Unregister("mount")
	if _, ok := r.Get("mount"); ok {
		t.Fatalf("expected mount to be gone after unregister")
	}
	// re-register should now succeed
	if err := r.Register("mount", "h2", true); err != nil {
		t.Fatalf("re-register after unregister: %v", err)
	}
}
