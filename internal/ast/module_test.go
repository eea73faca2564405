package ast

import "testing"

func TestRegistryAddFind(t *testing.T) {
	reg := NewRegistry()
	a := NewModule("a.eis", ".")
	b := NewModule("b.eis", ".")

	ai := reg.Add(a, 1)
	bi := reg.Add(b, 2)
	if ai != 0 || bi != 1 {
		t.Fatalf("indices = %d, %d", ai, bi)
	}
	if idx, ok := reg.Find("b.eis"); !ok || idx != bi {
		t.Errorf("Find(b.eis) = %d, %v", idx, ok)
	}
	if _, ok := reg.Find("c.eis"); ok {
		t.Error("Find found a module that was never added")
	}
	if reg.Module(ai) != a || reg.Depth(bi) != 2 {
		t.Error("stored entries wrong")
	}
}

func TestRaiseDepthPropagates(t *testing.T) {
	reg := NewRegistry()
	a := NewModule("a.eis", ".")
	b := NewModule("b.eis", ".")
	c := NewModule("c.eis", ".")

	ci := reg.Add(c, 3)
	bi := reg.Add(b, 2)
	ai := reg.Add(a, 1)
	a.Imported = []int{bi}
	b.Imported = []int{ci}

	reg.RaiseDepth(ai, 4)

	for i, want := range map[int]int{ai: 4, bi: 5, ci: 6} {
		if got := reg.Depth(i); got != want {
			t.Errorf("depth[%d] = %d, want %d", i, got, want)
		}
	}
}

// Depth propagation does not re-enter a module already on the current
// propagation path, so the recursion terminates on cyclic import graphs.
func TestRaiseDepthTerminatesOnCycle(t *testing.T) {
	reg := NewRegistry()
	a := NewModule("a.eis", ".")
	b := NewModule("b.eis", ".")

	ai := reg.Add(a, 1)
	bi := reg.Add(b, 2)
	a.Imported = []int{bi}
	b.Imported = []int{ai}

	reg.RaiseDepth(ai, 3) // must not loop forever

	if reg.Depth(ai) != 3 || reg.Depth(bi) != 4 {
		t.Errorf("depths = %d, %d; want 3, 4", reg.Depth(ai), reg.Depth(bi))
	}
}

func TestRaiseDepthNoDecrease(t *testing.T) {
	reg := NewRegistry()
	a := NewModule("a.eis", ".")
	ai := reg.Add(a, 5)

	reg.RaiseDepth(ai, 2)
	if reg.Depth(ai) != 5 {
		t.Errorf("depth lowered to %d", reg.Depth(ai))
	}
}

func TestLoadTracking(t *testing.T) {
	reg := NewRegistry()
	if !reg.BeginLoad("m.eis") {
		t.Fatal("first BeginLoad must succeed")
	}
	if reg.BeginLoad("m.eis") {
		t.Fatal("re-entrant BeginLoad must fail")
	}
	reg.EndLoad("m.eis")
	if !reg.BeginLoad("m.eis") {
		t.Fatal("BeginLoad after EndLoad must succeed")
	}
}
