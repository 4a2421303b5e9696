package contour

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func square(x, y, size float64) orb.Ring {
	return orb.Ring{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}
}

func TestNew_LinksChildrenInOrder(t *testing.T) {
	rings := []orb.Ring{square(0, 0, 100), square(10, 10, 20), square(50, 50, 20), square(12, 12, 5)}
	f, err := New(rings, []int{None, 0, 0, 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := f.Children(0); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Children(0) = %v, want [1 2]", got)
	}
	if got := f.Children(1); len(got) != 1 || got[0] != 3 {
		t.Errorf("Children(1) = %v, want [3]", got)
	}
	if got := f.Roots(); len(got) != 1 || got[0] != 0 {
		t.Errorf("Roots = %v, want [0]", got)
	}
	if d := f.Depth(3); d != 2 {
		t.Errorf("Depth(3) = %d, want 2", d)
	}
	if !f.Node(0).IsRoot() || f.Node(3).IsRoot() {
		t.Error("IsRoot mismatch")
	}
}

func TestNew_Measures(t *testing.T) {
	f, err := New([]orb.Ring{square(0, 0, 10)}, []int{None})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := f.Node(0)
	if n.Area != 100 {
		t.Errorf("Area = %v, want 100", n.Area)
	}
	if n.Perimeter != 40 {
		t.Errorf("Perimeter = %v, want 40", n.Perimeter)
	}
}

func TestArea_UnsignedForBothOrientations(t *testing.T) {
	r := square(0, 0, 4)
	rev := r.Clone()
	rev.Reverse()
	if Area(r) != 16 || Area(rev) != 16 {
		t.Errorf("Area = %v / %v, want 16 for both", Area(r), Area(rev))
	}
}

func TestMeasures_DegenerateRings(t *testing.T) {
	single := orb.Ring{{3, 3}}
	if Area(single) != 0 || Perimeter(single) != 0 {
		t.Error("single point should have zero area and perimeter")
	}
	line := orb.Ring{{0, 0}, {3, 4}}
	if Area(line) != 0 {
		t.Errorf("Area(line) = %v, want 0", Area(line))
	}
	if math.Abs(Perimeter(line)-10) > 1e-9 {
		t.Errorf("Perimeter(line) = %v, want 10", Perimeter(line))
	}
}

func TestNew_RejectsBadLinks(t *testing.T) {
	rings := []orb.Ring{square(0, 0, 1), square(0, 0, 1)}

	if _, err := New(rings, []int{None}); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := New(rings, []int{None, 5}); err == nil {
		t.Error("expected out of range error")
	}
	if _, err := New(rings, []int{1, 0}); err == nil {
		t.Error("expected cycle error")
	}
	if _, err := New(rings, []int{0, None}); err != nil {
		t.Errorf("child before parent should be allowed: %v", err)
	}
}

func TestFromHierarchy_UsesParentColumn(t *testing.T) {
	rings := []orb.Ring{square(0, 0, 10), square(2, 2, 2)}
	links := []Link{{None, None, 1, None}, {None, None, None, 0}}
	f, err := FromHierarchy(rings, links)
	if err != nil {
		t.Fatalf("FromHierarchy: %v", err)
	}
	if f.Node(1).Parent != 0 || f.Node(0).FirstChild != 1 {
		t.Errorf("links not rebuilt: %+v %+v", f.Node(0), f.Node(1))
	}
}

func TestWalk_PreorderAndSkip(t *testing.T) {
	f, err := New([]orb.Ring{square(0, 0, 9), square(1, 1, 5), square(2, 2, 1), square(20, 20, 3)}, []int{None, 0, 1, None})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var order []int
	f.Walk(func(id, depth int) bool {
		order = append(order, id)
		return id != 1
	})
	want := []int{0, 1, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestNearestAncestor(t *testing.T) {
	f, err := New([]orb.Ring{square(0, 0, 9), square(1, 1, 5), square(2, 2, 1)}, []int{None, 0, 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	active := map[int]bool{0: true}
	if got := f.NearestAncestor(2, func(i int) bool { return active[i] }); got != 0 {
		t.Errorf("NearestAncestor = %d, want 0", got)
	}
	if got := f.NearestAncestor(0, func(i int) bool { return true }); got != None {
		t.Errorf("NearestAncestor(root) = %d, want None", got)
	}
}

func TestClosedOpen(t *testing.T) {
	r := square(0, 0, 1)
	c := Closed(r)
	if len(c) != 5 || c[4] != r[0] {
		t.Errorf("Closed = %v", c)
	}
	if len(r) != 4 {
		t.Error("Closed modified input")
	}
	if o := Open(c); len(o) != 4 {
		t.Errorf("Open = %v", o)
	}
	if again := Closed(c); len(again) != 5 {
		t.Errorf("Closed of closed ring = %v", again)
	}
}
