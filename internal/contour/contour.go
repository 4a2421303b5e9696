package contour

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// None marks a missing parent, child or sibling link.
const None = -1

// Node is one traced closed curve. Points are in image space (pixels,
// origin top-left) and the loop is closed implicitly: the first point is
// not repeated at the end.
type Node struct {
	ID          int
	Points      orb.Ring
	Area        float64 // unsigned
	Perimeter   float64
	Parent      int
	FirstChild  int
	NextSibling int
}

// IsRoot reports whether the node has no parent in the raw forest.
func (n *Node) IsRoot() bool {
	return n.Parent == None
}

// Forest is an arena of contour nodes linked by index. Node i is always
// stored at Nodes[i] and has ID i.
type Forest struct {
	Nodes  []Node
	Width  int // source image width, 0 if unknown
	Height int // source image height, 0 if unknown
}

// Link is one hierarchy row in tracer order: next sibling, previous
// sibling, first child, parent.
type Link [4]int

// New builds a forest from point sequences and their parent indices.
// Children are linked in ascending index order.
func New(rings []orb.Ring, parents []int) (*Forest, error) {
	if len(rings) != len(parents) {
		return nil, fmt.Errorf("contour: %d rings but %d parent links", len(rings), len(parents))
	}

	f := &Forest{Nodes: make([]Node, len(rings))}
	for i, r := range rings {
		p := parents[i]
		if p < None || p >= len(rings) || p == i {
			return nil, fmt.Errorf("contour: node %d has invalid parent %d", i, p)
		}
		f.Nodes[i] = Node{
			ID:          i,
			Points:      r,
			Area:        Area(r),
			Perimeter:   Perimeter(r),
			Parent:      p,
			FirstChild:  None,
			NextSibling: None,
		}
	}

	// Walk backwards so prepending keeps children in ascending order.
	for i := len(f.Nodes) - 1; i >= 0; i-- {
		p := f.Nodes[i].Parent
		if p == None {
			continue
		}
		f.Nodes[i].NextSibling = f.Nodes[p].FirstChild
		f.Nodes[p].FirstChild = i
	}

	if err := f.checkAcyclic(); err != nil {
		return nil, err
	}
	return f, nil
}

// FromHierarchy builds a forest from tracer output. Only the parent
// column of each link is trusted; child and sibling links are rebuilt.
func FromHierarchy(rings []orb.Ring, links []Link) (*Forest, error) {
	if len(rings) != len(links) {
		return nil, fmt.Errorf("contour: %d rings but %d hierarchy rows", len(rings), len(links))
	}
	parents := make([]int, len(links))
	for i, l := range links {
		parents[i] = l[3]
	}
	return New(rings, parents)
}

func (f *Forest) checkAcyclic() error {
	n := len(f.Nodes)
	for i := range f.Nodes {
		steps := 0
		for p := f.Nodes[i].Parent; p != None; p = f.Nodes[p].Parent {
			steps++
			if steps > n {
				return fmt.Errorf("contour: cycle through node %d", i)
			}
		}
	}
	return nil
}

// Len returns the number of nodes.
func (f *Forest) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Nodes)
}

// Node returns the node with the given id.
func (f *Forest) Node(id int) *Node {
	return &f.Nodes[id]
}

// Roots returns the ids of nodes without a parent, in index order.
func (f *Forest) Roots() []int {
	var roots []int
	for i := range f.Nodes {
		if f.Nodes[i].Parent == None {
			roots = append(roots, i)
		}
	}
	return roots
}

// Children returns the direct children of id by following sibling links.
func (f *Forest) Children(id int) []int {
	var out []int
	for c := f.Nodes[id].FirstChild; c != None; c = f.Nodes[c].NextSibling {
		out = append(out, c)
	}
	return out
}

// Depth returns the number of raw ancestors of id.
func (f *Forest) Depth(id int) int {
	d := 0
	for p := f.Nodes[id].Parent; p != None; p = f.Nodes[p].Parent {
		d++
	}
	return d
}

// NearestAncestor returns the closest ancestor of id for which keep
// returns true, or None.
func (f *Forest) NearestAncestor(id int, keep func(int) bool) int {
	for p := f.Nodes[id].Parent; p != None; p = f.Nodes[p].Parent {
		if keep(p) {
			return p
		}
	}
	return None
}

// Walk visits every node depth-first, parents before children, starting
// from the roots in index order. Returning false from fn skips the subtree.
func (f *Forest) Walk(fn func(id, depth int) bool) {
	var visit func(id, depth int)
	visit = func(id, depth int) {
		if !fn(id, depth) {
			return
		}
		for c := f.Nodes[id].FirstChild; c != None; c = f.Nodes[c].NextSibling {
			visit(c, depth+1)
		}
	}
	for _, r := range f.Roots() {
		visit(r, 0)
	}
}

// Area returns the unsigned shoelace area of an implicitly closed ring.
func Area(r orb.Ring) float64 {
	if len(r) < 3 {
		return 0
	}
	return math.Abs(planar.Area(r))
}

// Perimeter returns the length of the ring including its closing edge.
func Perimeter(r orb.Ring) float64 {
	if len(r) < 2 {
		return 0
	}
	return planar.Length(Closed(r))
}

// Closed returns r with its first point repeated at the end. The input is
// not modified.
func Closed(r orb.Ring) orb.Ring {
	if len(r) == 0 || (len(r) > 1 && r[0] == r[len(r)-1]) {
		return r.Clone()
	}
	out := make(orb.Ring, 0, len(r)+1)
	out = append(out, r...)
	return append(out, r[0])
}

// Open strips a repeated closing point from r, if present.
func Open(r orb.Ring) orb.Ring {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return r[:len(r)-1]
	}
	return r
}
