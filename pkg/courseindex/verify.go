package courseindex

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvariantViolated is returned by CheckInvariants when the tree is not a valid red-black tree.
var ErrInvariantViolated = errors.New("red-black invariant violated")

// Stats summarizes the shape of the tree. ArenaSlots counts the arena slots in use,
// including the reserved slot 0.
type Stats struct {
	Courses     int `json:"courses"      yaml:"courses"`
	Height      int `json:"height"       yaml:"height"`
	BlackHeight int `json:"black_height" yaml:"black_height"`
	ArenaSlots  int `json:"arena_slots"  yaml:"arena_slots"`
}

// Stats walks the tree and reports its size and shape.
func (idx *Index) Stats() Stats {
	shape, _ := idx.walkShape()

	return Stats{
		Courses:     idx.Len(),
		Height:      shape.height,
		BlackHeight: shape.blackHeight,
		ArenaSlots:  len(idx.nodes),
	}
}

// Height returns the number of nodes on the longest root-to-leaf path.
func (idx *Index) Height() int {
	shape, _ := idx.walkShape()

	return shape.height
}

// CheckInvariants verifies the structural properties of the tree: parent links agree
// with child links, every node is reachable exactly once, the root is black, no red node
// has a red child, every root-to-leaf path has the same number of black nodes, and an
// in-order walk yields strictly ascending IDs.
func (idx *Index) CheckInvariants() error {
	if idx.root == 0 {
		if idx.Len() != 0 {
			return fmt.Errorf("%w: empty root with %d arena nodes", ErrInvariantViolated, idx.Len())
		}

		return nil
	}

	if idx.nodes[idx.root].parent != 0 {
		return fmt.Errorf("%w: root %q has a parent", ErrInvariantViolated, idx.nodes[idx.root].record.ID)
	}

	if idx.nodes[idx.root].color != black {
		return fmt.Errorf("%w: root %q is red", ErrInvariantViolated, idx.nodes[idx.root].record.ID)
	}

	shape, err := idx.walkShape()
	if err != nil {
		return err
	}

	if shape.visited != idx.Len() {
		return fmt.Errorf("%w: %d of %d nodes reachable from the root", ErrInvariantViolated, shape.visited, idx.Len())
	}

	var prev *CourseRecord

	for cur := idx.minNode(); cur != 0; cur = doNext(cur, idx.nodes) {
		rec := &idx.nodes[cur].record
		if prev != nil && strings.Compare(prev.ID, rec.ID) >= 0 {
			return fmt.Errorf("%w: %q does not sort after %q", ErrInvariantViolated, rec.ID, prev.ID)
		}

		prev = rec
	}

	return nil
}

type treeShape struct {
	visited     int
	height      int
	blackHeight int
}

type shapeFrame struct {
	nodeIdx uint32
	depth   int
	blacks  int
}

// walkShape visits the tree depth-first with an explicit stack so that corrupted
// links (cycles, shared children) are detected instead of looping forever.
//
//nolint:gocognit,cyclop // a single pass checks every structural property.
func (idx *Index) walkShape() (treeShape, error) {
	var shape treeShape

	if idx.root == 0 {
		return shape, nil
	}

	seen := make([]bool, len(idx.nodes))
	leafBlacks := -1
	stack := []shapeFrame{{nodeIdx: idx.root, depth: 1}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[frame.nodeIdx] {
			return shape, fmt.Errorf("%w: node #%d is reachable twice", ErrInvariantViolated, frame.nodeIdx)
		}

		seen[frame.nodeIdx] = true
		shape.visited++
		shape.height = max(shape.height, frame.depth)

		nd := &idx.nodes[frame.nodeIdx]
		if nd.color == black {
			frame.blacks++
		}

		for _, child := range [2]uint32{nd.left, nd.right} {
			if child == 0 {
				if leafBlacks < 0 {
					leafBlacks = frame.blacks
				} else if leafBlacks != frame.blacks {
					return shape, fmt.Errorf("%w: black height %d below %q, expected %d",
						ErrInvariantViolated, frame.blacks, nd.record.ID, leafBlacks)
				}

				continue
			}

			if int(child) >= len(idx.nodes) {
				return shape, fmt.Errorf("%w: node %q links to #%d outside the arena",
					ErrInvariantViolated, nd.record.ID, child)
			}

			if idx.nodes[child].parent != frame.nodeIdx {
				return shape, fmt.Errorf("%w: parent link of %q does not point at %q",
					ErrInvariantViolated, idx.nodes[child].record.ID, nd.record.ID)
			}

			if nd.color == red && idx.nodes[child].color == red {
				return shape, fmt.Errorf("%w: red node %q has a red child %q",
					ErrInvariantViolated, nd.record.ID, idx.nodes[child].record.ID)
			}

			stack = append(stack, shapeFrame{nodeIdx: child, depth: frame.depth + 1, blacks: frame.blacks})
		}
	}

	shape.blackHeight = leafBlacks

	return shape, nil
}
