package courseindex

import (
	"iter"
	"math"
	"strings"
)

// maxNodes is the arena capacity: slot 0 is the absent-node sentinel and
// math.MaxUint32 is never handed out.
const maxNodes = math.MaxUint32 - 1

type color uint8

const (
	red color = iota
	black
)

func (c color) String() string {
	if c == black {
		return "black"
	}

	return "red"
}

type node struct {
	record              CourseRecord
	parent, left, right uint32
	color               color
}

// Index is an ordered set of course records keyed by CourseRecord.ID.
//
// The tree lives in a single arena slice; links are arena positions and position 0
// means "absent". Records are never removed. An Index is not safe for concurrent use.
type Index struct {
	nodes []node
	root  uint32
}

// New creates an empty index.
func New() *Index {
	return &Index{}
}

// Len returns the number of records in the index.
func (idx *Index) Len() int {
	if len(idx.nodes) == 0 {
		return 0
	}

	return len(idx.nodes) - 1
}

// Insert adds rec to the index and reports whether a new record was stored.
//
// An ID that is already present leaves the index untouched: the first record wins.
func (idx *Index) Insert(rec CourseRecord) bool {
	nodeIdx := idx.doInsert(rec)
	if nodeIdx == 0 {
		return false
	}

	// A fresh root is already black.
	if nodeIdx == idx.root {
		return true
	}

	idx.fixInsert(nodeIdx)

	return true
}

// Search looks up the record with the given ID.
func (idx *Index) Search(id string) (CourseRecord, bool) {
	nodeIdx := idx.find(id)
	if nodeIdx == 0 {
		return CourseRecord{}, false
	}

	return idx.nodes[nodeIdx].record.Clone(), true
}

// Contains reports whether a record with the given ID is indexed.
func (idx *Index) Contains(id string) bool {
	return idx.find(id) != 0
}

// InOrder returns a sequence over all records in ascending ID order.
//
// The sequence is lazy and may be ranged over any number of times. Breaking out of
// the loop stops the walk.
func (idx *Index) InOrder() iter.Seq[CourseRecord] {
	return func(yield func(CourseRecord) bool) {
		for cur := idx.minNode(); cur != 0; cur = doNext(cur, idx.nodes) {
			if !yield(idx.nodes[cur].record.Clone()) {
				return
			}
		}
	}
}

// Min returns the record with the smallest ID.
func (idx *Index) Min() (CourseRecord, bool) {
	nodeIdx := idx.minNode()
	if nodeIdx == 0 {
		return CourseRecord{}, false
	}

	return idx.nodes[nodeIdx].record.Clone(), true
}

// Max returns the record with the largest ID.
func (idx *Index) Max() (CourseRecord, bool) {
	nodeIdx := idx.root
	if nodeIdx == 0 {
		return CourseRecord{}, false
	}

	for idx.nodes[nodeIdx].right != 0 {
		nodeIdx = idx.nodes[nodeIdx].right
	}

	return idx.nodes[nodeIdx].record.Clone(), true
}

// ValidatePrerequisites checks that every prerequisite of every record resolves to an
// indexed record. Violations are reported in ascending course order, and within a
// course in the order its prerequisites are listed.
func (idx *Index) ValidatePrerequisites() (bool, []Violation) {
	var violations []Violation

	for cur := idx.minNode(); cur != 0; cur = doNext(cur, idx.nodes) {
		rec := &idx.nodes[cur].record

		for _, prereq := range rec.Prerequisites {
			if idx.find(prereq) == 0 {
				violations = append(violations, Violation{CourseID: rec.ID, MissingID: prereq})
			}
		}
	}

	return len(violations) == 0, violations
}

// Validate is ValidatePrerequisites folded into a single error.
func (idx *Index) Validate() error {
	ok, violations := idx.ValidatePrerequisites()
	if ok {
		return nil
	}

	return &MissingPrerequisiteError{Violations: violations}
}

func (idx *Index) malloc() uint32 {
	nodeLen := len(idx.nodes)
	if nodeLen == 0 {
		// Zero is reserved; absent children count as black.
		idx.nodes = append(idx.nodes, node{color: black})
		nodeLen = 1
	}

	if nodeLen > maxNodes {
		panic("course index arena has reached the maximum value for uint32")
	}

	idx.nodes = append(idx.nodes, node{color: red})

	return uint32(nodeLen) //nolint:gosec // bounded by maxNodes above
}

func (idx *Index) find(id string) uint32 {
	nodeIdx := idx.root

	for nodeIdx != 0 {
		switch comp := strings.Compare(id, idx.nodes[nodeIdx].record.ID); {
		case comp == 0:
			return nodeIdx
		case comp < 0:
			nodeIdx = idx.nodes[nodeIdx].left
		default:
			nodeIdx = idx.nodes[nodeIdx].right
		}
	}

	return 0
}

func (idx *Index) minNode() uint32 {
	nodeIdx := idx.root
	if nodeIdx == 0 {
		return 0
	}

	for idx.nodes[nodeIdx].left != 0 {
		nodeIdx = idx.nodes[nodeIdx].left
	}

	return nodeIdx
}

// Try inserting "rec" into the tree. Return 0 if the ID is already in the tree.
// Otherwise return a new leaf.
func (idx *Index) doInsert(rec CourseRecord) uint32 {
	if idx.root == 0 {
		nodeIdx := idx.malloc()
		idx.nodes[nodeIdx].record = rec.Clone()
		idx.nodes[nodeIdx].color = black
		idx.root = nodeIdx

		return nodeIdx
	}

	parent := idx.root

	for {
		parentNode := &idx.nodes[parent]

		comp := strings.Compare(rec.ID, parentNode.record.ID)
		if comp == 0 {
			return 0
		}

		next := parentNode.right
		if comp < 0 {
			next = parentNode.left
		}

		if next != 0 {
			parent = next

			continue
		}

		nodeIdx := idx.malloc()
		newNode := &idx.nodes[nodeIdx]
		newNode.record = rec.Clone()
		newNode.parent = parent

		if comp < 0 {
			idx.nodes[parent].left = nodeIdx
		} else {
			idx.nodes[parent].right = nodeIdx
		}

		return nodeIdx
	}
}

// fixInsert restores the red-black properties after linking the red leaf x.
//
//nolint:gocognit // the two mirrored cases are kept inline to follow the textbook shape.
func (idx *Index) fixInsert(x uint32) {
	nodes := idx.nodes

	for x != idx.root && nodes[nodes[x].parent].color == red {
		parent := nodes[x].parent

		grandparent := nodes[parent].parent
		if grandparent == 0 {
			break
		}

		if parent == nodes[grandparent].left {
			uncle := nodes[grandparent].right

			// Red uncle: push the red up to the grandparent.
			if uncle != 0 && nodes[uncle].color == red {
				nodes[parent].color = black
				nodes[uncle].color = black
				nodes[grandparent].color = red
				x = grandparent

				continue
			}

			// Zig-zag: line x up with its parent first.
			if x == nodes[parent].right {
				x = parent
				idx.rotateLeft(x)
				parent = nodes[x].parent
			}

			nodes[parent].color = black
			nodes[grandparent].color = red
			idx.rotateRight(grandparent)

			continue
		}

		uncle := nodes[grandparent].left

		if uncle != 0 && nodes[uncle].color == red {
			nodes[parent].color = black
			nodes[uncle].color = black
			nodes[grandparent].color = red
			x = grandparent

			continue
		}

		if x == nodes[parent].left {
			x = parent
			idx.rotateRight(x)
			parent = nodes[x].parent
		}

		nodes[parent].color = black
		nodes[grandparent].color = red
		idx.rotateLeft(grandparent)
	}

	nodes[idx.root].color = black
}

// rotateDirection performs a tree rotation in the specified direction.
// IsLeft=true performs left rotation, isLeft=false performs right rotation.
// Rotating around a pivot without the required child is a no-op.
//
// Left rotation:
//
//	  X              Y
//	A   Y    =>    X   C
//	  B C        A B
//
// Right rotation:
//
//	    Y            X
//	  X   C  =>    A   Y
//	A B              B C
//
//nolint:dupword // ASCII art diagrams contain intentional repeated letters.
func (idx *Index) rotateDirection(pivot uint32, isLeft bool) {
	nodes := idx.nodes

	child := nodes[pivot].left
	if isLeft {
		child = nodes[pivot].right
	}

	if child == 0 {
		return
	}

	var inner uint32
	if isLeft {
		inner = nodes[child].left
		nodes[pivot].right = inner
	} else {
		inner = nodes[child].right
		nodes[pivot].left = inner
	}

	if inner != 0 {
		nodes[inner].parent = pivot
	}

	grand := nodes[pivot].parent
	nodes[child].parent = grand

	switch {
	case grand == 0:
		idx.root = child
	case nodes[grand].left == pivot:
		nodes[grand].left = child
	default:
		nodes[grand].right = child
	}

	if isLeft {
		nodes[child].left = pivot
	} else {
		nodes[child].right = pivot
	}

	nodes[pivot].parent = child
}

func (idx *Index) rotateLeft(nodeIdx uint32) {
	idx.rotateDirection(nodeIdx, true)
}

func (idx *Index) rotateRight(nodeIdx uint32) {
	idx.rotateDirection(nodeIdx, false)
}

// Return the minimum node that's larger than N. Return 0 if no such node is found.
func doNext(nodeIdx uint32, nodes []node) uint32 {
	if nodes[nodeIdx].right != 0 {
		cursor := nodes[nodeIdx].right
		for nodes[cursor].left != 0 {
			cursor = nodes[cursor].left
		}

		return cursor
	}

	for {
		parentIdx := nodes[nodeIdx].parent
		if parentIdx == 0 {
			return 0
		}

		if nodes[parentIdx].left == nodeIdx {
			return parentIdx
		}

		nodeIdx = parentIdx
	}
}
