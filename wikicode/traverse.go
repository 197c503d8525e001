package wikicode

// Order selects the order in which the iterator emits nodes.
type Order int

const (
	// PrefixDFS emits a node before its children.
	PrefixDFS Order = iota
	// PostfixDFS emits a node after its children. During postfix
	// iteration it is safe to mutate the list being iterated as long
	// as no node is inserted before the current index.
	PostfixDFS
)

// Iterator walks a wikicode tree depth-first with an explicit frame
// stack, so arbitrarily deep trees cannot overflow the call stack.
type Iterator struct {
	order    Order
	filter   NodeType
	frames   []travFrame
	started  bool
	postEmit bool // last emission was a postfix pop
}

type travFrame struct {
	node Node
	next int // index of the child currently being visited
}

// NewIterator creates an iterator over the tree rooted at root. filter
// is a bitmask of node types to emit; AnyType emits every node. The
// root itself is emitted too when it matches.
func NewIterator(root Node, order Order, filter NodeType) *Iterator {
	return &Iterator{
		order:  order,
		filter: filter,
		frames: []travFrame{{node: root}},
	}
}

func (it *Iterator) match(n Node) bool {
	return it.filter == AnyType || n.Type()&it.filter != 0
}

// Next returns the next matching node, or nil when the walk is done.
func (it *Iterator) Next() Node {
	if it.order == PrefixDFS {
		return it.nextPrefix()
	}
	return it.nextPostfix()
}

func (it *Iterator) nextPrefix() Node {
	if !it.started {
		it.started = true
		if len(it.frames) > 0 && it.match(it.frames[0].node) {
			return it.frames[0].node
		}
	}
	for len(it.frames) > 0 {
		f := &it.frames[len(it.frames)-1]
		if f.next < childCount(f.node) {
			child := childAt(f.node, f.next)
			it.frames = append(it.frames, travFrame{node: child})
			if it.match(child) {
				return child
			}
			continue
		}
		it.frames = it.frames[:len(it.frames)-1]
		if len(it.frames) > 0 {
			it.frames[len(it.frames)-1].next++
		}
	}
	return nil
}

func (it *Iterator) nextPostfix() Node {
	it.started = true
	for len(it.frames) > 0 {
		f := &it.frames[len(it.frames)-1]
		// childCount is read from the live node so postfix mutation of
		// already-visited prefixes stays safe.
		if f.next < childCount(f.node) {
			child := childAt(f.node, f.next)
			it.frames = append(it.frames, travFrame{node: child})
			continue
		}
		node := f.node
		it.frames = it.frames[:len(it.frames)-1]
		if len(it.frames) > 0 {
			it.frames[len(it.frames)-1].next++
		}
		if it.match(node) {
			it.postEmit = true
			return node
		}
	}
	return nil
}

// Ancestor returns the k-th ancestor of the current node (0 is the
// immediate parent), or nil when the walk has gone past it.
func (it *Iterator) Ancestor(k int) Node {
	i := it.ancestorIndex(k)
	if i < 0 {
		return nil
	}
	return it.frames[i].node
}

// IndexInAncestor returns the child index of the current node's
// ancestry line within its k-th ancestor, or -1.
func (it *Iterator) IndexInAncestor(k int) int {
	i := it.ancestorIndex(k)
	if i < 0 {
		return -1
	}
	idx := it.frames[i].next
	if k == 0 && it.postEmit {
		// After a postfix pop the parent has already advanced past the
		// emitted child.
		return idx - 1
	}
	return idx
}

func (it *Iterator) ancestorIndex(k int) int {
	// For prefix emissions the current node still has a frame on top;
	// for postfix emissions it has been popped.
	top := len(it.frames) - 1
	if !it.postEmit {
		top--
	}
	i := top - k
	if i < 0 || i > len(it.frames)-1 {
		return -1
	}
	return i
}

func childCount(n Node) int {
	if l, ok := n.(*List); ok {
		return len(l.Items)
	}
	return len(childLists(n))
}

func childAt(n Node, i int) Node {
	if l, ok := n.(*List); ok {
		return l.Items[i]
	}
	return childLists(n)[i]
}
