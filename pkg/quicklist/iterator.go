package quicklist

// Direction selects which way an Iterator walks the List.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

// Iterator is a directional cursor over a List that carries a
// decompressed-Node guard (spec §3.2 "Iterator: directional cursor
// carrying a decompressed-node guard"): it holds at most one
// transiently-decompressed Node at a time and must be released to
// re-compress it.
type Iterator struct {
	list      *List
	direction Direction

	node   *Node
	offset int
	done   bool

	useStart    bool
	startNode   *Node
	startOffset int
}

// GetIterator returns a cursor positioned before the head (Forward) or
// after the tail (Reverse); it decompresses the Node it enters on the
// first call to Next (spec §4.2 "GetIterator(direction)").
func (l *List) GetIterator(direction Direction) *Iterator {
	return &Iterator{list: l, direction: direction}
}

// GetIteratorAtIdx seeks directly to the global element index idx,
// walking Nodes by their counts (spec §4.2 "GetIteratorAtIdx(direction,
// idx)"). Negative indices count from the tail. Decompresses exactly
// the one Node idx lives in.
func (l *List) GetIteratorAtIdx(direction Direction, idx int) *Iterator {
	n, within, ok := l.findByIndex(idx)
	if !ok {
		return &Iterator{list: l, direction: direction, done: true}
	}
	l.borrow(n)

	it := &Iterator{list: l, direction: direction, useStart: true, startNode: n}
	if n.container == ContainerPlain {
		it.startOffset = 0
		return it
	}
	off, ok := n.lp.Seek(within)
	if !ok {
		it.done = true
		return it
	}
	it.startOffset = off
	return it
}

func (it *Iterator) edgeOffset(n *Node) int {
	if n.container == ContainerPlain {
		return 0
	}
	if it.direction == Forward {
		if n.lp.Count() == 0 {
			return -1
		}
		return n.lp.FirstOffset()
	}
	off, ok := n.lp.LastOffset()
	if !ok {
		return -1
	}
	return off
}

// step returns the next offset within n in the iterator's direction, or
// false if n has no further element that way.
func (it *Iterator) step(n *Node, offset int) (int, bool) {
	if n.container == ContainerPlain {
		return 0, false
	}
	if it.direction == Forward {
		return n.lp.Next(offset)
	}
	return n.lp.Prev(offset)
}

// Next advances the cursor one element (spec §4.2 "Next(iter, entry)"):
// when it crosses a Node boundary it recompresses the vacated Node if
// policy demands and decompresses the entered one.
func (it *Iterator) Next() (*Entry, bool) {
	if it.done {
		return nil, false
	}

	if it.node == nil {
		var n *Node
		var off int
		if it.useStart {
			n, off = it.startNode, it.startOffset
			it.useStart = false
		} else {
			if it.direction == Forward {
				n = it.list.head
			} else {
				n = it.list.tail
			}
			if n != nil {
				it.list.borrow(n)
				off = it.edgeOffset(n)
			}
		}
		if n == nil || off < 0 {
			it.done = true
			return nil, false
		}
		it.node, it.offset = n, off
		return entryAt(n, off), true
	}

	for {
		next, ok := it.step(it.node, it.offset)
		if ok {
			it.offset = next
			return entryAt(it.node, it.offset), true
		}

		old := it.node
		var n *Node
		if it.direction == Forward {
			n = old.next
		} else {
			n = old.prev
		}
		it.list.release(old)
		if n == nil {
			it.node = nil
			it.done = true
			return nil, false
		}
		it.list.borrow(n)
		off := it.edgeOffset(n)
		if off < 0 {
			it.node = n
			continue
		}
		it.node, it.offset = n, off
		return entryAt(n, off), true
	}
}

// SetDirection reverses the iterator without repositioning it: the next
// call to Next moves the opposite way from the current element (spec
// §4.2 "SetDirection").
func (it *Iterator) SetDirection(direction Direction) {
	it.direction = direction
}

// ReleaseIterator recompresses the current Node if the iterator left it
// borrowed, then invalidates the cursor (spec §4.2 "ReleaseIterator").
func (it *Iterator) ReleaseIterator() {
	if it.node != nil {
		it.list.release(it.node)
	}
	it.node = nil
	it.done = true
}
