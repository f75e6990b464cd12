package quicklist

import "github.com/lihao7264/redis/pkg/listpack"

// Entry is a borrowed view of one item living inside a Node (spec §3.2
// "Entry view: a borrow of one item within a node"). It is only valid
// until the next structural mutation of the List.
type Entry struct {
	node   *Node
	offset int // byte offset within node.lp; meaningless for a plain Node
	Data   []byte
}

func entryAt(n *Node, offset int) *Entry {
	if n.container == ContainerPlain {
		return &Entry{node: n, Data: n.plain}
	}
	data, _ := n.lp.Get(offset)
	return &Entry{node: n, offset: offset, Data: data}
}

// findByIndex locates the Node containing the idx'th element (0-based
// global index; negative counts from the tail) and the element's
// position within that Node.
func (l *List) findByIndex(idx int) (node *Node, within int, ok bool) {
	if idx < 0 {
		idx += l.count
	}
	if idx < 0 || idx >= l.count {
		return nil, 0, false
	}
	if idx <= l.count/2 {
		pos := idx
		for n := l.head; n != nil; n = n.next {
			if pos < n.count {
				return n, pos, true
			}
			pos -= n.count
		}
	} else {
		pos := l.count - 1 - idx
		for n := l.tail; n != nil; n = n.prev {
			if pos < n.count {
				return n, n.count - 1 - pos, true
			}
			pos -= n.count
		}
	}
	return nil, 0, false
}

// EntryAtIndex returns a borrowed view of the idx'th element without
// mutating compression state beyond what reading requires.
func (l *List) EntryAtIndex(idx int) (*Entry, bool) {
	n, within, ok := l.findByIndex(idx)
	if !ok {
		return nil, false
	}
	l.borrow(n)
	defer l.release(n)
	if n.container == ContainerPlain {
		return &Entry{node: n, Data: append([]byte(nil), n.plain...)}, true
	}
	off, ok := n.lp.Seek(within)
	if !ok {
		return nil, false
	}
	data, _ := n.lp.Get(off)
	return &Entry{node: n, offset: off, Data: append([]byte(nil), data...)}, true
}

// InsertBefore inserts v immediately before e within e.node, splitting
// the Node if the insertion overflows the fill policy (spec §4.2
// "InsertBefore/InsertAfter(iter, entry, v, sz)").
func (l *List) InsertBefore(e *Entry, v []byte) {
	if e.node.encoding != EncodingRaw {
		e.node.decompress()
	}
	l.insertAt(e.node, e.offset, v)
}

// InsertAfter inserts v immediately after e within e.node.
func (l *List) InsertAfter(e *Entry, v []byte) {
	if e.node.encoding != EncodingRaw {
		e.node.decompress()
	}
	if n := e.node; n.container == ContainerPlain {
		// Plain Nodes never absorb another element; splice a fresh
		// packed Node holding v in right after n instead.
		lp := listpack.New()
		lp.AppendTail(v)
		fresh := newPackedNode(lp)
		fresh.prev, fresh.next = n, n.next
		if n.next != nil {
			n.next.prev = fresh
		} else {
			l.tail = fresh
		}
		n.next = fresh
		l.len++
		l.count++
		l.enforceCompressPolicy()
		return
	}
	off := e.offset
	if e.node.container == ContainerPacked {
		// Next always reports the offset right after e, whether or not
		// e was the last entry (in which case it's the end-marker
		// offset, exactly where an append belongs).
		next, _ := e.node.lp.Next(off)
		off = next
	}
	l.insertAt(e.node, off, v)
}

func (l *List) insertAt(n *Node, offset int, v []byte) {
	if n.container == ContainerPlain {
		// Plain Nodes never absorb another element; splice a fresh
		// packed Node holding v in right before n instead.
		lp := listpack.New()
		lp.AppendTail(v)
		l.spliceBefore(n, newPackedNode(lp))
		l.count++
		l.enforceCompressPolicy()
		return
	}
	if n.encoding != EncodingRaw {
		n.decompress()
	}
	n.lp.InsertAt(offset, v)
	n.refreshSize()
	l.count++
	if l.overflows(n) {
		l.splitNode(n)
	}
	l.enforceCompressPolicy()
}

// spliceBefore links fresh directly in front of n.
func (l *List) spliceBefore(n, fresh *Node) {
	fresh.prev = n.prev
	fresh.next = n
	if n.prev != nil {
		n.prev.next = fresh
	} else {
		l.head = fresh
	}
	n.prev = fresh
	l.len++
}

// DelEntry removes one element from e.node (spec §4.2 "DelEntry(iter,
// entry)"). If the Node becomes empty it is unlinked and, where the
// fill policy permits, merged opportunity is taken on its neighbors.
func (l *List) DelEntry(e *Entry) {
	n := e.node
	if n.encoding != EncodingRaw {
		n.decompress()
	}
	if n.container == ContainerPlain {
		prev := n.prev
		l.unlinkNode(n)
		l.count--
		if prev != nil {
			l.mergeIfPossible(prev)
		}
		l.enforceCompressPolicy()
		return
	}
	if err := n.lp.DeleteAt(e.offset); err != nil {
		fatalf("quicklist: DelEntry: %v", err)
	}
	n.refreshSize()
	l.count--
	if n.count == 0 {
		prev := n.prev
		l.unlinkNode(n)
		if prev != nil {
			l.mergeIfPossible(prev)
		}
	} else if n.prev != nil {
		l.mergeIfPossible(n.prev)
	}
	l.enforceCompressPolicy()
}

// ReplaceEntry overwrites the element e views in place (spec §4.2
// "ReplaceEntry(iter, entry, v, sz): in-place when size class unchanged;
// otherwise delete + insert preserving position"). For the packed-array
// collaborator here, "in-place" and "delete + insert" collapse to the
// same delete-then-insert-at-offset sequence, since listpack has no
// separate fixed-size-class in-place update path.
func (l *List) ReplaceEntry(e *Entry, v []byte) {
	n := e.node
	if n.encoding != EncodingRaw {
		n.decompress()
	}
	if n.container == ContainerPlain {
		n.plain = append([]byte(nil), v...)
		n.sz = len(n.plain)
		l.enforceCompressPolicy()
		return
	}
	if err := n.lp.DeleteAt(e.offset); err != nil {
		fatalf("quicklist: ReplaceEntry: %v", err)
	}
	n.lp.InsertAt(e.offset, v)
	n.refreshSize()
	if l.overflows(n) {
		l.splitNode(n)
	}
	l.enforceCompressPolicy()
}

// ReplaceAtIndex overwrites the idx'th element's value in place, spec
// §4.2's Entry-level replace generalized to a global index for callers
// that don't hold an iterator. Returns false if idx is out of range.
func (l *List) ReplaceAtIndex(idx int, v []byte) bool {
	n, within, ok := l.findByIndex(idx)
	if !ok {
		return false
	}
	if n.encoding != EncodingRaw {
		n.decompress()
	}
	if n.container == ContainerPlain {
		n.plain = append([]byte(nil), v...)
		n.sz = len(n.plain)
		l.enforceCompressPolicy()
		return true
	}
	off, ok := n.lp.Seek(within)
	if !ok {
		return false
	}
	if err := n.lp.DeleteAt(off); err != nil {
		fatalf("quicklist: ReplaceAtIndex: %v", err)
	}
	n.lp.InsertAt(off, v)
	n.refreshSize()
	if l.overflows(n) {
		l.splitNode(n)
	}
	l.enforceCompressPolicy()
	return true
}

// DelRange deletes the half-open index range [start, stop), freeing any
// Nodes fully drained along the way (spec §4.2 "DelRange(start, stop)").
func (l *List) DelRange(start, stop int) {
	if start < 0 {
		start += l.count
	}
	if stop < 0 {
		stop += l.count
	}
	if start < 0 {
		start = 0
	}
	for i := start; i < stop && start < l.count; i++ {
		n, within, ok := l.findByIndex(start)
		if !ok {
			break
		}
		if n.encoding != EncodingRaw {
			n.decompress()
		}
		l.DelEntry(entryAtIndex(n, within))
	}
}

func entryAtIndex(n *Node, within int) *Entry {
	if n.container == ContainerPlain {
		return &Entry{node: n}
	}
	off, _ := n.lp.Seek(within)
	return &Entry{node: n, offset: off}
}
