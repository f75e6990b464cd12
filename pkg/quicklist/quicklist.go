// Package quicklist implements the segmented doubly-linked list of
// compressible packed arrays that backs ordered sequence values: a chain
// of Nodes that are each either a packed array of small items or a
// single large item stored verbatim, kept dense by a fill policy and
// kept cold interior Nodes compressed by a compress-depth policy.
//
// It leans on the same packed-array and compressor collaborators
// pkg/dict's sibling packages expose: pkg/listpack for the packed-array
// byte format and pkg/quicklist/lzf for best-effort compression.
package quicklist

import (
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/lihao7264/redis/internal/metrics"
	"github.com/lihao7264/redis/pkg/listpack"
	logutil "github.com/lihao7264/redis/pkg/util/log"
)

// ErrBookmarkExists is returned by CreateBookmark when the name is
// already in use.
var ErrBookmarkExists = errors.New("quicklist: bookmark name already exists")

// ErrBookmarksFull is returned by CreateBookmark once the tail array has
// reached its cap (spec §3.2 "bounded (≤15)").
var ErrBookmarksFull = errors.New("quicklist: bookmark table full")

// maxBookmarks bounds the bookmark tail array (spec §4.2 "Bookmarks...
// cap at 15 to bound overhead on deletion").
const maxBookmarks = 15

// fillByteBudgets is the fixed size-class table a negative fill policy
// indexes into (spec §4.2 "Fill policy"): -1 selects 4 KiB, ..., -5
// selects 64 KiB.
var fillByteBudgets = [5]int{4 << 10, 8 << 10, 16 << 10, 32 << 10, 64 << 10}

// plainThreshold is the mutable global plain-Node cutoff (spec
// §4.2 "PushHead/PushTail... as a plain Node if sz exceeds the plain
// threshold (a mutable global; default 1 KiB)").
var plainThreshold = atomic.NewInt64(1024)

// SetPlainNodeThreshold changes the process-wide plain-Node size cutoff.
func SetPlainNodeThreshold(n int) { plainThreshold.Store(int64(n)) }

// PlainNodeThreshold returns the current plain-Node size cutoff.
func PlainNodeThreshold() int { return int(plainThreshold.Load()) }

type bookmark struct {
	name string
	node *Node
}

// List is a segmented doubly-linked chain of Nodes with a fill and
// compress-depth policy (spec §3.2 "Quicklist").
type List struct {
	head, tail *Node
	count      int // total elements, Σ node.count
	len        int // number of Nodes

	fill     int
	compress int

	bookmarks []bookmark

	recorder metrics.Recorder
}

// New creates an empty List with the given fill and compress-depth
// policy (spec §4.2 "Create / New(fill, compress)").
func New(fill, compress int) *List {
	return &List{fill: fill, compress: compress, recorder: metrics.Default}
}

// SetRecorder overrides the metrics sink; tests typically install
// metrics.NopRecorder{}.
func (l *List) SetRecorder(r metrics.Recorder) { l.recorder = r }

// Count is the total number of elements across all Nodes.
func (l *List) Count() int { return l.count }

// Len is the number of Nodes in the chain.
func (l *List) Len() int { return l.len }

func (l *List) fillByteBudget() int {
	idx := -l.fill - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(fillByteBudgets) {
		idx = len(fillByteBudgets) - 1
	}
	return fillByteBudgets[idx]
}

// nodeAllows reports whether node can absorb one more element of
// addedBytes without overflowing the fill policy. Plain Nodes never
// absorb anything further (spec §3.2 "a plain Node... is never split").
func (l *List) nodeAllows(node *Node, addedBytes int) bool {
	if node == nil || node.container == ContainerPlain {
		return false
	}
	if l.fill >= 0 {
		return node.count+1 <= l.fill
	}
	return node.sz+addedBytes <= l.fillByteBudget()
}

func (l *List) overflows(node *Node) bool {
	if node.container == ContainerPlain {
		return false
	}
	if l.fill >= 0 {
		return node.count > l.fill
	}
	return node.sz > l.fillByteBudget()
}

// linkNode splices n into the chain at the head or the tail.
func (l *List) linkNode(n *Node, atHead bool) {
	if l.head == nil {
		l.head, l.tail = n, n
	} else if atHead {
		n.next = l.head
		l.head.prev = n
		l.head = n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.len++
}

// unlinkNode removes n from the chain, fixing up bookmarks that pointed
// at it (spec §3.2 "Bookmarks referencing a removed Node are
// automatically updated to the removed Node's successor").
func (l *List) unlinkNode(n *Node) {
	successor := n.next

	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.len--

	for i := range l.bookmarks {
		if l.bookmarks[i].node == n {
			l.bookmarks[i].node = successor
		}
	}
	l.dropEmptyBookmarks()
}

func (l *List) dropEmptyBookmarks() {
	kept := l.bookmarks[:0]
	for _, b := range l.bookmarks {
		if b.node != nil {
			kept = append(kept, b)
		}
	}
	l.bookmarks = kept
}

// splitNode breaks an overflowing packed Node into two siblings at its
// midpoint and relinks them in its place. The split point is always the
// midpoint element; where the overflowing insertion landed does not
// choose it.
func (l *List) splitNode(n *Node) {
	mid := n.count / 2
	off, ok := n.lp.Seek(mid)
	if !ok {
		off = n.lp.EndOffset()
	}
	leftLp, rightLp := n.lp.SplitAt(off)
	left := newPackedNode(leftLp)
	right := newPackedNode(rightLp)

	left.prev, right.next = n.prev, n.next
	left.next, right.prev = right, left
	if n.prev != nil {
		n.prev.next = left
	} else {
		l.head = left
	}
	if n.next != nil {
		n.next.prev = right
	} else {
		l.tail = right
	}
	l.len++ // one Node became two

	for i := range l.bookmarks {
		if l.bookmarks[i].node == n {
			l.bookmarks[i].node = left
		}
	}

	l.recorder.IncQuicklistSplits()
}

// mergeIfPossible merges n with its next sibling when the combined
// packed array would still satisfy the fill policy (spec §4.2 "if fill
// permits, merge with a sibling Node after the next compaction
// opportunity").
func (l *List) mergeIfPossible(n *Node) {
	if n == nil || n.next == nil {
		return
	}
	a, b := n, n.next
	if a.container != ContainerPacked || b.container != ContainerPacked {
		return
	}
	if a.encoding != EncodingRaw {
		a.decompress()
	}
	if b.encoding != EncodingRaw {
		b.decompress()
	}
	merged := listpack.Merge(a.lp, b.lp)
	if l.fill >= 0 {
		if merged.Count() > l.fill {
			return
		}
	} else if merged.LengthBytes() > l.fillByteBudget() {
		return
	}

	a.lp = merged
	a.refreshSize()
	l.unlinkNode(b)
	l.recorder.IncQuicklistMerges()
}

// push is the shared PushHead/PushTail implementation.
func (l *List) push(v []byte, atHead bool) {
	if len(v) > PlainNodeThreshold() {
		l.linkNode(newPlainNode(append([]byte(nil), v...)), atHead)
		l.count++
		l.enforceCompressPolicy()
		return
	}

	var edge *Node
	if atHead {
		edge = l.head
	} else {
		edge = l.tail
	}
	if edge != nil && edge.container == ContainerPacked {
		if edge.encoding != EncodingRaw {
			edge.decompress()
		}
		if l.nodeAllows(edge, len(v)) {
			if atHead {
				edge.lp.AppendHead(v)
			} else {
				edge.lp.AppendTail(v)
			}
			edge.refreshSize()
			l.count++
			if l.overflows(edge) {
				l.splitNode(edge)
			}
			l.enforceCompressPolicy()
			return
		}
	}

	lp := listpack.New()
	if atHead {
		lp.AppendHead(v)
	} else {
		lp.AppendTail(v)
	}
	l.linkNode(newPackedNode(lp), atHead)
	l.count++
	l.enforceCompressPolicy()
}

// PushHead prepends v as the new first element (spec §4.2
// "PushHead(v, sz)").
func (l *List) PushHead(v []byte) { l.push(v, true) }

// PushTail appends v as the new last element (spec §4.2
// "PushTail(v, sz)").
func (l *List) PushTail(v []byte) { l.push(v, false) }

// AppendListpack takes ownership of an externally-supplied packed array
// as a new tail Node (spec §4.2 "AppendListpack(buf)").
func (l *List) AppendListpack(buf []byte) {
	l.linkNode(newPackedNode(listpack.FromBytes(buf)), false)
	l.count += l.tail.count
	l.enforceCompressPolicy()
}

// AppendPlainNode takes ownership of a single large item as a new tail
// Node (spec §4.2 "AppendPlainNode(buf,sz)").
func (l *List) AppendPlainNode(buf []byte) {
	l.linkNode(newPlainNode(buf), false)
	l.count++
	l.enforceCompressPolicy()
}

// Where selects an end of the List for Pop/Rotate.
type Where int

const (
	Head Where = iota
	Tail
)

// Pop removes and returns the element at the given end (spec §4.2,
// implied by PushHead/PushTail's symmetric counterpart).
func (l *List) Pop(where Where) ([]byte, bool) {
	var v []byte
	ok := l.PopCustom(where, func(b []byte) { v = append([]byte(nil), b...) })
	return v, ok
}

// PopCustom removes the element at the given end, handing its bytes to
// saver before the Node is possibly freed.
func (l *List) PopCustom(where Where, saver func([]byte)) bool {
	var n *Node
	if where == Head {
		n = l.head
	} else {
		n = l.tail
	}
	if n == nil {
		return false
	}
	if n.encoding != EncodingRaw {
		n.decompress()
	}

	if n.container == ContainerPlain {
		saver(n.plain)
		l.unlinkNode(n)
		l.count--
		l.enforceCompressPolicy()
		return true
	}

	var off int
	var ok bool
	if where == Head {
		off = n.lp.FirstOffset()
		ok = n.lp.Count() > 0
	} else {
		off, ok = n.lp.LastOffset()
	}
	if !ok {
		l.unlinkNode(n)
		return false
	}
	data, _ := n.lp.Get(off)
	saver(data)
	if err := n.lp.DeleteAt(off); err != nil {
		fatalf("quicklist: pop: %v", err)
	}
	n.refreshSize()
	l.count--
	if n.count == 0 {
		l.unlinkNode(n)
	}
	l.enforceCompressPolicy()
	return true
}

// Rotate moves the tail element to the head in one step (spec §4.2
// "Rotate"). When the tail Node holds exactly one element, the whole
// Node is relinked rather than round-tripped through Pop/Push.
func (l *List) Rotate() {
	if l.len == 0 || (l.len == 1 && l.tail.count <= 1) {
		return
	}
	if l.tail.count == 1 {
		n := l.tail
		l.unlinkNode(n)
		l.linkNode(n, true)
		l.enforceCompressPolicy()
		return
	}
	v, ok := l.Pop(Tail)
	if !ok {
		return
	}
	l.PushHead(v)
}

// Dup deep-copies every Node, preserving compression state (spec §4.2
// "Dup").
func (l *List) Dup() *List {
	out := New(l.fill, l.compress)
	out.recorder = l.recorder
	for n := l.head; n != nil; n = n.next {
		nn := &Node{
			sz:                n.sz,
			count:             n.count,
			container:         n.container,
			encoding:          n.encoding,
			attemptedCompress: n.attemptedCompress,
		}
		if n.encoding == EncodingLZF {
			nn.compressed = append([]byte(nil), n.compressed...)
		} else if n.container == ContainerPacked {
			nn.lp = listpack.FromBytes(append([]byte(nil), n.lp.Bytes()...))
		} else {
			nn.plain = append([]byte(nil), n.plain...)
		}
		out.linkNode(nn, false)
	}
	out.count = l.count
	return out
}

// Release walks the chain clearing every Node and bookmark (spec §4.2
// "Release: walk nodes, free payloads, free bookmarks, free header").
// Go's collector reclaims the memory; this exists so a released List is
// left in an unambiguous empty state rather than a dangling one.
func (l *List) Release() {
	for n := l.head; n != nil; {
		next := n.next
		n.prev, n.next, n.lp, n.plain, n.compressed = nil, nil, nil, nil, nil
		n = next
	}
	l.head, l.tail = nil, nil
	l.count, l.len = 0, 0
	l.bookmarks = nil
}

func fatalf(format string, args ...interface{}) {
	msg := errors.Errorf(format, args...).Error()
	level.Error(logutil.Logger).Log("msg", msg)
	panic(msg)
}
