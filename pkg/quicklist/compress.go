package quicklist

// enforceCompressPolicy re-establishes the compress-depth invariant
// after any structural mutation: the first and last `compress` Nodes
// are RAW, every interior Node is LZF (spec §4.2 "Compression policy",
// §8 "Compression invariant... immediately after any non-iterating
// operation returns").
//
// This walks the whole chain on every mutation rather than tracking
// only the Nodes whose window membership changed; simple and correct,
// at the cost of O(len) work per mutation instead of O(compress).
func (l *List) enforceCompressPolicy() {
	l.recorder.SetQuicklistNodeCount(l.len)

	if l.compress <= 0 {
		l.recorder.SetQuicklistCompressedNodes(0)
		return
	}
	d := l.compress
	idx := 0
	compressed := 0
	for n := l.head; n != nil; n = n.next {
		distFromTail := l.len - 1 - idx
		if idx < d || distFromTail < d {
			n.decompress()
		} else {
			n.compress()
			if n.encoding == EncodingLZF {
				compressed++
			}
		}
		idx++
	}
	l.recorder.SetQuicklistCompressedNodes(compressed)
}

// borrow marks a Node decompressed for a transient read/inspection,
// flagging it for recompression once released (spec §4.2 "Transient
// borrowers... mark recompress = 1").
func (l *List) borrow(n *Node) {
	if n.encoding != EncodingRaw {
		n.decompress()
		n.recompress = true
	}
}

// release re-applies the compression invariant to a Node a borrow left
// marked, then re-runs the whole-list policy so end-window membership
// (which may have shifted since the borrow began) is correct too.
func (l *List) release(n *Node) {
	if n == nil || !n.recompress {
		return
	}
	n.recompress = false
	l.enforceCompressPolicy()
}
