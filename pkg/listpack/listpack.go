// Package listpack implements the opaque packed-array byte encoder
// pkg/quicklist's PACKED nodes are built on (spec §6: "create,
// length-in-bytes, count, append-at-head/tail, insert-at-offset,
// delete-at-offset, get-at-offset, split-at-offset, merge"). Spec §1
// explicitly keeps the packed-array byte format as an opaque dependency
// ("designing the packed-array byte format" is a Non-goal); no example in
// the retrieved pack implements Redis's actual listpack format, so this
// is a small hand-rolled encoder built directly against the documented
// interface rather than adapted from a third-party module (see
// DESIGN.md). It is deliberately simple: a 4-byte length-prefixed,
// 4-byte length-suffixed ("backlen") entry stream, not bit-compatible
// with Redis's variable-width listpack, but it gives pkg/quicklist
// head/tail append and a real byte-size budget to split against. Every
// insert or delete copies the whole buffer, so each costs O(size).
package listpack

import (
	"encoding/binary"
	"errors"
)

const (
	headerSize = 8 // 4 bytes total length, 4 bytes element count
	entryOverhead = 8 // 4 byte payload-len prefix + 4 byte total-len backlen suffix
	endMarkerSize = 1
	endMarker     = byte(0xFF)
)

// ErrOffsetOutOfRange is returned by operations addressing a byte offset
// that isn't the start of an entry.
var ErrOffsetOutOfRange = errors.New("listpack: offset out of range")

// Listpack is a packed array of byte-string elements backed by a single
// contiguous buffer, the shape pkg/quicklist's PACKED Nodes store.
type Listpack struct {
	buf []byte
}

// New returns an empty Listpack.
func New() *Listpack {
	lp := &Listpack{buf: make([]byte, headerSize+endMarkerSize)}
	lp.buf[headerSize] = endMarker
	lp.setTotalBytes(len(lp.buf))
	lp.setCount(0)
	return lp
}

// FromBytes wraps a buffer previously produced by Bytes, taking ownership
// of it (spec §6 "take ownership of an externally-supplied packed array").
func FromBytes(buf []byte) *Listpack {
	return &Listpack{buf: buf}
}

// Bytes returns the encoded buffer. Callers must not retain it across a
// mutating call.
func (lp *Listpack) Bytes() []byte { return lp.buf }

// LengthBytes is the total encoded size, spec §6 "length-in-bytes".
func (lp *Listpack) LengthBytes() int { return len(lp.buf) }

// Count is the number of elements, spec §6 "count".
func (lp *Listpack) Count() int {
	return int(binary.LittleEndian.Uint32(lp.buf[4:8]))
}

func (lp *Listpack) setTotalBytes(n int) {
	binary.LittleEndian.PutUint32(lp.buf[0:4], uint32(n))
}

func (lp *Listpack) setCount(n int) {
	binary.LittleEndian.PutUint32(lp.buf[4:8], uint32(n))
}

// firstOffset is the byte offset of the first entry, or the end-marker
// offset if empty.
func (lp *Listpack) firstOffset() int { return headerSize }

func (lp *Listpack) endMarkerOffset() int { return len(lp.buf) - endMarkerSize }

func (lp *Listpack) entryTotalLen(offset int) int {
	payloadLen := int(binary.LittleEndian.Uint32(lp.buf[offset : offset+4]))
	return 4 + payloadLen + 4
}

// Get returns the payload stored at offset (spec §6 "get-at-offset").
func (lp *Listpack) Get(offset int) ([]byte, bool) {
	if offset < headerSize || offset >= lp.endMarkerOffset() {
		return nil, false
	}
	payloadLen := int(binary.LittleEndian.Uint32(lp.buf[offset : offset+4]))
	start := offset + 4
	return lp.buf[start : start+payloadLen], true
}

// Next returns the offset of the entry following offset, or
// (endMarkerOffset, false) if offset is the last entry.
func (lp *Listpack) Next(offset int) (int, bool) {
	next := offset + lp.entryTotalLen(offset)
	if next >= lp.endMarkerOffset() {
		return next, false
	}
	return next, true
}

// Prev returns the offset of the entry preceding offset using the
// trailing backlen field, or (headerSize, false) if offset is the first
// entry.
func (lp *Listpack) Prev(offset int) (int, bool) {
	if offset <= headerSize {
		return headerSize, false
	}
	totalLen := int(binary.LittleEndian.Uint32(lp.buf[offset-4 : offset]))
	prev := offset - totalLen
	return prev, true
}

// FirstOffset is the byte offset of the first entry (or the end-marker
// offset, if the Listpack is empty).
func (lp *Listpack) FirstOffset() int { return lp.firstOffset() }

// EndOffset is the byte offset one past the last entry (the offset
// InsertAt treats as "append at tail").
func (lp *Listpack) EndOffset() int { return lp.endMarkerOffset() }

// LastOffset is the byte offset of the last entry, or false if empty.
func (lp *Listpack) LastOffset() (int, bool) {
	if lp.Count() == 0 {
		return 0, false
	}
	return lp.Seek(lp.Count() - 1)
}

// Seek walks from the front to find the byte offset of the idx'th
// element (0-based). O(idx); packed arrays are not sought into by index
// in O(1).
func (lp *Listpack) Seek(idx int) (int, bool) {
	if idx < 0 || idx >= lp.Count() {
		return 0, false
	}
	off := lp.firstOffset()
	for i := 0; i < idx; i++ {
		next, ok := lp.Next(off)
		if !ok {
			return 0, false
		}
		off = next
	}
	return off, true
}

func encodeEntry(data []byte) []byte {
	total := len(data) + entryOverhead
	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(data)))
	copy(buf[4:4+len(data)], data)
	binary.LittleEndian.PutUint32(buf[4+len(data):], uint32(total))
	return buf
}

// InsertAt inserts data immediately before the entry at offset (spec §6
// "insert-at-offset"). Passing the end-marker offset appends at the tail.
// Returns the offset the new entry was written at.
func (lp *Listpack) InsertAt(offset int, data []byte) int {
	enc := encodeEntry(data)
	grown := make([]byte, len(lp.buf)+len(enc))
	copy(grown, lp.buf[:offset])
	copy(grown[offset:], enc)
	copy(grown[offset+len(enc):], lp.buf[offset:])
	lp.buf = grown
	lp.setTotalBytes(len(lp.buf))
	lp.setCount(lp.Count() + 1)
	return offset
}

// AppendTail appends data as the new last element (spec §6
// "append-at-tail").
func (lp *Listpack) AppendTail(data []byte) int {
	return lp.InsertAt(lp.endMarkerOffset(), data)
}

// AppendHead prepends data as the new first element (spec §6
// "append-at-head").
func (lp *Listpack) AppendHead(data []byte) int {
	return lp.InsertAt(lp.firstOffset(), data)
}

// DeleteAt removes the entry at offset (spec §6 "delete-at-offset").
func (lp *Listpack) DeleteAt(offset int) error {
	if offset < headerSize || offset >= lp.endMarkerOffset() {
		return ErrOffsetOutOfRange
	}
	entryLen := lp.entryTotalLen(offset)
	shrunk := make([]byte, len(lp.buf)-entryLen)
	copy(shrunk, lp.buf[:offset])
	copy(shrunk[offset:], lp.buf[offset+entryLen:])
	lp.buf = shrunk
	lp.setTotalBytes(len(lp.buf))
	lp.setCount(lp.Count() - 1)
	return nil
}

// SplitAt splits the Listpack into two: every entry before offset stays
// in the left half, offset and everything after moves to the right half
// (spec §6 "split-at-offset"), used by pkg/quicklist when an insertion
// overflows the fill policy.
func (lp *Listpack) SplitAt(offset int) (left, right *Listpack) {
	leftEntries := lp.buf[headerSize:offset]
	rightEntries := lp.buf[offset:lp.endMarkerOffset()]

	left = New()
	left.buf = append(left.buf[:headerSize], append(append([]byte{}, leftEntries...), endMarker)...)
	left.setTotalBytes(len(left.buf))
	right = New()
	right.buf = append(right.buf[:headerSize], append(append([]byte{}, rightEntries...), endMarker)...)
	right.setTotalBytes(len(right.buf))

	leftCount, rightCount := 0, 0
	for off := left.firstOffset(); off < left.endMarkerOffset(); {
		leftCount++
		next, ok := left.Next(off)
		if !ok {
			break
		}
		off = next
	}
	for off := right.firstOffset(); off < right.endMarkerOffset(); {
		rightCount++
		next, ok := right.Next(off)
		if !ok {
			break
		}
		off = next
	}
	left.setCount(leftCount)
	right.setCount(rightCount)
	return left, right
}

// Merge concatenates left then right into a single new Listpack (spec §6
// "merge(left,right)"), used when pkg/quicklist merges two sibling Nodes
// that together still fit the fill policy.
func Merge(left, right *Listpack) *Listpack {
	out := New()
	leftEntries := left.buf[headerSize:left.endMarkerOffset()]
	rightEntries := right.buf[headerSize:right.endMarkerOffset()]

	buf := make([]byte, headerSize, headerSize+len(leftEntries)+len(rightEntries)+endMarkerSize)
	buf = append(buf, leftEntries...)
	buf = append(buf, rightEntries...)
	buf = append(buf, endMarker)
	out.buf = buf
	out.setTotalBytes(len(out.buf))
	out.setCount(left.Count() + right.Count())
	return out
}
