package quicklist

import (
	"github.com/go-kit/log/level"

	"github.com/lihao7264/redis/pkg/listpack"
	"github.com/lihao7264/redis/pkg/quicklist/lzf"
	logutil "github.com/lihao7264/redis/pkg/util/log"
)

// compressTraceLogger emits a debug line per compress/decompress
// transition, rate-limited so a list under a hot iteration churn doesn't
// flood the log sink the way thousands of per-element border crossings
// would.
var compressTraceLogger = logutil.NewRateLimitedLogger(5, level.Debug(logutil.Logger))

// Container distinguishes a Node holding a packed array of small items
// from one holding a single large item verbatim (spec §3.2 "container ∈
// {PLAIN, PACKED}").
type Container uint8

const (
	ContainerPacked Container = iota
	ContainerPlain
)

// Encoding records whether a Node's payload is LZF-compressed at rest
// (spec §3.2 "encoding ∈ {RAW, LZF}"). At most one of {RAW, LZF} applies
// at a time.
type Encoding uint8

const (
	EncodingRaw Encoding = iota
	EncodingLZF
)

// Node is one segment of a List: either a packed array of small items or
// a single large item stored verbatim (spec §3.2 "Node"). The corpus's
// bitfield-packed C header becomes a plain struct here (spec §9
// "Quicklist Node bitfields": "let the compiler pack; do not expose the
// bit layout unless required for wire compatibility").
type Node struct {
	prev, next *Node

	lp    *listpack.Listpack // valid when container == ContainerPacked && encoding == EncodingRaw
	plain []byte             // valid when container == ContainerPlain && encoding == EncodingRaw

	compressed []byte // valid when encoding == EncodingLZF; holds either the packed or plain payload

	sz    int // uncompressed payload size in bytes
	count int // packed element count; always 1 for a plain Node

	container Container
	encoding  Encoding

	// recompress marks a Node a borrower (iterator, entry inspection)
	// decompressed transiently; the List re-applies the compression
	// invariant when the borrow is released (spec §4.2 "Compression
	// policy").
	recompress bool

	// attemptedCompress records that compression has been tried on this
	// Node, whether or not it shrank the payload; a Node where it did not
	// stays RAW (spec §4.2 "Compression is best-effort").
	attemptedCompress bool
}

func newPackedNode(lp *listpack.Listpack) *Node {
	return &Node{
		lp:        lp,
		sz:        lp.LengthBytes(),
		count:     lp.Count(),
		container: ContainerPacked,
		encoding:  EncodingRaw,
	}
}

func newPlainNode(payload []byte) *Node {
	return &Node{
		plain:     payload,
		sz:        len(payload),
		count:     1,
		container: ContainerPlain,
		encoding:  EncodingRaw,
	}
}

// payload returns the Node's current uncompressed bytes. Callers must
// ensure the Node is decompressed first.
func (n *Node) payload() []byte {
	if n.container == ContainerPlain {
		return n.plain
	}
	return n.lp.Bytes()
}

// refreshSize recomputes sz/count from the live packed array after a
// mutation. No-op for plain Nodes; code that replaces a plain payload
// sets sz itself.
func (n *Node) refreshSize() {
	if n.container == ContainerPacked {
		n.sz = n.lp.LengthBytes()
		n.count = n.lp.Count()
	}
}

// decompress restores a Node to RAW, rebuilding its listpack view for
// packed Nodes. No-op if already RAW.
func (n *Node) decompress() {
	if n.encoding == EncodingRaw {
		return
	}
	buf, err := lzf.Decompress(n.compressed, n.sz)
	if err != nil {
		fatalf("quicklist: decompress node: %v", err)
	}
	n.compressed = nil
	n.encoding = EncodingRaw
	if n.container == ContainerPacked {
		n.lp = listpack.FromBytes(buf)
	} else {
		n.plain = buf
	}
	_ = compressTraceLogger.Log("msg", "quicklist: node decompressed", "bytes", n.sz)
}

// compress attempts to LZF-encode a RAW Node in place. Best-effort: if
// LZF would not shrink the payload, the Node stays RAW and
// attemptedCompress is set (spec §4.2, §7 "Compression failures are
// silently tolerated").
func (n *Node) compress() {
	if n.encoding == EncodingLZF {
		return
	}
	n.attemptedCompress = true
	c := lzf.CompressAppend(n.payload())
	if c == nil {
		return
	}
	n.compressed = c
	n.encoding = EncodingLZF
	n.lp = nil
	n.plain = nil
	_ = compressTraceLogger.Log("msg", "quicklist: node compressed", "uncompressed_bytes", n.sz, "compressed_bytes", len(c))
}
