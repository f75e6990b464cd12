package quicklist

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lihao7264/redis/internal/metrics"
)

// compressiblePayload returns a value with enough of a repeated run that
// LZF compression is reliably beneficial regardless of per-entry and
// per-block overhead, for tests asserting on the compressed encoding.
func compressiblePayload(i int) []byte {
	return []byte(fmt.Sprintf("payload-%s-%d", strings.Repeat("x", 64), i))
}

func newTestList(fill, compress int) *List {
	l := New(fill, compress)
	l.SetRecorder(metrics.NopRecorder{})
	return l
}

func sumNodeCounts(l *List) int {
	total := 0
	for n := l.head; n != nil; n = n.next {
		total += n.count
	}
	return total
}

// Property 1: count consistency.
func TestCountConsistency(t *testing.T) {
	l := newTestList(16, 0)
	for i := 0; i < 50; i++ {
		l.PushTail([]byte(fmt.Sprintf("item-%d", i)))
	}
	require.Equal(t, 50, l.Count())
	require.Equal(t, l.Count(), sumNodeCounts(l))

	l.DelRange(10, 20)
	require.Equal(t, 40, l.Count())
	require.Equal(t, l.Count(), sumNodeCounts(l))

	v, ok := l.Pop(Head)
	require.True(t, ok)
	require.Equal(t, "item-0", string(v))
	require.Equal(t, 39, l.Count())
	require.Equal(t, l.Count(), sumNodeCounts(l))
}

// Property 2: order preservation.
func TestOrderPreservation(t *testing.T) {
	l := newTestList(4, 0)
	want := []string{}
	for i := 0; i < 30; i++ {
		s := fmt.Sprintf("v%03d", i)
		l.PushTail([]byte(s))
		want = append(want, s)
	}

	got := []string{}
	it := l.GetIterator(Forward)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(e.Data))
	}
	it.ReleaseIterator()
	require.Equal(t, want, got)

	gotRev := []string{}
	it = l.GetIterator(Reverse)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		gotRev = append(gotRev, string(e.Data))
	}
	it.ReleaseIterator()
	for i, j := 0, len(want)-1; i < len(want); i, j = i+1, j-1 {
		require.Equal(t, want[j], gotRev[i])
	}
}

// Property 3: compression invariant.
func TestCompressionInvariant(t *testing.T) {
	l := newTestList(4, 2)
	for i := 0; i < 40; i++ {
		l.PushTail(compressiblePayload(i))
	}
	require.Greater(t, l.Len(), 4)

	idx := 0
	for n := l.head; n != nil; n = n.next {
		distFromTail := l.len - 1 - idx
		if idx < 2 || distFromTail < 2 {
			require.Equal(t, EncodingRaw, n.encoding, "end-window node %d should be RAW", idx)
		} else {
			require.Equal(t, EncodingLZF, n.encoding, "interior node %d should be LZF", idx)
		}
		idx++
	}
}

// Property 4: decompress-recompress round trip.
func TestDecompressRecompressRoundTrip(t *testing.T) {
	l := newTestList(4, 2)
	for i := 0; i < 40; i++ {
		l.PushTail(compressiblePayload(i))
	}

	var interior *Node
	idx := 0
	for n := l.head; n != nil; n = n.next {
		if idx == l.len/2 {
			interior = n
		}
		idx++
	}
	require.NotNil(t, interior)
	require.Equal(t, EncodingLZF, interior.encoding)

	it := l.GetIteratorAtIdx(Forward, l.count/2)
	_, ok := it.Next()
	require.True(t, ok)
	it.ReleaseIterator()

	require.Equal(t, EncodingLZF, interior.encoding)
}

// Property 5: split on overflow.
func TestSplitOnOverflow(t *testing.T) {
	l := newTestList(3, 0)
	l.PushTail([]byte("a"))
	l.PushTail([]byte("b"))
	l.PushTail([]byte("c"))
	l.PushTail([]byte("d"))

	require.Equal(t, 2, l.Len())
	require.Equal(t, 4, l.Count())

	counts := []int{}
	for n := l.head; n != nil; n = n.next {
		counts = append(counts, n.count)
	}
	require.Len(t, counts, 2)
	require.Equal(t, 4, counts[0]+counts[1])
	require.True(t, (counts[0] == 3 && counts[1] == 1) || (counts[0] == 2 && counts[1] == 2))
}

// Property 6: bookmark update.
func TestBookmarkUpdate(t *testing.T) {
	l := newTestList(1, 0)
	l.PushTail([]byte("n1"))
	l.PushTail([]byte("n2"))
	l.PushTail([]byte("n3"))

	n2 := l.head.next
	n3 := n2.next

	require.NoError(t, l.CreateBookmark("a", n2))

	e, ok := l.EntryAtIndex(1)
	require.True(t, ok)
	require.Equal(t, "n2", string(e.Data))
	l.DelEntry(e)

	got, ok := l.FindBookmark("a")
	require.True(t, ok)
	require.Equal(t, n3, got)

	e2, ok := l.EntryAtIndex(1)
	require.True(t, ok)
	l.DelEntry(e2)
	_, ok = l.FindBookmark("a")
	require.False(t, ok)
}

// Scenario C.
func TestScenarioC(t *testing.T) {
	l := newTestList(-2, 0)
	l.PushTail([]byte("hello"))
	l.PushTail([]byte("world"))

	v, ok := l.Pop(Head)
	require.True(t, ok)
	require.Equal(t, "hello", string(v))
	require.Equal(t, 1, l.Count())
}

// Scenario D.
func TestScenarioD(t *testing.T) {
	l := newTestList(128, 1)
	for i := 0; i < 10000; i++ {
		l.PushTail(compressiblePayload(i))
	}
	require.Greater(t, l.Len(), 2)

	idx := 0
	for n := l.head; n != nil; n = n.next {
		distFromTail := l.len - 1 - idx
		if idx >= 1 && distFromTail >= 1 {
			require.Equal(t, EncodingLZF, n.encoding)
		}
		idx++
	}

	it := l.GetIteratorAtIdx(Forward, 5000)
	e, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, string(compressiblePayload(5000)), string(e.Data))

	it.ReleaseIterator()
}

func TestCreateBookmarkFullTable(t *testing.T) {
	l := newTestList(1, 0)
	for i := 0; i < 20; i++ {
		l.PushTail([]byte(fmt.Sprintf("n%d", i)))
	}
	n := l.head
	for i := 0; i < 15; i++ {
		require.NoError(t, l.CreateBookmark(fmt.Sprintf("b%d", i), n))
		n = n.next
	}
	err := l.CreateBookmark("overflow", n)
	require.ErrorIs(t, err, ErrBookmarksFull)
}

func TestRotate(t *testing.T) {
	l := newTestList(2, 0)
	l.PushTail([]byte("a"))
	l.PushTail([]byte("b"))
	l.PushTail([]byte("c"))

	l.Rotate()

	got := []string{}
	it := l.GetIterator(Forward)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(e.Data))
	}
	it.ReleaseIterator()
	require.Equal(t, []string{"c", "a", "b"}, got)
}

func TestSetDirectionReversesWithoutRepositioning(t *testing.T) {
	l := newTestList(4, 0)
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		l.PushTail([]byte(v))
	}

	it := l.GetIterator(Forward)
	e, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "a", string(e.Data))
	e, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, "b", string(e.Data))

	it.SetDirection(Reverse)
	e, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, "a", string(e.Data))
	_, ok = it.Next()
	require.False(t, ok)
	it.ReleaseIterator()
}

func TestReplaceEntry(t *testing.T) {
	l := newTestList(4, 0)
	l.PushTail([]byte("a"))
	l.PushTail([]byte("b"))
	l.PushTail([]byte("c"))

	e, ok := l.EntryAtIndex(1)
	require.True(t, ok)
	l.ReplaceEntry(e, []byte("replaced"))

	got := []string{}
	it := l.GetIterator(Forward)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(e.Data))
	}
	it.ReleaseIterator()
	require.Equal(t, []string{"a", "replaced", "c"}, got)
	require.Equal(t, 3, l.Count())
}

func TestReplaceEntryOnPlainNode(t *testing.T) {
	l := newTestList(4, 0)
	big := strings.Repeat("z", PlainNodeThreshold()+1)
	l.PushTail([]byte(big))

	e, ok := l.EntryAtIndex(0)
	require.True(t, ok)
	l.ReplaceEntry(e, []byte("small"))

	v, ok := l.Pop(Head)
	require.True(t, ok)
	require.Equal(t, "small", string(v))
}

func TestDup(t *testing.T) {
	l := newTestList(4, 1)
	for i := 0; i < 20; i++ {
		l.PushTail([]byte(fmt.Sprintf("x%d", i)))
	}
	dup := l.Dup()
	require.Equal(t, l.Count(), dup.Count())

	var orig, copied []string
	it := l.GetIterator(Forward)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		orig = append(orig, string(e.Data))
	}
	it.ReleaseIterator()

	it = dup.GetIterator(Forward)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		copied = append(copied, string(e.Data))
	}
	it.ReleaseIterator()

	require.Equal(t, orig, copied)
}
