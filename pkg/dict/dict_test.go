package dict_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lihao7264/redis/internal/metrics"
	"github.com/lihao7264/redis/pkg/dict"
)

func intType() *dict.Type {
	return &dict.Type{
		Hash: func(key interface{}) uint64 {
			return uint64(key.(int))
		},
		KeyCompare: func(a, b interface{}) bool {
			return a.(int) == b.(int)
		},
	}
}

func newTestDict() *dict.Dict {
	d := dict.Create(intType())
	d.SetRecorder(metrics.NopRecorder{})
	return d
}

func runToQuiescence(d *dict.Dict) {
	for d.IsRehashing() {
		d.Step(1)
	}
}

// Property 1: round trip.
func TestRoundTrip(t *testing.T) {
	d := newTestDict()
	keys := make([]int, 200)
	for i := range keys {
		keys[i] = i
	}
	for _, k := range keys {
		require.NoError(t, d.Add(k, dict.IntValue(int64(k))))
	}
	runToQuiescence(d)

	seen := map[int]bool{}
	it := d.NewSafeIterator()
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		seen[e.Key().(int)] = true
	}
	it.Release()

	require.Len(t, seen, len(keys))
	for _, k := range keys {
		require.True(t, seen[k])
	}
}

// Property 2: rehash preservation.
func TestRehashPreservation(t *testing.T) {
	d := newTestDict()
	for i := 0; i < 100; i++ {
		require.NoError(t, d.Add(i, dict.IntValue(int64(i))))
		if i%7 == 0 {
			d.Step(1)
		}
	}
	runToQuiescence(d)

	require.Equal(t, 100, d.Size())
	for i := 0; i < 100; i++ {
		v, ok := d.FetchValue(i)
		require.True(t, ok)
		require.Equal(t, int64(i), v.Int())
	}
}

// Property 3: load-triggered growth.
func TestLoadTriggeredGrowth(t *testing.T) {
	d := newTestDict()
	dict.EnableResize()
	defer dict.EnableResize()

	d.Expand(4)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Add(i, dict.IntValue(int64(i))))
	}

	require.True(t, d.IsRehashing())
	runToQuiescence(d)
	require.False(t, d.IsRehashing())
	require.Equal(t, 5, d.Size())
}

// Property 4: pause safety.
func TestPauseSafety(t *testing.T) {
	d := newTestDict()
	d.Expand(4)
	for i := 0; i < 20; i++ {
		require.NoError(t, d.Add(i, dict.IntValue(int64(i))))
	}
	require.True(t, d.IsRehashing())

	it := d.NewSafeIterator()
	_, ok := it.Next() // increments pauserehash
	require.True(t, ok)

	before := d.Step(5)
	require.Equal(t, 0, before, "Step must no-op while pauserehash > 0")

	it.Release() // decrements pauserehash

	after := d.Step(1)
	require.GreaterOrEqual(t, after, 0)
}

// Property 5: scan completeness.
func TestScanCompleteness(t *testing.T) {
	d := newTestDict()
	for i := 0; i < 50; i++ {
		require.NoError(t, d.Add(i, dict.IntValue(int64(i))))
	}
	d.Step(3) // advance the rehash the inserts left in progress, so the scan spans both tables

	seen := map[int]int{}
	cursor := uint64(0)
	for {
		cursor = d.Scan(cursor, func(e *dict.Entry) {
			seen[e.Key().(int)]++
		}, nil)
		if cursor == 0 {
			break
		}
	}

	for i := 0; i < 50; i++ {
		require.GreaterOrEqual(t, seen[i], 1, "key %d must be seen at least once", i)
	}
}

// Scenario A.
func TestScenarioA(t *testing.T) {
	d := newTestDict()
	require.NoError(t, d.Add(1, dict.IntValue(1)))
	require.NoError(t, d.Add(2, dict.IntValue(2)))
	require.NoError(t, d.Add(3, dict.IntValue(3)))

	require.NoError(t, d.Delete(2))

	v, ok := d.FetchValue(1)
	require.True(t, ok)
	require.Equal(t, int64(1), v.Int())

	_, ok = d.FetchValue(2)
	require.False(t, ok)

	require.Equal(t, 2, d.Size())
}

// Scenario B.
func TestScenarioB(t *testing.T) {
	d := newTestDict()
	d.Expand(4)
	for i := 0; i < 1024; i++ {
		require.NoError(t, d.Add(i, dict.IntValue(int64(i))))
	}
	runToQuiescence(d)

	require.Equal(t, 1024, d.Size())

	seen := map[int]bool{}
	cursor := uint64(0)
	for {
		cursor = d.Scan(cursor, func(e *dict.Entry) {
			k := e.Key().(int)
			require.False(t, seen[k], "duplicate key %d from full Scan", k)
			seen[k] = true
		}, nil)
		if cursor == 0 {
			break
		}
	}
	require.Len(t, seen, 1024)
}

func TestAddExistingKeyReturnsError(t *testing.T) {
	d := newTestDict()
	require.NoError(t, d.Add(1, dict.IntValue(1)))
	err := d.Add(1, dict.IntValue(2))
	require.ErrorIs(t, err, dict.ErrKeyExists)
}

func TestDeleteMissingKeyReturnsError(t *testing.T) {
	d := newTestDict()
	err := d.Delete(42)
	require.ErrorIs(t, err, dict.ErrKeyNotFound)
}

func TestReplaceDestroysPreviousValueAndKeepsNew(t *testing.T) {
	destroyed := 0
	typ := intType()
	typ.ValDestructor = func(v dict.Value) {
		destroyed++
	}
	d := dict.Create(typ)
	d.SetRecorder(metrics.NopRecorder{})

	d.Replace(1, dict.IntValue(10))
	require.Equal(t, 0, destroyed)

	d.Replace(1, dict.IntValue(20))
	require.Equal(t, 1, destroyed)

	v, ok := d.FetchValue(1)
	require.True(t, ok)
	require.Equal(t, int64(20), v.Int())
}

func TestGetSomeKeysNotEmpty(t *testing.T) {
	d := newTestDict()
	for i := 0; i < 30; i++ {
		require.NoError(t, d.Add(i, dict.IntValue(int64(i))))
	}
	keys := d.GetSomeKeys(10)
	require.NotEmpty(t, keys)
	for _, k := range keys {
		require.NotNil(t, k)
	}
}

func TestGetRandomKey(t *testing.T) {
	d := newTestDict()
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Add(i, dict.IntValue(int64(i))))
	}
	for i := 0; i < 50; i++ {
		e, ok := d.GetRandomKey()
		require.True(t, ok)
		k := e.Key().(int)
		require.True(t, k >= 0 && k < 10, fmt.Sprintf("key %d out of range", k))
	}
}
