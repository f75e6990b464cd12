// Package metrics holds the Prometheus instrumentation for pkg/dict and
// pkg/quicklist, registered the same way friggdb/pool registers its queue
// gauges: promauto.New* at package init, incremented through a small
// injectable interface so the core packages stay unit-testable without a
// live registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DictRehashSteps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corekv",
		Subsystem: "dict",
		Name:      "rehash_steps_total",
		Help:      "Number of non-empty buckets migrated by incremental rehash steps.",
	})

	DictKeysAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corekv",
		Subsystem: "dict",
		Name:      "keys_added_total",
		Help:      "Number of keys successfully added to a Dictionary.",
	})

	DictKeysDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corekv",
		Subsystem: "dict",
		Name:      "keys_deleted_total",
		Help:      "Number of keys removed from a Dictionary.",
	})

	DictScanCycles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corekv",
		Subsystem: "dict",
		Name:      "scan_cycles_total",
		Help:      "Number of full Scan cursor cycles completed (cursor wrapped to 0).",
	})

	DictTableSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "corekv",
		Subsystem: "dict",
		Name:      "table_size",
		Help:      "Current bucket-array length, by table index.",
	}, []string{"table"})

	DictTableUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "corekv",
		Subsystem: "dict",
		Name:      "table_used",
		Help:      "Current live-entry count, by table index.",
	}, []string{"table"})

	QuicklistNodeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corekv",
		Subsystem: "quicklist",
		Name:      "node_count",
		Help:      "Number of Nodes currently in the most recently touched Quicklist.",
	})

	QuicklistCompressedNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "corekv",
		Subsystem: "quicklist",
		Name:      "compressed_node_count",
		Help:      "Number of LZF-encoded Nodes in the most recently touched Quicklist.",
	})

	QuicklistSplits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corekv",
		Subsystem: "quicklist",
		Name:      "node_splits_total",
		Help:      "Number of times a Node was split due to fill-policy overflow.",
	})

	QuicklistMerges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corekv",
		Subsystem: "quicklist",
		Name:      "node_merges_total",
		Help:      "Number of times two sibling Nodes were merged.",
	})
)

// Recorder is the seam pkg/dict and pkg/quicklist instrument through. The
// default Recorder writes to the package vars above; tests use NopRecorder
// so unit tests don't depend on a live Prometheus registry.
type Recorder interface {
	IncRehashSteps(n int)
	IncKeysAdded()
	IncKeysDeleted()
	IncScanCycles()
	SetDictTableSize(table int, size int)
	SetDictTableUsed(table int, used int)
	SetQuicklistNodeCount(n int)
	SetQuicklistCompressedNodes(n int)
	IncQuicklistSplits()
	IncQuicklistMerges()
}

type promRecorder struct{}

// Default is the Recorder every new Dict/List uses unless told otherwise.
var Default Recorder = promRecorder{}

func (promRecorder) IncRehashSteps(n int) { DictRehashSteps.Add(float64(n)) }
func (promRecorder) IncKeysAdded()        { DictKeysAdded.Inc() }
func (promRecorder) IncKeysDeleted()      { DictKeysDeleted.Inc() }
func (promRecorder) IncScanCycles()       { DictScanCycles.Inc() }

func (promRecorder) SetDictTableSize(table int, size int) {
	DictTableSize.WithLabelValues(tableLabel(table)).Set(float64(size))
}

func (promRecorder) SetDictTableUsed(table int, used int) {
	DictTableUsed.WithLabelValues(tableLabel(table)).Set(float64(used))
}

func (promRecorder) SetQuicklistNodeCount(n int)         { QuicklistNodeCount.Set(float64(n)) }
func (promRecorder) SetQuicklistCompressedNodes(n int)   { QuicklistCompressedNodes.Set(float64(n)) }
func (promRecorder) IncQuicklistSplits()                 { QuicklistSplits.Inc() }
func (promRecorder) IncQuicklistMerges()                 { QuicklistMerges.Inc() }

func tableLabel(table int) string {
	if table == 0 {
		return "0"
	}
	return "1"
}

// NopRecorder discards every call; used by tests and by callers that don't
// want Prometheus dependencies pulled into their process.
type NopRecorder struct{}

func (NopRecorder) IncRehashSteps(int)              {}
func (NopRecorder) IncKeysAdded()                   {}
func (NopRecorder) IncKeysDeleted()                 {}
func (NopRecorder) IncScanCycles()                  {}
func (NopRecorder) SetDictTableSize(int, int)       {}
func (NopRecorder) SetDictTableUsed(int, int)       {}
func (NopRecorder) SetQuicklistNodeCount(int)       {}
func (NopRecorder) SetQuicklistCompressedNodes(int) {}
func (NopRecorder) IncQuicklistSplits()             {}
func (NopRecorder) IncQuicklistMerges()             {}
