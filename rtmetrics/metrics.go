// Package rtmetrics exposes the counters and timers the object store,
// integrity checker and syncer increment. It is deliberately thin: a
// single registered namespace with a handful of instruments, following the
// pattern in registry/proxy/proxymetrics.go of the teacher registry (one
// package, one init-time registration, no per-call allocation).
package rtmetrics

import (
	"time"

	"github.com/docker/go-metrics"
)

// NamespaceName is the metrics namespace under which all spfs instruments
// are registered.
const NamespaceName = "spfs"

var ns = metrics.NewNamespace(NamespaceName, "", nil)

func init() {
	metrics.Register(ns)
}

var (
	// ObjectsWritten is the counter for objects written to a store
	// backend, labeled by backend kind. No backend in this module
	// increments it; payload writes are counted by PayloadsWritten.
	ObjectsWritten = ns.NewLabeledCounter("objects_written_total", "number of objects written", "backend")

	// PayloadsWritten counts payload blobs written.
	PayloadsWritten = ns.NewLabeledCounter("payloads_written_total", "number of payloads written", "backend")

	// TagPushes counts successful tag pushes, labeled by org/name.
	TagPushes = ns.NewLabeledCounter("tag_pushes_total", "number of tag pushes", "org", "name")

	// TagLockWaits times how long FSStore.PushRawTag spends waiting to
	// acquire the per-stream lock. Lock waits in RemoveTag and
	// RemoveTagStream are not recorded.
	TagLockWaits = ns.NewTimer("tag_lock_wait_seconds", "time spent waiting for a tag lock")

	// CheckErrors counts integrity errors found by a single check run,
	// labeled by kind (unknown_object, missing_payload).
	CheckErrors = ns.NewLabeledCounter("check_errors_total", "integrity errors found", "kind")

	// SyncedObjects counts objects copied by the syncer, labeled by
	// policy.
	SyncedObjects = ns.NewLabeledCounter("synced_objects_total", "objects copied by the syncer", "policy")

	// SyncedBytes counts payload bytes copied by the syncer.
	SyncedBytes = ns.NewCounter("synced_bytes_total", "payload bytes copied by the syncer")

	// RPCCallDuration times RPCBackend/HTTPTransport round trips.
	RPCCallDuration = ns.NewTimer("rpc_call_duration_seconds", "time spent waiting on an rpc backend call")

	// CacheHits and CacheMisses count CachingBackend object lookups.
	CacheHits   = ns.NewCounter("cache_hits_total", "decoded-object cache hits")
	CacheMisses = ns.NewCounter("cache_misses_total", "decoded-object cache misses")
)

// Since records the time elapsed since start on t, a small helper to keep
// call sites (which call `rtmetrics.Since(t, start)` right after the timed
// step) terse.
func Since(t metrics.Timer, start time.Time) {
	t.Update(time.Since(start))
}
