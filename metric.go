/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// PeerMetricSource is the engine's read-only view of per-link metrics
// (spec §6, C2): "metric(neighborMac) -> Option<u32>". The real
// implementation (the per-link metric estimator) is out of scope; this
// module only needs the interface plus a snapshot-backed stand-in usable
// in tests and as the default until process-level glue wires in the real
// estimator.
type PeerMetricSource interface {
	Metric(peer MAC) (uint32, bool)
}

// SnapshotMetricSource holds a bounded, LRU-evicted map of peer -> metric
// that something external (the metric estimator, out of scope) updates via
// Set. Bounded so a churning mesh with many transient neighbors can't grow
// this map without limit; grounded on the teacher's declared
// golang-lru/v2 dependency.
type SnapshotMetricSource struct {
	cache *lru.Cache[MAC, uint32]
}

func NewSnapshotMetricSource(maxPeers int) *SnapshotMetricSource {

	if maxPeers <= 0 {
		maxPeers = 256
	}
	c, err := lru.New[MAC, uint32](maxPeers)
	if err != nil {
		log.fatal("metric: cannot create cache: %v", err)
	}
	return &SnapshotMetricSource{cache: c}
}

func (s *SnapshotMetricSource) Metric(peer MAC) (uint32, bool) {
	return s.cache.Get(peer)
}

func (s *SnapshotMetricSource) Set(peer MAC, metric uint32) {
	s.cache.Add(peer, metric)
}

func (s *SnapshotMetricSource) Remove(peer MAC) {
	s.cache.Remove(peer)
}

func (s *SnapshotMetricSource) Len() int {
	return s.cache.Len()
}
