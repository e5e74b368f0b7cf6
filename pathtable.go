/* Copyright (c) 2025 Waldemar Augustyn */

package main

import "time"

// MeshPath is a single routing entry keyed by destination MAC (spec §3).
// Owned exclusively by the routing engine (C5); external readers only ever
// see PathRow copies from snapshot()/dumpMpaths.
type MeshPath struct {
	Dst           MAC
	NextHop       MAC
	Sn            uint64
	Metric        uint32
	NextHopMetric uint32
	HopCount      uint8
	ExpTime       time.Time
	IsRoot        bool
	IsGate        bool
}

// expired reports whether p has gone stale. ExpTime already holds the
// absolute deadline (now + activePathTimeout at accept time, spec §4.3 step
// 6), so this is a single comparison, not a second addition of the timeout.
func (p *MeshPath) expired(now time.Time) bool {
	return p.ExpTime.Before(now)
}

// PathRow is the snapshot-safe, introspection-facing projection of a
// MeshPath (spec §6): "dumpMpaths result rows carry {dst, nextHop, sn,
// metric, expTimeRemainingMs, nextHopMetric, hopCount, isRoot, isGate}".
type PathRow struct {
	Dst                 MAC
	NextHop             MAC
	Sn                  uint64
	Metric              uint32
	NextHopMetric       uint32
	HopCount            uint8
	ExpTimeRemainingMs  int64
	IsRoot              bool
	IsGate              bool
}

func toRow(p *MeshPath, now time.Time) PathRow {

	remaining := p.ExpTime.Sub(now).Milliseconds()
	if remaining < 0 {
		remaining = 0
	}

	return PathRow{
		Dst:                p.Dst,
		NextHop:            p.NextHop,
		Sn:                 p.Sn,
		Metric:             p.Metric,
		NextHopMetric:      p.NextHopMetric,
		HopCount:           p.HopCount,
		ExpTimeRemainingMs: remaining,
		IsRoot:             p.IsRoot,
		IsGate:             p.IsGate,
	}
}

// PathTable is a keyed store of MeshPath records (C4). It is not
// internally synchronized: spec §5 requires all mutation to happen on the
// engine loop, with reads externalized as snapshot copies, so a mutex here
// would just paper over a real cross-loop-access bug.
type PathTable struct {
	paths map[MAC]*MeshPath
}

func NewPathTable() *PathTable {
	return &PathTable{
		paths: make(map[MAC]*MeshPath),
	}
}

// getOrInsert returns the existing entry for mac or a freshly constructed
// one with default zeros and expTime = now (spec §4.2).
func (t *PathTable) getOrInsert(mac MAC, now time.Time) *MeshPath {

	p, ok := t.paths[mac]
	if ok {
		return p
	}

	p = &MeshPath{
		Dst:      mac,
		HopCount: 1,
		ExpTime:  now,
	}
	t.paths[mac] = p
	return p
}

// lookup returns a copy of the entry for mac, if present (I1: at most one
// per MAC, so a simple map lookup suffices).
func (t *PathTable) lookup(mac MAC) (MeshPath, bool) {

	p, ok := t.paths[mac]
	if !ok {
		return MeshPath{}, false
	}
	return *p, true
}

// snapshot returns a consistent copy of every entry, projected to PathRow
// (spec §4.2, §6).
func (t *PathTable) snapshot(now time.Time) map[MAC]PathRow {

	out := make(map[MAC]PathRow, len(t.paths))
	for mac, p := range t.paths {
		out[mac] = toRow(p, now)
	}
	return out
}

// expire removes entries whose expTime has passed (spec §4.2, I4) and
// returns the evicted MACs. Gate selection over what remains is the route
// synchronizer's job (routesync.go's bestGateFromRows), not the table's.
func (t *PathTable) expire(now time.Time) []MAC {

	var evicted []MAC
	for mac, p := range t.paths {
		if p.expired(now) {
			evicted = append(evicted, mac)
			delete(t.paths, mac)
		}
	}
	return evicted
}
