/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"context"
	"time"
)

const gatewayChangeThresholdFactor = 2.0

// RouteSyncConfig collects C8's construction-time parameters.
type RouteSyncConfig struct {
	SyncInterval time.Duration
	Engine       *Engine
	Netlink      RouteInstaller
	Stats        StatSink
}

// RouteSynchronizer (C8) periodically computes the current best gate from
// the engine's path table and reconciles the kernel default route,
// applying the hysteresis rule of spec §4.6. Grounded on the teacher's
// db_listen dispatch-loop idiom in db.go, generalized from a channel
// listener to a ticking synchronizer.
type RouteSynchronizer struct {
	cfg RouteSyncConfig

	currentGate            *PathRow
	isGateBeforeRouteSync_ bool

	timer *Timer
	stats StatSink
}

func NewRouteSynchronizer(cfg RouteSyncConfig) *RouteSynchronizer {

	if cfg.Stats == nil {
		cfg.Stats = NullStatSink{}
	}
	return &RouteSynchronizer{cfg: cfg, stats: cfg.Stats}
}

func (s *RouteSynchronizer) Start() {
	s.timer = StartPeriodic(s.cfg.SyncInterval, s.tick)
}

func (s *RouteSynchronizer) Stop() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *RouteSynchronizer) tick() {

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncInterval)
	defer cancel()

	rows, err := s.cfg.Engine.DumpMpaths(ctx)
	if err != nil {
		log.err("routesync: dumpMpaths failed: %v", err)
		return
	}

	isGate := s.cfg.Engine.GetGatewayStatus()

	// If this node itself became a gate, withdraw any learned default
	// route since we are now the origin (spec §4.6).
	if isGate && !s.isGateBeforeRouteSync_ {
		if s.currentGate != nil {
			s.withdraw()
		}
		s.isGateBeforeRouteSync_ = true
		return
	}
	s.isGateBeforeRouteSync_ = isGate

	candidate, ok := bestGateFromRows(rows)
	if !ok {
		if s.currentGate != nil {
			s.withdraw()
		}
		return
	}

	if s.currentGate == nil {
		s.install(candidate)
		return
	}

	if candidate.Dst == s.currentGate.Dst {
		s.currentGate = &candidate
		return
	}

	// Hysteresis: don't switch unless the candidate is meaningfully
	// better (spec §4.6, property 7).
	if float64(candidate.Metric)*gatewayChangeThresholdFactor > float64(s.currentGate.Metric) {
		return
	}

	s.withdraw()
	s.install(candidate)
}

func (s *RouteSynchronizer) install(gate PathRow) {

	if err := s.cfg.Netlink.InstallDefaultRoute(gate.NextHop); err != nil {
		log.err("routesync: %v", fatalIfNetlink(err))
		return
	}
	s.currentGate = &gate
	s.stats.Count("routesync.install", 1)
	log.info("routesync: installed default route via %v (dst %v, metric %v)", gate.NextHop, gate.Dst, gate.Metric)
}

func (s *RouteSynchronizer) withdraw() {

	if err := s.cfg.Netlink.WithdrawDefaultRoute(); err != nil {
		log.err("routesync: %v", fatalIfNetlink(err))
		return
	}
	s.currentGate = nil
	s.stats.Count("routesync.withdraw", 1)
	log.info("routesync: withdrew default route")
}

// bestGateFromRows selects the best gate over a PathRow snapshot (spec
// §4.3, property 6): isGate && !expired, minimum metric, MAC tie-break. A
// row is treated as expired if ExpTimeRemainingMs == 0 (snapshot already
// clamps negative remaining time to zero).
func bestGateFromRows(rows map[MAC]PathRow) (PathRow, bool) {

	var best *PathRow
	for mac, row := range rows {
		if !row.IsGate || row.ExpTimeRemainingMs <= 0 {
			continue
		}
		r := row
		if best == nil ||
			r.Metric < best.Metric ||
			(r.Metric == best.Metric && mac.Less(best.Dst)) {
			best = &r
		}
	}
	if best == nil {
		return PathRow{}, false
	}
	return *best, true
}
