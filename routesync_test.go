/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"testing"
	"time"
)

type fakeRouteInstaller struct {
	installed *MAC
	installs  int
	withdraws int
	failNext  error
}

func (f *fakeRouteInstaller) InstallDefaultRoute(nextHop MAC) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	nh := nextHop
	f.installed = &nh
	f.installs++
	return nil
}

func (f *fakeRouteInstaller) WithdrawDefaultRoute() error {
	f.installed = nil
	f.withdraws++
	return nil
}

func newTestRouteSynchronizer(t *testing.T, installer RouteInstaller) (*RouteSynchronizer, *Engine, *fakeMetrics) {
	t.Helper()

	metrics := newFakeMetrics()
	engine := newTestEngine(t, MustParseMAC("AA:00:00:00:00:01"), metrics)

	rs := NewRouteSynchronizer(RouteSyncConfig{
		SyncInterval: time.Hour,
		Engine:       engine,
		Netlink:      installer,
	})
	return rs, engine, metrics
}

func installGateVia(t *testing.T, engine *Engine, metrics *fakeMetrics, peer MAC, metric uint32) {
	t.Helper()
	metrics.Set(peer, metric)
	engine.ReceivePacket(peer, encodeTestFrame(t, PannFrame{
		OrigAddr: peer,
		OrigSn:   1,
		HopCount: 0,
		TTL:      31,
		IsGate:   true,
	}))
}

func TestRouteSynchronizerInstallsFirstGate(t *testing.T) {

	installer := &fakeRouteInstaller{}
	rs, engine, metrics := newTestRouteSynchronizer(t, installer)

	gate := MustParseMAC("BB:00:00:00:00:02")
	installGateVia(t, engine, metrics, gate, 10)

	rs.tick()

	if installer.installs != 1 {
		t.Fatalf("installs = %v, want 1", installer.installs)
	}
	if installer.installed == nil || *installer.installed != gate {
		t.Errorf("installed route via %v, want %v", installer.installed, gate)
	}
}

// TestRouteSynchronizerHysteresis reproduces spec §4.6's factor-2 hysteresis:
// a marginally better candidate must not trigger a switch.
func TestRouteSynchronizerHysteresis(t *testing.T) {

	installer := &fakeRouteInstaller{}
	rs, engine, metrics := newTestRouteSynchronizer(t, installer)

	gateA := MustParseMAC("BB:00:00:00:00:02")
	installGateVia(t, engine, metrics, gateA, 100)
	rs.tick()
	if installer.installs != 1 {
		t.Fatalf("installs = %v, want 1", installer.installs)
	}

	// A marginally better candidate (60 vs 100) must not trigger a switch:
	// 60*2 = 120 > 100.
	gateB := MustParseMAC("CC:00:00:00:00:03")
	installGateVia(t, engine, metrics, gateB, 60)
	rs.tick()

	if installer.installs != 1 {
		t.Errorf("installs = %v, want 1 (hysteresis should have blocked the switch)", installer.installs)
	}
}

func TestRouteSynchronizerSwitchesOnSignificantImprovement(t *testing.T) {

	installer := &fakeRouteInstaller{}
	rs, engine, metrics := newTestRouteSynchronizer(t, installer)

	gateA := MustParseMAC("BB:00:00:00:00:02")
	installGateVia(t, engine, metrics, gateA, 100)
	rs.tick()

	// 40*2 = 80 <= 100: significant enough to switch.
	gateB := MustParseMAC("CC:00:00:00:00:03")
	installGateVia(t, engine, metrics, gateB, 40)
	rs.tick()

	if installer.installs != 2 {
		t.Errorf("installs = %v, want 2", installer.installs)
	}
	if installer.withdraws != 1 {
		t.Errorf("withdraws = %v, want 1", installer.withdraws)
	}
	if installer.installed == nil || *installer.installed != gateB {
		t.Errorf("installed route via %v, want %v", installer.installed, gateB)
	}
}

func TestRouteSynchronizerWithdrawsWhenNoGateRemains(t *testing.T) {

	installer := &fakeRouteInstaller{}
	rs, engine, metrics := newTestRouteSynchronizer(t, installer)

	gate := MustParseMAC("BB:00:00:00:00:02")
	installGateVia(t, engine, metrics, gate, 10)
	rs.tick()
	if installer.installs != 1 {
		t.Fatalf("installs = %v, want 1", installer.installs)
	}

	engine.postSync(func() { engine.table.expire(time.Now().Add(24 * time.Hour)) })
	rs.tick()

	if installer.withdraws != 1 {
		t.Errorf("withdraws = %v, want 1 after gate expired", installer.withdraws)
	}
}

func TestBestGateFromRowsTieBreak(t *testing.T) {

	a := MustParseMAC("00:00:00:00:00:01")
	b := MustParseMAC("00:00:00:00:00:02")

	rows := map[MAC]PathRow{
		a: {Dst: a, Metric: 10, IsGate: true, ExpTimeRemainingMs: 1000},
		b: {Dst: b, Metric: 10, IsGate: true, ExpTimeRemainingMs: 1000},
	}

	best, ok := bestGateFromRows(rows)
	if !ok {
		t.Fatal("expected a best gate")
	}
	if best.Dst != a {
		t.Errorf("bestGateFromRows() = %v, want %v", best.Dst, a)
	}
}
