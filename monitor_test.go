/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"testing"
	"time"
)

func testMonitor(t *testing.T) (*Monitor, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	engine := newTestEngine(t, MustParseMAC("AA:00:00:00:00:01"), newFakeMetrics())
	netlink := NewLoggingNetlinkHandler("mesh0", nil)

	m, err := NewMonitor(MonitorConfig{
		MonitoredInterface:   "mesh0",
		MonitoredAddresses:   []string{"1.1.1.1:80"},
		MonitorInterval:      time.Hour,
		MonitorSocketTimeout: time.Second,
		Robustness:           3,
		Dampener:             testDampenerConfig(),
		Engine:               engine,
		Netlink:              netlink,
		Clock:                clock,
	})
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m, clock
}

// TestMonitorTickSuccessAdvertises reproduces spec §4.5's success path: a
// successful probe advertises the route and marks the gateway active.
func TestMonitorTickSuccessAdvertises(t *testing.T) {

	m, _ := testMonitor(t)
	m.probe = func() bool { return true }

	m.tick()

	if !m.isGatewayActive {
		t.Error("isGatewayActive = false after a successful probe")
	}
	if !m.cfg.Engine.GetGatewayStatus() {
		t.Error("engine gateway status not set after successful probe")
	}
}

func TestMonitorTickFailureWithdraws(t *testing.T) {

	m, _ := testMonitor(t)
	m.probe = func() bool { return true }
	m.tick()

	m.probe = func() bool { return false }
	m.tick()

	if m.isGatewayActive {
		t.Error("isGatewayActive = true after a failed probe")
	}
	if m.cfg.Engine.GetGatewayStatus() {
		t.Error("engine gateway status still set after a failed probe")
	}
}

// TestMonitorSuppressedProbeStillFlapsCounter reproduces scenario S5: while
// suppressed, a successful probe must not re-advertise, but the dampener
// must still be given the chance to reuse-check.
func TestMonitorSuppressedProbeDoesNotAdvertise(t *testing.T) {

	m, _ := testMonitor(t)
	m.probe = func() bool { return true }

	// Force suppression directly rather than flapping through many ticks.
	m.dampener.restoreState(m.cfg.Dampener.SuppressLimit, true)

	m.tick()

	if m.cfg.Engine.GetGatewayStatus() {
		t.Error("route advertised while dampener suppressed")
	}
}

func TestMonitorSetMonitoredAddresses(t *testing.T) {

	m, _ := testMonitor(t)
	m.setMonitoredAddresses([]string{"2.2.2.2:80", "3.3.3.3:80"})

	got := m.monitoredAddresses()
	if len(got) != 2 || got[0] != "2.2.2.2:80" {
		t.Errorf("monitoredAddresses() = %v", got)
	}
}
