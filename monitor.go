/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// MonitorConfig collects the C7 construction-time parameters (spec §6).
type MonitorConfig struct {
	MonitoredInterface   string
	MonitoredAddresses   []string // host:port pairs, tried in order
	MonitorInterval      time.Duration
	MonitorSocketTimeout time.Duration
	Robustness           int
	SetRootModeIfGate    uint8

	Dampener DampenerConfig
	Engine   *Engine
	Netlink  interface {
		RootModeSetter
		RouteInstaller
	}
	Stats StatSink
	Clock Clock
}

// Monitor is the gateway connectivity monitor (C7): a periodic TCP probe
// loop bound to monitoredInterface, driving the dampener and the engine's
// gateway-status flag. Runs on its own loop; socket I/O never happens on
// the engine loop (spec §5).
type Monitor struct {
	cfg MonitorConfig

	dampener *Dampener

	isGatewayActive bool

	addrMu    sync.RWMutex
	addresses []string

	// probe defaults to m.probeWanConnectivityRobustly; tests substitute a
	// stand-in so tick()'s dampener/gateway-status logic can be exercised
	// without opening a real socket.
	probe func() bool

	timer *Timer
	stats StatSink
	clock Clock
}

func NewMonitor(cfg MonitorConfig) (*Monitor, error) {

	if cfg.Robustness < 1 {
		cfg.Robustness = 1
	}
	if cfg.Stats == nil {
		cfg.Stats = NullStatSink{}
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}
	if cfg.Netlink == nil {
		return nil, fmt.Errorf("%w: netlink handler is required", ErrConfig)
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("%w: engine is required", ErrConfig)
	}

	m := &Monitor{cfg: cfg, stats: cfg.Stats, clock: cfg.Clock, addresses: cfg.MonitoredAddresses}
	m.probe = m.probeWanConnectivityRobustly

	dampener, err := NewDampener(cfg.Dampener, m.dampen, m.undampen, cfg.Clock, cfg.Stats)
	if err != nil {
		return nil, err
	}
	m.dampener = dampener

	return m, nil
}

// restoreDampenerState seeds the dampener's fom/suppressed from a prior
// run's persisted state (main.go, StateStore).
func (m *Monitor) restoreDampenerState(fom float64, suppressed bool) {
	m.dampener.restoreState(fom, suppressed)
}

// persistTo wires the dampener's persist hook to store, so every
// flap/reuse transition is durably recorded.
func (m *Monitor) persistTo(store *StateStore) {
	m.dampener.SetPersistHook(store.SaveDampenerState)
}

// setMonitoredAddresses replaces the probe target list at runtime (config.go's
// fsnotify watcher), without racing the probe loop's reads.
func (m *Monitor) setMonitoredAddresses(addrs []string) {
	m.addrMu.Lock()
	m.addresses = addrs
	m.addrMu.Unlock()
}

func (m *Monitor) monitoredAddresses() []string {
	m.addrMu.RLock()
	defer m.addrMu.RUnlock()
	return m.addresses
}

// disableRPFilter is the one-time proc-fs setup of spec §4.5: writing "0"
// to rp_filter for the monitored interface and "all", so probes bound to
// the interface aren't dropped when the source address is non-routable.
// Idempotent, as spec's design notes §9 require.
func disableRPFilter(iface string) {

	for _, ifc := range []string{iface, "all"} {
		p := path.Join("/proc/sys/net/ipv4/conf", ifc, "rp_filter")
		if err := os.WriteFile(p, []byte("0"), 0644); err != nil {
			log.err("monitor: cannot disable rp_filter for %v: %v", ifc, err)
		}
	}
}

// Start disables rp_filter once, then begins the periodic probe loop.
func (m *Monitor) Start() {

	disableRPFilter(m.cfg.MonitoredInterface)

	m.timer = StartPeriodic(m.cfg.MonitorInterval, m.tick)
}

func (m *Monitor) Stop() {
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Monitor) tick() {

	ok := m.probe()

	if ok {
		m.stats.Count("probe.success", 1)
		if !m.dampener.Suppressed() {
			m.advertiseDefaultRoute()
		}
		if !m.isGatewayActive {
			m.dampener.Flap()
		}
		m.isGatewayActive = true
	} else {
		m.stats.Count("probe.failure", 1)
		m.withdrawDefaultRoute()
		m.isGatewayActive = false
	}

	m.dampener.ReuseCheck()
}

// probeWanConnectivityRobustly retries probeWanConnectivity up to
// robustness times, succeeding on the first success (spec §4.5 step 1).
func (m *Monitor) probeWanConnectivityRobustly() bool {

	for i := 0; i < m.cfg.Robustness; i++ {
		if m.probeWanConnectivity() {
			return true
		}
	}
	return false
}

// probeWanConnectivity tries each configured address in order, bound to
// monitoredInterface, short-circuiting on first success (spec §4.5 step
// 2).
func (m *Monitor) probeWanConnectivity() bool {

	for _, addr := range m.monitoredAddresses() {
		if m.probeOne(addr) {
			return true
		}
	}
	return false
}

func (m *Monitor) probeOne(addr string) bool {

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.MonitorSocketTimeout)
	defer cancel()

	dialer := net.Dialer{
		Timeout: m.cfg.MonitorSocketTimeout,
		Control: bindToInterfaceControl(m.cfg.MonitoredInterface),
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		probeErr := &ErrProbeFailed{Reason: probeFailureReason(err), Addr: addr, Err: err}
		m.stats.Count("probe.failure."+probeErr.Reason, 1)
		log.debug("monitor: %v", probeErr)
		return false
	}
	conn.Close()
	return true
}

// bindToInterfaceControl returns a net.Dialer.Control func that binds the
// outbound socket to iface via SO_BINDTODEVICE, grounded on the teacher's
// golang.org/x/sys/unix use in tun.go/net.go.
func bindToInterfaceControl(iface string) func(network, address string, c syscall.RawConn) error {

	return func(network, address string, c syscall.RawConn) error {

		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptString(int(fd), unix.SOL_SOCKET, unix.SO_BINDTODEVICE, iface)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}

// advertiseDefaultRoute / withdrawDefaultRoute (spec §4.5): program the
// root-mode parameter (if configured) and toggle the engine's gateway
// status flag; the kernel default route itself is C8's job, driven off
// the engine's flag.
func (m *Monitor) advertiseDefaultRoute() {

	if m.cfg.SetRootModeIfGate != 0 {
		if err := m.cfg.Netlink.SetRootMode(m.cfg.SetRootModeIfGate); err != nil {
			log.err("monitor: %v", fatalIfNetlink(err))
		}
	}
	m.cfg.Engine.SetGatewayStatus(true)
	m.stats.Gauge("is_gateway", 1)
	log.info("monitor: is_gateway=true")
}

func (m *Monitor) withdrawDefaultRoute() {

	if m.cfg.SetRootModeIfGate != 0 {
		if err := m.cfg.Netlink.SetRootMode(0); err != nil {
			log.err("monitor: %v", fatalIfNetlink(err))
		}
	}
	m.cfg.Engine.SetGatewayStatus(false)
	m.stats.Gauge("is_gateway", 0)
	log.info("monitor: is_gateway=false")
}

// dampen/undampen are the Dampener hooks (spec §4.4 "Hook semantics").
func (m *Monitor) dampen() {
	if m.isGatewayActive {
		m.stats.Gauge("is_gateway", 0)
		log.info("monitor: is_gateway=false (dampened)")
		m.withdrawDefaultRoute()
	}
}

func (m *Monitor) undampen() {
	if m.isGatewayActive {
		m.stats.Gauge("is_gateway", 1)
		log.info("monitor: is_gateway=true (undampened)")
		m.advertiseDefaultRoute()
	}
}
