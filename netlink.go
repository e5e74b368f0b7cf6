/* Copyright (c) 2025 Waldemar Augustyn */

package main

import "fmt"

// The mac80211 mesh netlink wrapper and the kernel default-route installer
// are external collaborators named only, per spec §1's non-goal list: this
// module talks to them through narrow interfaces, the way the teacher
// treats its own single-purpose collaborators (owners.go's Owners type is
// the closest analogue: a small thing with one job, no larger subsystem
// bolted on).

// RootModeSetter programs the 802.11s root-mode parameter on the mesh
// interface (spec §4.5, §6): setRootMode(u8) via netlink.
type RootModeSetter interface {
	SetRootMode(mode uint8) error
}

// RouteInstaller installs/withdraws the kernel default route toward a
// next-hop MAC on the mesh interface (spec §4.6, C8).
type RouteInstaller interface {
	InstallDefaultRoute(nextHop MAC) error
	WithdrawDefaultRoute() error
}

// LoggingNetlinkHandler is the default RootModeSetter/RouteInstaller: it
// logs and counts what a real mac80211 netlink implementation would do,
// without touching the kernel. A real implementation dials
// NETLINK_ROUTE/NETLINK_GENERIC sockets and is intentionally out of this
// module's scope (spec §1).
type LoggingNetlinkHandler struct {
	iface string
	stats StatSink
}

func NewLoggingNetlinkHandler(iface string, stats StatSink) *LoggingNetlinkHandler {
	if stats == nil {
		stats = NullStatSink{}
	}
	return &LoggingNetlinkHandler{iface: iface, stats: stats}
}

func (h *LoggingNetlinkHandler) SetRootMode(mode uint8) error {
	log.info("netlink: %v: set root mode %v", h.iface, mode)
	h.stats.Count("netlink.set_root_mode", 1)
	return nil
}

func (h *LoggingNetlinkHandler) InstallDefaultRoute(nextHop MAC) error {
	log.info("netlink: %v: install default route via %v", h.iface, nextHop)
	h.stats.Count("netlink.install_route", 1)
	return nil
}

func (h *LoggingNetlinkHandler) WithdrawDefaultRoute() error {
	log.info("netlink: %v: withdraw default route", h.iface)
	h.stats.Count("netlink.withdraw_route", 1)
	return nil
}

var _ RootModeSetter = (*LoggingNetlinkHandler)(nil)
var _ RouteInstaller = (*LoggingNetlinkHandler)(nil)

func fatalIfNetlink(err error) error {
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetlink, err)
	}
	return nil
}
