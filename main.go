/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"context"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

func main() {

	cfg := parse_cli() // also initializes log

	log.info("START meshpathd, node %v", cfg.nodeAddr)
	seedPrng()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := OpenStateStore(cfg.DataDir)
	if err != nil {
		log.fatal("main: cannot open state store: %v", err)
	}
	defer store.Close()

	metrics := NewSnapshotMetricSource(256)

	engine := NewEngine(EngineConfig{
		NodeAddr:          cfg.nodeAddr,
		ElementTTL:        cfg.ElementTTL,
		ActivePathTimeout: cfg.ActivePathTimeout,
		RootPannInterval:  cfg.RootPannInterval,
		IsRoot:            cfg.IsRoot,
		Metrics:           metrics,
		Stats:             log.stats,
	})

	netlink := NewLoggingNetlinkHandler(cfg.MonitoredInterface, log.stats)

	fom, suppressed := store.RestoreDampenerState()
	if fom != 0 || suppressed {
		log.info("main: restored dampener state fom=%.1f suppressed=%v", fom, suppressed)
	}

	monitor, err := NewMonitor(MonitorConfig{
		MonitoredInterface:   cfg.MonitoredInterface,
		MonitoredAddresses:   cfg.MonitoredAddresses,
		MonitorInterval:      cfg.MonitorInterval,
		MonitorSocketTimeout: cfg.MonitorSocketTimeout,
		Robustness:           cfg.Robustness,
		SetRootModeIfGate:    cfg.SetRootModeIfGate,
		Dampener:             cfg.dampenerConfig(),
		Engine:               engine,
		Netlink:              netlink,
		Stats:                log.stats,
	})
	if err != nil {
		log.fatal("main: cannot start monitor: %v", err)
	}
	monitor.restoreDampenerState(fom, suppressed)
	monitor.persistTo(store)

	routesync := NewRouteSynchronizer(RouteSyncConfig{
		SyncInterval: cfg.MonitorInterval,
		Engine:       engine,
		Netlink:      netlink,
		Stats:        log.stats,
	})

	transport, err := NewTransport(cfg.MeshInterface, engine, log.stats)
	if err != nil {
		log.fatal("main: cannot open mesh transport on %v: %v", cfg.MeshInterface, err)
	}

	watchMonitoredAddresses(cli.configPath, cfg, monitor.setMonitoredAddresses)

	transport.Start()
	defer transport.Stop()

	// Engine, monitor, and route-synchronizer each run their own loop; an
	// errgroup ties their lifetimes to one context instead of the
	// teacher's single goexit channel, since this daemon has three
	// independently cancellable loops instead of the teacher's one.
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		engine.Start()
		<-ctx.Done()
		engine.Stop()
		return ctx.Err()
	})
	g.Go(func() error {
		monitor.Start()
		<-ctx.Done()
		monitor.Stop()
		return ctx.Err()
	})
	g.Go(func() error {
		routesync.Start()
		<-ctx.Done()
		routesync.Stop()
		return ctx.Err()
	})

	err = g.Wait()
	log.info("STOP meshpathd: %v", err)
}
