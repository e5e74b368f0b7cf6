/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"context"
	"fmt"
	"math"
	"time"
)

// EngineState models the lifecycle in spec §4.3: "Created -> Prepared
// (timers armed) -> Running -> Stopped (timers cancelled, callback
// cleared)".
type EngineState int

const (
	EngineCreated EngineState = iota
	EnginePrepared
	EngineRunning
	EngineStopped
)

// EngineConfig collects the construction-time parameters enumerated in
// spec §6.
type EngineConfig struct {
	NodeAddr          MAC
	ElementTTL        uint8
	ActivePathTimeout time.Duration
	RootPannInterval  time.Duration
	IsRoot            bool

	Metrics PeerMetricSource
	Clock   Clock
	Stats   StatSink
}

// Engine is the routing engine (C5): it owns the path table exclusively
// (spec §3 "Ownership") and serializes every mutation and timer callback
// on a single goroutine fed by a task queue, the same channel-owned-state
// idiom the teacher uses for its gw/tun/db loops in main.go.
type Engine struct {
	cfg   EngineConfig
	table *PathTable

	sn      uint64
	isGate_ bool
	isRoot_ bool

	sendCb     func(dst MAC, frame []byte)
	haveSendCb bool

	tasks chan func()

	housekeeping *Timer
	rootAnnounce *Timer

	state EngineState

	clock Clock
	stats StatSink
}

func NewEngine(cfg EngineConfig) *Engine {

	if cfg.Metrics == nil {
		log.fatal("engine: metrics source is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock
	}
	if cfg.Stats == nil {
		cfg.Stats = NullStatSink{}
	}
	if cfg.ElementTTL == 0 {
		cfg.ElementTTL = 31
	}

	return &Engine{
		cfg:     cfg,
		table:   NewPathTable(),
		isRoot_: cfg.IsRoot,
		tasks:   make(chan func(), 64),
		state:   EngineCreated,
		clock:   cfg.Clock,
		stats:   cfg.Stats,
	}
}

// Start arms the housekeeping/root-announce timers and begins serving the
// task queue on a dedicated goroutine (Created -> Prepared -> Running).
func (e *Engine) Start() {

	if e.state != EngineCreated {
		log.fatal("engine: Start called from state %v", e.state)
	}

	go e.run()

	e.housekeeping = StartPeriodic(e.cfg.ActivePathTimeout, func() {
		e.post(e.doHousekeeping)
	})

	e.rootAnnounce = StartPeriodic(e.cfg.RootPannInterval, func() {
		e.post(e.doRootAnnounce)
	})

	e.state = EnginePrepared
	e.postSync(func() { e.state = EngineRunning })
}

// Stop cancels timers, drains the task queue, and clears the egress
// callback (spec §4.3, §5 cancellation semantics).
func (e *Engine) Stop() {

	if e.housekeeping != nil {
		e.housekeeping.Stop()
	}
	if e.rootAnnounce != nil {
		e.rootAnnounce.Stop()
	}

	e.postSync(func() {
		e.haveSendCb = false
		e.sendCb = nil
		e.state = EngineStopped
	})

	close(e.tasks)
}

func (e *Engine) run() {
	for f := range e.tasks {
		f()
	}
}

func (e *Engine) post(f func()) {
	e.tasks <- f
}

func (e *Engine) postSync(f func()) {
	done := make(chan struct{})
	e.tasks <- func() {
		f()
		close(done)
	}
	<-done
}

// SetSendPacketCallback installs the egress capability (spec §4.3, §6):
// (destMac, bytes) -> (). It is a swappable function value protected by
// the engine loop's serialization, not an interface hierarchy (design
// note §9).
func (e *Engine) SetSendPacketCallback(cb func(dst MAC, frame []byte)) {
	e.postSync(func() {
		e.sendCb = cb
		e.haveSendCb = cb != nil
	})
}

func (e *Engine) ResetSendPacketCallback() {
	e.postSync(func() {
		e.sendCb = nil
		e.haveSendCb = false
	})
}

// SetGatewayStatus updates isGate_; the concrete kernel route side effect
// is delegated to the route synchronizer (C8) (spec §4.3).
func (e *Engine) SetGatewayStatus(isGate bool) {
	e.postSync(func() {
		e.isGate_ = isGate
	})
}

func (e *Engine) GetGatewayStatus() bool {
	result := make(chan bool, 1)
	e.post(func() { result <- e.isGate_ })
	return <-result
}

// DumpMpaths returns a consistent snapshot of the path table, respecting
// ctx cancellation per spec §5 ("Outstanding dumpMpaths futures complete
// or fail with Cancelled").
func (e *Engine) DumpMpaths(ctx context.Context) (map[MAC]PathRow, error) {

	result := make(chan map[MAC]PathRow, 1)

	select {
	case e.tasks <- func() { result <- e.table.snapshot(e.clock.Now()) }:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rows := <-result:
		return rows, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReceivePacket is the ingress path (spec §4.3): decode then process,
// marshaled onto the engine loop and awaited to completion per spec §5.
func (e *Engine) ReceivePacket(sa MAC, data []byte) {

	f, err := DecodePann(data)
	if err != nil {
		e.stats.Count("frame.malformed", 1)
		log.debug("engine: malformed frame from %v: %v", sa, err)
		return
	}

	e.postSync(func() {
		e.hwmpPannFrameProcess(sa, f)
	})
}

func (e *Engine) doHousekeeping() {

	now := e.clock.Now()
	evicted := e.table.expire(now)
	if len(evicted) > 0 {
		e.stats.Count("path.expired", int64(len(evicted)))
		log.debug("engine: housekeeping expired %v paths", len(evicted))
	}
}

func (e *Engine) doRootAnnounce() {

	if !e.isRoot_ {
		return
	}

	e.sn++

	f := PannFrame{
		OrigAddr:       e.cfg.NodeAddr,
		OrigSn:         e.sn,
		HopCount:       0,
		TTL:            e.cfg.ElementTTL,
		TargetAddr:     BroadcastMAC,
		Metric:         0,
		IsGate:         e.isGate_,
		ReplyRequested: false,
	}
	e.emit(BroadcastMAC, f)
}

// hwmpPannFrameProcess implements the eight-step ingress algorithm of
// spec §4.3 verbatim.
func (e *Engine) hwmpPannFrameProcess(sa MAC, f PannFrame) {

	// 1. drop self-originated echoes
	if f.OrigAddr == e.cfg.NodeAddr {
		e.stats.Count("frame.self_loop", 1)
		return
	}

	// 2. look up link metric
	linkMetric, ok := e.cfg.Metrics.Metric(sa)
	if !ok {
		e.stats.Count("frame.unknown_peer", 1)
		log.debug("engine: %v from %v", ErrUnknownPeer, sa)
		return
	}

	// 3. saturating add
	newMetric := saturatingAddU32(f.Metric, linkMetric)

	now := e.clock.Now()

	// 4. get or insert
	p := e.table.getOrInsert(f.OrigAddr, now)

	// 5. acceptance predicate (I2)
	accept := f.OrigSn > p.Sn || (f.OrigSn == p.Sn && newMetric < p.Metric)
	if !accept {
		e.stats.Count("frame.rejected_stale", 1)
		return
	}

	// 6. update
	p.Sn = f.OrigSn
	p.Metric = newMetric
	p.NextHop = sa
	p.NextHopMetric = linkMetric
	p.HopCount = f.HopCount + 1
	p.ExpTime = now.Add(e.cfg.ActivePathTimeout)
	p.IsGate = f.IsGate
	if f.HopCount == 0 {
		p.IsRoot = true
	}
	e.stats.Count("path.accepted", 1)

	// 7. forward
	if f.TTL > 1 {
		e.emit(BroadcastMAC, PannFrame{
			OrigAddr:       f.OrigAddr,
			OrigSn:         f.OrigSn,
			HopCount:       f.HopCount + 1,
			TTL:            f.TTL - 1,
			TargetAddr:     f.TargetAddr,
			Metric:         newMetric,
			IsGate:         f.IsGate,
			ReplyRequested: f.ReplyRequested,
		})
	}

	// 8. reply if requested and we are the target
	if f.ReplyRequested && f.TargetAddr == e.cfg.NodeAddr {
		e.sn++
		e.emit(p.NextHop, PannFrame{
			OrigAddr:       e.cfg.NodeAddr,
			OrigSn:         e.sn,
			HopCount:       0,
			TTL:            e.cfg.ElementTTL,
			TargetAddr:     f.OrigAddr,
			Metric:         0,
			IsGate:         e.isGate_,
			ReplyRequested: false,
		})
	}
}

// emit encodes and hands a frame to the egress callback. A missing
// callback drops the frame silently and bumps a counter (spec §4.3, §7);
// this never runs on any loop but the engine's own.
func (e *Engine) emit(dst MAC, f PannFrame) {

	if !e.haveSendCb {
		e.stats.Count("egress.callback_unset", 1)
		log.debug("engine: %v", ErrCallbackUnset)
		return
	}

	buf := make([]byte, EncodedLen())
	n := EncodePann(buf, f)
	e.sendCb(dst, buf[:n])
	e.stats.Count("egress.sent", 1)
}

func saturatingAddU32(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(sum)
}

func (s EngineState) String() string {
	switch s {
	case EngineCreated:
		return "Created"
	case EnginePrepared:
		return "Prepared"
	case EngineRunning:
		return "Running"
	case EngineStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("EngineState(%d)", int(s))
	}
}
