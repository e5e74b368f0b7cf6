/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"fmt"
	"math"
	"time"
)

// DampenerConfig holds the RFC-2439-style exponential penalty parameters
// (spec §4.4, §6).
type DampenerConfig struct {
	Penalty          float64
	SuppressLimit    float64
	ReuseLimit       float64
	HalfLife         time.Duration
	MaxSuppressLimit float64
}

func (c DampenerConfig) validate() error {

	if c.ReuseLimit >= c.SuppressLimit {
		return fmt.Errorf("%w: reuseLimit (%v) must be < suppressLimit (%v)", ErrConfig, c.ReuseLimit, c.SuppressLimit)
	}
	if c.HalfLife <= 0 {
		return fmt.Errorf("%w: halfLife must be positive", ErrConfig)
	}
	if c.MaxSuppressLimit < c.SuppressLimit {
		return fmt.Errorf("%w: maxSuppressLimit (%v) must be >= suppressLimit (%v)", ErrConfig, c.MaxSuppressLimit, c.SuppressLimit)
	}
	if c.Penalty <= 0 {
		return fmt.Errorf("%w: penalty must be positive", ErrConfig)
	}
	return nil
}

// Dampener applies exponential decay to a flapping gateway's figure of
// merit and calls dampen()/undampen() hooks on suppress/reuse transitions
// (spec §4.4). Lives on the monitor loop; not safe for concurrent use from
// multiple goroutines.
type Dampener struct {
	cfg DampenerConfig

	fom        float64
	lastUpdate time.Time
	suppressed bool

	dampenHook   func()
	undampenHook func()
	persistHook  func(fom float64, suppressed bool)

	clock Clock
	stats StatSink
}

func NewDampener(cfg DampenerConfig, dampenHook, undampenHook func(), clock Clock, stats StatSink) (*Dampener, error) {

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = systemClock
	}
	if stats == nil {
		stats = NullStatSink{}
	}

	return &Dampener{
		cfg:          cfg,
		lastUpdate:   clock.Now(),
		dampenHook:   dampenHook,
		undampenHook: undampenHook,
		clock:        clock,
		stats:        stats,
	}, nil
}

// decay recomputes fom for elapsed time since lastUpdate (spec §4.4
// "Decay"). Called on every read or mutation.
func (d *Dampener) decay(now time.Time) {

	dt := now.Sub(d.lastUpdate)
	if dt <= 0 {
		return
	}

	halves := float64(dt) / float64(d.cfg.HalfLife)
	d.fom = math.Min(d.cfg.MaxSuppressLimit, d.fom*math.Pow(0.5, halves))
	d.lastUpdate = now

	d.stats.Gauge("dampener.fom", d.fom)
}

// Flap is called on each observed connectivity flap (spec §4.4 "Flap").
func (d *Dampener) Flap() {

	now := d.clock.Now()
	d.decay(now)

	d.fom = math.Min(d.cfg.MaxSuppressLimit, d.fom+d.cfg.Penalty)
	d.stats.Gauge("dampener.fom", d.fom)
	d.stats.Count("dampener.flap", 1)

	if !d.suppressed && d.fom >= d.cfg.SuppressLimit {
		d.suppressed = true
		d.stats.Count("dampener.suppress", 1)
		if d.dampenHook != nil {
			d.dampenHook()
		}
	}

	d.persist()
}

// ReuseCheck decays and, if suppressed and fom has fallen to the reuse
// limit, clears suppression and calls undampen() (spec §4.4 "Reuse
// check"). Safe to call periodically or after every flap.
func (d *Dampener) ReuseCheck() {

	now := d.clock.Now()
	d.decay(now)

	if d.suppressed && d.fom <= d.cfg.ReuseLimit {
		d.suppressed = false
		d.stats.Count("dampener.reuse", 1)
		if d.undampenHook != nil {
			d.undampenHook()
		}
	}

	d.persist()
}

// SetPersistHook installs a callback invoked after every fom/suppressed
// mutation, so a restart doesn't lose an in-progress suppression (spec
// design notes §9, grounded on the teacher's db.go write-through pattern).
func (d *Dampener) SetPersistHook(fn func(fom float64, suppressed bool)) {
	d.persistHook = fn
}

// restoreState seeds fom/suppressed from a prior run, without invoking
// dampen/undampen hooks: the monitor decides those side effects itself
// once the initial probe result is known.
func (d *Dampener) restoreState(fom float64, suppressed bool) {
	d.fom = fom
	d.suppressed = suppressed
	d.lastUpdate = d.clock.Now()
}

func (d *Dampener) persist() {
	if d.persistHook != nil {
		d.persistHook(d.fom, d.suppressed)
	}
}

// Suppressed decays then reports current suppression state.
func (d *Dampener) Suppressed() bool {
	d.decay(d.clock.Now())
	return d.suppressed
}

// FigureOfMerit decays then reports the current fom, mainly for tests and
// introspection.
func (d *Dampener) FigureOfMerit() float64 {
	d.decay(d.clock.Now())
	return d.fom
}
