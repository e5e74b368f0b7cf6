/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"testing"
	"time"
)

func testDampenerConfig() DampenerConfig {
	return DampenerConfig{
		Penalty:          1000,
		SuppressLimit:    2000,
		ReuseLimit:       500,
		HalfLife:         300 * time.Second,
		MaxSuppressLimit: 20000,
	}
}

func TestDampenerConfigValidate(t *testing.T) {

	good := testDampenerConfig()
	if err := good.validate(); err != nil {
		t.Errorf("validate() = %v, want nil", err)
	}

	bad := good
	bad.ReuseLimit = bad.SuppressLimit
	if err := bad.validate(); err == nil {
		t.Error("expected error when reuseLimit >= suppressLimit")
	}
}

func TestDampenerFlapSuppresses(t *testing.T) {

	clock := newFakeClock()
	var dampened, undampened int

	d, err := NewDampener(testDampenerConfig(),
		func() { dampened++ },
		func() { undampened++ },
		clock, nil)
	if err != nil {
		t.Fatalf("NewDampener: %v", err)
	}

	// Penalty=1000, suppressLimit=2000: two flaps in quick succession
	// should cross the suppress threshold (spec §4.4 scenario S4).
	d.Flap()
	if d.Suppressed() {
		t.Error("suppressed after a single flap, want not yet")
	}

	d.Flap()
	if !d.Suppressed() {
		t.Error("not suppressed after two flaps at the penalty limit")
	}
	if dampened != 1 {
		t.Errorf("dampenHook called %v times, want 1", dampened)
	}
}

func TestDampenerReuseAfterDecay(t *testing.T) {

	clock := newFakeClock()
	var undampened int

	d, err := NewDampener(testDampenerConfig(), func() {}, func() { undampened++ }, clock, nil)
	if err != nil {
		t.Fatalf("NewDampener: %v", err)
	}

	d.Flap()
	d.Flap()
	if !d.Suppressed() {
		t.Fatal("expected suppression before decay")
	}

	// Advance several half-lives so fom decays below the reuse limit.
	clock.Advance(10 * testDampenerConfig().HalfLife)
	d.ReuseCheck()

	if d.Suppressed() {
		t.Error("still suppressed after long decay")
	}
	if undampened != 1 {
		t.Errorf("undampenHook called %v times, want 1", undampened)
	}
}

func TestDampenerRestoreState(t *testing.T) {

	clock := newFakeClock()
	d, err := NewDampener(testDampenerConfig(), func() {}, func() {}, clock, nil)
	if err != nil {
		t.Fatalf("NewDampener: %v", err)
	}

	d.restoreState(1500, true)
	if got := d.FigureOfMerit(); got != 1500 {
		t.Errorf("FigureOfMerit() = %v, want 1500", got)
	}
	if !d.Suppressed() {
		t.Error("expected restored suppressed state")
	}
}

func TestDampenerPersistHookCalledOnFlap(t *testing.T) {

	clock := newFakeClock()
	d, err := NewDampener(testDampenerConfig(), func() {}, func() {}, clock, nil)
	if err != nil {
		t.Fatalf("NewDampener: %v", err)
	}

	var savedFom float64
	var savedSuppressed bool
	d.SetPersistHook(func(fom float64, suppressed bool) {
		savedFom = fom
		savedSuppressed = suppressed
	})

	d.Flap()

	if savedFom != 1000 {
		t.Errorf("persisted fom = %v, want 1000", savedFom)
	}
	if savedSuppressed {
		t.Error("persisted suppressed = true after a single flap")
	}
}
