/* Copyright (c) 2025 Waldemar Augustyn */

package main

import "testing"

func TestMemStatSinkCountAccumulates(t *testing.T) {

	s := NewMemStatSink()
	s.Count("frame.malformed", 1)
	s.Count("frame.malformed", 2)

	if got := s.Get("frame.malformed"); got != 3 {
		t.Errorf("Get() = %v, want 3", got)
	}
	if got := s.Get("never_touched"); got != 0 {
		t.Errorf("Get() on unknown counter = %v, want 0", got)
	}
}

func TestMemStatSinkGaugeOverwrites(t *testing.T) {

	s := NewMemStatSink()
	s.Gauge("dampener.fom", 100)
	s.Gauge("dampener.fom", 250)

	if got := s.GetGauge("dampener.fom"); got != 250 {
		t.Errorf("GetGauge() = %v, want 250", got)
	}
}

func TestNullStatSinkDiscards(t *testing.T) {
	var s NullStatSink
	s.Count("anything", 1)
	s.Gauge("anything", 1.0)
}
