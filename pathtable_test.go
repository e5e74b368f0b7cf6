/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"testing"
	"time"
)

func TestPathTableGetOrInsert(t *testing.T) {

	tbl := NewPathTable()
	dst := MustParseMAC("00:00:00:00:00:01")
	now := time.Now()

	p1 := tbl.getOrInsert(dst, now)
	p2 := tbl.getOrInsert(dst, now.Add(time.Second))

	if p1 != p2 {
		t.Errorf("getOrInsert returned different records for the same MAC")
	}
	if p1.Dst != dst {
		t.Errorf("Dst = %v, want %v", p1.Dst, dst)
	}
}

// TestPathTableExpire reproduces spec scenario S3: activePathTimeout of
// silence past ExpTime (already the absolute deadline set at accept time,
// spec §4.3 step 6) evicts the entry; a single tick short of it does not.
func TestPathTableExpire(t *testing.T) {

	timeout := 10 * time.Second
	tbl := NewPathTable()
	dst := MustParseMAC("00:00:00:00:00:01")
	now := time.Now()

	p := tbl.getOrInsert(dst, now)
	p.ExpTime = now.Add(timeout)

	if _, ok := tbl.lookup(dst); !ok {
		t.Fatal("expected entry present before expiry")
	}

	if evicted := tbl.expire(now.Add(timeout - time.Second)); len(evicted) != 0 {
		t.Errorf("expire() = %v before deadline, want none", evicted)
	}

	evicted := tbl.expire(now.Add(timeout + time.Second))
	if len(evicted) != 1 || evicted[0] != dst {
		t.Errorf("expire() = %v, want [%v]", evicted, dst)
	}
	if _, ok := tbl.lookup(dst); ok {
		t.Error("entry still present after expiry")
	}
}

func TestPathTableSnapshot(t *testing.T) {

	tbl := NewPathTable()
	now := time.Now()
	a := MustParseMAC("00:00:00:00:00:01")
	b := MustParseMAC("00:00:00:00:00:02")

	tbl.getOrInsert(a, now)
	tbl.getOrInsert(b, now)

	rows := tbl.snapshot(now)
	if len(rows) != 2 {
		t.Fatalf("snapshot has %v rows, want 2", len(rows))
	}
	if _, ok := rows[a]; !ok {
		t.Error("snapshot missing entry a")
	}
}
