/* Copyright (c) 2025 Waldemar Augustyn */

package main

import (
	"encoding/binary"
	"math"
	"path"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	stateDbName = "meshpathd.db"
	dampenerBkt = "dampener"
	fomKey      = "fom"
	suppressKey = "suppressed"
)

// StateStore persists dampener state across restarts so a daemon restart
// doesn't silently forget an in-progress suppression and immediately
// re-advertise a route that was flapping moments before. Grounded on the
// teacher's db.go/persist.go bbolt open/bucket pattern.
type StateStore struct {
	db *bolt.DB
}

func OpenStateStore(dataDir string) (*StateStore, error) {

	dbpath := path.Join(dataDir, stateDbName)

	db, err := bolt.Open(dbpath, 0664, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(dampenerBkt))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &StateStore{db: db}, nil
}

func (s *StateStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveDampenerState records fom/suppressed so RestoreDampenerState can
// pick up where the previous run left off.
func (s *StateStore) SaveDampenerState(fom float64, suppressed bool) {

	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(dampenerBkt))

		fbits := make([]byte, 8)
		be.PutUint64(fbits, math.Float64bits(fom))
		if err := bkt.Put([]byte(fomKey), fbits); err != nil {
			return err
		}

		var sval byte
		if suppressed {
			sval = 1
		}
		return bkt.Put([]byte(suppressKey), []byte{sval})
	})
	if err != nil {
		log.err("persist: save dampener state failed: %v", err)
	}
}

// RestoreDampenerState returns the last saved fom/suppressed, or zero
// values if none was ever saved.
func (s *StateStore) RestoreDampenerState() (fom float64, suppressed bool) {

	s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(dampenerBkt))
		if bkt == nil {
			return nil
		}
		if fbits := bkt.Get([]byte(fomKey)); len(fbits) == 8 {
			fom = math.Float64frombits(binary.BigEndian.Uint64(fbits))
		}
		if sval := bkt.Get([]byte(suppressKey)); len(sval) == 1 {
			suppressed = sval[0] != 0
		}
		return nil
	})

	return fom, suppressed
}
