/*
	botgate - a request firewall by ScraperWall
	Copyright (C) 2021 ScraperWall, Tobias von Dewitz <tobias@scraperwall.com>

	This program is free software: you can redistribute it and/or modify it
	under the terms of the GNU Affero General Public License as published by
	the Free Software Foundation, either version 3 of the License, or (at your
	option) any later version.

	This program is distributed in the hope that it will be useful, but WITHOUT
	ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
	FITNESS FOR A PARTICULAR PURPOSE. See the GNU Affero General Public License
	for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program. If not, see <https://www.gnu.org/licenses/>.
*/

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// Default BadgerDB discardRatio. It represents the discard ratio for the
	// BadgerDB GC.
	//
	// Ref: https://godoc.org/github.com/dgraph-io/badger#DB.RunValueLogGC
	badgerDiscardRatio = 0.5

	// Default BadgerDB GC interval
	badgerGCInterval = 10 * time.Minute
)

// BadgerDriver is a wrapper around a BadgerDB backend database that implements
// the Driver interface. Every table is a key namespace ("rule:1.2.3.4").
type BadgerDriver struct {
	db  *badger.DB
	ctx context.Context
}

// NewBadgerDriver returns a new initialized BadgerDB database implementing the Driver
// interface. If the database cannot be initialized, an error will be returned.
func NewBadgerDriver(ctx context.Context, dataDir string) (*BadgerDriver, error) {
	opts := badger.DefaultOptions(dataDir)
	opts.SyncWrites = true
	opts.Dir, opts.ValueDir = dataDir, dataDir
	opts.Logger = badgerLogger{}

	badgerDB, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	bdb := &BadgerDriver{
		db:  badgerDB,
		ctx: ctx,
	}

	go bdb.runGC()
	return bdb, nil
}

// Init implements the Driver interface. Badger namespaces don't need to be created.
func (bdb *BadgerDriver) Init(autoCreate bool) error {
	if bdb.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Get implements the Driver interface. It attempts to get a value for a given key
// and table. If the key does not exist in the provided table, ErrNotFound
// is returned, otherwise the retrieved value.
func (bdb *BadgerDriver) Get(table Table, key string) ([]byte, error) {
	var value []byte

	err := bdb.db.View(func(txn *badger.Txn) error {
		item, err2 := txn.Get(bdb.namespaceKey(table, key))
		if err2 != nil {
			return err2
		}

		return item.Value(func(data []byte) error {
			value = make([]byte, len(data))
			copy(value, data)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Save implements the Driver interface. It attempts to store a value for a given key
// and table. If the key/value pair cannot be saved, an error is returned.
func (bdb *BadgerDriver) Save(table Table, key string, value []byte) error {
	if !validTable(table) {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bdb.namespaceKey(table, key), value)
	})
}

// Delete removes a single entry from the database
func (bdb *BadgerDriver) Delete(table Table, key string) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bdb.namespaceKey(table, key))
	})
}

// All returns all values of a table
func (bdb *BadgerDriver) All(table Table) ([][]byte, error) {
	res := make([][]byte, 0)

	err := bdb.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := bdb.namespacePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				data := make([]byte, len(v))
				copy(data, v)
				res = append(res, data)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return res, nil
}

// Each iterates over all keys of a table
func (bdb *BadgerDriver) Each(table Table, callback func(key string, value []byte)) error {
	prefix := bdb.namespacePrefix(table)

	return bdb.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(prefix):])
			err := item.Value(func(v []byte) error {
				callback(key, v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Rebuild drops all tables
func (bdb *BadgerDriver) Rebuild() error {
	prefixes := make([][]byte, len(Tables))
	for i, t := range Tables {
		prefixes[i] = bdb.namespacePrefix(t)
	}
	return bdb.db.DropPrefix(prefixes...)
}

// Close implements the Driver interface. It closes the connection to the underlying
// BadgerDB database.
func (bdb *BadgerDriver) Close() error {
	return bdb.db.Close()
}

// runGC triggers the garbage collection for the BadgerDB backend database. It
// should be run in a goroutine.
func (bdb *BadgerDriver) runGC() {
	ticker := time.NewTicker(badgerGCInterval)
	for {
		select {
		case <-ticker.C:
			err := bdb.db.RunValueLogGC(badgerDiscardRatio)
			if err != nil {
				// don't report error when GC didn't result in any cleanup
				if err == badger.ErrNoRewrite {
					log.Debugf("no BadgerDB GC occurred: %v", err)
				} else {
					log.Errorf("failed to GC BadgerDB: %v", err)
				}
			}

		case <-bdb.ctx.Done():
			ticker.Stop()
			return
		}
	}
}

func (bdb *BadgerDriver) namespacePrefix(table Table) []byte {
	return []byte(fmt.Sprintf("%s:", table))
}

func (bdb *BadgerDriver) namespaceKey(table Table, key string) []byte {
	return []byte(fmt.Sprintf("%s:%s", table, key))
}

// badgerLogger sends badger's own logging through logrus, one level down
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { log.Errorf("badger: "+f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { log.Warnf("badger: "+f, v...) }
func (badgerLogger) Infof(f string, v ...interface{})    { log.Debugf("badger: "+f, v...) }
func (badgerLogger) Debugf(f string, v ...interface{})   { log.Tracef("badger: "+f, v...) }
